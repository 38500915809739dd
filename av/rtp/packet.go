// Package rtp provides raw RTP packet handling for the FEC subsystem.
//
// This package wraps mutable packet buffers so that header fields can be
// read and rewritten in place, which is what protection packet generation
// and loss recovery need. It uses the pion/rtp library for
// standards-compliant header parsing and serialization.
//
// Design principles:
// - Never copy a packet unless ownership changes
// - Accessors are bounds-checked and never panic on short buffers
// - Use pion/rtp for full header parsing and packet construction
package rtp

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/toxfec/limits"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

const (
	// Version is the only RTP version the subsystem handles.
	Version = 2

	extensionProfileSize = 4
)

// RawPacket is one RTP packet stored in a mutable byte buffer.
//
// The packet occupies buffer[offset:offset+length]. All accessors read the
// fixed RTP header directly from the buffer and all mutators rewrite it in
// place. A RawPacket shorter than the fixed 12-byte header is never treated
// as valid RTP: accessors return zero values and mutators do nothing.
type RawPacket struct {
	buffer []byte
	offset int
	length int
}

// NewRawPacket wraps an existing buffer region.
//
// Parameters:
//   - buffer: Backing storage, not copied
//   - offset: Start of the packet inside buffer
//   - length: Packet length in bytes
//
// Returns:
//   - *RawPacket: Packet view over the buffer
func NewRawPacket(buffer []byte, offset, length int) *RawPacket {
	if offset < 0 {
		offset = 0
	}
	if offset > len(buffer) {
		offset = len(buffer)
	}
	if length < 0 || offset+length > len(buffer) {
		length = len(buffer) - offset
	}

	return &RawPacket{
		buffer: buffer,
		offset: offset,
		length: length,
	}
}

// NewRawPacketFromBytes wraps data as a packet starting at offset zero.
func NewRawPacketFromBytes(data []byte) *RawPacket {
	return NewRawPacket(data, 0, len(data))
}

// FromRTP serializes a pion RTP packet into a new RawPacket.
//
// Parameters:
//   - packet: Parsed RTP packet to serialize
//
// Returns:
//   - *RawPacket: Packet owning a freshly allocated buffer
//   - error: Any error that occurred during serialization
func FromRTP(packet *rtp.Packet) (*RawPacket, error) {
	if packet == nil {
		return nil, fmt.Errorf("packet cannot be nil")
	}

	data, err := packet.Marshal()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "FromRTP",
			"error":    err.Error(),
		}).Error("Failed to marshal RTP packet")
		return nil, fmt.Errorf("failed to marshal RTP packet: %w", err)
	}
	if err := limits.ValidatePacketSize(data); err != nil {
		return nil, fmt.Errorf("invalid RTP packet: %w", err)
	}

	return NewRawPacketFromBytes(data), nil
}

// Buffer returns the backing buffer.
func (p *RawPacket) Buffer() []byte {
	return p.buffer
}

// Offset returns the start of the packet inside the buffer.
func (p *RawPacket) Offset() int {
	return p.offset
}

// Length returns the packet length in bytes.
func (p *RawPacket) Length() int {
	return p.length
}

// Capacity returns how many bytes the packet could grow to without reallocation.
func (p *RawPacket) Capacity() int {
	return len(p.buffer) - p.offset
}

// SetLength changes the packet length. Lengths beyond Capacity are clamped.
func (p *RawPacket) SetLength(length int) {
	if length < 0 {
		length = 0
	}
	if length > p.Capacity() {
		length = p.Capacity()
	}
	p.length = length
}

// Bytes returns the packet bytes. The slice aliases the backing buffer.
func (p *RawPacket) Bytes() []byte {
	return p.buffer[p.offset : p.offset+p.length]
}

// IsValid reports whether the packet holds at least a fixed RTP header
// with version 2.
func (p *RawPacket) IsValid() bool {
	return p.length >= limits.RTPHeaderSize && p.Version() == Version
}

func (p *RawPacket) hasFixedHeader() bool {
	return p.length >= limits.RTPHeaderSize
}

// Version returns the RTP version field.
func (p *RawPacket) Version() uint8 {
	if p.length < 1 {
		return 0
	}
	return p.buffer[p.offset] >> 6
}

// Marker returns the RTP marker bit.
func (p *RawPacket) Marker() bool {
	if !p.hasFixedHeader() {
		return false
	}
	return p.buffer[p.offset+1]&0x80 != 0
}

// SetMarker rewrites the RTP marker bit.
func (p *RawPacket) SetMarker(marker bool) {
	if !p.hasFixedHeader() {
		return
	}
	if marker {
		p.buffer[p.offset+1] |= 0x80
	} else {
		p.buffer[p.offset+1] &= 0x7f
	}
}

// PayloadType returns the 7-bit RTP payload type.
func (p *RawPacket) PayloadType() uint8 {
	if !p.hasFixedHeader() {
		return 0
	}
	return p.buffer[p.offset+1] & 0x7f
}

// SetPayloadType rewrites the payload type, preserving the marker bit.
func (p *RawPacket) SetPayloadType(pt uint8) {
	if !p.hasFixedHeader() {
		return
	}
	p.buffer[p.offset+1] = p.buffer[p.offset+1]&0x80 | pt&0x7f
}

// SequenceNumber returns the 16-bit RTP sequence number.
func (p *RawPacket) SequenceNumber() uint16 {
	if !p.hasFixedHeader() {
		return 0
	}
	return binary.BigEndian.Uint16(p.buffer[p.offset+2:])
}

// SetSequenceNumber rewrites the RTP sequence number.
func (p *RawPacket) SetSequenceNumber(seq uint16) {
	if !p.hasFixedHeader() {
		return
	}
	binary.BigEndian.PutUint16(p.buffer[p.offset+2:], seq)
}

// Timestamp returns the 32-bit RTP timestamp.
func (p *RawPacket) Timestamp() uint32 {
	if !p.hasFixedHeader() {
		return 0
	}
	return binary.BigEndian.Uint32(p.buffer[p.offset+4:])
}

// SetTimestamp rewrites the RTP timestamp.
func (p *RawPacket) SetTimestamp(ts uint32) {
	if !p.hasFixedHeader() {
		return
	}
	binary.BigEndian.PutUint32(p.buffer[p.offset+4:], ts)
}

// SSRC returns the synchronization source identifier.
func (p *RawPacket) SSRC() uint32 {
	if !p.hasFixedHeader() {
		return 0
	}
	return binary.BigEndian.Uint32(p.buffer[p.offset+8:])
}

// SetSSRC rewrites the synchronization source identifier.
func (p *RawPacket) SetSSRC(ssrc uint32) {
	if !p.hasFixedHeader() {
		return
	}
	binary.BigEndian.PutUint32(p.buffer[p.offset+8:], ssrc)
}

// HeaderLength returns the full RTP header length: the fixed header, the
// CSRC list and the header extension if present. If the buffer is too short
// to hold what the header declares, the packet length is returned.
func (p *RawPacket) HeaderLength() int {
	if !p.hasFixedHeader() {
		return p.length
	}
	b := p.Bytes()
	headerLength := limits.RTPHeaderSize + 4*int(b[0]&0x0f)
	if b[0]&0x10 != 0 && headerLength+extensionProfileSize <= len(b) {
		extWords := int(binary.BigEndian.Uint16(b[headerLength+2:]))
		headerLength += extensionProfileSize + 4*extWords
	}
	if headerLength > p.length {
		return p.length
	}
	return headerLength
}

// PayloadLength returns the number of bytes after the full RTP header.
func (p *RawPacket) PayloadLength() int {
	return p.length - p.HeaderLength()
}

// Payload returns the bytes after the full RTP header. The slice aliases
// the backing buffer.
func (p *RawPacket) Payload() []byte {
	return p.Bytes()[p.HeaderLength():]
}

// Header parses the full RTP header with pion/rtp.
//
// Returns:
//   - rtp.Header: Parsed header
//   - error: Any error that occurred during parsing
func (p *RawPacket) Header() (rtp.Header, error) {
	var header rtp.Header
	if _, err := header.Unmarshal(p.Bytes()); err != nil {
		return rtp.Header{}, fmt.Errorf("failed to unmarshal RTP header: %w", err)
	}
	return header, nil
}

// Clone returns a deep copy backed by a buffer sized to the packet.
func (p *RawPacket) Clone() *RawPacket {
	data := make([]byte, p.length)
	copy(data, p.Bytes())
	return NewRawPacketFromBytes(data)
}

// CopyFrom overwrites the packet with the contents of src, reusing the
// existing buffer when it is large enough.
func (p *RawPacket) CopyFrom(src *RawPacket) {
	if src.length > len(p.buffer) {
		p.buffer = make([]byte, src.length)
	}
	p.offset = 0
	p.length = copy(p.buffer, src.Bytes())
}

// String implements fmt.Stringer for log output.
func (p *RawPacket) String() string {
	return fmt.Sprintf("RTP[ssrc=%d pt=%d seq=%d ts=%d len=%d]",
		p.SSRC(), p.PayloadType(), p.SequenceNumber(), p.Timestamp(), p.length)
}
