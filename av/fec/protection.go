package fec

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/toxfec/av/rtp"
	"github.com/opd-ai/toxfec/limits"
	pionrtp "github.com/pion/rtp"
)

// ProtectionUnit accumulates the XOR of the media packets one protection
// packet covers.
//
// header mirrors the layout used during recovery: bytes 0-1 are the first two
// RTP header bytes, bytes 2-3 the protected length and bytes 4-7 the
// timestamp. payload is the XOR of every byte after the fixed RTP header,
// zero-extended to the longest packet seen.
type ProtectionUnit struct {
	header           [8]byte
	payload          []byte
	protected        []uint16
	base             uint16
	protectionLength int
	lastSequence     uint16
	lastTimestamp    uint32
	ssrc             uint32
}

// NewProtectionUnit returns an empty unit.
func NewProtectionUnit() *ProtectionUnit {
	return &ProtectionUnit{
		payload:   make([]byte, 0, limits.MaxProtectedLength),
		protected: make([]uint16, 0, MaxRedundancyRate),
	}
}

// Count returns how many media packets have been folded in.
func (u *ProtectionUnit) Count() int {
	return len(u.protected)
}

// Base returns the base sequence number: the oldest folded sequence number.
func (u *ProtectionUnit) Base() uint16 {
	return u.base
}

// Protected returns the folded sequence numbers in insertion order.
// The slice aliases the unit and is only valid until the next Reset.
func (u *ProtectionUnit) Protected() []uint16 {
	return u.protected
}

// ProtectionLength returns the longest protected region folded in so far.
func (u *ProtectionUnit) ProtectionLength() int {
	return u.protectionLength
}

// Add folds pkt into the unit.
//
// Parameters:
//   - pkt: Media packet; its bytes are read but not retained
//
// Returns:
//   - error: limits.ErrPacketTooShort or limits.ErrPacketTooLarge for packets
//     that cannot be protected
func (u *ProtectionUnit) Add(pkt *rtp.RawPacket) error {
	data := pkt.Bytes()
	if err := limits.ValidatePacketSize(data); err != nil {
		return err
	}

	seq := pkt.SequenceNumber()
	if len(u.protected) == 0 {
		u.base = seq
		u.ssrc = pkt.SSRC()
	} else if rtp.IsSequenceOlder(seq, u.base) {
		u.base = seq
	}

	protectedLength := len(data) - limits.RTPHeaderSize
	u.header[0] ^= data[0]
	u.header[1] ^= data[1]
	lengthRecovery := binary.BigEndian.Uint16(u.header[2:4]) ^ uint16(protectedLength)
	binary.BigEndian.PutUint16(u.header[2:4], lengthRecovery)
	for i := 4; i < 8; i++ {
		u.header[i] ^= data[i]
	}

	if protectedLength > len(u.payload) {
		u.payload = append(u.payload, make([]byte, protectedLength-len(u.payload))...)
	}
	for i, b := range data[limits.RTPHeaderSize:] {
		u.payload[i] ^= b
	}

	u.protectionLength = max(u.protectionLength, protectedLength)
	u.protected = append(u.protected, seq)
	u.lastSequence = seq
	u.lastTimestamp = pkt.Timestamp()
	return nil
}

// Reset empties the unit, keeping its buffers.
func (u *ProtectionUnit) Reset() {
	u.header = [8]byte{}
	u.payload = u.payload[:0]
	u.protected = u.protected[:0]
	u.base = 0
	u.protectionLength = 0
	u.lastSequence = 0
	u.lastTimestamp = 0
	u.ssrc = 0
}

// Finish serializes the unit as a complete RTP protection packet. The packet
// carries the timestamp of the last folded media packet. The unit is left
// unchanged; callers Reset it once the packet is sent.
//
// Parameters:
//   - codec: Wire format of the FEC header
//   - payloadType: RTP payload type of the protection packet
//   - ssrc: SSRC of the protection packet
//   - seq: Sequence number of the protection packet
//
// Returns:
//   - *rtp.RawPacket: Protection packet in a freshly allocated buffer
//   - error: Any error that occurred during serialization
func (u *ProtectionUnit) Finish(codec Codec, payloadType uint8, ssrc uint32, seq uint16) (*rtp.RawPacket, error) {
	if len(u.protected) == 0 {
		return nil, fmt.Errorf("%w: no media packets folded in", ErrMalformedMask)
	}

	payload, err := codec.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s header: %w", codec.Format(), err)
	}

	return rtp.FromRTP(&pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        rtp.Version,
			PayloadType:    payloadType & 0x7f,
			SequenceNumber: seq,
			Timestamp:      u.lastTimestamp,
			SSRC:           ssrc,
		},
		Payload: payload,
	})
}
