package fec

import (
	"slices"

	"github.com/opd-ai/toxfec/av/rtp"
)

// ProtectionHeader is the parsed FEC-specific header of one protection packet,
// with the fields recovery needs in a format-independent shape.
type ProtectionHeader struct {
	// Format is the wire format the header was read from.
	Format Format

	// RecoveryFlags holds the XOR of the first two RTP header bytes
	// (P, X, CC, M and PT). The bits that share the version position are
	// format flags and are cleared.
	RecoveryFlags [2]byte

	// LengthRecovery is the XOR of the protected region lengths.
	LengthRecovery uint16

	// TimestampRecovery is the XOR of the protected timestamps.
	TimestampRecovery uint32

	// BaseSequence is the sequence number mask deltas are measured from.
	BaseSequence uint16

	// ProtectedSSRC is the SSRC of the protected media stream.
	ProtectedSSRC uint32

	// Protected lists the protected sequence numbers.
	Protected []uint16

	// HeaderLength is the byte length of the FEC header, counted from the end
	// of the protection packet's RTP header. The repair payload follows it.
	HeaderLength int

	// ProtectionLength is the number of protected bytes the repair payload
	// covers.
	ProtectionLength int

	// Payload is the repair payload. It aliases the protection packet buffer.
	Payload []byte
}

// Protects reports whether seq is one of the protected sequence numbers.
func (h *ProtectionHeader) Protects(seq uint16) bool {
	return slices.Contains(h.Protected, seq)
}

// Codec reads and writes one protection packet wire format.
//
// Parse never panics on malformed input; every problem is reported as an
// error and the caller drops the packet.
type Codec interface {
	// Format identifies the wire format.
	Format() Format

	// Parse reads the protection header that follows pkt's RTP header.
	Parse(pkt *rtp.RawPacket) (*ProtectionHeader, error)

	// Marshal serializes a finished protection unit as FEC header plus
	// repair payload, ready to become the payload of an RTP packet.
	Marshal(unit *ProtectionUnit) ([]byte, error)
}

// CodecFor returns the codec for format. Unknown formats fall back to ULPFEC.
func CodecFor(format Format) Codec {
	if format == FormatFlexFEC03 {
		return flexFEC03Codec{}
	}
	return ulpfecCodec{}
}
