package fec

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/toxfec/av/rtp"
	"github.com/opd-ai/toxfec/limits"
)

// recoverPacket rebuilds the single missing packet of a protection unit by
// XORing the repair data with every other protected packet in media.
//
// The recovered packet keeps the P, X and CC bits and the marker and payload
// type that the XOR produces; only the version is forced to 2. Its sequence
// number is missing and its SSRC the protected SSRC.
func recoverPacket(h *ProtectionHeader, missing uint16, media *History) (*rtp.RawPacket, error) {
	if h.ProtectionLength > limits.MaxProtectedLength {
		return nil, fmt.Errorf("%w: protection length %d exceeds %d",
			ErrRecoveredTooLarge, h.ProtectionLength, limits.MaxProtectedLength)
	}

	buf := make([]byte, limits.MaxPacketSize)
	buf[0] = h.RecoveryFlags[0]
	buf[1] = h.RecoveryFlags[1]
	binary.BigEndian.PutUint16(buf[2:4], h.LengthRecovery)
	binary.BigEndian.PutUint32(buf[4:8], h.TimestampRecovery)
	copy(buf[limits.RTPHeaderSize:], h.Payload[:h.ProtectionLength])

	for _, seq := range h.Protected {
		if seq == missing {
			continue
		}
		pkt, ok := media.Get(seq)
		if !ok {
			return nil, fmt.Errorf("%w: sequence %d", ErrMediaMissing, seq)
		}

		data := pkt.Bytes()
		protectedLength := len(data) - limits.RTPHeaderSize
		if protectedLength < 0 {
			return nil, fmt.Errorf("%w: media packet %d has %d bytes",
				limits.ErrPacketTooShort, seq, len(data))
		}
		if protectedLength > h.ProtectionLength {
			return nil, fmt.Errorf("%w: media packet %d needs %d bytes, protection covers %d",
				ErrProtectionLengthTooSmall, seq, protectedLength, h.ProtectionLength)
		}

		buf[0] ^= data[0]
		buf[1] ^= data[1]
		length := binary.BigEndian.Uint16(buf[2:4]) ^ uint16(protectedLength)
		binary.BigEndian.PutUint16(buf[2:4], length)
		for i := 4; i < 8; i++ {
			buf[i] ^= data[i]
		}
		for i, b := range data[limits.RTPHeaderSize:] {
			buf[limits.RTPHeaderSize+i] ^= b
		}
	}

	recoveredLength := int(binary.BigEndian.Uint16(buf[2:4]))
	if recoveredLength > h.ProtectionLength {
		return nil, fmt.Errorf("%w: recovered length %d, protection covers %d",
			ErrProtectionLengthTooSmall, recoveredLength, h.ProtectionLength)
	}
	if err := limits.ValidateRecoveredLength(recoveredLength, len(buf)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecoveredTooLarge, err)
	}

	buf[0] = buf[0]&0x3f | rtp.Version<<6
	binary.BigEndian.PutUint16(buf[2:4], missing)
	binary.BigEndian.PutUint32(buf[8:12], h.ProtectedSSRC)

	return rtp.NewRawPacket(buf, 0, limits.RTPHeaderSize+recoveredLength), nil
}
