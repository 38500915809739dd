package fec

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/toxfec/av/rtp"
)

/*
ULPFEC protection packet payload (RFC 5109 section 7.3 and 7.4):

	 0                   1                   2                   3
	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|E|L|P|X|  CC   |M| PT recovery |            SN base            |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|                          TS recovery                          |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|        length recovery        |       Protection Length       |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|             mask              |     mask cont. (present only  |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|     when L = 1)               |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/

const (
	ulpfecHeaderSize      = 10
	ulpfecLevel0ShortSize = 2 + ulpfecShortMaskSize
	ulpfecLevel0LongSize  = 2 + ulpfecLongMaskSize

	// ULPFECMinHeaderSize is the smallest FEC header plus level-0 header.
	ULPFECMinHeaderSize = ulpfecHeaderSize + ulpfecLevel0ShortSize

	ulpfecExtensionBit = 0x80
	ulpfecLongMaskBit  = 0x40
	formatFlagBits     = 0xc0
)

type ulpfecCodec struct{}

func (ulpfecCodec) Format() Format {
	return FormatULPFEC
}

func (ulpfecCodec) Parse(pkt *rtp.RawPacket) (*ProtectionHeader, error) {
	if !pkt.IsValid() {
		return nil, fmt.Errorf("%w: invalid RTP packet of %d bytes", ErrPacketTooShort, pkt.Length())
	}

	data := pkt.Payload()
	if len(data) < ULPFECMinHeaderSize {
		return nil, fmt.Errorf("%w: ULPFEC header needs %d bytes, have %d",
			ErrPacketTooShort, ULPFECMinHeaderSize, len(data))
	}
	if data[0]&ulpfecExtensionBit != 0 {
		return nil, fmt.Errorf("%w: ULPFEC E bit set", ErrUnsupportedFlags)
	}

	maskSize := ulpfecShortMaskSize
	level0Size := ulpfecLevel0ShortSize
	if data[0]&ulpfecLongMaskBit != 0 {
		maskSize = ulpfecLongMaskSize
		level0Size = ulpfecLevel0LongSize
	}
	headerLength := ulpfecHeaderSize + level0Size
	if len(data) < headerLength {
		return nil, fmt.Errorf("%w: ULPFEC long mask header needs %d bytes, have %d",
			ErrPacketTooShort, headerLength, len(data))
	}

	base := binary.BigEndian.Uint16(data[2:4])
	protectionLength := int(binary.BigEndian.Uint16(data[10:12]))
	protected := DecodeULPFECMask(data[12:12+maskSize], base)
	if len(protected) == 0 {
		return nil, fmt.Errorf("%w: empty ULPFEC mask", ErrMalformedMask)
	}

	repair := data[headerLength:]
	if len(repair) < protectionLength {
		return nil, fmt.Errorf("%w: protection length %d but %d repair bytes",
			ErrPacketTooShort, protectionLength, len(repair))
	}

	return &ProtectionHeader{
		Format:            FormatULPFEC,
		RecoveryFlags:     [2]byte{data[0] &^ formatFlagBits, data[1]},
		LengthRecovery:    binary.BigEndian.Uint16(data[8:10]),
		TimestampRecovery: binary.BigEndian.Uint32(data[4:8]),
		BaseSequence:      base,
		ProtectedSSRC:     pkt.SSRC(),
		Protected:         protected,
		HeaderLength:      headerLength,
		ProtectionLength:  protectionLength,
		Payload:           repair[:protectionLength],
	}, nil
}

func (ulpfecCodec) Marshal(unit *ProtectionUnit) ([]byte, error) {
	mask, long, err := EncodeULPFECMask(unit.base, unit.protected)
	if err != nil {
		return nil, err
	}

	level0Size := ulpfecLevel0ShortSize
	if long {
		level0Size = ulpfecLevel0LongSize
	}
	headerLength := ulpfecHeaderSize + level0Size

	out := make([]byte, headerLength+unit.protectionLength)
	out[0] = unit.header[0] &^ formatFlagBits
	if long {
		out[0] |= ulpfecLongMaskBit
	}
	out[1] = unit.header[1]
	binary.BigEndian.PutUint16(out[2:4], unit.base)
	copy(out[4:8], unit.header[4:8])
	copy(out[8:10], unit.header[2:4])
	binary.BigEndian.PutUint16(out[10:12], uint16(unit.protectionLength))
	copy(out[12:12+len(mask)], mask)
	copy(out[headerLength:], unit.payload[:unit.protectionLength])

	return out, nil
}
