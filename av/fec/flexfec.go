package fec

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/toxfec/av/rtp"
)

/*
FlexFEC-03 protection packet payload with flexible mask (F = 0):

	 0                   1                   2                   3
	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|R|F|P|X|  CC   |M| PT recovery |        length recovery        |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|                          TS recovery                          |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|   SSRCCount   |                    reserved                   |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|                             SSRC_i                            |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|           SN base_i           |k|          Mask [0-14]        |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|k|                   Mask [15-45] (optional)                   |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|k|                                                             |
	+-+                   Mask [46-108] (optional)                  |
	|                                                               |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/

const (
	// FlexFEC03MinHeaderSize is the smallest header including the 2-byte mask.
	FlexFEC03MinHeaderSize = 20

	flexMaskOffset       = 18
	flexRetransmitBit    = 0x80
	flexFixedMaskBit     = 0x40
	flexSupportedSSRCCnt = 1
)

type flexFEC03Codec struct{}

func (flexFEC03Codec) Format() Format {
	return FormatFlexFEC03
}

func (flexFEC03Codec) Parse(pkt *rtp.RawPacket) (*ProtectionHeader, error) {
	if !pkt.IsValid() {
		return nil, fmt.Errorf("%w: invalid RTP packet of %d bytes", ErrPacketTooShort, pkt.Length())
	}

	data := pkt.Payload()
	if len(data) < FlexFEC03MinHeaderSize {
		return nil, fmt.Errorf("%w: FlexFEC header needs %d bytes, have %d",
			ErrPacketTooShort, FlexFEC03MinHeaderSize, len(data))
	}
	if data[0]&flexRetransmitBit != 0 {
		return nil, ErrRetransmission
	}
	if data[0]&flexFixedMaskBit != 0 {
		return nil, ErrFixedMask
	}
	if data[8] != flexSupportedSSRCCnt {
		return nil, fmt.Errorf("%w: got %d", ErrSSRCCount, data[8])
	}

	base := binary.BigEndian.Uint16(data[16:18])
	protected, maskSize, err := DecodeFlexMask(data[flexMaskOffset:], base)
	if err != nil {
		return nil, err
	}
	if len(protected) == 0 {
		return nil, fmt.Errorf("%w: empty FlexFEC mask", ErrMalformedMask)
	}

	headerLength := flexMaskOffset + maskSize
	repair := data[headerLength:]

	return &ProtectionHeader{
		Format:            FormatFlexFEC03,
		RecoveryFlags:     [2]byte{data[0] &^ formatFlagBits, data[1]},
		LengthRecovery:    binary.BigEndian.Uint16(data[2:4]),
		TimestampRecovery: binary.BigEndian.Uint32(data[4:8]),
		BaseSequence:      base,
		ProtectedSSRC:     binary.BigEndian.Uint32(data[12:16]),
		Protected:         protected,
		HeaderLength:      headerLength,
		ProtectionLength:  len(repair),
		Payload:           repair,
	}, nil
}

func (flexFEC03Codec) Marshal(unit *ProtectionUnit) ([]byte, error) {
	mask, err := EncodeFlexMask(unit.base, unit.protected)
	if err != nil {
		return nil, err
	}

	headerLength := flexMaskOffset + len(mask)
	out := make([]byte, headerLength+unit.protectionLength)
	out[0] = unit.header[0] &^ formatFlagBits
	out[1] = unit.header[1]
	copy(out[2:4], unit.header[2:4])
	copy(out[4:8], unit.header[4:8])
	out[8] = flexSupportedSSRCCnt
	binary.BigEndian.PutUint32(out[12:16], unit.ssrc)
	binary.BigEndian.PutUint16(out[16:18], unit.base)
	copy(out[flexMaskOffset:], mask)
	copy(out[headerLength:], unit.payload[:unit.protectionLength])

	return out, nil
}
