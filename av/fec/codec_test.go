package fec

import (
	"encoding/binary"
	"testing"

	"github.com/opd-ai/toxfec/av/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecFor(t *testing.T) {
	assert.Equal(t, FormatULPFEC, CodecFor(FormatULPFEC).Format())
	assert.Equal(t, FormatFlexFEC03, CodecFor(FormatFlexFEC03).Format())
	assert.Equal(t, FormatULPFEC, CodecFor(Format(42)).Format())
}

func TestULPFECParse(t *testing.T) {
	media := newMediaPackets(t, testMediaSSRC, 100, 101, 102, 103)
	pkt := newProtectionPacket(t, FormatULPFEC, testMediaSSRC, 104, media...)

	header, err := CodecFor(FormatULPFEC).Parse(pkt)
	require.NoError(t, err)

	assert.Equal(t, FormatULPFEC, header.Format)
	assert.Equal(t, uint16(100), header.BaseSequence)
	assert.Equal(t, []uint16{100, 101, 102, 103}, header.Protected)
	assert.Equal(t, testMediaSSRC, header.ProtectedSSRC)
	assert.Equal(t, ULPFECMinHeaderSize, header.HeaderLength)
	assert.True(t, header.Protects(102))
	assert.False(t, header.Protects(104))

	longest := 0
	var lengthXOR uint16
	var tsXOR uint32
	for _, m := range media {
		longest = max(longest, m.Length()-12)
		lengthXOR ^= uint16(m.Length() - 12)
		tsXOR ^= m.Timestamp()
	}
	assert.Equal(t, longest, header.ProtectionLength)
	assert.Len(t, header.Payload, longest)
	assert.Equal(t, lengthXOR, header.LengthRecovery)
	assert.Equal(t, tsXOR, header.TimestampRecovery)
	assert.Equal(t, byte(0), header.RecoveryFlags[0]&formatFlagBits)
}

func TestULPFECParseLongMask(t *testing.T) {
	media := newMediaPackets(t, testMediaSSRC, 100, 120)
	pkt := newProtectionPacket(t, FormatULPFEC, testMediaSSRC, 121, media...)

	assert.NotZero(t, pkt.Payload()[0]&ulpfecLongMaskBit)

	header, err := CodecFor(FormatULPFEC).Parse(pkt)
	require.NoError(t, err)
	assert.Equal(t, ulpfecHeaderSize+ulpfecLevel0LongSize, header.HeaderLength)
	assert.Equal(t, []uint16{100, 120}, header.Protected)
}

func TestFlexFEC03Parse(t *testing.T) {
	media := newMediaPackets(t, testMediaSSRC, 65534, 65535, 0, 1)
	pkt := newProtectionPacket(t, FormatFlexFEC03, testFECSSRC, 7, media...)

	header, err := CodecFor(FormatFlexFEC03).Parse(pkt)
	require.NoError(t, err)

	assert.Equal(t, FormatFlexFEC03, header.Format)
	assert.Equal(t, uint16(65534), header.BaseSequence)
	assert.Equal(t, []uint16{65534, 65535, 0, 1}, header.Protected)
	assert.Equal(t, testMediaSSRC, header.ProtectedSSRC)
	assert.Equal(t, FlexFEC03MinHeaderSize, header.HeaderLength)
	assert.Equal(t, pkt.PayloadLength()-FlexFEC03MinHeaderSize, header.ProtectionLength)
}

// corrupt returns a copy of pkt with fn applied to its payload.
func corrupt(pkt *rtp.RawPacket, fn func(payload []byte)) *rtp.RawPacket {
	c := pkt.Clone()
	fn(c.Payload())
	return c
}

func TestFlexFEC03ParseRejects(t *testing.T) {
	media := newMediaPackets(t, testMediaSSRC, 10, 11)
	valid := newProtectionPacket(t, FormatFlexFEC03, testFECSSRC, 1, media...)
	codec := CodecFor(FormatFlexFEC03)

	tests := []struct {
		name    string
		pkt     *rtp.RawPacket
		wantErr error
	}{
		{
			name:    "retransmission bit",
			pkt:     corrupt(valid, func(p []byte) { p[0] |= 0x80 }),
			wantErr: ErrRetransmission,
		},
		{
			name:    "fixed mask",
			pkt:     corrupt(valid, func(p []byte) { p[0] |= 0x40 }),
			wantErr: ErrFixedMask,
		},
		{
			name:    "two SSRCs",
			pkt:     corrupt(valid, func(p []byte) { p[8] = 2 }),
			wantErr: ErrSSRCCount,
		},
		{
			name:    "no SSRC",
			pkt:     corrupt(valid, func(p []byte) { p[8] = 0 }),
			wantErr: ErrSSRCCount,
		},
		{
			name:    "empty mask",
			pkt:     corrupt(valid, func(p []byte) { p[18] = 0x80; p[19] = 0 }),
			wantErr: ErrMalformedMask,
		},
		{
			name:    "header too short",
			pkt:     rtp.NewRawPacket(valid.Clone().Bytes(), 0, 12+FlexFEC03MinHeaderSize-1),
			wantErr: ErrPacketTooShort,
		},
		{
			name: "truncated medium mask",
			pkt: rtp.NewRawPacket(
				corrupt(valid, func(p []byte) { p[18] = 0 }).Bytes(), 0, 12+FlexFEC03MinHeaderSize+2),
			wantErr: ErrMalformedMask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Parse(tt.pkt)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestULPFECParseRejects(t *testing.T) {
	media := newMediaPackets(t, testMediaSSRC, 10, 11)
	valid := newProtectionPacket(t, FormatULPFEC, testMediaSSRC, 12, media...)
	codec := CodecFor(FormatULPFEC)

	tests := []struct {
		name    string
		pkt     *rtp.RawPacket
		wantErr error
	}{
		{
			name:    "extension bit",
			pkt:     corrupt(valid, func(p []byte) { p[0] |= ulpfecExtensionBit }),
			wantErr: ErrUnsupportedFlags,
		},
		{
			name:    "empty mask",
			pkt:     corrupt(valid, func(p []byte) { p[12] = 0; p[13] = 0 }),
			wantErr: ErrMalformedMask,
		},
		{
			name:    "long mask without room",
			pkt:     rtp.NewRawPacket(corrupt(valid, func(p []byte) { p[0] |= ulpfecLongMaskBit }).Bytes(), 0, 12+ULPFECMinHeaderSize+2),
			wantErr: ErrPacketTooShort,
		},
		{
			name: "protection length beyond payload",
			pkt: corrupt(valid, func(p []byte) {
				binary.BigEndian.PutUint16(p[10:12], 1400)
			}),
			wantErr: ErrPacketTooShort,
		},
		{
			name:    "header too short",
			pkt:     rtp.NewRawPacket(valid.Clone().Bytes(), 0, 12+ULPFECMinHeaderSize-1),
			wantErr: ErrPacketTooShort,
		},
		{
			name:    "not RTP",
			pkt:     rtp.NewRawPacketFromBytes([]byte{0x00, 0x01}),
			wantErr: ErrPacketTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Parse(tt.pkt)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
