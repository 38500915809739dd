package fec

import (
	"testing"

	"github.com/opd-ai/toxfec/av/rtp"
	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

const (
	testMediaSSRC = uint32(0x11223344)
	testFECSSRC   = uint32(0x55667788)
	testMediaPT   = 96
	testFECPT     = 117
)

// newMediaPacket builds a media packet whose payload length and marker vary
// with seq so that XOR recovery has something to get wrong.
func newMediaPacket(t *testing.T, seq uint16, ssrc uint32) *rtp.RawPacket {
	t.Helper()

	payload := make([]byte, 20+int(seq%7)*3)
	for i := range payload {
		payload[i] = byte(int(seq)*31 + i)
	}

	pkt, err := rtp.FromRTP(&pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			Marker:         seq%2 == 0,
			PayloadType:    testMediaPT,
			SequenceNumber: seq,
			Timestamp:      3000 * uint32(seq),
			SSRC:           ssrc,
		},
		Payload: payload,
	})
	require.NoError(t, err)
	return pkt
}

func newMediaPackets(t *testing.T, ssrc uint32, seqs ...uint16) []*rtp.RawPacket {
	t.Helper()
	pkts := make([]*rtp.RawPacket, 0, len(seqs))
	for _, seq := range seqs {
		pkts = append(pkts, newMediaPacket(t, seq, ssrc))
	}
	return pkts
}

// newProtectionPacket folds media into a unit and finishes it.
func newProtectionPacket(t *testing.T, format Format, ssrc uint32, seq uint16, media ...*rtp.RawPacket) *rtp.RawPacket {
	t.Helper()

	unit := NewProtectionUnit()
	for _, pkt := range media {
		require.NoError(t, unit.Add(pkt))
	}
	pkt, err := unit.Finish(CodecFor(format), testFECPT, ssrc, seq)
	require.NoError(t, err)
	return pkt
}

func historyOf(t *testing.T, pkts ...*rtp.RawPacket) *History {
	t.Helper()
	h := NewHistory(DefaultMediaHistoryCapacity)
	for _, pkt := range pkts {
		require.NotNil(t, h.Put(pkt.SequenceNumber(), pkt))
	}
	return h
}

func testConfig(format Format) Config {
	cfg := DefaultConfig()
	cfg.Format = format
	cfg.IncomingPayloadType = testFECPT
	cfg.OutgoingPayloadType = testFECPT
	cfg.RedundancyRate = 4
	return cfg
}
