package fec

import (
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/toxfec/av/rtp"
	"github.com/opd-ai/toxfec/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dropSeq removes the packet with seq, leaving a hole like a lost packet.
func dropSeq(batch rtp.Batch, ssrc uint32, seq uint16) rtp.Batch {
	out := make(rtp.Batch, 0, len(batch))
	for _, pkt := range batch {
		if pkt != nil && pkt.SSRC() == ssrc && pkt.SequenceNumber() == seq {
			continue
		}
		out = append(out, pkt)
	}
	return out
}

func TestEngineULPFECEndToEnd(t *testing.T) {
	sender := NewEngine(testConfig(FormatULPFEC), nil)
	receiver := NewEngine(testConfig(FormatULPFEC), nil)
	defer sender.Close()
	defer receiver.Close()

	sent := sender.ForwardTransform(rtp.Batch(newMediaPackets(t, testMediaSSRC, 100, 101, 102, 103)))
	require.Len(t, sent, 5)
	lost, ok := sent.Find(testMediaSSRC, 102)
	require.True(t, ok)
	want := lost.Clone()

	got := receiver.ReverseTransform(dropSeq(sent, testMediaSSRC, 102))
	require.Len(t, got, 4)
	recovered, ok := got.Find(testMediaSSRC, 102)
	require.True(t, ok)
	assert.Equal(t, want.Bytes(), recovered.Bytes())

	stats := receiver.Statistics()
	require.Contains(t, stats, testMediaSSRC)
	assert.Equal(t, uint64(1), stats[testMediaSSRC].PacketsRecovered)
	assert.Equal(t, uint64(1), sender.SenderStatistics()[testMediaSSRC].ProtectionPacketsSent)
}

func TestEngineFlexFECWithResolver(t *testing.T) {
	cfg := testConfig(FormatFlexFEC03)
	cfg.ProtectionSSRC = testFECSSRC
	sender := NewEngine(cfg, nil)

	resolver := interfaces.ResolverFunc(func(ssrc uint32) (uint32, bool) {
		if ssrc == testFECSSRC {
			return testMediaSSRC, true
		}
		return 0, false
	})
	receiver := NewEngine(cfg, resolver)

	sent := sender.ForwardTransform(rtp.Batch(newMediaPackets(t, testMediaSSRC, 7, 8, 9, 10)))
	require.Len(t, sent, 5)
	assert.Equal(t, testFECSSRC, sent[4].SSRC())
	want := sent[0].Clone()

	got := receiver.ReverseTransform(dropSeq(sent, testMediaSSRC, 7))
	recovered, ok := got.Find(testMediaSSRC, 7)
	require.True(t, ok)
	assert.Equal(t, want.Bytes(), recovered.Bytes())

	_, ok = receiver.Receiver(testFECSSRC)
	assert.False(t, ok, "no receiver is created for the protection SSRC")
}

func TestEngineUnknownSSRCPassesThrough(t *testing.T) {
	cfg := testConfig(FormatFlexFEC03)
	media := newMediaPackets(t, testMediaSSRC, 1, 2)
	fecPkt := newProtectionPacket(t, FormatFlexFEC03, testFECSSRC, 1, media...)

	for _, resolver := range []interfaces.PrimarySSRCResolver{
		nil,
		interfaces.ResolverFunc(func(uint32) (uint32, bool) { return 0, false }),
	} {
		e := NewEngine(cfg, resolver)
		got := e.ReverseTransform(rtp.Batch{media[0], fecPkt})

		require.Len(t, got, 2)
		assert.Same(t, fecPkt, got[1], "unresolved protection packet is untouched")
		assert.Equal(t, uint64(0), e.Statistics()[testMediaSSRC].FECPacketsReceived)
	}
}

func TestEngineDisabledDirections(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(cfg, nil)

	media := newMediaPackets(t, testMediaSSRC, 1, 2, 3, 4)
	batch := rtp.Batch(media)

	assert.Equal(t, batch, e.ForwardTransform(batch))
	assert.Equal(t, batch, e.ReverseTransform(batch))
	assert.Empty(t, e.Statistics())
	assert.Empty(t, e.SenderStatistics())

	e.SetOutgoingPayloadType(testFECPT)
	assert.Len(t, e.ForwardTransform(batch), 4, "zero redundancy rate still disables generation")
}

func TestEngineBroadcastsConfiguration(t *testing.T) {
	e := NewEngine(testConfig(FormatULPFEC), nil)
	e.ForwardTransform(rtp.Batch(newMediaPackets(t, testMediaSSRC, 1, 2)))
	e.ReverseTransform(rtp.Batch(newMediaPackets(t, testMediaSSRC, 1)))

	e.SetRedundancyRate(8)
	e.SetOutgoingPayloadType(100)
	e.SetIncomingPayloadType(101)

	s, ok := e.Sender(testMediaSSRC)
	require.True(t, ok)
	assert.Equal(t, 8, s.rate)
	assert.Equal(t, 100, s.payloadType)
	assert.Equal(t, 0, s.unit.Count(), "rate change discards the unit in progress")

	r, ok := e.Receiver(testMediaSSRC)
	require.True(t, ok)
	assert.Equal(t, 101, r.payloadType)

	cfg := e.Config()
	assert.Equal(t, 8, cfg.RedundancyRate)
	assert.Equal(t, 100, cfg.OutgoingPayloadType)
	assert.Equal(t, 101, cfg.IncomingPayloadType)
}

func TestEngineSkipsOwnProtectionPackets(t *testing.T) {
	e := NewEngine(testConfig(FormatULPFEC), nil)
	media := newMediaPackets(t, testMediaSSRC, 1, 2)
	fecPkt := newProtectionPacket(t, FormatULPFEC, testMediaSSRC, 3, media...)

	out := e.ForwardTransform(rtp.Batch{fecPkt})
	assert.Len(t, out, 1)
	assert.Empty(t, e.SenderStatistics())
}

func TestEngineClose(t *testing.T) {
	e := NewEngine(testConfig(FormatULPFEC), nil)
	e.ForwardTransform(rtp.Batch(newMediaPackets(t, testMediaSSRC, 1)))
	e.ReverseTransform(rtp.Batch(newMediaPackets(t, testMediaSSRC, 1)))

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Empty(t, e.Statistics())
	assert.Empty(t, e.SenderStatistics())

	batch := rtp.Batch(newMediaPackets(t, testMediaSSRC, 2, 3, 4, 5))
	assert.Len(t, e.ForwardTransform(batch), 4)
}

func TestEngineZeroRateKeepsSequenceShift(t *testing.T) {
	e := NewEngine(testConfig(FormatULPFEC), nil)
	defer e.Close()

	sent := e.ForwardTransform(rtp.Batch(newMediaPackets(t, testMediaSSRC, 100, 101, 102, 103)))
	require.Len(t, sent, 5)
	assert.Equal(t, uint16(104), sent[4].SequenceNumber())

	e.SetRedundancyRate(0)
	sent = e.ForwardTransform(rtp.Batch(newMediaPackets(t, testMediaSSRC, 104, 105)))
	require.Len(t, sent, 2)
	assert.Equal(t, []uint16{105, 106}, []uint16{sent[0].SequenceNumber(), sent[1].SequenceNumber()})
}

func TestEngineTransformAfterCloseCreatesNothing(t *testing.T) {
	tests := []struct {
		name      string
		lock      func(e *Engine) func()
		transform func(e *Engine, batch rtp.Batch)
	}{
		{
			name: "forward",
			lock: func(e *Engine) func() {
				e.sendMu.Lock()
				return e.sendMu.Unlock
			},
			transform: func(e *Engine, batch rtp.Batch) { e.ForwardTransform(batch) },
		},
		{
			name: "reverse",
			lock: func(e *Engine) func() {
				e.recvMu.Lock()
				return e.recvMu.Unlock
			},
			transform: func(e *Engine, batch rtp.Batch) { e.ReverseTransform(batch) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(testConfig(FormatULPFEC), nil)
			batch := rtp.Batch(newMediaPackets(t, testMediaSSRC, 1, 2))

			unlock := tt.lock(e)
			done := make(chan struct{})
			go func() {
				defer close(done)
				tt.transform(e, batch)
			}()
			// Let the transform pass its first closed check and block on the lock.
			time.Sleep(10 * time.Millisecond)
			e.closed.Store(true)
			unlock()
			<-done

			assert.Equal(t, 0, e.receivers.len())
			assert.Equal(t, 0, e.senders.len())
		})
	}
}

func TestEngineConcurrentUse(t *testing.T) {
	const workers = 4
	const rounds = 50

	tests := []struct {
		name string
		work func(e *Engine, worker int, batch rtp.Batch)
	}{
		{
			name: "forward",
			work: func(e *Engine, _ int, batch rtp.Batch) {
				e.ForwardTransform(batch)
			},
		},
		{
			name: "reverse",
			work: func(e *Engine, _ int, batch rtp.Batch) {
				e.ReverseTransform(batch)
			},
		},
		{
			name: "broadcast",
			work: func(e *Engine, worker int, batch rtp.Batch) {
				e.SetRedundancyRate(1 + worker%MaxRedundancyRate)
				e.SetIncomingPayloadType(testFECPT)
				e.SetOutgoingPayloadType(testFECPT)
				e.ForwardTransform(batch)
			},
		},
		{
			name: "statistics",
			work: func(e *Engine, _ int, batch rtp.Batch) {
				e.ReverseTransform(batch)
				_ = e.Statistics()
				_ = e.SenderStatistics()
			},
		},
	}

	e := NewEngine(testConfig(FormatULPFEC), interfaces.IdentityResolver{})
	defer e.Close()

	batches := make([][]rtp.Batch, len(tests)*workers)
	for i := range batches {
		ssrc := testMediaSSRC + uint32(i%3)
		batches[i] = make([]rtp.Batch, rounds)
		for r := 0; r < rounds; r++ {
			seq := uint16(r * 4)
			batches[i][r] = rtp.Batch(newMediaPackets(t, ssrc, seq, seq+1, seq+2, seq+3))
		}
	}

	var wg sync.WaitGroup
	for i, tt := range tests {
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(worker int, work func(*Engine, int, rtp.Batch), mine []rtp.Batch) {
				defer wg.Done()
				for _, batch := range mine {
					work(e, worker, batch)
				}
			}(w, tt.work, batches[i*workers+w])
		}
	}
	wg.Wait()

	for ssrc, stats := range e.SenderStatistics() {
		assert.LessOrEqual(t, stats.ProtectionPacketsSent, stats.MediaPacketsProtected, "ssrc %d", ssrc)
	}
	assert.NotEmpty(t, e.Statistics())
	require.NoError(t, e.Close())
}
