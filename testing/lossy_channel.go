package testing

import (
	"sync"

	"github.com/opd-ai/toxfec/av/rtp"
	"github.com/sirupsen/logrus"
)

// LossPattern decides which packets the channel loses.
type LossPattern interface {
	// Drop reports whether the packet at position index of the stream is lost.
	Drop(index int, pkt *rtp.RawPacket) bool
}

// PatternFunc adapts a function to LossPattern.
type PatternFunc func(index int, pkt *rtp.RawPacket) bool

// Drop implements LossPattern.
func (f PatternFunc) Drop(index int, pkt *rtp.RawPacket) bool {
	return f(index, pkt)
}

// NoLoss delivers every packet.
var NoLoss LossPattern = PatternFunc(func(int, *rtp.RawPacket) bool { return false })

// DropSequences loses the packets with the given sequence numbers, on any SSRC.
func DropSequences(seqs ...uint16) LossPattern {
	set := make(map[uint16]struct{}, len(seqs))
	for _, seq := range seqs {
		set[seq] = struct{}{}
	}
	return PatternFunc(func(_ int, pkt *rtp.RawPacket) bool {
		_, ok := set[pkt.SequenceNumber()]
		return ok
	})
}

// DropEveryNth loses every nth packet of the stream, counting from one.
// A non-positive n loses nothing.
func DropEveryNth(n int) LossPattern {
	return PatternFunc(func(index int, _ *rtp.RawPacket) bool {
		return n > 0 && (index+1)%n == 0
	})
}

// TransmissionRecord is one packet as seen by the channel.
type TransmissionRecord struct {
	Index          int
	SSRC           uint32
	SequenceNumber uint16
	PayloadType    uint8
	Size           int
	Dropped        bool
}

// ChannelStats summarizes the transmission log.
type ChannelStats struct {
	Sent      int
	Delivered int
	Dropped   int
}

// LossyChannel delivers packet batches with deterministic losses.
// It is safe for concurrent use.
type LossyChannel struct {
	mu      sync.Mutex
	pattern LossPattern
	index   int
	log     []TransmissionRecord
}

// NewLossyChannel creates a channel applying pattern. A nil pattern loses nothing.
func NewLossyChannel(pattern LossPattern) *LossyChannel {
	if pattern == nil {
		pattern = NoLoss
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewLossyChannel",
	}).Debug("Creating lossy channel")

	return &LossyChannel{
		pattern: pattern,
		log:     make([]TransmissionRecord, 0),
	}
}

// Transmit passes batch through the channel. Surviving packets are copied
// into fresh buffers; holes in batch are skipped and do not count as packets.
//
// Parameters:
//   - batch: Packets in sending order
//
// Returns:
//   - rtp.Batch: Delivered copies in sending order, without holes
func (c *LossyChannel) Transmit(batch rtp.Batch) rtp.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(rtp.Batch, 0, len(batch))
	for _, pkt := range batch {
		if pkt == nil {
			continue
		}

		record := TransmissionRecord{
			Index:          c.index,
			SSRC:           pkt.SSRC(),
			SequenceNumber: pkt.SequenceNumber(),
			PayloadType:    pkt.PayloadType(),
			Size:           pkt.Length(),
			Dropped:        c.pattern.Drop(c.index, pkt),
		}
		c.index++
		c.log = append(c.log, record)

		if record.Dropped {
			logrus.WithFields(logrus.Fields{
				"function": "LossyChannel.Transmit",
				"ssrc":     record.SSRC,
				"seq":      record.SequenceNumber,
			}).Debug("Simulating packet loss")
			continue
		}
		out = append(out, pkt.Clone())
	}
	return out
}

// GetTransmissionLog returns a copy of every transmission decision so far.
func (c *LossyChannel) GetTransmissionLog() []TransmissionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := make([]TransmissionRecord, len(c.log))
	copy(log, c.log)
	return log
}

// ClearTransmissionLog empties the log. Positions keep counting.
func (c *LossyChannel) ClearTransmissionLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = c.log[:0]
}

// GetStats summarizes the current log.
func (c *LossyChannel) GetStats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := ChannelStats{Sent: len(c.log)}
	for _, record := range c.log {
		if record.Dropped {
			stats.Dropped++
		}
	}
	stats.Delivered = stats.Sent - stats.Dropped
	return stats
}
