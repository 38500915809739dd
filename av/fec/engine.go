package fec

import (
	"sync"

	"github.com/opd-ai/toxfec/av/rtp"
	"github.com/opd-ai/toxfec/interfaces"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Engine dispatches packet batches to per-SSRC receivers and senders.
//
// The receive and send paths are serialized by separate locks, so a receive
// never waits for a send. Receivers and senders are created on the first
// packet of their SSRC and live until Close. Configuration changes reach every
// live instance.
type Engine struct {
	cfgMu sync.RWMutex
	cfg   Config

	resolver interfaces.PrimarySSRCResolver

	recvMu    sync.Mutex
	sendMu    sync.Mutex
	receivers *registry[*Receiver]
	senders   *registry[*Sender]

	closed atomic.Bool
}

var _ interfaces.PacketTransformer = (*Engine)(nil)

// NewEngine creates an engine.
//
// The configuration is used as given; call Config.Validate first to reject
// out-of-range values.
//
// Parameters:
//   - cfg: Engine configuration
//   - resolver: Maps FlexFEC SSRCs to media SSRCs; nil resolves nothing
//
// Returns:
//   - *Engine: Engine with no per-stream state yet
func NewEngine(cfg Config, resolver interfaces.PrimarySSRCResolver) *Engine {
	cfg = cfg.withDefaults()

	logrus.WithFields(logrus.Fields{
		"function":     "NewEngine",
		"format":       cfg.Format.String(),
		"incoming_pt":  cfg.IncomingPayloadType,
		"outgoing_pt":  cfg.OutgoingPayloadType,
		"rate":         cfg.RedundancyRate,
		"has_resolver": resolver != nil,
		"protect_ssrc": cfg.ProtectionSSRC,
	}).Info("Creating FEC engine")

	return &Engine{
		cfg:       cfg,
		resolver:  resolver,
		receivers: newRegistry[*Receiver](),
		senders:   newRegistry[*Sender](),
	}
}

// Config returns the current configuration.
func (e *Engine) Config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// ReverseTransform handles a batch of received packets.
//
// Media packets are retained by the receiver of their SSRC. Protection
// packets are consumed and leave nil holes. Rebuilt media packets fill the
// holes first and are appended after that. With the incoming payload type
// set to PayloadTypeNone the batch is returned untouched. A FlexFEC packet
// whose SSRC the resolver does not know is passed through.
func (e *Engine) ReverseTransform(batch rtp.Batch) rtp.Batch {
	cfg := e.Config()
	if cfg.IncomingPayloadType == PayloadTypeNone || e.closed.Load() {
		return batch
	}

	e.recvMu.Lock()
	defer e.recvMu.Unlock()
	if e.closed.Load() {
		return batch
	}

	var touched []*Receiver
	for i, pkt := range batch {
		if pkt == nil || !pkt.IsValid() {
			continue
		}

		ssrc, ok := e.primarySSRC(cfg, pkt)
		if !ok {
			continue
		}

		receiver := e.receivers.getOrCreate(ssrc, func(ssrc uint32) *Receiver {
			return NewReceiver(ssrc, cfg)
		})
		if receiver.Receive(pkt) {
			batch[i] = nil
		}
		if !containsReceiver(touched, receiver) {
			touched = append(touched, receiver)
		}
	}

	for _, receiver := range touched {
		for _, pkt := range receiver.Recover() {
			batch = batch.Insert(pkt)
		}
	}
	return batch
}

// primarySSRC returns the media SSRC a received packet belongs to. Only
// FlexFEC protection packets travel on an SSRC of their own.
func (e *Engine) primarySSRC(cfg Config, pkt *rtp.RawPacket) (uint32, bool) {
	ssrc := pkt.SSRC()
	if cfg.Format != FormatFlexFEC03 || int(pkt.PayloadType()) != cfg.IncomingPayloadType {
		return ssrc, true
	}
	if e.resolver == nil {
		return 0, false
	}

	primary, ok := e.resolver.PrimarySSRC(ssrc)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.primarySSRC",
			"ssrc":     ssrc,
		}).Debug("No media stream known for protection SSRC, passing through")
	}
	return primary, ok
}

func containsReceiver(list []*Receiver, r *Receiver) bool {
	for _, v := range list {
		if v == r {
			return true
		}
	}
	return false
}

// ForwardTransform handles a batch of packets about to be sent.
//
// Every media packet is folded into the sender of its SSRC, and each
// protection packet is placed right after the media packet that completed
// it. With the outgoing payload type set to PayloadTypeNone the batch is
// returned untouched. A zero redundancy rate stops generation but media
// sequence numbers stay shifted past the protection packets already sent.
func (e *Engine) ForwardTransform(batch rtp.Batch) rtp.Batch {
	cfg := e.Config()
	if cfg.OutgoingPayloadType == PayloadTypeNone || e.closed.Load() {
		return batch
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	if e.closed.Load() {
		return batch
	}

	out := make(rtp.Batch, 0, len(batch)+1)
	for _, pkt := range batch {
		out = append(out, pkt)
		if pkt == nil || !pkt.IsValid() || int(pkt.PayloadType()) == cfg.OutgoingPayloadType {
			continue
		}

		sender := e.senders.getOrCreate(pkt.SSRC(), func(ssrc uint32) *Sender {
			return NewSender(ssrc, cfg)
		})
		if fecPkt := sender.Protect(pkt); fecPkt != nil {
			out = append(out, fecPkt)
		}
	}
	return out
}

// SetIncomingPayloadType changes the payload type of received protection
// packets on the engine and every live receiver.
func (e *Engine) SetIncomingPayloadType(pt int) {
	e.cfgMu.Lock()
	e.cfg.IncomingPayloadType = pt
	e.cfgMu.Unlock()

	e.receivers.each(func(_ uint32, r *Receiver) {
		r.SetPayloadType(pt)
	})
	logrus.WithFields(logrus.Fields{
		"function":     "Engine.SetIncomingPayloadType",
		"payload_type": pt,
		"receivers":    e.receivers.len(),
	}).Info("Incoming FEC payload type changed")
}

// SetOutgoingPayloadType changes the payload type of generated protection
// packets on the engine and every live sender.
func (e *Engine) SetOutgoingPayloadType(pt int) {
	e.cfgMu.Lock()
	e.cfg.OutgoingPayloadType = pt
	e.cfgMu.Unlock()

	e.senders.each(func(_ uint32, s *Sender) {
		s.SetPayloadType(pt)
	})
	logrus.WithFields(logrus.Fields{
		"function":     "Engine.SetOutgoingPayloadType",
		"payload_type": pt,
		"senders":      e.senders.len(),
	}).Info("Outgoing FEC payload type changed")
}

// SetRedundancyRate changes the redundancy rate on the engine and every live
// sender. Units in progress are discarded.
func (e *Engine) SetRedundancyRate(rate int) {
	e.cfgMu.Lock()
	e.cfg.RedundancyRate = rate
	e.cfgMu.Unlock()

	e.senders.each(func(_ uint32, s *Sender) {
		s.SetRedundancyRate(rate)
	})
	logrus.WithFields(logrus.Fields{
		"function": "Engine.SetRedundancyRate",
		"rate":     rate,
		"senders":  e.senders.len(),
	}).Info("FEC redundancy rate changed")
}

// Statistics returns a snapshot of every receiver's counters keyed by media SSRC.
func (e *Engine) Statistics() map[uint32]Statistics {
	stats := make(map[uint32]Statistics, e.receivers.len())
	e.receivers.each(func(ssrc uint32, r *Receiver) {
		stats[ssrc] = r.Statistics()
	})
	return stats
}

// SenderStatistics returns a snapshot of every sender's counters keyed by media SSRC.
func (e *Engine) SenderStatistics() map[uint32]SenderStatistics {
	stats := make(map[uint32]SenderStatistics, e.senders.len())
	e.senders.each(func(ssrc uint32, s *Sender) {
		stats[ssrc] = s.Statistics()
	})
	return stats
}

// Receiver returns the live receiver for a media SSRC.
func (e *Engine) Receiver(ssrc uint32) (*Receiver, bool) {
	return e.receivers.get(ssrc)
}

// Sender returns the live sender for a media SSRC.
func (e *Engine) Sender(ssrc uint32) (*Sender, bool) {
	return e.senders.get(ssrc)
}

// Close tears down every receiver and sender, logging their final counters.
// Batches handed to a closed engine pass through untouched.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.recvMu.Lock()
	receivers := e.receivers.reset()
	e.recvMu.Unlock()

	e.sendMu.Lock()
	senders := e.senders.reset()
	e.sendMu.Unlock()

	for _, r := range receivers {
		_ = r.Close()
	}
	for _, s := range senders {
		_ = s.Close()
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Engine.Close",
		"receivers": len(receivers),
		"senders":   len(senders),
	}).Info("FEC engine closed")
	return nil
}
