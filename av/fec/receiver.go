package fec

import (
	"sync"

	"github.com/opd-ai/toxfec/av/rtp"
	"github.com/sirupsen/logrus"
)

// Receiver retains the media and protection packets of one media SSRC and
// rebuilds single lost media packets from them.
//
// Both wire formats share the receiver; the codec chosen at construction
// parses protection headers and everything else is format independent.
// Receiver is safe for concurrent use.
type Receiver struct {
	mu          sync.Mutex
	ssrc        uint32
	codec       Codec
	payloadType int
	media       *History
	fec         *History
	headers     map[uint16]*ProtectionHeader
	stats       receiverStats
}

// NewReceiver creates a receiver for the media stream ssrc.
//
// Parameters:
//   - ssrc: Primary media SSRC the receiver protects
//   - cfg: Format, incoming payload type and history capacities
//
// Returns:
//   - *Receiver: Receiver with empty histories
func NewReceiver(ssrc uint32, cfg Config) *Receiver {
	cfg = cfg.withDefaults()

	logrus.WithFields(logrus.Fields{
		"function":     "NewReceiver",
		"ssrc":         ssrc,
		"format":       cfg.Format.String(),
		"payload_type": cfg.IncomingPayloadType,
		"media_cap":    cfg.MediaHistoryCapacity,
		"fec_cap":      cfg.FECHistoryCapacity,
	}).Info("Creating FEC receiver")

	return &Receiver{
		ssrc:        ssrc,
		codec:       CodecFor(cfg.Format),
		payloadType: cfg.IncomingPayloadType,
		media:       NewHistory(cfg.MediaHistoryCapacity),
		fec:         NewHistory(cfg.FECHistoryCapacity),
		headers:     make(map[uint16]*ProtectionHeader, cfg.FECHistoryCapacity),
	}
}

// SSRC returns the media SSRC the receiver protects.
func (r *Receiver) SSRC() uint32 {
	return r.ssrc
}

// SetPayloadType changes the payload type that identifies protection packets.
// PayloadTypeNone makes every packet media.
func (r *Receiver) SetPayloadType(pt int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloadType = pt
}

// Receive classifies and retains one packet.
//
// Media packets are copied into the media history and stay in the caller's
// batch. Protection packets are copied into the protection history and
// reported as consumed so the caller can drop them from the batch; so are
// protection packets that fail to parse. A protection packet for a different
// media SSRC is left alone.
//
// Parameters:
//   - pkt: Packet to classify; it is not retained
//
// Returns:
//   - bool: Whether the packet was a protection packet taken by the receiver
func (r *Receiver) Receive(pkt *rtp.RawPacket) bool {
	if pkt == nil || !pkt.IsValid() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.payloadType == PayloadTypeNone || int(pkt.PayloadType()) != r.payloadType {
		r.media.Put(pkt.SequenceNumber(), pkt)
		return false
	}

	r.stats.fecReceived.Inc()
	header, err := r.codec.Parse(pkt)
	if err != nil {
		r.stats.malformed.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.Receive",
			"ssrc":     r.ssrc,
			"packet":   pkt.String(),
			"error":    err.Error(),
		}).Warn("Dropping malformed protection packet")
		return true
	}
	if header.ProtectedSSRC != r.ssrc {
		logrus.WithFields(logrus.Fields{
			"function":       "Receiver.Receive",
			"ssrc":           r.ssrc,
			"protected_ssrc": header.ProtectedSSRC,
		}).Debug("Protection packet belongs to another stream")
		return false
	}

	r.retain(pkt)
	return true
}

// retain stores a protection packet and re-parses it from the stored copy so
// that the cached header payload aliases memory the history owns.
func (r *Receiver) retain(pkt *rtp.RawPacket) {
	seq := pkt.SequenceNumber()
	oldest, full := r.fec.Oldest()
	full = full && r.fec.Len() >= r.fec.Capacity()

	stored := r.fec.Put(seq, pkt)
	if full && !r.fec.Contains(oldest) {
		delete(r.headers, oldest)
	}
	if stored == nil {
		return
	}

	header, err := r.codec.Parse(stored)
	if err != nil {
		r.fec.Remove(seq)
		delete(r.headers, seq)
		return
	}
	r.headers[seq] = header

	logrus.WithFields(logrus.Fields{
		"function":  "Receiver.retain",
		"ssrc":      r.ssrc,
		"fec_seq":   seq,
		"base":      header.BaseSequence,
		"protected": len(header.Protected),
	}).Debug("Retained protection packet")
}

// Recover runs one sweep over the retained protection packets.
//
// A protection packet with no missing media is retired. One with exactly one
// missing packet is used to rebuild it and then retired. One with two or more
// missing packets stays retained in case more media arrives. Rebuilt packets
// enter the media history immediately, so a later protection packet in the
// same sweep already sees them.
//
// Returns:
//   - []*rtp.RawPacket: Rebuilt media packets, each in its own buffer
func (r *Receiver) Recover() []*rtp.RawPacket {
	r.mu.Lock()
	defer r.mu.Unlock()

	var recovered []*rtp.RawPacket
	for _, fecSeq := range r.fec.Keys() {
		header, ok := r.headers[fecSeq]
		if !ok {
			r.fec.Remove(fecSeq)
			continue
		}

		missingCount := 0
		var missing uint16
		for _, seq := range header.Protected {
			if !r.media.Contains(seq) {
				missingCount++
				missing = seq
				if missingCount > 1 {
					break
				}
			}
		}

		switch missingCount {
		case 0:
			r.retire(fecSeq)
		case 1:
			if pkt := r.rebuild(header, missing); pkt != nil {
				recovered = append(recovered, pkt)
			}
			r.retire(fecSeq)
		}
	}
	return recovered
}

func (r *Receiver) rebuild(header *ProtectionHeader, missing uint16) *rtp.RawPacket {
	pkt, err := recoverPacket(header, missing, r.media)
	if err != nil {
		r.stats.failed.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.rebuild",
			"ssrc":     r.ssrc,
			"missing":  missing,
			"base":     header.BaseSequence,
			"error":    err.Error(),
		}).Warn("Packet recovery failed")
		return nil
	}

	r.stats.recovered.Inc()
	r.media.Put(missing, pkt)

	logrus.WithFields(logrus.Fields{
		"function": "Receiver.rebuild",
		"ssrc":     r.ssrc,
		"packet":   pkt.String(),
	}).Debug("Recovered media packet")
	return pkt
}

func (r *Receiver) retire(fecSeq uint16) {
	delete(r.headers, fecSeq)
	r.fec.Remove(fecSeq)
}

// Process runs Receive over every packet of batch and then one recovery
// sweep. Consumed protection packets leave holes, which rebuilt packets fill
// before the batch grows.
//
// Parameters:
//   - batch: Packets of this receiver's stream
//
// Returns:
//   - rtp.Batch: The batch with protection packets removed and rebuilt packets added
func (r *Receiver) Process(batch rtp.Batch) rtp.Batch {
	for i, pkt := range batch {
		if r.Receive(pkt) {
			batch[i] = nil
		}
	}
	for _, pkt := range r.Recover() {
		batch = batch.Insert(pkt)
	}
	return batch
}

// Statistics returns a snapshot of the receiver counters.
func (r *Receiver) Statistics() Statistics {
	return r.stats.snapshot()
}

// Close logs the final counters and releases both histories.
func (r *Receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.stats.snapshot()
	logrus.WithFields(logrus.Fields{
		"function":        "Receiver.Close",
		"ssrc":            r.ssrc,
		"fec_received":    stats.FECPacketsReceived,
		"recovered":       stats.PacketsRecovered,
		"recovery_failed": stats.RecoveryFailed,
		"malformed":       stats.MalformedDropped,
	}).Info("Closing FEC receiver")

	r.media.Clear()
	r.fec.Clear()
	r.headers = make(map[uint16]*ProtectionHeader)
	return nil
}
