package fec

import (
	"sync"

	"github.com/opd-ai/toxfec/av/rtp"
	"github.com/sirupsen/logrus"
)

// Sender folds the outgoing media of one SSRC into protection units and
// emits a protection packet after every RedundancyRate media packets.
//
// When protection packets share the media SSRC, every media packet is moved
// forward by the number of protection packets emitted so far, and each
// protection packet takes the sequence number right after the last media
// packet it covers. That keeps the combined sequence space contiguous. A
// FlexFEC sender with its own ProtectionSSRC numbers its packets separately
// and leaves media sequence numbers untouched.
//
// Sender is safe for concurrent use.
type Sender struct {
	mu             sync.Mutex
	ssrc           uint32
	codec          Codec
	payloadType    int
	rate           int
	protectionSSRC uint32
	unit           *ProtectionUnit
	emitted        uint16
	nextSequence   uint16
	stats          senderStats
}

// NewSender creates a sender for the media stream ssrc.
//
// Parameters:
//   - ssrc: Media SSRC whose packets the sender protects
//   - cfg: Format, outgoing payload type, redundancy rate and protection SSRC
//
// Returns:
//   - *Sender: Sender with an empty protection unit
func NewSender(ssrc uint32, cfg Config) *Sender {
	protectionSSRC := ssrc
	if cfg.Format == FormatFlexFEC03 && cfg.ProtectionSSRC != 0 {
		protectionSSRC = cfg.ProtectionSSRC
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewSender",
		"ssrc":            ssrc,
		"protection_ssrc": protectionSSRC,
		"format":          cfg.Format.String(),
		"payload_type":    cfg.OutgoingPayloadType,
		"rate":            cfg.RedundancyRate,
	}).Info("Creating FEC sender")

	return &Sender{
		ssrc:           ssrc,
		codec:          CodecFor(cfg.Format),
		payloadType:    cfg.OutgoingPayloadType,
		rate:           cfg.RedundancyRate,
		protectionSSRC: protectionSSRC,
		unit:           NewProtectionUnit(),
	}
}

// SSRC returns the media SSRC the sender protects.
func (s *Sender) SSRC() uint32 {
	return s.ssrc
}

// ProtectionSSRC returns the SSRC protection packets are sent on.
func (s *Sender) ProtectionSSRC() uint32 {
	return s.protectionSSRC
}

func (s *Sender) sharesSequenceSpace() bool {
	return s.protectionSSRC == s.ssrc
}

func (s *Sender) enabled() bool {
	return s.payloadType != PayloadTypeNone
}

// SetPayloadType changes the payload type of generated protection packets and
// discards the unit in progress.
func (s *Sender) SetPayloadType(pt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payloadType != pt {
		s.payloadType = pt
		s.unit.Reset()
	}
}

// SetRedundancyRate changes how many media packets each protection packet
// covers. The unit in progress is discarded so that no protection packet mixes
// packets folded under different rates.
func (s *Sender) SetRedundancyRate(rate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rate != rate {
		logrus.WithFields(logrus.Fields{
			"function": "Sender.SetRedundancyRate",
			"ssrc":     s.ssrc,
			"old_rate": s.rate,
			"new_rate": rate,
		}).Debug("Changing redundancy rate")
		s.rate = rate
		s.unit.Reset()
	}
}

// Protect folds one media packet in, rewriting its sequence number when
// protection packets share the media sequence space.
//
// Parameters:
//   - pkt: Outgoing media packet of this sender's SSRC
//
// Returns:
//   - *rtp.RawPacket: Protection packet to send right after pkt, or nil
func (s *Sender) Protect(pkt *rtp.RawPacket) *rtp.RawPacket {
	if pkt == nil || !pkt.IsValid() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled() {
		return nil
	}

	// Protection packets already on the wire keep their sequence numbers, so
	// the shift outlives a drop to a zero rate.
	if s.sharesSequenceSpace() {
		pkt.SetSequenceNumber(pkt.SequenceNumber() + s.emitted)
	}
	if s.rate <= 0 {
		return nil
	}
	if err := s.unit.Add(pkt); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Sender.Protect",
			"ssrc":     s.ssrc,
			"packet":   pkt.String(),
			"error":    err.Error(),
		}).Warn("Media packet cannot be protected")
		return nil
	}
	s.stats.protected.Inc()

	if s.unit.Count() < s.rate {
		return nil
	}
	return s.finish()
}

func (s *Sender) finish() *rtp.RawPacket {
	defer s.unit.Reset()

	seq := s.unit.lastSequence + 1
	if !s.sharesSequenceSpace() {
		seq = s.nextSequence
	}

	pkt, err := s.unit.Finish(s.codec, uint8(s.payloadType), s.protectionSSRC, seq)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Sender.finish",
			"ssrc":     s.ssrc,
			"base":     s.unit.Base(),
			"error":    err.Error(),
		}).Warn("Failed to build protection packet")
		return nil
	}

	if s.sharesSequenceSpace() {
		s.emitted++
	} else {
		s.nextSequence++
	}
	s.stats.sent.Inc()

	logrus.WithFields(logrus.Fields{
		"function":  "Sender.finish",
		"ssrc":      s.ssrc,
		"packet":    pkt.String(),
		"base":      s.unit.Base(),
		"protected": s.unit.Count(),
	}).Debug("Emitting protection packet")
	return pkt
}

// Process protects every media packet of batch and returns a new batch with
// each protection packet placed directly after the media packet that
// completed its unit. Holes in batch are carried over.
func (s *Sender) Process(batch rtp.Batch) rtp.Batch {
	out := make(rtp.Batch, 0, len(batch)+1)
	for _, pkt := range batch {
		out = append(out, pkt)
		if fecPkt := s.Protect(pkt); fecPkt != nil {
			out = append(out, fecPkt)
		}
	}
	return out
}

// Statistics returns a snapshot of the sender counters.
func (s *Sender) Statistics() SenderStatistics {
	return s.stats.snapshot()
}

// Close logs the final counters and drops the unit in progress.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats.snapshot()
	logrus.WithFields(logrus.Fields{
		"function":  "Sender.Close",
		"ssrc":      s.ssrc,
		"protected": stats.MediaPacketsProtected,
		"sent":      stats.ProtectionPacketsSent,
	}).Info("Closing FEC sender")

	s.unit.Reset()
	return nil
}
