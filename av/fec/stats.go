package fec

import "go.uber.org/atomic"

// Statistics is a snapshot of one receiver's counters.
type Statistics struct {
	// FECPacketsReceived counts every protection packet handed to the receiver.
	FECPacketsReceived uint64
	// PacketsRecovered counts media packets reconstructed from protection packets.
	PacketsRecovered uint64
	// RecoveryFailed counts reconstruction attempts that were abandoned.
	RecoveryFailed uint64
	// MalformedDropped counts protection packets dropped because they did not parse.
	MalformedDropped uint64
}

// SenderStatistics is a snapshot of one sender's counters.
type SenderStatistics struct {
	MediaPacketsProtected uint64
	ProtectionPacketsSent uint64
}

// receiverStats is mutated only by the owning receiver but may be read
// concurrently by reporting code.
type receiverStats struct {
	fecReceived atomic.Uint64
	recovered   atomic.Uint64
	failed      atomic.Uint64
	malformed   atomic.Uint64
}

func (s *receiverStats) snapshot() Statistics {
	return Statistics{
		FECPacketsReceived: s.fecReceived.Load(),
		PacketsRecovered:   s.recovered.Load(),
		RecoveryFailed:     s.failed.Load(),
		MalformedDropped:   s.malformed.Load(),
	}
}

type senderStats struct {
	protected atomic.Uint64
	sent      atomic.Uint64
}

func (s *senderStats) snapshot() SenderStatistics {
	return SenderStatistics{
		MediaPacketsProtected: s.protected.Load(),
		ProtectionPacketsSent: s.sent.Load(),
	}
}
