// Package rtp provides raw RTP packet access for the forward error
// correction subsystem.
//
// FEC works on packets as byte buffers: protection packets are built by
// XOR-ing header bytes and payload bytes, and recovered packets are written
// field by field into a fresh buffer. This package exposes those buffers with
// bounds-checked, in-place accessors, plus the wraparound arithmetic every
// other component relies on.
//
// # Raw Packets
//
// A RawPacket is a view over buffer[offset:offset+length]:
//
//	pkt := rtp.NewRawPacketFromBytes(data)
//	if !pkt.IsValid() {
//	    return // shorter than 12 bytes or not version 2
//	}
//	pkt.SetSequenceNumber(pkt.SequenceNumber() + 1)
//
// Packets can be built from pion/rtp structures with FromRTP, and fully
// parsed back with Header.
//
// # Batches
//
// The media pipeline hands packets around in a Batch. Batches may contain
// nil holes; Insert fills the first hole before growing the batch.
//
// # Wraparound Arithmetic
//
// RTP sequence numbers are 16-bit and timestamps 32-bit. Deltas are
// normalized into the half-open range (-2^(n-1), 2^(n-1)]:
//
//	rtp.SequenceDelta(5, 65530)       // 11: 65530 + 11 rolls over to 5
//	rtp.IsSequenceOlder(65530, 5)     // true
//	rtp.ApplySequenceDelta(65530, 11) // 5
//
// Exactly half-modulus separation is resolved in favour of the larger raw
// value so that ordering stays total.
//
// # Thread Safety
//
// RawPacket and Batch are not synchronized. The owner of a batch (normally
// the transform engine for the duration of one call) serializes access.
package rtp
