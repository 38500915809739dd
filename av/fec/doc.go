// Package fec implements RTP forward error correction with ULPFEC (RFC 5109)
// and FlexFEC-03 protection packets.
//
// A protection packet carries the XOR of a small set of media packets: the
// first eight bytes of their RTP headers, their protected lengths and every
// byte after the fixed 12-byte header. A receiver that holds all but one of
// those media packets can rebuild the missing one. Losing two or more packets
// of one set cannot be repaired and is left alone.
//
// # Components
//
//   - [History] retains recently seen packets per sequence number with
//     wraparound-aware eviction and buffer reuse.
//   - The mask helpers translate between protected sequence numbers and the
//     on-wire bitmasks of both formats.
//   - [Codec] reads and writes the FEC header of one format.
//   - [ProtectionUnit] accumulates the XOR on the sending side.
//   - [Receiver] and [Sender] hold the per-SSRC state of each direction.
//   - [Engine] routes packet batches to receivers and senders by SSRC.
//
// # Usage
//
//	cfg := fec.DefaultConfig()
//	cfg.Format = fec.FormatFlexFEC03
//	cfg.IncomingPayloadType = 118
//	cfg.OutgoingPayloadType = 118
//	cfg.RedundancyRate = 4
//
//	engine := fec.NewEngine(cfg, tracks)
//	defer engine.Close()
//
//	outgoing = engine.ForwardTransform(outgoing)
//	incoming = engine.ReverseTransform(incoming)
//
// Nothing in this package fails a batch. Malformed protection packets are
// dropped and counted, failed recoveries are counted and logged, and in every
// other case packets pass through unchanged.
package fec
