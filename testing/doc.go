// Package testing provides an in-memory lossy channel for exercising the FEC
// subsystem deterministically.
//
// # Overview
//
// A [LossyChannel] stands in for the network between a sending and a
// receiving FEC engine. Each packet handed to Transmit is either copied to
// the output, as a real network would hand over a fresh buffer, or dropped
// according to a [LossPattern]. Every decision is recorded so tests can
// verify what the receiver actually saw.
//
// # Usage
//
//	channel := testing.NewLossyChannel(testing.DropSequences(102))
//
//	sent := sender.ForwardTransform(media)
//	received := receiver.ReverseTransform(channel.Transmit(sent))
//
//	stats := channel.GetStats()
//	fmt.Printf("dropped %d of %d\n", stats.Dropped, stats.Sent)
//
// Patterns are deterministic. [DropEveryNth] drops by position in the stream,
// [DropSequences] by RTP sequence number, and [PatternFunc] adapts any
// function.
package testing
