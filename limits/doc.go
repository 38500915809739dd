// Package limits provides centralized RTP packet size constants and validation
// functions for the FEC subsystem. This package ensures consistent size
// enforcement across packet construction, protection packet generation and
// loss recovery.
//
// # Size Hierarchy
//
//   - RTPHeaderSize (12 bytes): The fixed RTP header. Everything after these
//     bytes (CSRC list, header extension, payload and padding) is the region
//     protected by forward error correction.
//
//   - MaxPacketSize (1500 bytes): The largest RTP packet the subsystem will
//     buffer. Every pooled history buffer and every recovered packet buffer is
//     allocated at this size, so a recovered packet can never exceed it.
//
//   - MaxProtectedLength: MaxPacketSize minus the fixed header, the largest
//     protected region a single protection packet may describe.
//
// # Validation Functions
//
//	if err := limits.ValidatePacketSize(buf); err != nil {
//	    // ErrPacketTooShort or ErrPacketTooLarge
//	}
//
// ValidateRecoveredLength is used by the recovery path to decide whether a
// reconstructed packet fits in the destination buffer.
package limits
