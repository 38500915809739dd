// Package limits provides centralized RTP packet size limits for the FEC subsystem.
// This ensures consistent validation across different components of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// RTPHeaderSize is the size of the fixed RTP header (RFC 3550 section 5.1)
	RTPHeaderSize = 12

	// MaxPacketSize is the largest RTP packet the subsystem buffers.
	// This matches a typical Ethernet MTU.
	MaxPacketSize = 1500

	// MaxProtectedLength is the largest region after the fixed header that a
	// protection packet can cover.
	MaxProtectedLength = MaxPacketSize - RTPHeaderSize
)

var (
	// ErrPacketTooShort is returned when a buffer cannot hold a fixed RTP header
	ErrPacketTooShort = errors.New("packet shorter than fixed RTP header")

	// ErrPacketTooLarge is returned when a buffer exceeds MaxPacketSize
	ErrPacketTooLarge = errors.New("packet exceeds maximum size")
)

// ValidatePacketSize validates that data can be treated as an RTP packet.
// Returns an error with context if the data is too short or exceeds MaxPacketSize.
func ValidatePacketSize(data []byte) error {
	if len(data) < RTPHeaderSize {
		return fmt.Errorf("%w: size %d, need at least %d", ErrPacketTooShort, len(data), RTPHeaderSize)
	}
	if len(data) > MaxPacketSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPacketTooLarge, len(data), MaxPacketSize)
	}
	return nil
}

// ValidateRecoveredLength checks that a packet with the given protected length
// (bytes after the fixed header) fits into a buffer of capacity bytes.
func ValidateRecoveredLength(protectedLength, capacity int) error {
	if protectedLength < 0 {
		return fmt.Errorf("%w: negative protected length %d", ErrPacketTooShort, protectedLength)
	}
	if RTPHeaderSize+protectedLength > capacity {
		return fmt.Errorf("%w: recovered size %d exceeds capacity %d",
			ErrPacketTooLarge, RTPHeaderSize+protectedLength, capacity)
	}
	return nil
}
