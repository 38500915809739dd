package fec

import "errors"

// Sentinel errors for fec package operations.
// These errors enable reliable error classification using errors.Is().

// Protection packet parsing errors.
var (
	// ErrPacketTooShort indicates a buffer shorter than the header it must hold.
	ErrPacketTooShort = errors.New("protection packet too short")

	// ErrMalformedMask indicates a mask that is truncated, empty, or covers a
	// delta beyond the largest encodable one.
	ErrMalformedMask = errors.New("malformed protection mask")

	// ErrUnsupportedFlags indicates header flags this implementation does not handle.
	ErrUnsupportedFlags = errors.New("unsupported protection header flags")

	// ErrRetransmission indicates a FlexFEC packet with the retransmission bit set.
	ErrRetransmission = errors.New("retransmission bit set")

	// ErrFixedMask indicates a FlexFEC packet using the fixed mask layout.
	ErrFixedMask = errors.New("fixed mask layout not supported")

	// ErrSSRCCount indicates a FlexFEC packet protecting other than exactly one SSRC.
	ErrSSRCCount = errors.New("protected SSRC count must be one")
)

// Recovery errors.
var (
	// ErrProtectionLengthTooSmall indicates the protection packet covers fewer
	// bytes than the packets it claims to protect.
	ErrProtectionLengthTooSmall = errors.New("protection length smaller than needed")

	// ErrRecoveredTooLarge indicates a recovered packet larger than its buffer.
	ErrRecoveredTooLarge = errors.New("recovered packet exceeds buffer capacity")

	// ErrMediaMissing indicates a protected packet vanished from history
	// between the missing-count sweep and reconstruction.
	ErrMediaMissing = errors.New("protected media packet not in history")
)

// Configuration errors.
var (
	// ErrInvalidConfig indicates a configuration value out of range.
	ErrInvalidConfig = errors.New("invalid FEC configuration")

	// ErrUnknownFormat indicates an unrecognized protection format name.
	ErrUnknownFormat = errors.New("unknown protection format")
)
