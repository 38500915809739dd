package fec

import (
	"fmt"
	"strings"
)

// Format selects the protection packet wire format.
type Format int

const (
	// FormatULPFEC is RFC 5109 Uneven Level Protection FEC. Protection
	// packets share the SSRC of the media they protect.
	FormatULPFEC Format = iota
	// FormatFlexFEC03 is draft-ietf-payload-flexible-fec-scheme-03 with the
	// flexible mask. Protection packets carry the protected SSRC in their
	// own header.
	FormatFlexFEC03
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case FormatULPFEC:
		return "ulpfec"
	case FormatFlexFEC03:
		return "flexfec-03"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat maps a configuration string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ulpfec", "ulp", "rfc5109":
		return FormatULPFEC, nil
	case "flexfec-03", "flexfec03", "flexfec":
		return FormatFlexFEC03, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

const (
	// PayloadTypeNone disables the direction it is configured for.
	PayloadTypeNone = -1

	// MaxRedundancyRate is the largest number of media packets folded into
	// one protection packet.
	MaxRedundancyRate = 16

	// DefaultMediaHistoryCapacity is the default number of retained media packets.
	DefaultMediaHistoryCapacity = 64

	// DefaultFECHistoryCapacity is the default number of retained protection packets.
	DefaultFECHistoryCapacity = 32
)

// Config holds the FEC engine configuration.
type Config struct {
	// Format selects ULPFEC or FlexFEC-03.
	Format Format

	// IncomingPayloadType is the payload type of received protection
	// packets. PayloadTypeNone disables receive-side handling.
	IncomingPayloadType int

	// OutgoingPayloadType is the payload type of generated protection
	// packets. PayloadTypeNone disables generation.
	OutgoingPayloadType int

	// RedundancyRate is the number of media packets per protection packet,
	// in [0, MaxRedundancyRate]. Zero disables generation.
	RedundancyRate int

	// MediaHistoryCapacity bounds the media packets each receiver retains.
	MediaHistoryCapacity int

	// FECHistoryCapacity bounds the protection packets each receiver retains.
	FECHistoryCapacity int

	// ProtectionSSRC is the SSRC of generated FlexFEC packets. Zero keeps
	// protection packets on the media SSRC and sequence space.
	ProtectionSSRC uint32
}

// DefaultConfig returns a configuration with both directions disabled and
// default history capacities.
func DefaultConfig() Config {
	return Config{
		Format:               FormatULPFEC,
		IncomingPayloadType:  PayloadTypeNone,
		OutgoingPayloadType:  PayloadTypeNone,
		RedundancyRate:       0,
		MediaHistoryCapacity: DefaultMediaHistoryCapacity,
		FECHistoryCapacity:   DefaultFECHistoryCapacity,
	}
}

// Validate checks every field against its allowed range. The engine does
// not call Validate itself; range checking is the caller's responsibility.
func (c Config) Validate() error {
	if c.Format != FormatULPFEC && c.Format != FormatFlexFEC03 {
		return fmt.Errorf("%w: format %d", ErrInvalidConfig, int(c.Format))
	}
	if err := validatePayloadType("incoming payload type", c.IncomingPayloadType); err != nil {
		return err
	}
	if err := validatePayloadType("outgoing payload type", c.OutgoingPayloadType); err != nil {
		return err
	}
	if c.RedundancyRate < 0 || c.RedundancyRate > MaxRedundancyRate {
		return fmt.Errorf("%w: redundancy rate must be between 0 and %d, got %d",
			ErrInvalidConfig, MaxRedundancyRate, c.RedundancyRate)
	}
	if c.MediaHistoryCapacity <= 0 {
		return fmt.Errorf("%w: media history capacity must be positive, got %d",
			ErrInvalidConfig, c.MediaHistoryCapacity)
	}
	if c.FECHistoryCapacity <= 0 {
		return fmt.Errorf("%w: FEC history capacity must be positive, got %d",
			ErrInvalidConfig, c.FECHistoryCapacity)
	}
	return nil
}

func validatePayloadType(name string, pt int) error {
	if pt == PayloadTypeNone {
		return nil
	}
	if pt < 0 || pt > 127 {
		return fmt.Errorf("%w: %s must be -1 or in [0, 127], got %d", ErrInvalidConfig, name, pt)
	}
	return nil
}

// withDefaults fills non-positive capacities with their defaults.
func (c Config) withDefaults() Config {
	if c.MediaHistoryCapacity <= 0 {
		c.MediaHistoryCapacity = DefaultMediaHistoryCapacity
	}
	if c.FECHistoryCapacity <= 0 {
		c.FECHistoryCapacity = DefaultFECHistoryCapacity
	}
	return c
}
