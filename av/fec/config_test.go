package fec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "ulpfec", want: FormatULPFEC},
		{input: " RFC5109 ", want: FormatULPFEC},
		{input: "flexfec-03", want: FormatFlexFEC03},
		{input: "FlexFEC", want: FormatFlexFEC03},
		{input: "reed-solomon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "ulpfec", FormatULPFEC.String())
	assert.Equal(t, "flexfec-03", FormatFlexFEC03.String())
	assert.Equal(t, "format(9)", Format(9).String())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "enabled", mutate: func(c *Config) { c.IncomingPayloadType = 127; c.OutgoingPayloadType = 0; c.RedundancyRate = 16 }},
		{name: "bad format", mutate: func(c *Config) { c.Format = Format(5) }, wantErr: true},
		{name: "incoming pt too large", mutate: func(c *Config) { c.IncomingPayloadType = 128 }, wantErr: true},
		{name: "outgoing pt negative", mutate: func(c *Config) { c.OutgoingPayloadType = -2 }, wantErr: true},
		{name: "rate too large", mutate: func(c *Config) { c.RedundancyRate = 17 }, wantErr: true},
		{name: "rate negative", mutate: func(c *Config) { c.RedundancyRate = -1 }, wantErr: true},
		{name: "no media history", mutate: func(c *Config) { c.MediaHistoryCapacity = 0 }, wantErr: true},
		{name: "no fec history", mutate: func(c *Config) { c.FECHistoryCapacity = -3 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultMediaHistoryCapacity, cfg.MediaHistoryCapacity)
	assert.Equal(t, DefaultFECHistoryCapacity, cfg.FECHistoryCapacity)
}
