package factory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/opd-ai/toxfec/av/fec"
	"github.com/opd-ai/toxfec/interfaces"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Validation constants for configuration bounds checking.
const (
	// MinPayloadType is the smallest value accepted for a payload type (disabled).
	MinPayloadType = fec.PayloadTypeNone
	// MaxPayloadType is the largest 7-bit RTP payload type.
	MaxPayloadType = 127
	// MinRedundancyRate disables protection packet generation.
	MinRedundancyRate = 0
	// MaxRedundancyRate is the largest number of media packets per protection packet.
	MaxRedundancyRate = fec.MaxRedundancyRate
	// MinHistoryCapacity is the smallest history a receiver may keep.
	MinHistoryCapacity = 1
	// MaxHistoryCapacity bounds per-receiver memory at about 1.5 MB per history.
	MaxHistoryCapacity = 1024
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "TOXFEC"

const (
	keyFormat               = "format"
	keyIncomingPayloadType  = "incoming_payload_type"
	keyOutgoingPayloadType  = "outgoing_payload_type"
	keyRedundancyRate       = "redundancy_rate"
	keyMediaHistoryCapacity = "media_history_capacity"
	keyFECHistoryCapacity   = "fec_history_capacity"
	keyProtectionSSRC       = "protection_ssrc"
)

// EngineFactory creates FEC engines from a resolved default configuration.
// It is safe for concurrent use; all methods are protected by an internal mutex.
type EngineFactory struct {
	mu            sync.RWMutex
	defaultConfig fec.Config
}

// TestConfigOption is a functional option for customizing test engine configuration.
type TestConfigOption func(*fec.Config)

// NewEngineFactory creates a factory from the built-in defaults and the
// TOXFEC_* environment.
func NewEngineFactory() *EngineFactory {
	v := newViper()
	config := loadConfig(v)
	logConfigurationInfo(config, "")

	return &EngineFactory{defaultConfig: config}
}

// NewEngineFactoryFromFile creates a factory from the built-in defaults, the
// configuration file at path and the TOXFEC_* environment.
//
// Parameters:
//   - path: Configuration file; the extension selects the format
//
// Returns:
//   - *EngineFactory: Factory holding the resolved configuration
//   - error: Any error reading the file
func NewEngineFactoryFromFile(path string) (*EngineFactory, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewEngineFactoryFromFile",
			"path":     path,
			"error":    err.Error(),
		}).Error("Failed to read FEC configuration file")
		return nil, fmt.Errorf("failed to read FEC configuration %s: %w", path, err)
	}

	config := loadConfig(v)
	logConfigurationInfo(config, path)
	return &EngineFactory{defaultConfig: config}, nil
}

// newViper returns a viper instance with defaults and environment binding.
func newViper() *viper.Viper {
	defaults := fec.DefaultConfig()

	v := viper.New()
	v.SetDefault(keyFormat, defaults.Format.String())
	v.SetDefault(keyIncomingPayloadType, defaults.IncomingPayloadType)
	v.SetDefault(keyOutgoingPayloadType, defaults.OutgoingPayloadType)
	v.SetDefault(keyRedundancyRate, defaults.RedundancyRate)
	v.SetDefault(keyMediaHistoryCapacity, defaults.MediaHistoryCapacity)
	v.SetDefault(keyFECHistoryCapacity, defaults.FECHistoryCapacity)
	v.SetDefault(keyProtectionSSRC, defaults.ProtectionSSRC)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig resolves every key, keeping the default for values that do not
// parse or are out of bounds.
func loadConfig(v *viper.Viper) fec.Config {
	config := fec.DefaultConfig()

	if raw := v.GetString(keyFormat); raw != "" {
		format, err := fec.ParseFormat(raw)
		if err != nil {
			logInvalidSetting(keyFormat, raw, err, config.Format.String())
		} else {
			config.Format = format
		}
	}

	config.IncomingPayloadType = boundedInt(v, keyIncomingPayloadType, MinPayloadType, MaxPayloadType, config.IncomingPayloadType)
	config.OutgoingPayloadType = boundedInt(v, keyOutgoingPayloadType, MinPayloadType, MaxPayloadType, config.OutgoingPayloadType)
	config.RedundancyRate = boundedInt(v, keyRedundancyRate, MinRedundancyRate, MaxRedundancyRate, config.RedundancyRate)
	config.MediaHistoryCapacity = boundedInt(v, keyMediaHistoryCapacity, MinHistoryCapacity, MaxHistoryCapacity, config.MediaHistoryCapacity)
	config.FECHistoryCapacity = boundedInt(v, keyFECHistoryCapacity, MinHistoryCapacity, MaxHistoryCapacity, config.FECHistoryCapacity)

	if ssrc, err := cast.ToUint32E(v.Get(keyProtectionSSRC)); err != nil {
		logInvalidSetting(keyProtectionSSRC, v.Get(keyProtectionSSRC), err, config.ProtectionSSRC)
	} else {
		config.ProtectionSSRC = ssrc
	}

	return config
}

// boundedInt reads key as an integer within [min, max], returning fallback
// for values that do not parse or are out of bounds.
func boundedInt(v *viper.Viper, key string, min, max, fallback int) int {
	raw := v.Get(key)
	value, err := cast.ToIntE(raw)
	if err != nil {
		logInvalidSetting(key, raw, err, fallback)
		return fallback
	}
	if value < min || value > max {
		logrus.WithFields(logrus.Fields{
			"function":    "boundedInt",
			"key":         key,
			"env_var":     envName(key),
			"value":       value,
			"min":         min,
			"max":         max,
			"using_value": fallback,
		}).Warn("FEC configuration value out of bounds, using default")
		return fallback
	}
	return value
}

func logInvalidSetting(key string, raw interface{}, err error, fallback interface{}) {
	logrus.WithFields(logrus.Fields{
		"function":    "loadConfig",
		"key":         key,
		"env_var":     envName(key),
		"value":       raw,
		"error":       err.Error(),
		"using_value": fallback,
	}).Warn("Failed to parse FEC configuration value, using default")
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// logConfigurationInfo logs the resolved configuration once at startup.
func logConfigurationInfo(config fec.Config, source string) {
	logrus.WithFields(logrus.Fields{
		"function":        "logConfigurationInfo",
		"source":          source,
		"format":          config.Format.String(),
		"incoming_pt":     config.IncomingPayloadType,
		"outgoing_pt":     config.OutgoingPayloadType,
		"redundancy_rate": config.RedundancyRate,
		"media_history":   config.MediaHistoryCapacity,
		"fec_history":     config.FECHistoryCapacity,
		"protection_ssrc": config.ProtectionSSRC,
	}).Info("FEC engine factory configured")
}

// CreateEngine creates an engine with the factory's default configuration.
//
// Parameters:
//   - resolver: Maps FlexFEC SSRCs to media SSRCs; may be nil
//
// Returns:
//   - *fec.Engine: New engine
func (f *EngineFactory) CreateEngine(resolver interfaces.PrimarySSRCResolver) *fec.Engine {
	return fec.NewEngine(f.GetCurrentConfig(), resolver)
}

// CreateEngineWithConfig validates config and creates an engine with it.
func (f *EngineFactory) CreateEngineWithConfig(config fec.Config, resolver interfaces.PrimarySSRCResolver) (*fec.Engine, error) {
	if err := config.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "EngineFactory.CreateEngineWithConfig",
			"error":    err.Error(),
		}).Warn("Rejecting invalid FEC configuration")
		return nil, err
	}
	return fec.NewEngine(config, resolver), nil
}

// WithFormat sets the protection format for test engines.
func WithFormat(format fec.Format) TestConfigOption {
	return func(c *fec.Config) {
		c.Format = format
	}
}

// WithPayloadTypes sets the incoming and outgoing payload types for test engines.
func WithPayloadTypes(incoming, outgoing int) TestConfigOption {
	return func(c *fec.Config) {
		c.IncomingPayloadType = incoming
		c.OutgoingPayloadType = outgoing
	}
}

// WithRedundancyRate sets the redundancy rate for test engines.
func WithRedundancyRate(rate int) TestConfigOption {
	return func(c *fec.Config) {
		c.RedundancyRate = rate
	}
}

// WithProtectionSSRC sets the FlexFEC protection SSRC for test engines.
func WithProtectionSSRC(ssrc uint32) TestConfigOption {
	return func(c *fec.Config) {
		c.ProtectionSSRC = ssrc
	}
}

// CreateTestEngine creates an engine with both directions enabled on payload
// type 117 at redundancy rate 4, adjusted by opts. The identity resolver is
// used, so FlexFEC tests register nothing.
func (f *EngineFactory) CreateTestEngine(opts ...TestConfigOption) *fec.Engine {
	config := f.GetCurrentConfig()
	config.IncomingPayloadType = 117
	config.OutgoingPayloadType = 117
	config.RedundancyRate = 4
	for _, opt := range opts {
		opt(&config)
	}

	logrus.WithFields(logrus.Fields{
		"function": "EngineFactory.CreateTestEngine",
		"format":   config.Format.String(),
		"rate":     config.RedundancyRate,
	}).Info("Creating FEC engine for testing")

	return fec.NewEngine(config, interfaces.IdentityResolver{})
}

// GetCurrentConfig returns a copy of the default configuration.
func (f *EngineFactory) GetCurrentConfig() fec.Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultConfig
}

// UpdateConfig validates and replaces the default configuration.
func (f *EngineFactory) UpdateConfig(config fec.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultConfig = config

	logrus.WithFields(logrus.Fields{
		"function": "EngineFactory.UpdateConfig",
		"format":   config.Format.String(),
		"rate":     config.RedundancyRate,
	}).Info("Updated FEC factory configuration")
	return nil
}
