// Package factory builds FEC engines from layered configuration.
//
// Configuration is resolved in three layers, later layers winning:
//
//  1. Built-in defaults (both directions disabled, histories 64/32)
//  2. An optional configuration file in any format viper reads
//  3. TOXFEC_* environment variables
//
// # Configuration Keys
//
//   - format (TOXFEC_FORMAT): "ulpfec" or "flexfec-03"
//   - incoming_payload_type (TOXFEC_INCOMING_PAYLOAD_TYPE): -1 or 0-127
//   - outgoing_payload_type (TOXFEC_OUTGOING_PAYLOAD_TYPE): -1 or 0-127
//   - redundancy_rate (TOXFEC_REDUNDANCY_RATE): 0-16
//   - media_history_capacity (TOXFEC_MEDIA_HISTORY_CAPACITY): 1-1024
//   - fec_history_capacity (TOXFEC_FEC_HISTORY_CAPACITY): 1-1024
//   - protection_ssrc (TOXFEC_PROTECTION_SSRC): 0 shares the media SSRC
//
// A value that does not parse or is out of bounds is logged with a warning
// and the built-in default is used instead.
//
// # Usage
//
//	f, err := factory.NewEngineFactoryFromFile("fec.yaml")
//	if err != nil {
//	    return err
//	}
//	engine := f.CreateEngine(tracks)
//	defer engine.Close()
//
// Tests use CreateTestEngine with functional options:
//
//	engine := f.CreateTestEngine(factory.WithFormat(fec.FormatFlexFEC03), factory.WithRedundancyRate(2))
package factory
