package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading from files and flags.
type Loader struct {
	log logrus.FieldLogger
}

// NewLoader creates a new configuration loader.
func NewLoader(log logrus.FieldLogger) *Loader {
	return &Loader{
		log: log.WithField("component", "config"),
	}
}

// LoadConfig loads configuration from a YAML file.
func (l *Loader) LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadConfigFromFlags loads configuration from viper flags, overlaying onto defaults.
func (l *Loader) LoadConfigFromFlags(v *viper.Viper) *Config {
	cfg := DefaultConfig()

	if val := v.GetString("listen-addr"); val != "" {
		cfg.ListenAddr = val
	}

	if val := v.GetString("data-dir"); val != "" {
		cfg.DataDir = val
	}

	if val := v.GetString("log-level"); val != "" {
		cfg.LogLevel = val
	}

	cfg.Debug = v.GetBool("debug")
	cfg.MetricsEnabled = v.GetBool("metrics")
	cfg.AttestationEnabled = v.GetBool("attestation")

	if val := v.GetString("replay-policy"); val != "" {
		cfg.ReplayPolicy = ReplayPolicy(val)
	}

	return cfg
}

// ValidateConfig validates the configuration for consistency and completeness.
func ValidateConfig(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir: must not be empty")
	}

	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr: must not be empty")
	}

	switch cfg.ReplayPolicy {
	case ReplayPolicyReturnCached, ReplayPolicyReject:
		// valid
	case "":
		cfg.ReplayPolicy = ReplayPolicyReturnCached
	default:
		return fmt.Errorf("replay_policy: invalid value %q (must be return_cached or reject)", cfg.ReplayPolicy)
	}

	return nil
}
