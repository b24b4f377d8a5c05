package config

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:         ":9000",
		DataDir:            "./data",
		LogLevel:           "info",
		Debug:              false,
		MetricsEnabled:     true,
		AttestationEnabled: false,
		ReplayPolicy:       ReplayPolicyReturnCached,
	}
}
