// Package config handles configuration loading and validation for the signer.
package config

// Config represents the complete configuration for the signer process.
type Config struct {
	// ListenAddr is the address the HTTP API binds to, e.g. ":9000".
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// DataDir is the root of the sealed-storage area: key material and
	// slashing-protection history are persisted under this directory
	// between enclave restarts.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// LogLevel controls logrus verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Debug enables verbose request/response logging in the HTTP layer.
	Debug bool `yaml:"debug" json:"debug"`

	// MetricsEnabled exposes a Prometheus /metrics endpoint.
	MetricsEnabled bool `yaml:"metrics_enabled" json:"metrics_enabled"`

	// AttestationEnabled toggles the /eth/v1/remote-attestation route. It is
	// disabled by default outside of genuine SGX enclaves since the quote
	// oracle in internal/attestation is a stub.
	AttestationEnabled bool `yaml:"attestation_enabled" json:"attestation_enabled"`

	ReplayPolicy ReplayPolicy `yaml:"replay_policy" json:"replay_policy"`
}

// ReplayPolicy selects how SlashProtectionDB treats an exact-match
// re-submission of the most recently signed slot/epochs (see §9 of the
// design notes: both answers are safe, this picks one).
type ReplayPolicy string

const (
	// ReplayPolicyReturnCached re-signs the identical root and returns 200.
	ReplayPolicyReturnCached ReplayPolicy = "return_cached"
	// ReplayPolicyReject always answers 412 Slashable, even on an exact replay.
	ReplayPolicyReject ReplayPolicy = "reject"
)
