// Package attestation provides the enclave's EPID remote-attestation
// surface. The attestation hardware and the Intel Attestation Service
// client are opaque to this module: Oracle is the seam a real TEE runtime
// plugs into, and Stub is a deterministic placeholder for environments
// (development, CI) that have neither.
package attestation

import (
	"encoding/hex"
	"fmt"
)

// Oracle produces an attestation quote binding an enclave-held public key
// to the enclave's measured identity.
type Oracle interface {
	Attest(publicKeyHex string) (Quote, error)
}

// Quote is the attestation evidence returned for a public key.
type Quote struct {
	PublicKeyHex string `json:"pubkey"`
	Report       []byte `json:"report"`
}

// Stub is an Oracle that fabricates a report by hashing the public key,
// for use where no attestation hardware is present.
type Stub struct{}

// NewStub constructs a Stub oracle.
func NewStub() *Stub {
	return &Stub{}
}

// Attest returns a placeholder report derived from publicKeyHex. It never
// fails except on malformed input, and never should be treated as genuine
// attestation evidence.
func (s *Stub) Attest(publicKeyHex string) (Quote, error) {
	if publicKeyHex == "" {
		return Quote{}, fmt.Errorf("attestation: empty public key")
	}

	report := make([]byte, 32)
	copy(report, []byte("stub-report:"+publicKeyHex))

	return Quote{PublicKeyHex: publicKeyHex, Report: report}, nil
}

// ReportHex returns the quote's report as lowercase hex, for JSON
// responses that prefer a string encoding over a byte array.
func (q Quote) ReportHex() string {
	return hex.EncodeToString(q.Report)
}
