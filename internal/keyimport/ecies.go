// Package keyimport implements the enclave's remote key-import pipeline:
// operators ship a BLS secret key wrapped first in an EIP-2335 keystore and
// then in an ECIES envelope addressed to one of the enclave's secp256k1
// identity keys, so the plaintext secret never exists outside the enclave.
package keyimport

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto/ecies"
)

// DecryptECIES unwraps an ECIES envelope addressed to recipient.
func DecryptECIES(recipient *ecdsa.PrivateKey, envelope []byte) ([]byte, error) {
	eciesKey := ecies.ImportECDSA(recipient)

	plaintext, err := eciesKey.Decrypt(envelope, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt ECIES envelope: %w", err)
	}

	return plaintext, nil
}
