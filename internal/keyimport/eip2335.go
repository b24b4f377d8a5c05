package keyimport

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethpandaops/tee-validator-signer/internal/blssign"
	keystorev4 "github.com/wealdtech/go-eth2-wallet-encryptor-keystorev4"
)

// eip2335Keystore mirrors the top-level fields of an EIP-2335 keystore
// JSON document. Only crypto is consumed by decryption; the rest is kept
// for validation against the caller's expectations.
type eip2335Keystore struct {
	Crypto  map[string]interface{} `json:"crypto"`
	Pubkey  string                 `json:"pubkey"`
	Path    string                 `json:"path"`
	UUID    string                 `json:"uuid"`
	Version uint                   `json:"version"`
}

// DecryptEIP2335 decrypts a keystore JSON document with the given
// passphrase and returns the raw 32-byte BLS secret key. If the keystore
// carries a pubkey field, the decrypted secret is checked to produce that
// same public key before being returned.
func DecryptEIP2335(keystoreJSON []byte, passphrase string) ([]byte, error) {
	var ks eip2335Keystore
	if err := json.Unmarshal(keystoreJSON, &ks); err != nil {
		return nil, fmt.Errorf("malformed EIP-2335 keystore: %w", err)
	}

	if ks.Version != 4 {
		return nil, fmt.Errorf("unsupported keystore version %d", ks.Version)
	}

	encryptor := keystorev4.New()

	secret, err := encryptor.Decrypt(ks.Crypto, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
	}

	if ks.Pubkey != "" {
		want := strings.TrimPrefix(strings.ToLower(ks.Pubkey), "0x")

		derived, err := publicKeyHexFromSecret(secret)
		if err != nil {
			return nil, err
		}

		if strings.TrimPrefix(strings.ToLower(derived), "0x") != want {
			return nil, fmt.Errorf("decrypted secret does not match keystore pubkey %s", ks.Pubkey)
		}
	}

	return secret, nil
}

func publicKeyHexFromSecret(secret []byte) (string, error) {
	kp, err := blssign.FromSecretBytes(secret)
	if err != nil {
		return "", err
	}

	return kp.PublicKeyHex(), nil
}
