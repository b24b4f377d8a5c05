// Package eth2key manages the enclave's secp256k1 key pairs: the keys used
// to decrypt ECIES-wrapped import payloads and to identify the enclave to
// operators over the key-generation API.
package eth2key

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// KeyPair is a secp256k1 key pair held by the enclave.
type KeyPair struct {
	privateKey *ecdsa.PrivateKey
}

// Generate samples a fresh secp256k1 key pair.
func Generate() (*KeyPair, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
	}

	return &KeyPair{privateKey: priv}, nil
}

// FromSecretBytes builds a key pair from a 32-byte private key.
func FromSecretBytes(secret []byte) (*KeyPair, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("secp256k1 private key must be 32 bytes, got %d", len(secret))
	}

	priv, err := crypto.ToECDSA(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &KeyPair{privateKey: priv}, nil
}

// FromSecretHex builds a key pair from a hex-encoded (optionally
// 0x-prefixed) private key.
func FromSecretHex(secretHex string) (*KeyPair, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(secretHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key hex: %w", err)
	}

	return FromSecretBytes(raw)
}

// PublicKeyHex returns the 33-byte compressed SECP256K1 public key,
// 0x-prefixed hex — the `eth_pub_hex` identifier used to name this key
// pair externally (as the keystores import endpoint's
// `encrypting_pk_hex`, and in the keygen/list responses).
func (k *KeyPair) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(crypto.CompressPubkey(&k.privateKey.PublicKey))
}

// SecretBytes returns the 32-byte private key.
func (k *KeyPair) SecretBytes() []byte {
	return crypto.FromECDSA(k.privateKey)
}

// PrivateKey exposes the underlying ECDSA key for ECIES decryption.
func (k *KeyPair) PrivateKey() *ecdsa.PrivateKey {
	return k.privateKey
}
