// Package blssign wraps BLS12-381 key generation and signing for the
// enclave, and implements the Ethereum consensus domain/signing-root
// algorithms shared by every signing-request kind.
package blssign

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/herumi/bls-eth-go-binary/bls"
)

var initOnce sync.Once

// initBLS initializes the BLS library with the BLS12-381 curve in the
// Ethereum-mode serialization (compressed, big-endian) used throughout the
// consensus spec.
func initBLS() {
	initOnce.Do(func() {
		if err := bls.Init(bls.BLS12_381); err != nil {
			panic(fmt.Sprintf("failed to initialize BLS library: %v", err))
		}

		if err := bls.SetETHmode(bls.EthModeLatest); err != nil {
			panic(fmt.Sprintf("failed to set ETH mode: %v", err))
		}
	})
}

// KeyPair is a BLS12-381 secret/public key pair held by the enclave.
type KeyPair struct {
	secretKey *bls.SecretKey
	publicKey *bls.PublicKey
}

// Generate samples a fresh secret key using the library's CSPRNG.
func Generate() *KeyPair {
	initBLS()

	sk := new(bls.SecretKey)
	sk.SetByCSPRNG()

	return &KeyPair{secretKey: sk, publicKey: sk.GetPublicKey()}
}

// FromSecretBytes builds a key pair from a 32-byte big-endian secret scalar,
// as produced by KeyImport after EIP-2335 decryption.
func FromSecretBytes(secret []byte) (*KeyPair, error) {
	initBLS()

	if len(secret) != 32 {
		return nil, fmt.Errorf("bls secret key must be 32 bytes, got %d", len(secret))
	}

	sk := new(bls.SecretKey)
	if err := sk.Deserialize(secret); err != nil {
		return nil, fmt.Errorf("failed to deserialize secret key: %w", err)
	}

	return &KeyPair{secretKey: sk, publicKey: sk.GetPublicKey()}, nil
}

// FromSecretHex builds a key pair from a hex-encoded (optionally 0x-prefixed)
// secret scalar.
func FromSecretHex(secretHex string) (*KeyPair, error) {
	secretHex = strings.TrimPrefix(secretHex, "0x")

	raw, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret key hex: %w", err)
	}

	return FromSecretBytes(raw)
}

// PublicKeyHex returns the 48-byte compressed public key, 0x-prefixed hex.
func (k *KeyPair) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(k.publicKey.Serialize())
}

// SecretBytes returns the 32-byte big-endian secret scalar.
func (k *KeyPair) SecretBytes() []byte {
	return k.secretKey.Serialize()
}

// Sign produces a 96-byte BLS signature over a 32-byte message (the signing
// root). The message must already be domain-separated; blssign never signs
// an un-domained object.
func (k *KeyPair) Sign(signingRoot [32]byte) [96]byte {
	sig := k.secretKey.SignByte(signingRoot[:])

	var out [96]byte
	copy(out[:], sig.Serialize())

	return out
}

// ComputeForkDataRoot computes the SSZ hash_tree_root of
// ForkData{current_version, genesis_validators_root} using the real
// fastssz-generated phase0.ForkData container rather than a hand-rolled
// sha256 concatenation.
func ComputeForkDataRoot(forkVersion phase0.Version, genesisValidatorsRoot phase0.Root) phase0.Root {
	forkData := phase0.ForkData{
		CurrentVersion:        forkVersion,
		GenesisValidatorsRoot: genesisValidatorsRoot,
	}

	root, err := forkData.HashTreeRoot()
	if err != nil {
		// ForkData has no variable-length fields; hashing two fixed 32-byte
		// inputs cannot fail.
		panic(fmt.Sprintf("failed to hash fork data: %v", err))
	}

	return root
}

// ComputeDomain computes domain = domain_type || fork_data_root[:28] per the
// consensus spec's compute_domain.
func ComputeDomain(domainType phase0.DomainType, forkVersion phase0.Version, genesisValidatorsRoot phase0.Root) phase0.Domain {
	forkDataRoot := ComputeForkDataRoot(forkVersion, genesisValidatorsRoot)

	var domain phase0.Domain
	copy(domain[:4], domainType[:])
	copy(domain[4:], forkDataRoot[:28])

	return domain
}

// ComputeSigningRoot computes signing_root = hash_tree_root(SigningData{
// object_root, domain}) using the real phase0.SigningData container.
func ComputeSigningRoot(objectRoot phase0.Root, domain phase0.Domain) phase0.Root {
	signingData := phase0.SigningData{
		ObjectRoot: objectRoot,
		Domain:     domain,
	}

	root, err := signingData.HashTreeRoot()
	if err != nil {
		// SigningData has no variable-length fields; hashing two fixed
		// 32-byte inputs cannot fail.
		panic(fmt.Sprintf("failed to hash signing data: %v", err))
	}

	return root
}
