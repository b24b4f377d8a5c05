// Package keystore is the enclave's durable key store: BLS12-381 signing
// keys and secp256k1 enclave identity keys, generated or imported, cached
// in memory for signing latency and mirrored to sealed storage for
// durability across restarts.
package keystore

import (
	"fmt"
	"sync"

	"github.com/ethpandaops/tee-validator-signer/internal/blssign"
	"github.com/ethpandaops/tee-validator-signer/internal/eth2key"
	"github.com/ethpandaops/tee-validator-signer/internal/sealedstore"
	bolt "go.etcd.io/bbolt"
)

var (
	blsBucket = []byte("bls_keys")
	ethBucket = []byte("eth_keys")
)

// KeyStore holds every key the enclave is authoritative for.
type KeyStore struct {
	store *sealedstore.Store

	mu  sync.RWMutex
	bls map[string]*blssign.KeyPair
	eth map[string]*eth2key.KeyPair
}

// Open opens (or creates) the key store at dataDir and loads every
// previously persisted key into memory.
func Open(dataDir string) (*KeyStore, error) {
	store, err := sealedstore.Open(dataDir, "keystore.db", blsBucket, ethBucket)
	if err != nil {
		return nil, err
	}

	ks := &KeyStore{
		store: store,
		bls:   make(map[string]*blssign.KeyPair),
		eth:   make(map[string]*eth2key.KeyPair),
	}

	if err := ks.loadAll(); err != nil {
		_ = store.Close()
		return nil, err
	}

	return ks, nil
}

func (ks *KeyStore) loadAll() error {
	return ks.store.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(blsBucket).ForEach(func(_, secret []byte) error {
			kp, err := blssign.FromSecretBytes(secret)
			if err != nil {
				return fmt.Errorf("failed to load persisted bls key: %w", err)
			}

			ks.bls[kp.PublicKeyHex()] = kp

			return nil
		}); err != nil {
			return err
		}

		return tx.Bucket(ethBucket).ForEach(func(_, secret []byte) error {
			kp, err := eth2key.FromSecretBytes(secret)
			if err != nil {
				return fmt.Errorf("failed to load persisted secp256k1 key: %w", err)
			}

			ks.eth[kp.PublicKeyHex()] = kp

			return nil
		})
	})
}

// Close releases the underlying file handle.
func (ks *KeyStore) Close() error {
	return ks.store.Close()
}

// GenerateBLS samples a new BLS key, persists it, and returns its public
// key hex.
func (ks *KeyStore) GenerateBLS() (string, error) {
	kp := blssign.Generate()

	if err := ks.persistBLS(kp); err != nil {
		return "", err
	}

	return kp.PublicKeyHex(), nil
}

// ImportBLS persists an already-decrypted BLS secret key (the output of
// the key-import pipeline) and returns its public key hex. Importing a key
// that is already present is idempotent and returns the existing entry.
func (ks *KeyStore) ImportBLS(secret []byte) (string, error) {
	kp, err := blssign.FromSecretBytes(secret)
	if err != nil {
		return "", err
	}

	ks.mu.RLock()
	_, exists := ks.bls[kp.PublicKeyHex()]
	ks.mu.RUnlock()

	if exists {
		return kp.PublicKeyHex(), nil
	}

	if err := ks.persistBLS(kp); err != nil {
		return "", err
	}

	return kp.PublicKeyHex(), nil
}

func (ks *KeyStore) persistBLS(kp *blssign.KeyPair) error {
	if err := ks.store.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(blsBucket).Put([]byte(kp.PublicKeyHex()), kp.SecretBytes())
	}); err != nil {
		return fmt.Errorf("failed to persist bls key: %w", err)
	}

	ks.mu.Lock()
	ks.bls[kp.PublicKeyHex()] = kp
	ks.mu.Unlock()

	return nil
}

// ListBLS returns every BLS public key hex the store holds.
func (ks *KeyStore) ListBLS() []string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	out := make([]string, 0, len(ks.bls))
	for pk := range ks.bls {
		out = append(out, pk)
	}

	return out
}

// HasBLS reports whether a BLS public key is present in the store.
func (ks *KeyStore) HasBLS(publicKeyHex string) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	_, ok := ks.bls[publicKeyHex]

	return ok
}

// SignBLS signs a 32-byte signing root with the given BLS public key.
func (ks *KeyStore) SignBLS(publicKeyHex string, signingRoot [32]byte) ([96]byte, error) {
	ks.mu.RLock()
	kp, ok := ks.bls[publicKeyHex]
	ks.mu.RUnlock()

	if !ok {
		return [96]byte{}, fmt.Errorf("unknown bls public key %s", publicKeyHex)
	}

	return kp.Sign(signingRoot), nil
}

// GenerateETH samples a new secp256k1 key, persists it, and returns its
// compressed public key hex (`eth_pub_hex`).
func (ks *KeyStore) GenerateETH() (string, error) {
	kp, err := eth2key.Generate()
	if err != nil {
		return "", err
	}

	if err := ks.store.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ethBucket).Put([]byte(kp.PublicKeyHex()), kp.SecretBytes())
	}); err != nil {
		return "", fmt.Errorf("failed to persist secp256k1 key: %w", err)
	}

	ks.mu.Lock()
	ks.eth[kp.PublicKeyHex()] = kp
	ks.mu.Unlock()

	return kp.PublicKeyHex(), nil
}

// ListETH returns every secp256k1 public key hex the store holds.
func (ks *KeyStore) ListETH() []string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	out := make([]string, 0, len(ks.eth))
	for pubHex := range ks.eth {
		out = append(out, pubHex)
	}

	return out
}

// ETHKeyPair returns the secp256k1 key pair for a compressed public key
// hex, used by the key-import pipeline to decrypt ECIES-wrapped payloads
// addressed to it.
func (ks *KeyStore) ETHKeyPair(publicKeyHex string) (*eth2key.KeyPair, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	kp, ok := ks.eth[publicKeyHex]

	return kp, ok
}

// AnyETHKeyPair returns an arbitrary enclave secp256k1 key pair, used when
// the import request does not pin a specific recipient address.
func (ks *KeyStore) AnyETHKeyPair() (*eth2key.KeyPair, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	for _, kp := range ks.eth {
		return kp, true
	}

	return nil, false
}
