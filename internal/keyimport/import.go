package keyimport

import (
	"fmt"

	"github.com/ethpandaops/tee-validator-signer/internal/eth2key"
)

// Store is the subset of keystore.KeyStore the import pipeline depends on.
type Store interface {
	HasBLS(publicKeyHex string) bool
	ImportBLS(secret []byte) (string, error)
}

// ProtectionSeeder is the subset of slashdb.DB the import pipeline depends
// on for seeding a key's slashing-protection watermark from an EIP-3076
// interchange document carried alongside the import request.
type ProtectionSeeder interface {
	ImportInterchange(raw []byte) error
}

// Request is a single remote key-import request. Only the keystore
// password is ECIES-wrapped — the keystore JSON itself is already opaque
// without it, matching the keymanager API's `keystore`/`ct_password_hex`
// split, so it travels in the clear.
type Request struct {
	KeystoreJSON       []byte
	EncryptedPassword  []byte
	SlashingProtection []byte
}

// Result reports the outcome of a single import.
type Result struct {
	PublicKeyHex string
	Duplicate    bool
}

// Import decrypts req's password against recipient's secp256k1 identity
// key, decrypts the EIP-2335 keystore, optionally seeds slashing
// protection, and hands the recovered BLS secret to store.
func Import(store Store, protection ProtectionSeeder, recipient *eth2key.KeyPair, req Request) (Result, error) {
	password, err := DecryptECIES(recipient.PrivateKey(), req.EncryptedPassword)
	if err != nil {
		return Result{}, fmt.Errorf("failed to decrypt password envelope: %w", err)
	}

	secret, err := DecryptEIP2335(req.KeystoreJSON, string(password))
	if err != nil {
		return Result{}, err
	}

	pubkeyHex, err := publicKeyHexFromSecret(secret)
	if err != nil {
		return Result{}, err
	}

	duplicate := store.HasBLS(pubkeyHex)

	if _, err := store.ImportBLS(secret); err != nil {
		return Result{}, fmt.Errorf("failed to persist imported key: %w", err)
	}

	if len(req.SlashingProtection) > 0 {
		if protection == nil {
			return Result{}, fmt.Errorf("slashing_protection seed supplied but no protection database is configured")
		}

		if err := protection.ImportInterchange(req.SlashingProtection); err != nil {
			return Result{}, fmt.Errorf("failed to seed slashing protection: %w", err)
		}
	}

	return Result{PublicKeyHex: pubkeyHex, Duplicate: duplicate}, nil
}
