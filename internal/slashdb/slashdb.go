// Package slashdb implements the minimal slashing-protection database: one
// watermark record per BLS public key recording the highest block slot and
// highest attestation source/target epochs ever signed. A signing request
// is rejected whenever it would violate the monotonicity of those
// watermarks, which is the same minimal protection policy described by the
// EIP-3076 interchange format.
package slashdb

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/tee-validator-signer/internal/config"
	"github.com/ethpandaops/tee-validator-signer/internal/sealedstore"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("slash_protection")

// ErrSlashableBlock is returned when a block request would sign at or below
// the highest slot already signed for that key.
var ErrSlashableBlock = errors.New("slashing protection: block slot is not strictly greater than the highest signed slot")

// ErrSlashableAttestation is returned when an attestation request would
// sign a source epoch below, or a target epoch at or below, the
// corresponding watermark for that key.
var ErrSlashableAttestation = errors.New("slashing protection: attestation would surround or repeat a previously signed vote")

// Record is the watermark state held for a single public key. A nil
// pointer means that vote kind has never been signed. The *Root fields
// hold the 32-byte signing root last recorded alongside the matching
// watermark, so an exact slot/epoch replay can be told apart from a
// conflicting second block or attestation at that same slot/epochs —
// the former may be let through per the replay policy, the latter is
// always slashable regardless of policy.
type Record struct {
	HighestBlockSlot       *uint64 `json:"highest_block_slot,omitempty"`
	HighestBlockRoot       []byte  `json:"highest_block_root,omitempty"`
	HighestSourceEpoch     *uint64 `json:"highest_source_epoch,omitempty"`
	HighestTargetEpoch     *uint64 `json:"highest_target_epoch,omitempty"`
	HighestAttestationRoot []byte  `json:"highest_attestation_root,omitempty"`
}

// DB is the slashing-protection database for every key the enclave holds.
type DB struct {
	store  *sealedstore.Store
	policy config.ReplayPolicy
}

// Open opens (or creates) the slashing-protection database at dataDir.
// policy governs how an exact-match re-submission of the most recently
// signed slot, or the most recently signed source/target epoch pair, is
// treated: ReplayPolicyReturnCached lets it through (the resulting
// signature is byte-identical to the original, since BLS signing here is
// deterministic), ReplayPolicyReject answers 412 even on an exact replay.
func Open(dataDir string, policy config.ReplayPolicy) (*DB, error) {
	store, err := sealedstore.Open(dataDir, "slashing-protection.db", bucketName)
	if err != nil {
		return nil, err
	}

	return &DB{store: store, policy: policy}, nil
}

// Close releases the underlying file handle.
func (db *DB) Close() error {
	return db.store.Close()
}

func keyFor(publicKeyHex string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}

	return raw, nil
}

func (db *DB) record(tx *bolt.Tx, key []byte) (Record, error) {
	raw := tx.Bucket(bucketName).Get(key)
	if raw == nil {
		return Record{}, nil
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("corrupt slashing-protection record: %w", err)
	}

	return rec, nil
}

func putRecord(tx *bolt.Tx, key []byte, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode slashing-protection record: %w", err)
	}

	return tx.Bucket(bucketName).Put(key, raw)
}

// Record returns the current watermark for a public key, for diagnostics
// and interchange export.
func (db *DB) Record(publicKeyHex string) (Record, error) {
	key, err := keyFor(publicKeyHex)
	if err != nil {
		return Record{}, err
	}

	var rec Record

	err = db.store.View(func(tx *bolt.Tx) error {
		r, err := db.record(tx, key)
		rec = r

		return err
	})

	return rec, err
}

// TrySignBlock atomically checks the block-slot watermark and, if the slot
// is safe to sign, advances the watermark to slot before returning. The
// caller must call this before releasing its per-key lock and before
// returning a signature to the requester. signingRoot is the SSZ signing
// root the requester's block hashes to; it is recorded alongside the
// watermark so a future request at the same slot can be told apart from a
// genuine replay.
func (db *DB) TrySignBlock(publicKeyHex string, slot uint64, signingRoot [32]byte) error {
	key, err := keyFor(publicKeyHex)
	if err != nil {
		return err
	}

	return db.store.Update(func(tx *bolt.Tx) error {
		rec, err := db.record(tx, key)
		if err != nil {
			return err
		}

		if rec.HighestBlockSlot != nil {
			switch {
			case slot < *rec.HighestBlockSlot:
				return ErrSlashableBlock
			case slot == *rec.HighestBlockSlot:
				if rec.HighestBlockRoot != nil && !bytes.Equal(rec.HighestBlockRoot, signingRoot[:]) {
					return ErrSlashableBlock
				}

				if db.policy == config.ReplayPolicyReject {
					return ErrSlashableBlock
				}

				return nil
			}
		}

		rec.HighestBlockSlot = &slot
		rec.HighestBlockRoot = append([]byte(nil), signingRoot[:]...)

		return putRecord(tx, key, rec)
	})
}

// TrySignAttestation atomically checks the source/target watermarks and,
// if the vote is safe to sign, advances them before returning.
//
// The rule enforced is the standard minimal-client policy: the source
// epoch must never decrease and the target epoch must strictly increase.
// This rejects both double votes (same target twice) and surround votes
// (a new vote whose source/target span encloses, or is enclosed by, a
// previously signed vote), since either would require the target to
// repeat or the source to move backward relative to a later target. An
// exact repeat of the last signed (source, target) pair is handled per the
// database's replay policy rather than treated as a double vote — unless
// its signing root differs from the one recorded for that pair, in which
// case it is always slashable, replay policy notwithstanding.
func (db *DB) TrySignAttestation(publicKeyHex string, sourceEpoch, targetEpoch uint64, signingRoot [32]byte) error {
	key, err := keyFor(publicKeyHex)
	if err != nil {
		return err
	}

	return db.store.Update(func(tx *bolt.Tx) error {
		rec, err := db.record(tx, key)
		if err != nil {
			return err
		}

		exactReplay := rec.HighestSourceEpoch != nil && *rec.HighestSourceEpoch == sourceEpoch &&
			rec.HighestTargetEpoch != nil && *rec.HighestTargetEpoch == targetEpoch

		if exactReplay {
			if rec.HighestAttestationRoot != nil && !bytes.Equal(rec.HighestAttestationRoot, signingRoot[:]) {
				return ErrSlashableAttestation
			}

			if db.policy == config.ReplayPolicyReject {
				return ErrSlashableAttestation
			}

			return nil
		}

		if rec.HighestSourceEpoch != nil && sourceEpoch < *rec.HighestSourceEpoch {
			return ErrSlashableAttestation
		}

		if rec.HighestTargetEpoch != nil && targetEpoch <= *rec.HighestTargetEpoch {
			return ErrSlashableAttestation
		}

		rec.HighestSourceEpoch = &sourceEpoch
		rec.HighestTargetEpoch = &targetEpoch
		rec.HighestAttestationRoot = append([]byte(nil), signingRoot[:]...)

		return putRecord(tx, key, rec)
	})
}

// Import seeds the watermark for publicKeyHex directly, taking the maximum
// of any existing watermark and the given values. Used by the EIP-3076
// interchange importer so that importing a file never lowers protection
// below what the database already enforces.
func (db *DB) Import(publicKeyHex string, rec Record) error {
	key, err := keyFor(publicKeyHex)
	if err != nil {
		return err
	}

	return db.store.Update(func(tx *bolt.Tx) error {
		existing, err := db.record(tx, key)
		if err != nil {
			return err
		}

		blockSlot, blockRoot := mergeWatermark(existing.HighestBlockSlot, existing.HighestBlockRoot, rec.HighestBlockSlot, rec.HighestBlockRoot)
		targetEpoch, attestationRoot := mergeWatermark(existing.HighestTargetEpoch, existing.HighestAttestationRoot, rec.HighestTargetEpoch, rec.HighestAttestationRoot)
		sourceEpoch := maxPtr(existing.HighestSourceEpoch, rec.HighestSourceEpoch)

		merged := Record{
			HighestBlockSlot:       blockSlot,
			HighestBlockRoot:       blockRoot,
			HighestSourceEpoch:     sourceEpoch,
			HighestTargetEpoch:     targetEpoch,
			HighestAttestationRoot: attestationRoot,
		}

		return putRecord(tx, key, merged)
	})
}

func maxPtr(a, b *uint64) *uint64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a >= *b:
		return a
	default:
		return b
	}
}

// mergeWatermark picks the higher of two (epoch-or-slot, root) pairs,
// keeping the root attached to whichever value wins so a root is never
// paired with the wrong watermark after a merge.
func mergeWatermark(aVal *uint64, aRoot []byte, bVal *uint64, bRoot []byte) (*uint64, []byte) {
	switch {
	case aVal == nil:
		return bVal, bRoot
	case bVal == nil:
		return aVal, aRoot
	case *bVal >= *aVal:
		return bVal, bRoot
	default:
		return aVal, aRoot
	}
}
