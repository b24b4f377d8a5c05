// Package signingpipeline orchestrates a single signing request end to
// end: parse, validate the key is known, check slashing protection under
// a per-key lock, sign, and persist the updated watermark — all before a
// signature is ever returned to the caller.
package signingpipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethpandaops/tee-validator-signer/internal/signingroot"
	"github.com/ethpandaops/tee-validator-signer/internal/slashdb"
)

// Signer is the subset of keystore.KeyStore the pipeline depends on.
type Signer interface {
	HasBLS(publicKeyHex string) bool
	SignBLS(publicKeyHex string, signingRoot [32]byte) ([96]byte, error)
}

// ProtectionDB is the subset of slashdb.DB the pipeline depends on.
type ProtectionDB interface {
	TrySignBlock(publicKeyHex string, slot uint64, signingRoot [32]byte) error
	TrySignAttestation(publicKeyHex string, sourceEpoch, targetEpoch uint64, signingRoot [32]byte) error
}

// Locker is the subset of keylock.Registry the pipeline depends on.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// Pipeline ties the key store, the slashing-protection database, and the
// per-key lock registry into the secure-sign sequence.
type Pipeline struct {
	Keys       Signer
	Protection ProtectionDB
	Locks      Locker
}

// New constructs a Pipeline.
func New(keys Signer, protection ProtectionDB, locks Locker) *Pipeline {
	return &Pipeline{Keys: keys, Protection: protection, Locks: locks}
}

// Result is what a successful SecureSign call returns.
type Result struct {
	Signature   [96]byte
	SigningRoot [32]byte
}

// SecureSign runs the full request lifecycle for a single signing request
// against publicKeyHex.
func (p *Pipeline) SecureSign(ctx context.Context, publicKeyHex string, raw []byte) (*Result, error) {
	req, err := signingroot.ParseRequest(raw)
	if err != nil {
		return nil, newError(KindMalformedRequest, err)
	}

	if !p.Keys.HasBLS(publicKeyHex) {
		return nil, newError(KindUnknownKey, fmt.Errorf("unknown bls public key %s", publicKeyHex))
	}

	computed, err := signingroot.Compute(req)
	if err != nil {
		return nil, newError(KindMalformedRequest, err)
	}

	if req.SigningRoot != nil && *req.SigningRoot != computed.SigningRoot {
		return nil, newError(KindMalformedRequest, fmt.Errorf("supplied signingRoot does not match the computed signing root"))
	}

	var sig [96]byte

	err = p.Locks.WithLock(ctx, publicKeyHex, func() error {
		if protErr := p.checkProtection(req, publicKeyHex, computed.SigningRoot); protErr != nil {
			return protErr
		}

		s, signErr := p.Keys.SignBLS(publicKeyHex, computed.SigningRoot)
		if signErr != nil {
			return newError(KindPersistenceFailure, signErr)
		}

		sig = s

		return nil
	})
	if err != nil {
		var pipelineErr *Error
		if errors.As(err, &pipelineErr) {
			return nil, pipelineErr
		}

		return nil, newError(KindPersistenceFailure, err)
	}

	return &Result{Signature: sig, SigningRoot: computed.SigningRoot}, nil
}

func (p *Pipeline) checkProtection(req *signingroot.Request, publicKeyHex string, signingRoot [32]byte) error {
	switch req.Type {
	case signingroot.KindBlock, signingroot.KindBlockV2:
		slot, err := blockSlot(req.Raw)
		if err != nil {
			return newError(KindMalformedRequest, err)
		}

		return translateProtectionErr(p.Protection.TrySignBlock(publicKeyHex, slot, signingRoot))

	case signingroot.KindAttestation:
		source, target, err := attestationEpochs(req.Raw)
		if err != nil {
			return newError(KindMalformedRequest, err)
		}

		return translateProtectionErr(p.Protection.TrySignAttestation(publicKeyHex, source, target, signingRoot))

	default:
		return nil
	}
}

func translateProtectionErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, slashdb.ErrSlashableBlock) || errors.Is(err, slashdb.ErrSlashableAttestation) {
		return newError(KindSlashable, err)
	}

	return newError(KindPersistenceFailure, err)
}

func blockSlot(raw []byte) (uint64, error) {
	var body struct {
		Block struct {
			Slot uint64 `json:"slot,string"`
		} `json:"block"`
	}

	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, fmt.Errorf("malformed block payload: %w", err)
	}

	return body.Block.Slot, nil
}

func attestationEpochs(raw []byte) (source, target uint64, err error) {
	var body struct {
		Attestation struct {
			Source struct {
				Epoch uint64 `json:"epoch,string"`
			} `json:"source"`
			Target struct {
				Epoch uint64 `json:"epoch,string"`
			} `json:"target"`
		} `json:"attestation"`
	}

	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, 0, fmt.Errorf("malformed attestation payload: %w", err)
	}

	return body.Attestation.Source.Epoch, body.Attestation.Target.Epoch, nil
}
