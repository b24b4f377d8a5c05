package signingroot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethpandaops/tee-validator-signer/internal/blssign"
)

// slotsPerEpoch is the mainnet SLOTS_PER_EPOCH, used only to translate a
// BLOCK_V2 slot into an epoch for fork-version selection.
const slotsPerEpoch = 32

// Result carries both the final 32-byte signing root and the domain that
// produced it, so callers can log or replay-check against the domain as
// well as the root.
type Result struct {
	SigningRoot phase0.Root
	Domain      phase0.Domain
}

// Compute dispatches on req.Type, derives the object root and domain for
// that kind, and returns the resulting signing root.
//
// DEPOSIT and VALIDATOR_REGISTRATION never consult req.ForkInfo: deposits
// are always domained against the genesis fork version and a zero
// genesis_validators_root (the deposit contract predates any fork choice),
// and validator registrations use the fixed builder-API domain with the
// same zero fork version and zero genesis root, independent of the chain
// the validator is currently registered to.
func Compute(req *Request) (*Result, error) {
	switch req.Type {
	case KindBlock:
		return computeBlock(req, false)
	case KindBlockV2:
		return computeBlock(req, true)
	case KindAttestation:
		return computeAttestation(req)
	case KindRandaoReveal:
		return computeRandaoReveal(req)
	case KindAggregateAndProof:
		return computeAggregateAndProof(req)
	case KindAggregationSlot:
		return computeAggregationSlot(req)
	case KindDeposit:
		return computeDeposit(req)
	case KindVoluntaryExit:
		return computeVoluntaryExit(req)
	case KindSyncCommitteeMessage:
		return computeSyncCommitteeMessage(req)
	case KindSyncCommitteeSelectionProof:
		return computeSyncCommitteeSelectionProof(req)
	case KindSyncCommitteeContributionAndProof:
		return computeContributionAndProof(req)
	case KindValidatorRegistration:
		return computeValidatorRegistration(req)
	default:
		return nil, fmt.Errorf("unsupported signing request type %q", req.Type)
	}
}

func requireForkInfo(req *Request) (*ForkInfo, error) {
	if req.ForkInfo == nil {
		return nil, fmt.Errorf("%s request missing fork_info", req.Type)
	}

	return req.ForkInfo, nil
}

// selectForkVersion implements the epoch-based fork-version choice used by
// BLOCK_V2: the previous fork's version applies up to (but not including)
// the epoch the fork activates at, after which the current version applies.
func selectForkVersion(fork Fork, epoch phase0.Epoch) phase0.Version {
	if epoch < fork.Epoch {
		return fork.PreviousVersion
	}

	return fork.CurrentVersion
}

// leafUint64 is hash_tree_root of a bare SSZ basic-type value: its
// little-endian serialization padded to a 32-byte chunk. There is no
// container around it to merkleize, so this is the entire computation.
func leafUint64(v uint64) phase0.Root {
	var leaf phase0.Root
	binary.LittleEndian.PutUint64(leaf[:8], v)

	return leaf
}

func finish(domainType phase0.DomainType, forkVersion phase0.Version, genesisRoot phase0.Root, objectRoot phase0.Root) *Result {
	domain := blssign.ComputeDomain(domainType, forkVersion, genesisRoot)
	root := blssign.ComputeSigningRoot(objectRoot, domain)

	return &Result{SigningRoot: root, Domain: domain}
}

func computeBlock(req *Request, versioned bool) (*Result, error) {
	forkInfo, err := requireForkInfo(req)
	if err != nil {
		return nil, err
	}

	var body struct {
		Block BeaconBlockHeader `json:"block"`
	}

	if err := json.Unmarshal(req.Raw, &body); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", req.Type, err)
	}

	forkVersion := forkInfo.Fork.CurrentVersion
	if versioned {
		epoch := phase0.Epoch(uint64(body.Block.Slot) / slotsPerEpoch)
		forkVersion = selectForkVersion(forkInfo.Fork, epoch)
	}

	objectRoot, err := body.Block.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s object root: %w", req.Type, err)
	}

	return finish(domainBeaconProposer, forkVersion, forkInfo.GenesisValidatorsRoot, objectRoot), nil
}

func computeAttestation(req *Request) (*Result, error) {
	forkInfo, err := requireForkInfo(req)
	if err != nil {
		return nil, err
	}

	var body struct {
		Attestation AttestationData `json:"attestation"`
	}

	if err := json.Unmarshal(req.Raw, &body); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", req.Type, err)
	}

	objectRoot, err := body.Attestation.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s object root: %w", req.Type, err)
	}

	return finish(domainBeaconAttester, forkInfo.Fork.CurrentVersion, forkInfo.GenesisValidatorsRoot, objectRoot), nil
}

func computeRandaoReveal(req *Request) (*Result, error) {
	forkInfo, err := requireForkInfo(req)
	if err != nil {
		return nil, err
	}

	var body struct {
		RandaoReveal struct {
			Epoch phase0.Epoch `json:"epoch,string"`
		} `json:"randao_reveal"`
	}

	if err := json.Unmarshal(req.Raw, &body); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", req.Type, err)
	}

	objectRoot := leafUint64(uint64(body.RandaoReveal.Epoch))

	return finish(domainRandao, forkInfo.Fork.CurrentVersion, forkInfo.GenesisValidatorsRoot, objectRoot), nil
}

func computeAggregateAndProof(req *Request) (*Result, error) {
	forkInfo, err := requireForkInfo(req)
	if err != nil {
		return nil, err
	}

	var body struct {
		AggregateAndProof AggregateAndProof `json:"aggregate_and_proof"`
	}

	if err := json.Unmarshal(req.Raw, &body); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", req.Type, err)
	}

	// An AGGREGATE_AND_PROOF is signed over the SELECTION_PROOF domain, but
	// the object root still covers the whole aggregate_and_proof container,
	// including its nested Attestation with a variable-length aggregation
	// bitlist. AggregateAndProof.HashTreeRoot is the real fastssz-generated
	// implementation, so this is computed independently rather than trusting
	// whatever the caller puts in signingRoot.
	objectRoot, err := body.AggregateAndProof.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s object root: %w", req.Type, err)
	}

	return finish(domainAggregateAndProof, forkInfo.Fork.CurrentVersion, forkInfo.GenesisValidatorsRoot, objectRoot), nil
}

func computeAggregationSlot(req *Request) (*Result, error) {
	forkInfo, err := requireForkInfo(req)
	if err != nil {
		return nil, err
	}

	var body struct {
		AggregationSlot struct {
			Slot phase0.Slot `json:"slot,string"`
		} `json:"aggregation_slot"`
	}

	if err := json.Unmarshal(req.Raw, &body); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", req.Type, err)
	}

	objectRoot := leafUint64(uint64(body.AggregationSlot.Slot))

	return finish(domainSelectionProof, forkInfo.Fork.CurrentVersion, forkInfo.GenesisValidatorsRoot, objectRoot), nil
}

func computeDeposit(req *Request) (*Result, error) {
	var body struct {
		Deposit phase0.DepositMessage `json:"deposit"`
	}

	if err := json.Unmarshal(req.Raw, &body); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", req.Type, err)
	}

	objectRoot, err := body.Deposit.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s object root: %w", req.Type, err)
	}

	var zeroVersion phase0.Version

	var zeroRoot phase0.Root

	return finish(domainDeposit, zeroVersion, zeroRoot, objectRoot), nil
}

func computeVoluntaryExit(req *Request) (*Result, error) {
	forkInfo, err := requireForkInfo(req)
	if err != nil {
		return nil, err
	}

	var body struct {
		VoluntaryExit VoluntaryExit `json:"voluntary_exit"`
	}

	if err := json.Unmarshal(req.Raw, &body); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", req.Type, err)
	}

	objectRoot, err := body.VoluntaryExit.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s object root: %w", req.Type, err)
	}

	return finish(domainVoluntaryExit, forkInfo.Fork.CurrentVersion, forkInfo.GenesisValidatorsRoot, objectRoot), nil
}

func computeSyncCommitteeMessage(req *Request) (*Result, error) {
	forkInfo, err := requireForkInfo(req)
	if err != nil {
		return nil, err
	}

	var body struct {
		SyncCommitteeMessage struct {
			BeaconBlockRoot phase0.Root `json:"beacon_block_root"`
		} `json:"sync_committee_message"`
	}

	if err := json.Unmarshal(req.Raw, &body); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", req.Type, err)
	}

	objectRoot := body.SyncCommitteeMessage.BeaconBlockRoot

	return finish(domainSyncCommittee, forkInfo.Fork.CurrentVersion, forkInfo.GenesisValidatorsRoot, objectRoot), nil
}

func computeSyncCommitteeSelectionProof(req *Request) (*Result, error) {
	forkInfo, err := requireForkInfo(req)
	if err != nil {
		return nil, err
	}

	var body struct {
		SyncAggregatorSelectionData syncAggregatorSelectionData `json:"sync_aggregator_selection_data"`
	}

	if err := json.Unmarshal(req.Raw, &body); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", req.Type, err)
	}

	selectionData, err := body.SyncAggregatorSelectionData.toAltair()
	if err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", req.Type, err)
	}

	objectRoot, err := selectionData.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s object root: %w", req.Type, err)
	}

	return finish(domainSyncCommitteeSelection, forkInfo.Fork.CurrentVersion, forkInfo.GenesisValidatorsRoot, objectRoot), nil
}

func computeContributionAndProof(req *Request) (*Result, error) {
	forkInfo, err := requireForkInfo(req)
	if err != nil {
		return nil, err
	}

	var body struct {
		ContributionAndProof ContributionAndProof `json:"contribution_and_proof"`
	}

	if err := json.Unmarshal(req.Raw, &body); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", req.Type, err)
	}

	// As with AGGREGATE_AND_PROOF, the ContributionAndProof container has a
	// variable-length sync subcommittee bitmask, but altair.ContributionAndProof
	// carries its own fastssz-generated HashTreeRoot, so this no longer needs
	// a caller-supplied root.
	objectRoot, err := body.ContributionAndProof.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s object root: %w", req.Type, err)
	}

	return finish(domainContributionAndProof, forkInfo.Fork.CurrentVersion, forkInfo.GenesisValidatorsRoot, objectRoot), nil
}

func computeValidatorRegistration(req *Request) (*Result, error) {
	var body struct {
		ValidatorRegistration ValidatorRegistration `json:"validator_registration"`
	}

	if err := json.Unmarshal(req.Raw, &body); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", req.Type, err)
	}

	objectRoot, err := body.ValidatorRegistration.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s object root: %w", req.Type, err)
	}

	var zeroVersion phase0.Version

	var zeroRoot phase0.Root

	return finish(domainApplicationBuilder, zeroVersion, zeroRoot, objectRoot), nil
}
