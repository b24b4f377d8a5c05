package signingroot

import (
	"encoding/json"
	"fmt"
	"strconv"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/altair"
	"github.com/attestantio/go-eth2-client/spec/phase0"
)

// Kind is the discriminant carried in a SigningRequest's "type" field.
type Kind string

const (
	KindBlock                             Kind = "BLOCK"
	KindBlockV2                           Kind = "BLOCK_V2"
	KindAttestation                       Kind = "ATTESTATION"
	KindRandaoReveal                      Kind = "RANDAO_REVEAL"
	KindAggregateAndProof                 Kind = "AGGREGATE_AND_PROOF"
	KindAggregationSlot                   Kind = "AGGREGATION_SLOT"
	KindDeposit                           Kind = "DEPOSIT"
	KindVoluntaryExit                     Kind = "VOLUNTARY_EXIT"
	KindSyncCommitteeMessage              Kind = "SYNC_COMMITTEE_MESSAGE"
	KindSyncCommitteeSelectionProof       Kind = "SYNC_COMMITTEE_SELECTION_PROOF"
	KindSyncCommitteeContributionAndProof Kind = "SYNC_COMMITTEE_CONTRIBUTION_AND_PROOF"
	KindValidatorRegistration            Kind = "VALIDATOR_REGISTRATION"
)

// Fork mirrors the consensus-spec Fork container carried in fork_info. It is
// the real attestantio/go-eth2-client type: same fields, same JSON wire
// format (hex versions, decimal epoch), no parallel struct to keep in sync.
type Fork = phase0.Fork

// BeaconBlockHeader is the SSZ container signed for both BLOCK and
// BLOCK_V2 — the versioned envelope in BLOCK_V2 only changes which fork
// version is used to compute the domain, never the signed container.
type BeaconBlockHeader = phase0.BeaconBlockHeader

// Checkpoint mirrors the consensus-spec Checkpoint container.
type Checkpoint = phase0.Checkpoint

// AttestationData mirrors the consensus-spec AttestationData container.
type AttestationData = phase0.AttestationData

// VoluntaryExit mirrors the consensus-spec VoluntaryExit container.
type VoluntaryExit = phase0.VoluntaryExit

// AggregateAndProof mirrors the consensus-spec AggregateAndProof container,
// including its nested Attestation (variable-length aggregation bitlist).
// HashTreeRoot is the real fastssz-generated implementation shipped by
// attestantio/go-eth2-client, so the signing root is computed independently
// of anything the caller supplies.
type AggregateAndProof = phase0.AggregateAndProof

// ContributionAndProof mirrors the altair ContributionAndProof container.
type ContributionAndProof = altair.ContributionAndProof

// ValidatorRegistration mirrors the builder-API ValidatorRegistrationV1
// container. The real type's MarshalJSON/UnmarshalJSON already speak the
// wire format this request body uses (hex fee recipient and pubkey, decimal
// gas limit and unix timestamp).
type ValidatorRegistration = apiv1.ValidatorRegistration

// ForkInfo accompanies every request kind except DEPOSIT and
// VALIDATOR_REGISTRATION, which use fixed domains.
type ForkInfo struct {
	Fork                  Fork        `json:"fork"`
	GenesisValidatorsRoot phase0.Root `json:"genesis_validators_root"`
}

// syncAggregatorSelectionData is the wire representation of altair's
// SyncAggregatorSelectionData: unlike the other containers above, the
// attestantio type carries no JSON tags (it documents itself as an internal
// helper), so this package still owns the decimal-string wire parsing —
// but not the hash_tree_root, which comes from the real type below.
type syncAggregatorSelectionData struct {
	Slot              string `json:"slot"`
	SubcommitteeIndex string `json:"subcommittee_index"`
}

func (s syncAggregatorSelectionData) toAltair() (altair.SyncAggregatorSelectionData, error) {
	var out altair.SyncAggregatorSelectionData

	if s.Slot == "" {
		return out, fmt.Errorf("sync_aggregator_selection_data missing slot")
	}

	slot, err := strconv.ParseUint(s.Slot, 10, 64)
	if err != nil {
		return out, fmt.Errorf("invalid value for slot: %w", err)
	}

	if s.SubcommitteeIndex == "" {
		return out, fmt.Errorf("sync_aggregator_selection_data missing subcommittee_index")
	}

	subcommitteeIndex, err := strconv.ParseUint(s.SubcommitteeIndex, 10, 64)
	if err != nil {
		return out, fmt.Errorf("invalid value for subcommittee_index: %w", err)
	}

	out.Slot = phase0.Slot(slot)
	out.SubcommitteeIndex = subcommitteeIndex

	return out, nil
}

// Request is the envelope every SigningRequest is first parsed into: the
// discriminant plus the raw remainder, which is then parsed again into the
// kind-specific payload.
type Request struct {
	Type        Kind            `json:"type"`
	ForkInfo    *ForkInfo       `json:"fork_info,omitempty"`
	SigningRoot *phase0.Root    `json:"signingRoot,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// ParseRequest unmarshals raw JSON into a Request envelope, preserving the
// raw bytes for the second, kind-specific pass.
func ParseRequest(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("malformed signing request: %w", err)
	}

	if req.Type == "" {
		return nil, fmt.Errorf("malformed signing request: missing type")
	}

	req.Raw = raw

	return &req, nil
}
