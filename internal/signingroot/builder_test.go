package signingroot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allFortyTwos() phase0.Root {
	var r phase0.Root
	for i := range r {
		r[i] = 42
	}

	return r
}

func marshalRequest(t *testing.T, payload any) *Request {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := ParseRequest(raw)
	require.NoError(t, err)

	return req
}

func TestComputeBlockV2SelectsPreviousVersionBeforeForkEpoch(t *testing.T) {
	genesisRoot := allFortyTwos()

	payload := struct {
		Type     string            `json:"type"`
		ForkInfo ForkInfo          `json:"fork_info"`
		Block    BeaconBlockHeader `json:"block"`
	}{
		Type: string(KindBlockV2),
		ForkInfo: ForkInfo{
			Fork: Fork{
				PreviousVersion: phase0.Version{0x00, 0x00, 0x00, 0x00},
				CurrentVersion:  phase0.Version{0x01, 0x00, 0x00, 0x00},
				Epoch:           10,
			},
			GenesisValidatorsRoot: genesisRoot,
		},
		Block: BeaconBlockHeader{
			Slot:          32 * 5, // epoch 5, before the fork at epoch 10
			ProposerIndex: 7,
		},
	}

	req := marshalRequest(t, payload)

	result, err := Compute(req)
	require.NoError(t, err)

	expectedDomain := [4]byte{0x00, 0x00, 0x00, 0x00}
	assert.Equal(t, expectedDomain[:], result.Domain[:4])
}

func TestComputeBlockV2SelectsCurrentVersionAtForkEpoch(t *testing.T) {
	genesisRoot := allFortyTwos()

	payload := struct {
		Type     string            `json:"type"`
		ForkInfo ForkInfo          `json:"fork_info"`
		Block    BeaconBlockHeader `json:"block"`
	}{
		Type: string(KindBlockV2),
		ForkInfo: ForkInfo{
			Fork: Fork{
				PreviousVersion: phase0.Version{0x00, 0x00, 0x00, 0x00},
				CurrentVersion:  phase0.Version{0x01, 0x00, 0x00, 0x00},
				Epoch:           10,
			},
			GenesisValidatorsRoot: genesisRoot,
		},
		Block: BeaconBlockHeader{
			Slot:          32 * 10, // exactly the fork epoch
			ProposerIndex: 7,
		},
	}

	req := marshalRequest(t, payload)

	previousEpochReq := marshalRequest(t, struct {
		Type     string            `json:"type"`
		ForkInfo ForkInfo          `json:"fork_info"`
		Block    BeaconBlockHeader `json:"block"`
	}{
		Type:     string(KindBlockV2),
		ForkInfo: payload.ForkInfo,
		Block: BeaconBlockHeader{
			Slot:          32 * 5,
			ProposerIndex: 7,
		},
	})

	atFork, err := Compute(req)
	require.NoError(t, err)

	beforeFork, err := Compute(previousEpochReq)
	require.NoError(t, err)

	assert.NotEqual(t, atFork.Domain, beforeFork.Domain)
	assert.Equal(t, domainBeaconProposer[:], atFork.Domain[:4])
	assert.Equal(t, domainBeaconProposer[:], beforeFork.Domain[:4])
}

func TestComputeAttestationIsDeterministic(t *testing.T) {
	genesisRoot := allFortyTwos()

	payload := struct {
		Type        string          `json:"type"`
		ForkInfo    ForkInfo        `json:"fork_info"`
		Attestation AttestationData `json:"attestation"`
	}{
		Type: string(KindAttestation),
		ForkInfo: ForkInfo{
			Fork: Fork{
				PreviousVersion: phase0.Version{0x00, 0x00, 0x00, 0x00},
				CurrentVersion:  phase0.Version{0x00, 0x00, 0x00, 0x00},
				Epoch:           0,
			},
			GenesisValidatorsRoot: genesisRoot,
		},
		Attestation: AttestationData{
			Slot:   100,
			Index:  3,
			Source: &Checkpoint{Epoch: 1},
			Target: &Checkpoint{Epoch: 2},
		},
	}

	req1 := marshalRequest(t, payload)
	req2 := marshalRequest(t, payload)

	r1, err := Compute(req1)
	require.NoError(t, err)

	r2, err := Compute(req2)
	require.NoError(t, err)

	assert.Equal(t, r1.SigningRoot, r2.SigningRoot)
}

func TestComputeAttestationSourceTargetAffectsRoot(t *testing.T) {
	genesisRoot := allFortyTwos()
	fork := ForkInfo{
		Fork:                  Fork{Epoch: 0},
		GenesisValidatorsRoot: genesisRoot,
	}

	base := AttestationData{Slot: 100, Index: 3, Source: &Checkpoint{Epoch: 1}, Target: &Checkpoint{Epoch: 2}}
	surrounding := AttestationData{Slot: 100, Index: 3, Source: &Checkpoint{Epoch: 0}, Target: &Checkpoint{Epoch: 3}}

	reqBase := marshalRequest(t, struct {
		Type        string          `json:"type"`
		ForkInfo    ForkInfo        `json:"fork_info"`
		Attestation AttestationData `json:"attestation"`
	}{Type: string(KindAttestation), ForkInfo: fork, Attestation: base})

	reqOther := marshalRequest(t, struct {
		Type        string          `json:"type"`
		ForkInfo    ForkInfo        `json:"fork_info"`
		Attestation AttestationData `json:"attestation"`
	}{Type: string(KindAttestation), ForkInfo: fork, Attestation: surrounding})

	r1, err := Compute(reqBase)
	require.NoError(t, err)

	r2, err := Compute(reqOther)
	require.NoError(t, err)

	assert.NotEqual(t, r1.SigningRoot, r2.SigningRoot)
}

func TestComputeRandaoRevealUsesFixedDomainType(t *testing.T) {
	genesisRoot := allFortyTwos()

	payload := struct {
		Type         string   `json:"type"`
		ForkInfo     ForkInfo `json:"fork_info"`
		RandaoReveal struct {
			Epoch phase0.Epoch `json:"epoch,string"`
		} `json:"randao_reveal"`
	}{
		Type: string(KindRandaoReveal),
		ForkInfo: ForkInfo{
			Fork:                  Fork{},
			GenesisValidatorsRoot: genesisRoot,
		},
	}
	payload.RandaoReveal.Epoch = 0

	req := marshalRequest(t, payload)

	result, err := Compute(req)
	require.NoError(t, err)
	assert.Equal(t, domainRandao[:], result.Domain[:4])
	assert.NotEqual(t, phase0.Root{}, result.SigningRoot)
}

func TestComputeDepositIgnoresRequestForkInfo(t *testing.T) {
	var pubkey phase0.BLSPubKey
	for i := range pubkey {
		pubkey[i] = byte(i)
	}

	type depositPayload struct {
		Type     string   `json:"type"`
		ForkInfo ForkInfo `json:"fork_info"`
		Deposit  struct {
			Pubkey                phase0.BLSPubKey `json:"pubkey"`
			WithdrawalCredentials phase0.Root      `json:"withdrawal_credentials"`
			Amount                uint64           `json:"amount,string"`
		} `json:"deposit"`
	}

	base := depositPayload{
		Type: string(KindDeposit),
		ForkInfo: ForkInfo{
			Fork:                  Fork{CurrentVersion: phase0.Version{0x01, 0x00, 0x00, 0x00}},
			GenesisValidatorsRoot: allFortyTwos(),
		},
	}
	base.Deposit.Pubkey = pubkey
	base.Deposit.Amount = 32000000000

	withDifferentFork := base
	withDifferentFork.ForkInfo.Fork.CurrentVersion = phase0.Version{0x02, 0x00, 0x00, 0x00}
	withDifferentFork.ForkInfo.GenesisValidatorsRoot = phase0.Root{}

	r1, err := Compute(marshalRequest(t, base))
	require.NoError(t, err)

	r2, err := Compute(marshalRequest(t, withDifferentFork))
	require.NoError(t, err)

	assert.Equal(t, r1.Domain, r2.Domain)
	assert.Equal(t, r1.SigningRoot, r2.SigningRoot)
	assert.Equal(t, domainDeposit[:], r1.Domain[:4])
}

func TestComputeVoluntaryExitRoundTrip(t *testing.T) {
	genesisRoot := allFortyTwos()

	payload := struct {
		Type          string        `json:"type"`
		ForkInfo      ForkInfo      `json:"fork_info"`
		VoluntaryExit VoluntaryExit `json:"voluntary_exit"`
	}{
		Type: string(KindVoluntaryExit),
		ForkInfo: ForkInfo{
			Fork:                  Fork{CurrentVersion: phase0.Version{0x01, 0x00, 0x00, 0x00}},
			GenesisValidatorsRoot: genesisRoot,
		},
		VoluntaryExit: VoluntaryExit{Epoch: 50, ValidatorIndex: 12},
	}

	req := marshalRequest(t, payload)

	result, err := Compute(req)
	require.NoError(t, err)
	assert.Equal(t, domainVoluntaryExit[:], result.Domain[:4])
}

func TestComputeAggregateAndProofComputesOwnRoot(t *testing.T) {
	genesisRoot := allFortyTwos()

	var selectionProof phase0.BLSSignature
	for i := range selectionProof {
		selectionProof[i] = byte(i)
	}

	var beaconBlockRoot phase0.Root
	for i := range beaconBlockRoot {
		beaconBlockRoot[i] = byte(i + 1)
	}

	var attestationSignature phase0.BLSSignature
	for i := range attestationSignature {
		attestationSignature[i] = byte(i + 2)
	}

	aggregate := &phase0.Attestation{
		AggregationBits: []byte{0x01, 0x02},
		Data: &phase0.AttestationData{
			Slot:            10,
			Index:           0,
			BeaconBlockRoot: beaconBlockRoot,
			Source:          &Checkpoint{Epoch: 1},
			Target:          &Checkpoint{Epoch: 2},
		},
		Signature: attestationSignature,
	}

	payload := struct {
		Type              string            `json:"type"`
		ForkInfo          ForkInfo          `json:"fork_info"`
		AggregateAndProof AggregateAndProof `json:"aggregate_and_proof"`
	}{
		Type: string(KindAggregateAndProof),
		ForkInfo: ForkInfo{
			Fork:                  Fork{CurrentVersion: phase0.Version{0x01, 0x00, 0x00, 0x00}},
			GenesisValidatorsRoot: genesisRoot,
		},
		AggregateAndProof: AggregateAndProof{
			AggregatorIndex: 4,
			Aggregate:       aggregate,
			SelectionProof:  selectionProof,
		},
	}

	req1 := marshalRequest(t, payload)
	req2 := marshalRequest(t, payload)

	r1, err := Compute(req1)
	require.NoError(t, err)

	r2, err := Compute(req2)
	require.NoError(t, err)

	assert.Equal(t, r1.SigningRoot, r2.SigningRoot)
	assert.Equal(t, domainAggregateAndProof[:], r1.Domain[:4])

	payload.AggregateAndProof.AggregatorIndex = 5
	req3 := marshalRequest(t, payload)

	r3, err := Compute(req3)
	require.NoError(t, err)
	assert.NotEqual(t, r1.SigningRoot, r3.SigningRoot)
}

func TestComputeValidatorRegistrationUsesZeroGenesisRoot(t *testing.T) {
	var pubkey phase0.BLSPubKey

	payload := struct {
		Type                  string                `json:"type"`
		ValidatorRegistration ValidatorRegistration `json:"validator_registration"`
	}{
		Type: string(KindValidatorRegistration),
		ValidatorRegistration: ValidatorRegistration{
			GasLimit:  30000000,
			Timestamp: time.Unix(1700000000, 0),
			Pubkey:    pubkey,
		},
	}

	req := marshalRequest(t, payload)

	result, err := Compute(req)
	require.NoError(t, err)
	assert.Equal(t, domainApplicationBuilder[:], result.Domain[:4])
}

func TestComputeUnknownKindRejected(t *testing.T) {
	req := &Request{Type: "NOT_A_REAL_KIND", Raw: []byte(`{"type":"NOT_A_REAL_KIND"}`)}

	_, err := Compute(req)
	assert.Error(t, err)
}

func TestParseRequestRejectsMissingType(t *testing.T) {
	_, err := ParseRequest([]byte(`{"fork_info": null}`))
	assert.Error(t, err)
}
