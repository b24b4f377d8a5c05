package signingroot

import "github.com/attestantio/go-eth2-client/spec/phase0"

// Domain type constants per the consensus spec, one per signing-request kind
// (§4.2 of the design).
var (
	domainBeaconProposer          = phase0.DomainType{0x00, 0x00, 0x00, 0x00}
	domainBeaconAttester          = phase0.DomainType{0x01, 0x00, 0x00, 0x00}
	domainRandao                  = phase0.DomainType{0x02, 0x00, 0x00, 0x00}
	domainDeposit                 = phase0.DomainType{0x03, 0x00, 0x00, 0x00}
	domainVoluntaryExit           = phase0.DomainType{0x04, 0x00, 0x00, 0x00}
	domainSelectionProof          = phase0.DomainType{0x06, 0x00, 0x00, 0x00}
	domainAggregateAndProof       = phase0.DomainType{0x07, 0x00, 0x00, 0x00}
	domainSyncCommittee           = phase0.DomainType{0x08, 0x00, 0x00, 0x00}
	domainSyncCommitteeSelection  = phase0.DomainType{0x09, 0x00, 0x00, 0x00}
	domainContributionAndProof    = phase0.DomainType{0x0A, 0x00, 0x00, 0x00}
	domainApplicationBuilder      = phase0.DomainType{0x00, 0x00, 0x00, 0x01}
)
