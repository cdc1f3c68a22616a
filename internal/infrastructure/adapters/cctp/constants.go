package cctp

const (
	// API hosts
	IrisMainnetURL = "https://iris-api.circle.com"
	IrisTestnetURL = "https://iris-api-sandbox.circle.com"

	// CCTP domain IDs for the chains we bridge between
	DomainEthereum  uint32 = 0
	DomainAvalanche uint32 = 1
	DomainOptimism  uint32 = 2
	DomainArbitrum  uint32 = 3
	DomainSolana    uint32 = 5
	DomainBase      uint32 = 6
	DomainPolygon   uint32 = 7

	// Rate limiting
	MaxRequestsPerSecond = 35

	// Attestation statuses
	AttestationStatusPending  = "pending"
	AttestationStatusComplete = "complete"
	AttestationStatusExpired  = "expired"
)

// DomainNames maps domain IDs to human-readable names
var DomainNames = map[uint32]string{
	DomainEthereum:  "Ethereum",
	DomainAvalanche: "Avalanche",
	DomainOptimism:  "Optimism",
	DomainArbitrum:  "Arbitrum",
	DomainSolana:    "Solana",
	DomainBase:      "Base",
	DomainPolygon:   "Polygon",
}

// ChainDomains maps chain identifiers used by the API surface to CCTP domains
var ChainDomains = map[string]uint32{
	"ethereum":  DomainEthereum,
	"avalanche": DomainAvalanche,
	"optimism":  DomainOptimism,
	"arbitrum":  DomainArbitrum,
	"solana":    DomainSolana,
	"base":      DomainBase,
	"polygon":   DomainPolygon,
}
