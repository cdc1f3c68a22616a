package cctp

import "context"

// AttestationClient defines the Iris API operations used by the orchestrator
type AttestationClient interface {
	// FetchAttestation polls until the burn message is attested. See Client.
	FetchAttestation(ctx context.Context, req FetchRequest) (*Message, error)

	// RequestReAttestation asks the service to re-sign an expired message.
	// One-shot: it does not resume polling.
	RequestReAttestation(ctx context.Context, nonce string) error

	// GetFees retrieves current transfer fees between two domains
	GetFees(ctx context.Context, sourceDomain, destDomain uint32) (*FeesResponse, error)
}

// Ensure Client implements AttestationClient
var _ AttestationClient = (*Client)(nil)
