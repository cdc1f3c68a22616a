package cctp

import "context"

// MessagesResponse is the response of GET /v2/messages/{sourceDomain}
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// Message is a single CCTP message with its attestation state
type Message struct {
	Message           string `json:"message"`
	Attestation       string `json:"attestation"`
	Status            string `json:"status"`
	EventNonce        string `json:"eventNonce"`
	CctpVersion       string `json:"cctpVersion"`
	SourceDomain      uint32 `json:"sourceDomain"`
	DestinationDomain uint32 `json:"destinationDomain"`
	Sender            string `json:"sender"`
	Recipient         string `json:"recipient"`
	Amount            string `json:"amount"`
	ExpirationBlock   string `json:"expirationBlock"`
}

// Usable reports whether the message can be consumed by the mint step:
// only a complete message with a non-empty attestation qualifies.
func (m *Message) Usable() bool {
	return m.Status == AttestationStatusComplete && m.Attestation != ""
}

// FeesResponse holds the current fees for a transfer between domains
type FeesResponse struct {
	SourceDomain      uint32 `json:"sourceDomain"`
	DestinationDomain uint32 `json:"destinationDomain"`
	FastTransferFee   Fee    `json:"fastTransferFee"`
	StandardFee       Fee    `json:"standardFee"`
}

// Fee represents fee details in basis points
type Fee struct {
	MinimumFee uint64 `json:"minimumFee"`
}

// FetchRequest describes one attestation poll loop invocation
type FetchRequest struct {
	SourceDomain uint32
	BurnTxHash   string

	// OnProgress is invoked with the 1-based attempt number on every poll.
	// UI feedback only, no behavioral effect.
	OnProgress func(attempt int)

	// KeepPolling is consulted before every wait between attempts. Returning
	// false stops the loop with ErrPollingStopped. Nil means poll forever.
	KeepPolling func(ctx context.Context) bool
}
