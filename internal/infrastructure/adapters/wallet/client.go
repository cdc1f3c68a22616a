package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/relayport/relay_service/internal/domain/entities"
	"github.com/relayport/relay_service/internal/infrastructure/adapters/cctp"
)

// Operation describes one unsigned on-chain action handed to the signer
type Operation struct {
	Kind     entities.StepName
	Transfer *entities.BridgeTransaction
	// Attestation carries the attested message for the mint operation
	Attestation *cctp.Message
}

// Config holds wallet signer settings
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the external signer service that executes on-chain
// operations on the user's behalf. A rejected signature or reverted
// transaction comes back as an error.
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	cbSettings := gobreaker.Settings{
		Name:        "wallet-signer",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("wallet circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		logger:         logger,
	}
}

type signRequest struct {
	TransactionID string `json:"transaction_id"`
	Operation     string `json:"operation"`
	Chain         string `json:"chain"`
	Amount        string `json:"amount"`
	UserAddress   string `json:"user_address"`
	SourceAddress string `json:"source_address,omitempty"`
	Recipient     string `json:"recipient,omitempty"`
	Message       string `json:"message,omitempty"`
	Attestation   string `json:"attestation,omitempty"`
}

type signResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error,omitempty"`
}

// SignAndBroadcast submits one operation to the signer and returns the
// resulting transaction hash once it is broadcast.
func (c *Client) SignAndBroadcast(ctx context.Context, chain string, op Operation) (string, error) {
	req := signRequest{
		TransactionID: op.Transfer.ID.String(),
		Operation:     string(op.Kind),
		Chain:         chain,
		Amount:        op.Transfer.Amount.String(),
		UserAddress:   op.Transfer.UserAddress,
		SourceAddress: op.Transfer.SourceAddress,
	}
	if op.Kind == entities.StepMint && op.Attestation != nil {
		req.Message = op.Attestation.Message
		req.Attestation = op.Attestation.Attestation
	}

	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.post(ctx, "/v1/sign", req)
	})
	if err != nil {
		return "", fmt.Errorf("wallet %s on %s: %w", op.Kind, chain, err)
	}

	resp := result.(*signResponse)
	if resp.TxHash == "" {
		return "", fmt.Errorf("wallet %s on %s: signer returned no transaction hash", op.Kind, chain)
	}
	c.logger.Debug("wallet operation broadcast",
		zap.String("operation", string(op.Kind)),
		zap.String("chain", chain),
		zap.String("tx_hash", resp.TxHash))
	return resp.TxHash, nil
}

func (c *Client) post(ctx context.Context, path string, body signRequest) (*signResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var resp signResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding response (status %d): %w", httpResp.StatusCode, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		if resp.Error != "" {
			return nil, fmt.Errorf("signer rejected operation: %s", resp.Error)
		}
		return nil, fmt.Errorf("signer returned status %d", httpResp.StatusCode)
	}
	return &resp, nil
}
