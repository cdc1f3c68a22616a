package cctp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/relayport/relay_service/pkg/metrics"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 5 * time.Second
)

// Config represents attestation client configuration
type Config struct {
	BaseURL     string
	Environment string // "mainnet" or "testnet"
	Timeout     time.Duration

	// PollInterval is the fixed delay between attestation polls. The delay
	// never grows: attestation latency is externally variable and backoff
	// would only add false waiting.
	PollInterval time.Duration

	// MaxPollDuration bounds one FetchAttestation call. Zero means unbounded,
	// which is the default; the loop is then exited only by success, expiry,
	// context cancellation, or KeepPolling.
	MaxPollDuration time.Duration
}

// Client talks to the Circle Iris attestation API
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	logger         *zap.Logger
}

// NewClient creates a new attestation client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.BaseURL == "" {
		if config.Environment == "mainnet" {
			config.BaseURL = IrisMainnetURL
		} else {
			config.BaseURL = IrisTestnetURL
		}
	}

	cbSettings := gobreaker.Settings{
		Name:        "AttestationAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Attestation circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rateLimiter:    rate.NewLimiter(rate.Limit(MaxRequestsPerSecond), 1),
		logger:         logger,
	}
}

// FetchAttestation polls the attestation service for the burn transaction
// until it yields a usable message. Transport errors, empty responses and
// pending entries are all treated the same: wait one interval and try again,
// with no attempt ceiling. An expired message returns immediately so the
// caller can request re-attestation; expiry is not self-healing inside the
// loop.
func (c *Client) FetchAttestation(ctx context.Context, req FetchRequest) (*Message, error) {
	endpoint := fmt.Sprintf("/v2/messages/%d?transactionHash=%s", req.SourceDomain, req.BurnTxHash)

	var deadline time.Time
	if c.config.MaxPollDuration > 0 {
		deadline = time.Now().Add(c.config.MaxPollDuration)
	}

	for attempt := 1; ; attempt++ {
		if req.OnProgress != nil {
			req.OnProgress(attempt)
		}
		metrics.AttestationPollsTotal.Inc()

		msg, err := c.lookupMessage(ctx, endpoint)
		switch {
		case err != nil:
			// Transport and service errors are recovered locally
			c.logger.Debug("Attestation poll attempt failed",
				zap.Int("attempt", attempt),
				zap.String("burn_tx", req.BurnTxHash),
				zap.Error(err))
		case msg.Usable():
			c.logger.Info("Attestation complete",
				zap.Int("attempts", attempt),
				zap.String("burn_tx", req.BurnTxHash))
			return msg, nil
		case msg.Status == AttestationStatusExpired:
			c.logger.Warn("Attestation expired",
				zap.String("burn_tx", req.BurnTxHash),
				zap.String("nonce", msg.EventNonce))
			return msg, nil
		default:
			// pending, or complete without a payload yet
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, ErrPollDeadlineExceeded
		}
		if req.KeepPolling != nil && !req.KeepPolling(ctx) {
			return nil, ErrPollingStopped
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.config.PollInterval):
		}
	}
}

// RequestReAttestation issues a one-shot request to re-sign an expired
// message. It reports success or failure and deliberately does not resume
// polling itself.
func (c *Client) RequestReAttestation(ctx context.Context, nonce string) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		url := fmt.Sprintf("%s/v2/reattest/%s", c.config.BaseURL, nonce)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("%w: status %d, body: %s", ErrReattestationFailed, resp.StatusCode, string(body))
		}
		return nil, nil
	})
	if err != nil {
		metrics.ReattestationsTotal.WithLabelValues("failure").Inc()
		return err
	}

	metrics.ReattestationsTotal.WithLabelValues("success").Inc()
	c.logger.Info("Re-attestation requested", zap.String("nonce", nonce))
	return nil
}

// GetFees retrieves current fees for a transfer between domains
func (c *Client) GetFees(ctx context.Context, sourceDomain, destDomain uint32) (*FeesResponse, error) {
	endpoint := fmt.Sprintf("/v2/burn/USDC/fees?sourceDomain=%d&destinationDomain=%d", sourceDomain, destDomain)
	var resp FeesResponse
	if err := c.doRequest(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("get fees failed: %w", err)
	}
	return &resp, nil
}

// lookupMessage performs a single attestation lookup. The poll loop owns all
// retrying, so there is no internal retry here.
func (c *Client) lookupMessage(ctx context.Context, endpoint string) (*Message, error) {
	var resp MessagesResponse
	if err := c.doRequest(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, ErrNoMessages
	}
	return &resp.Messages[0], nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, response interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequestInternal(ctx, endpoint, response)
	})
	return err
}

func (c *Client) doRequestInternal(ctx context.Context, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			errResp.StatusCode = resp.StatusCode
			return &errResp
		}
		return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	if response != nil && len(body) > 0 {
		if err := json.Unmarshal(body, response); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
