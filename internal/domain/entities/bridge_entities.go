package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BridgeStatus represents the overall status of a bridge transaction
type BridgeStatus string

const (
	BridgeStatusPending   BridgeStatus = "pending"   // Created, no step started
	BridgeStatusBridging  BridgeStatus = "bridging"  // Steps executing
	BridgeStatusCompleted BridgeStatus = "completed" // All four steps done
	BridgeStatusFailed    BridgeStatus = "failed"    // A step failed, retryable
	BridgeStatusCancelled BridgeStatus = "cancelled" // Dismissed by the user
)

// ValidBridgeTransitions defines allowed status transitions.
// failed is deliberately not terminal: retry moves it back to bridging.
var ValidBridgeTransitions = map[BridgeStatus][]BridgeStatus{
	BridgeStatusPending:   {BridgeStatusBridging, BridgeStatusFailed, BridgeStatusCancelled},
	BridgeStatusBridging:  {BridgeStatusBridging, BridgeStatusCompleted, BridgeStatusFailed, BridgeStatusCancelled},
	BridgeStatusFailed:    {BridgeStatusBridging, BridgeStatusCancelled},
	BridgeStatusCompleted: {},
	BridgeStatusCancelled: {},
}

// CanTransitionTo checks if transition to new status is allowed
func (s BridgeStatus) CanTransitionTo(newStatus BridgeStatus) bool {
	for _, allowed := range ValidBridgeTransitions[s] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further processing may occur
func (s BridgeStatus) IsTerminal() bool {
	return s == BridgeStatusCompleted || s == BridgeStatusCancelled
}

// IsCancellable returns true if the transaction can still be dismissed
func (s BridgeStatus) IsCancellable() bool {
	return s == BridgeStatusPending || s == BridgeStatusBridging || s == BridgeStatusFailed
}

// StepStatus represents the status of one bridge step
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
)

// StepName identifies one of the four fixed bridge stages
type StepName string

const (
	StepApprove     StepName = "approve"
	StepBurn        StepName = "burn"
	StepAttestation StepName = "attestation"
	StepMint        StepName = "mint"
)

// StepOrder is the fixed execution order of a CCTP transfer
var StepOrder = [4]StepName{StepApprove, StepBurn, StepAttestation, StepMint}

// TransferMethod selects between standard and fast (provider-fee) transfers
type TransferMethod string

const (
	TransferMethodStandard TransferMethod = "standard"
	TransferMethodFast     TransferMethod = "fast"
)

// BridgeStep is one stage of a bridge transaction
type BridgeStep struct {
	ID     string     `json:"id"`
	Name   StepName   `json:"name"`
	Status StepStatus `json:"status"`
	TxHash string     `json:"tx_hash,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// BridgeSteps is the ordered step list, persisted as a JSONB column so the
// whole record stays atomic under a single-row upsert.
type BridgeSteps []BridgeStep

// NewBridgeSteps returns the four steps in fixed order, all pending
func NewBridgeSteps() BridgeSteps {
	steps := make(BridgeSteps, 0, len(StepOrder))
	for _, name := range StepOrder {
		steps = append(steps, BridgeStep{
			ID:     string(name),
			Name:   name,
			Status: StepStatusPending,
		})
	}
	return steps
}

// Value implements driver.Valuer for JSONB storage
func (s BridgeSteps) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB storage
func (s *BridgeSteps) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for BridgeSteps: %T", src)
	}
}

// FirstIncomplete returns the index of the first step that is not completed,
// or -1 if all steps completed
func (s BridgeSteps) FirstIncomplete() int {
	for i, step := range s {
		if step.Status != StepStatusCompleted {
			return i
		}
	}
	return -1
}

// Validate checks the fixed 4-step shape and the left-to-right completion
// invariant: a step may only be in_progress or completed when every prior
// step is completed, and at most one step is in_progress.
func (s BridgeSteps) Validate() error {
	if len(s) != len(StepOrder) {
		return fmt.Errorf("expected %d steps, got %d", len(StepOrder), len(s))
	}
	inProgress := 0
	for i, step := range s {
		if step.Name != StepOrder[i] {
			return fmt.Errorf("step %d: expected %s, got %s", i, StepOrder[i], step.Name)
		}
		if step.Status == StepStatusInProgress {
			inProgress++
		}
		if step.Status == StepStatusInProgress || step.Status == StepStatusCompleted {
			for j := 0; j < i; j++ {
				if s[j].Status != StepStatusCompleted {
					return fmt.Errorf("step %s is %s but prior step %s is %s",
						step.Name, step.Status, s[j].Name, s[j].Status)
				}
			}
		}
	}
	if inProgress > 1 {
		return fmt.Errorf("%d steps in progress, at most one allowed", inProgress)
	}
	return nil
}

// DeriveStatus computes the transaction status from the step statuses.
// cancelled is an explicit caller decision and overrides the derivation.
func (s BridgeSteps) DeriveStatus() BridgeStatus {
	completed := 0
	for _, step := range s {
		switch step.Status {
		case StepStatusFailed:
			return BridgeStatusFailed
		case StepStatusCompleted:
			completed++
		}
	}
	switch {
	case completed == len(s):
		return BridgeStatusCompleted
	case completed > 0 || s.anyInProgress():
		return BridgeStatusBridging
	default:
		return BridgeStatusPending
	}
}

func (s BridgeSteps) anyInProgress() bool {
	for _, step := range s {
		if step.Status == StepStatusInProgress {
			return true
		}
	}
	return false
}

// BridgeTransaction represents one cross-chain USDC transfer via CCTP.
// The id is immutable for the lifetime of the logical transfer, including
// across retries.
type BridgeTransaction struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	FromChain       string           `json:"from_chain" db:"from_chain"`
	ToChain         string           `json:"to_chain" db:"to_chain"`
	Amount          decimal.Decimal  `json:"amount" db:"amount"`
	Status          BridgeStatus     `json:"status" db:"status"`
	Steps           BridgeSteps      `json:"steps" db:"steps"`
	SourceTxHash    string           `json:"source_tx_hash,omitempty" db:"source_tx_hash"`
	DestTxHash      string           `json:"dest_tx_hash,omitempty" db:"dest_tx_hash"`
	Message         string           `json:"message,omitempty" db:"message"`
	Attestation     string           `json:"attestation,omitempty" db:"attestation"`
	ErrorMessage    string           `json:"error_message,omitempty" db:"error_message"`
	NotificationID  *uuid.UUID       `json:"notification_id,omitempty" db:"notification_id"`
	UserAddress     string           `json:"user_address" db:"user_address"`
	SourceAddress   string           `json:"source_address" db:"source_address"`
	TransferMethod  TransferMethod   `json:"transfer_method" db:"transfer_method"`
	ProviderFeeUSDC *decimal.Decimal `json:"provider_fee_usdc,omitempty" db:"provider_fee_usdc"`
	EstimatedTimeMs *int64           `json:"estimated_time_ms,omitempty" db:"estimated_time_ms"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// Step returns the step with the given name, or nil
func (t *BridgeTransaction) Step(name StepName) *BridgeStep {
	for i := range t.Steps {
		if t.Steps[i].Name == name {
			return &t.Steps[i]
		}
	}
	return nil
}

// BridgeRequest represents a request to initiate a bridge transfer
type BridgeRequest struct {
	FromChain      string
	ToChain        string
	Amount         decimal.Decimal
	UserAddress    string
	SourceAddress  string
	TransferMethod TransferMethod
}
