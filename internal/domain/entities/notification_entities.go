package entities

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies a notification
type NotificationType string

const (
	NotificationTypeBridge  NotificationType = "bridge"
	NotificationTypeSystem  NotificationType = "system"
	NotificationTypeWarning NotificationType = "warning"
)

// NotificationStatus is the display status shown to the user
type NotificationStatus string

const (
	NotificationStatusPending    NotificationStatus = "pending"
	NotificationStatusInProgress NotificationStatus = "in_progress"
	NotificationStatusSuccess    NotificationStatus = "success"
	NotificationStatusFailed     NotificationStatus = "failed"
	NotificationStatusInfo       NotificationStatus = "info"
)

// Notification is the user-facing projection of a bridge transaction or a
// system event. BridgeTransactionID is a weak reference: either record may be
// deleted without cascading to the other.
type Notification struct {
	ID                  uuid.UUID          `json:"id" db:"id"`
	Timestamp           time.Time          `json:"timestamp" db:"created_at"`
	Read                bool               `json:"read" db:"read"`
	Type                NotificationType   `json:"type" db:"type"`
	Status              NotificationStatus `json:"status" db:"status"`
	Title               string             `json:"title" db:"title"`
	Message             string             `json:"message" db:"message"`
	BridgeTransactionID *uuid.UUID         `json:"bridge_transaction_id,omitempty" db:"bridge_transaction_id"`
	FromChain           string             `json:"from_chain,omitempty" db:"from_chain"`
	ToChain             string             `json:"to_chain,omitempty" db:"to_chain"`
	Amount              string             `json:"amount,omitempty" db:"amount"`
	Token               string             `json:"token,omitempty" db:"token"`
	ActionLabel         string             `json:"action_label,omitempty" db:"action_label"`
	ActionType          string             `json:"action_type,omitempty" db:"action_type"`
	AutoDismissAfterMs  *int64             `json:"auto_dismiss_after_ms,omitempty" db:"auto_dismiss_after_ms"`
}

// NotificationDraft carries the caller-supplied fields for a new notification
type NotificationDraft struct {
	Type                NotificationType
	Status              NotificationStatus
	Title               string
	Message             string
	BridgeTransactionID *uuid.UUID
	FromChain           string
	ToChain             string
	Amount              string
	Token               string
	ActionLabel         string
	ActionType          string
	AutoDismissAfterMs  *int64
}
