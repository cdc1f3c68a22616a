package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relayport/relay_service/internal/domain/entities"
	domainerrors "github.com/relayport/relay_service/internal/domain/errors"
	"github.com/relayport/relay_service/internal/infrastructure/cache"
	"github.com/relayport/relay_service/internal/infrastructure/repositories"
	"github.com/relayport/relay_service/pkg/metrics"
)

// NotificationRepository defines the persistence operations the synchronizer
// needs
type NotificationRepository interface {
	Save(ctx context.Context, n *entities.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Notification, error)
	GetByTransactionID(ctx context.Context, txID uuid.UUID) (*entities.Notification, error)
	Update(ctx context.Context, id uuid.UUID, patch repositories.NotificationPatch) error
	MarkAllRead(ctx context.Context) error
	Remove(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit int) ([]*entities.Notification, error)
}

// TransactionLinker back-fills the notification reference on a transaction
type TransactionLinker interface {
	SetNotificationID(ctx context.Context, id, notificationID uuid.UUID) error
}

// Config holds synchronizer configuration
type Config struct {
	// MirrorCapacity caps the in-memory list; the durable store keeps more
	MirrorCapacity int
	// EventChannel is the pub/sub channel for UI change events; empty
	// disables publishing
	EventChannel string
}

// Event is published on every notification mutation for live UI updates
type Event struct {
	Kind         string                 `json:"kind"` // created, updated, removed
	Notification *entities.Notification `json:"notification,omitempty"`
	ID           uuid.UUID              `json:"id"`
}

// Synchronizer projects bridge transaction lifecycle events into
// notification records and keeps an in-memory mirror of the persisted set.
// The durable store is the source of truth; the mirror is a cache kept
// coherent by routing every mutation through the same write path.
type Synchronizer struct {
	repo   NotificationRepository
	linker TransactionLinker
	events cache.RedisClient
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	items  []*entities.Notification // newest first
	timers map[uuid.UUID]*time.Timer
}

// NewSynchronizer creates a new notification synchronizer. events may be nil
// when pub/sub is not configured.
func NewSynchronizer(repo NotificationRepository, linker TransactionLinker, events cache.RedisClient, config Config, logger *zap.Logger) *Synchronizer {
	if config.MirrorCapacity <= 0 {
		config.MirrorCapacity = 50
	}
	return &Synchronizer{
		repo:   repo,
		linker: linker,
		events: events,
		config: config,
		logger: logger,
		timers: make(map[uuid.UUID]*time.Timer),
	}
}

// Load populates the mirror from the durable store
func (s *Synchronizer) Load(ctx context.Context) error {
	items, err := s.repo.List(ctx, s.config.MirrorCapacity)
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	for _, n := range items {
		if n.AutoDismissAfterMs != nil {
			s.scheduleAutoDismiss(n.ID, time.Duration(*n.AutoDismissAfterMs)*time.Millisecond)
		}
	}
	return nil
}

// Add creates a new notification record and returns its id
func (s *Synchronizer) Add(ctx context.Context, draft entities.NotificationDraft) (uuid.UUID, error) {
	n := &entities.Notification{
		ID:                  uuid.New(),
		Timestamp:           time.Now().UTC(),
		Read:                false,
		Type:                draft.Type,
		Status:              draft.Status,
		Title:               draft.Title,
		Message:             draft.Message,
		BridgeTransactionID: draft.BridgeTransactionID,
		FromChain:           draft.FromChain,
		ToChain:             draft.ToChain,
		Amount:              draft.Amount,
		Token:               draft.Token,
		ActionLabel:         draft.ActionLabel,
		ActionType:          draft.ActionType,
		AutoDismissAfterMs:  draft.AutoDismissAfterMs,
	}

	if err := s.repo.Save(ctx, n); err != nil {
		return uuid.Nil, err
	}
	metrics.NotificationsTotal.WithLabelValues(string(n.Type)).Inc()

	s.mu.Lock()
	s.items = append([]*entities.Notification{n}, s.items...)
	if len(s.items) > s.config.MirrorCapacity {
		s.items = s.items[:s.config.MirrorCapacity]
	}
	s.mu.Unlock()

	if draft.AutoDismissAfterMs != nil {
		s.scheduleAutoDismiss(n.ID, time.Duration(*draft.AutoDismissAfterMs)*time.Millisecond)
	}

	s.publish(ctx, Event{Kind: "created", ID: n.ID, Notification: n})
	return n.ID, nil
}

// Update merges fields into an existing notification in place
func (s *Synchronizer) Update(ctx context.Context, id uuid.UUID, patch repositories.NotificationPatch) error {
	if err := s.repo.Update(ctx, id, patch); err != nil {
		return err
	}

	s.mu.Lock()
	var updated *entities.Notification
	for _, n := range s.items {
		if n.ID == id {
			applyPatch(n, patch)
			updated = n
			break
		}
	}
	s.mu.Unlock()

	s.publish(ctx, Event{Kind: "updated", ID: id, Notification: updated})
	return nil
}

// MarkAsRead marks a single notification as read
func (s *Synchronizer) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	read := true
	return s.Update(ctx, id, repositories.NotificationPatch{Read: &read})
}

// MarkAllAsRead marks every notification as read. Opening the notification
// panel invokes this as a side effect.
func (s *Synchronizer) MarkAllAsRead(ctx context.Context) error {
	if err := s.repo.MarkAllRead(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	for _, n := range s.items {
		n.Read = true
	}
	s.mu.Unlock()

	s.publish(ctx, Event{Kind: "updated", ID: uuid.Nil})
	return nil
}

// Remove dismisses a notification explicitly
func (s *Synchronizer) Remove(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Remove(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	for i, n := range s.items {
		if n.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.publish(ctx, Event{Kind: "removed", ID: id})
	return nil
}

// List returns a snapshot of the in-memory mirror, newest first
func (s *Synchronizer) List() []*entities.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]*entities.Notification, len(s.items))
	for i, n := range s.items {
		copied := *n
		snapshot[i] = &copied
	}
	return snapshot
}

// SyncTransaction keeps the linked notification in lock-step with the
// transaction's status. The existing projection is updated in place; a new
// notification is created only when none is linked yet, and its id is then
// back-filled onto the transaction.
func (s *Synchronizer) SyncTransaction(ctx context.Context, tx *entities.BridgeTransaction) error {
	status, title, message, actionLabel, actionType := projectTransaction(tx)

	existing := s.findLinked(ctx, tx)
	if existing != nil {
		return s.Update(ctx, existing.ID, repositories.NotificationPatch{
			Status:      &status,
			Title:       &title,
			Message:     &message,
			ActionLabel: &actionLabel,
			ActionType:  &actionType,
		})
	}

	id, err := s.Add(ctx, entities.NotificationDraft{
		Type:                entities.NotificationTypeBridge,
		Status:              status,
		Title:               title,
		Message:             message,
		BridgeTransactionID: &tx.ID,
		FromChain:           tx.FromChain,
		ToChain:             tx.ToChain,
		Amount:              tx.Amount.String(),
		Token:               "USDC",
		ActionLabel:         actionLabel,
		ActionType:          actionType,
	})
	if err != nil {
		return err
	}

	tx.NotificationID = &id
	if err := s.linker.SetNotificationID(ctx, tx.ID, id); err != nil {
		s.logger.Warn("Failed to back-fill notification reference",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
	}
	return nil
}

// Stop cancels pending auto-dismiss timers
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// findLinked resolves the weak reference defensively: a missing target is
// "not found", never an error.
func (s *Synchronizer) findLinked(ctx context.Context, tx *entities.BridgeTransaction) *entities.Notification {
	if tx.NotificationID != nil {
		n, err := s.repo.GetByID(ctx, *tx.NotificationID)
		if err == nil {
			return n
		}
		if !errors.Is(err, domainerrors.ErrNotFound) {
			s.logger.Warn("Notification lookup failed",
				zap.String("notification_id", tx.NotificationID.String()),
				zap.Error(err))
		}
	}

	n, err := s.repo.GetByTransactionID(ctx, tx.ID)
	if err == nil {
		return n
	}
	if !errors.Is(err, domainerrors.ErrNotFound) {
		s.logger.Warn("Notification lookup by transaction failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
	}
	return nil
}

func (s *Synchronizer) scheduleAutoDismiss(id uuid.UUID, after time.Duration) {
	if after <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(after, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Remove(ctx, id); err != nil {
			s.logger.Warn("Auto-dismiss failed", zap.String("notification_id", id.String()), zap.Error(err))
		}
	})
}

func (s *Synchronizer) publish(ctx context.Context, event Event) {
	if s.events == nil || s.config.EventChannel == "" {
		return
	}
	if err := s.events.Publish(ctx, s.config.EventChannel, event); err != nil {
		s.logger.Debug("Notification event publish failed", zap.Error(err))
	}
}

func applyPatch(n *entities.Notification, patch repositories.NotificationPatch) {
	if patch.Read != nil {
		n.Read = *patch.Read
	}
	if patch.Status != nil {
		n.Status = *patch.Status
	}
	if patch.Title != nil {
		n.Title = *patch.Title
	}
	if patch.Message != nil {
		n.Message = *patch.Message
	}
	if patch.ActionLabel != nil {
		n.ActionLabel = *patch.ActionLabel
	}
	if patch.ActionType != nil {
		n.ActionType = *patch.ActionType
	}
}

// projectTransaction maps a transaction's status to the user-facing
// notification fields
func projectTransaction(tx *entities.BridgeTransaction) (entities.NotificationStatus, string, string, string, string) {
	route := fmt.Sprintf("%s USDC from %s to %s", tx.Amount.String(), tx.FromChain, tx.ToChain)

	switch tx.Status {
	case entities.BridgeStatusCompleted:
		return entities.NotificationStatusSuccess,
			"Bridge transfer complete",
			fmt.Sprintf("Transferred %s", route),
			"View transaction", "view_transaction"
	case entities.BridgeStatusFailed:
		msg := tx.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("Transfer of %s failed", route)
		}
		return entities.NotificationStatusFailed,
			"Bridge transfer failed",
			msg,
			"Retry", "retry_transaction"
	case entities.BridgeStatusCancelled:
		return entities.NotificationStatusInfo,
			"Bridge transfer cancelled",
			fmt.Sprintf("Cancelled transfer of %s", route),
			"", ""
	case entities.BridgeStatusBridging:
		return entities.NotificationStatusInProgress,
			"Bridging in progress",
			fmt.Sprintf("Transferring %s", route),
			"", ""
	default:
		return entities.NotificationStatusPending,
			"Bridge transfer initiated",
			fmt.Sprintf("Preparing transfer of %s", route),
			"", ""
	}
}
