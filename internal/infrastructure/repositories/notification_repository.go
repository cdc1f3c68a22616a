package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/relayport/relay_service/internal/domain/entities"
	domainerrors "github.com/relayport/relay_service/internal/domain/errors"
)

const notificationColumns = `id, created_at, read, type, status, title, message,
	bridge_transaction_id, from_chain, to_chain, amount, token,
	action_label, action_type, auto_dismiss_after_ms`

// NotificationPatch carries a partial update; nil fields are left untouched
type NotificationPatch struct {
	Read        *bool
	Status      *entities.NotificationStatus
	Title       *string
	Message     *string
	ActionLabel *string
	ActionType  *string
}

// NotificationRepository persists notifications in Postgres
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Save upserts a notification by primary key
func (r *NotificationRepository) Save(ctx context.Context, n *entities.Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	q, args, err := sq.Insert("notifications").
		Columns("id", "created_at", "read", "type", "status", "title", "message",
			"bridge_transaction_id", "from_chain", "to_chain", "amount", "token",
			"action_label", "action_type", "auto_dismiss_after_ms").
		Values(n.ID, n.Timestamp, n.Read, n.Type, n.Status, n.Title, n.Message,
			n.BridgeTransactionID, n.FromChain, n.ToChain, n.Amount, n.Token,
			n.ActionLabel, n.ActionType, n.AutoDismissAfterMs).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			read = EXCLUDED.read,
			status = EXCLUDED.status,
			title = EXCLUDED.title,
			message = EXCLUDED.message,
			action_label = EXCLUDED.action_label,
			action_type = EXCLUDED.action_type,
			auto_dismiss_after_ms = EXCLUDED.auto_dismiss_after_ms`).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return domainerrors.PersistenceError("save notification", err)
	}
	return nil
}

// GetByID retrieves a notification by id
func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Notification, error) {
	q, args, err := sq.Select(notificationColumns).
		From("notifications").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}

	var n entities.Notification
	if err := r.db.GetContext(ctx, &n, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("notification", id)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

// GetByTransactionID finds the live notification linked to a bridge
// transaction without a table scan. The by-transaction index enforces the
// one-live-projection invariant.
func (r *NotificationRepository) GetByTransactionID(ctx context.Context, txID uuid.UUID) (*entities.Notification, error) {
	q, args, err := sq.Select(notificationColumns).
		From("notifications").
		Where(sq.Eq{"bridge_transaction_id": txID}).
		OrderBy("created_at DESC").
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}

	var n entities.Notification
	if err := r.db.GetContext(ctx, &n, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("notification for transaction", txID)
		}
		return nil, fmt.Errorf("failed to get notification by transaction: %w", err)
	}
	return &n, nil
}

// Update applies a partial update. Absent records are a no-op.
func (r *NotificationRepository) Update(ctx context.Context, id uuid.UUID, patch NotificationPatch) error {
	b := sq.Update("notifications").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar)

	changed := false
	if patch.Read != nil {
		b = b.Set("read", *patch.Read)
		changed = true
	}
	if patch.Status != nil {
		b = b.Set("status", *patch.Status)
		changed = true
	}
	if patch.Title != nil {
		b = b.Set("title", *patch.Title)
		changed = true
	}
	if patch.Message != nil {
		b = b.Set("message", *patch.Message)
		changed = true
	}
	if patch.ActionLabel != nil {
		b = b.Set("action_label", *patch.ActionLabel)
		changed = true
	}
	if patch.ActionType != nil {
		b = b.Set("action_type", *patch.ActionType)
		changed = true
	}
	if !changed {
		return nil
	}

	q, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return domainerrors.PersistenceError("update notification", err)
	}
	return nil
}

// MarkAllRead flips every unread notification to read
func (r *NotificationRepository) MarkAllRead(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE read = FALSE`); err != nil {
		return domainerrors.PersistenceError("mark all notifications read", err)
	}
	return nil
}

// Remove deletes a notification. Idempotent.
func (r *NotificationRepository) Remove(ctx context.Context, id uuid.UUID) error {
	q, args, err := sq.Delete("notifications").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return domainerrors.PersistenceError("remove notification", err)
	}
	return nil
}

// List returns notifications newest first. limit <= 0 returns everything.
func (r *NotificationRepository) List(ctx context.Context, limit int) ([]*entities.Notification, error) {
	b := sq.Select(notificationColumns).
		From("notifications").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}

	var ns []*entities.Notification
	if err := r.db.SelectContext(ctx, &ns, q, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return ns, nil
}

// PruneOld deletes all but the keep most-recent notifications and returns the
// number deleted
func (r *NotificationRepository) PruneOld(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE id IN (
			SELECT id FROM notifications
			ORDER BY created_at DESC
			OFFSET $1
		)`, keep)
	if err != nil {
		return 0, domainerrors.PersistenceError("prune notifications", err)
	}
	return res.RowsAffected()
}
