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

const transactionColumns = `id, from_chain, to_chain, amount, status, steps,
	source_tx_hash, dest_tx_hash, message, attestation, error_message,
	notification_id, user_address, source_address, transfer_method,
	provider_fee_usdc, estimated_time_ms, created_at, updated_at`

// TransactionPatch carries a partial update; nil fields are left untouched
type TransactionPatch struct {
	Status          *entities.BridgeStatus
	Steps           *entities.BridgeSteps
	SourceTxHash    *string
	DestTxHash      *string
	Message         *string
	Attestation     *string
	ErrorMessage    *string
	NotificationID  *uuid.UUID
	ProviderFeeUSDC *string
}

// TransactionRepository persists bridge transactions in Postgres
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Save upserts a transaction by primary key. The whole record, steps
// included, is written in one statement so a reader never observes a
// half-written record.
func (r *TransactionRepository) Save(ctx context.Context, tx *entities.BridgeTransaction) error {
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	q, args, err := sq.Insert("bridge_transactions").
		Columns("id", "from_chain", "to_chain", "amount", "status", "steps",
			"source_tx_hash", "dest_tx_hash", "message", "attestation", "error_message",
			"notification_id", "user_address", "source_address", "transfer_method",
			"provider_fee_usdc", "estimated_time_ms", "created_at", "updated_at").
		Values(tx.ID, tx.FromChain, tx.ToChain, tx.Amount, tx.Status, tx.Steps,
			tx.SourceTxHash, tx.DestTxHash, tx.Message, tx.Attestation, tx.ErrorMessage,
			tx.NotificationID, tx.UserAddress, tx.SourceAddress, tx.TransferMethod,
			tx.ProviderFeeUSDC, tx.EstimatedTimeMs, tx.CreatedAt, tx.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			steps = EXCLUDED.steps,
			source_tx_hash = EXCLUDED.source_tx_hash,
			dest_tx_hash = EXCLUDED.dest_tx_hash,
			message = EXCLUDED.message,
			attestation = EXCLUDED.attestation,
			error_message = EXCLUDED.error_message,
			notification_id = EXCLUDED.notification_id,
			provider_fee_usdc = EXCLUDED.provider_fee_usdc,
			estimated_time_ms = EXCLUDED.estimated_time_ms,
			updated_at = EXCLUDED.updated_at`).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return domainerrors.PersistenceError("save transaction", err)
	}
	return nil
}

// GetByID retrieves a transaction by id
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.BridgeTransaction, error) {
	q, args, err := sq.Select(transactionColumns).
		From("bridge_transactions").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}

	var tx entities.BridgeTransaction
	if err := r.db.GetContext(ctx, &tx, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("transaction", id)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

// Update applies a partial update. Absent records are a no-op.
func (r *TransactionRepository) Update(ctx context.Context, id uuid.UUID, patch TransactionPatch) error {
	b := sq.Update("bridge_transactions").
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar)

	if patch.Status != nil {
		b = b.Set("status", *patch.Status)
	}
	if patch.Steps != nil {
		b = b.Set("steps", *patch.Steps)
	}
	if patch.SourceTxHash != nil {
		b = b.Set("source_tx_hash", *patch.SourceTxHash)
	}
	if patch.DestTxHash != nil {
		b = b.Set("dest_tx_hash", *patch.DestTxHash)
	}
	if patch.Message != nil {
		b = b.Set("message", *patch.Message)
	}
	if patch.Attestation != nil {
		b = b.Set("attestation", *patch.Attestation)
	}
	if patch.ErrorMessage != nil {
		b = b.Set("error_message", *patch.ErrorMessage)
	}
	if patch.NotificationID != nil {
		b = b.Set("notification_id", *patch.NotificationID)
	}
	if patch.ProviderFeeUSDC != nil {
		b = b.Set("provider_fee_usdc", *patch.ProviderFeeUSDC)
	}

	q, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return domainerrors.PersistenceError("update transaction", err)
	}
	return nil
}

// SetNotificationID back-fills the weak reference to the linked notification
func (r *TransactionRepository) SetNotificationID(ctx context.Context, id, notificationID uuid.UUID) error {
	return r.Update(ctx, id, TransactionPatch{NotificationID: &notificationID})
}

// Remove deletes a transaction. Idempotent.
func (r *TransactionRepository) Remove(ctx context.Context, id uuid.UUID) error {
	q, args, err := sq.Delete("bridge_transactions").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return domainerrors.PersistenceError("remove transaction", err)
	}
	return nil
}

// List returns transactions newest first. limit <= 0 returns everything.
func (r *TransactionRepository) List(ctx context.Context, limit int) ([]*entities.BridgeTransaction, error) {
	b := sq.Select(transactionColumns).
		From("bridge_transactions").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}

	var txs []*entities.BridgeTransaction
	if err := r.db.SelectContext(ctx, &txs, q, args...); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// GetByStatus returns transactions with the given status, newest first
func (r *TransactionRepository) GetByStatus(ctx context.Context, status entities.BridgeStatus) ([]*entities.BridgeTransaction, error) {
	q, args, err := sq.Select(transactionColumns).
		From("bridge_transactions").
		Where(sq.Eq{"status": status}).
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}

	var txs []*entities.BridgeTransaction
	if err := r.db.SelectContext(ctx, &txs, q, args...); err != nil {
		return nil, fmt.Errorf("failed to get transactions by status: %w", err)
	}
	return txs, nil
}

// PruneOld deletes all but the keep most-recent transactions and returns the
// number deleted
func (r *TransactionRepository) PruneOld(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM bridge_transactions
		WHERE id IN (
			SELECT id FROM bridge_transactions
			ORDER BY created_at DESC
			OFFSET $1
		)`, keep)
	if err != nil {
		return 0, domainerrors.PersistenceError("prune transactions", err)
	}
	return res.RowsAffected()
}
