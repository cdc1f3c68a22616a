package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/relayport/relay_service/internal/domain/entities"
	"github.com/relayport/relay_service/internal/infrastructure/adapters/wallet"
	"github.com/relayport/relay_service/internal/infrastructure/repositories"
)

// TransactionRepository defines persistence operations for bridge transactions
type TransactionRepository interface {
	Save(ctx context.Context, tx *entities.BridgeTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.BridgeTransaction, error)
	Update(ctx context.Context, id uuid.UUID, patch repositories.TransactionPatch) error
	List(ctx context.Context, limit int) ([]*entities.BridgeTransaction, error)
	GetByStatus(ctx context.Context, status entities.BridgeStatus) ([]*entities.BridgeTransaction, error)
}

// WalletService signs and broadcasts operations on a chain. External
// collaborator: rejecting wallets and reverted transactions surface as errors.
type WalletService interface {
	SignAndBroadcast(ctx context.Context, chain string, op wallet.Operation) (string, error)
}

// NotificationSync projects transaction lifecycle changes to the user
type NotificationSync interface {
	SyncTransaction(ctx context.Context, tx *entities.BridgeTransaction) error
}
