package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/relayport/relay_service/internal/domain/entities"
	domainerrors "github.com/relayport/relay_service/internal/domain/errors"
	"github.com/relayport/relay_service/internal/infrastructure/adapters/cctp"
	"github.com/relayport/relay_service/internal/infrastructure/repositories"
	"github.com/relayport/relay_service/pkg/metrics"
)

// Advisory completion estimates surfaced to the UI, not enforced anywhere.
const (
	estimatedTimeFastMs     int64 = 30_000
	estimatedTimeStandardMs int64 = 15 * 60 * 1000
)

// Service drives bridge transactions through their step sequence. Each
// transaction is executed by at most one goroutine at a time; the active map
// is the guard.
type Service struct {
	txRepo   TransactionRepository
	wallet   WalletService
	attestor cctp.AttestationClient
	notifier NotificationSync
	logger   *zap.Logger

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup

	mu     sync.Mutex
	active map[uuid.UUID]bool
}

func NewService(txRepo TransactionRepository, wallet WalletService, attestor cctp.AttestationClient, notifier NotificationSync, logger *zap.Logger) *Service {
	runCtx, cancelRun := context.WithCancel(context.Background())
	return &Service{
		txRepo:    txRepo,
		wallet:    wallet,
		attestor:  attestor,
		notifier:  notifier,
		logger:    logger,
		runCtx:    runCtx,
		cancelRun: cancelRun,
		active:    make(map[uuid.UUID]bool),
	}
}

// Start validates the request, persists a fresh transaction and launches its
// executor. The returned transaction reflects the persisted initial state.
func (s *Service) Start(ctx context.Context, req entities.BridgeRequest) (*entities.BridgeTransaction, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tx := &entities.BridgeTransaction{
		ID:             uuid.New(),
		FromChain:      req.FromChain,
		ToChain:        req.ToChain,
		Amount:         req.Amount,
		Status:         entities.BridgeStatusPending,
		Steps:          entities.NewBridgeSteps(),
		UserAddress:    req.UserAddress,
		SourceAddress:  req.SourceAddress,
		TransferMethod: req.TransferMethod,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	estimate := estimatedTimeStandardMs
	if req.TransferMethod == entities.TransferMethodFast {
		estimate = estimatedTimeFastMs
		if fee, err := s.quoteFee(ctx, tx); err != nil {
			s.logger.Warn("fee quote unavailable, starting transfer without one",
				zap.String("transaction_id", tx.ID.String()), zap.Error(err))
		} else {
			tx.ProviderFeeUSDC = &fee
		}
	}
	tx.EstimatedTimeMs = &estimate

	if err := s.txRepo.Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("persisting new transaction: %w", err)
	}
	s.syncNotification(ctx, tx)

	if !s.acquire(tx.ID) {
		// unreachable for a freshly minted id, kept for symmetry with Retry
		return tx, nil
	}
	s.launch(tx.ID)
	return tx, nil
}

// Retry resumes a failed or interrupted transaction from its first
// non-completed step. A step recorded as in_progress is refused: it means an
// executor may still own it.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*entities.BridgeTransaction, error) {
	tx, err := s.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: transaction %s is %s and cannot be retried", domainerrors.ErrConflict, id, tx.Status)
	}
	if s.isActive(id) {
		return nil, fmt.Errorf("%w: transaction %s is already executing", domainerrors.ErrConflict, id)
	}

	idx := tx.Steps.FirstIncomplete()
	if idx < 0 {
		return nil, fmt.Errorf("%w: transaction %s has no incomplete steps", domainerrors.ErrConflict, id)
	}
	if tx.Steps[idx].Status == entities.StepStatusInProgress {
		return nil, fmt.Errorf("%w: step %s of transaction %s is in progress", domainerrors.ErrConflict, tx.Steps[idx].Name, id)
	}

	tx.Steps[idx].Status = entities.StepStatusPending
	tx.Steps[idx].Error = ""
	tx.ErrorMessage = ""
	tx.Status = tx.Steps.DeriveStatus()
	if err := s.txRepo.Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("persisting retry state: %w", err)
	}
	s.syncNotification(ctx, tx)

	if !s.acquire(id) {
		return nil, fmt.Errorf("%w: transaction %s is already executing", domainerrors.ErrConflict, id)
	}
	s.launch(id)
	return tx, nil
}

// Cancel marks a cancellable transaction as cancelled. The running executor
// notices through its keep-polling check and stops cooperatively; step records
// are left as they are.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*entities.BridgeTransaction, error) {
	tx, err := s.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tx.Status.IsCancellable() {
		return nil, fmt.Errorf("%w: transaction %s is %s and cannot be cancelled", domainerrors.ErrConflict, id, tx.Status)
	}

	status := entities.BridgeStatusCancelled
	if err := s.txRepo.Update(ctx, id, patchStatus(status)); err != nil {
		return nil, fmt.Errorf("persisting cancellation: %w", err)
	}
	tx.Status = status
	s.syncNotification(ctx, tx)
	metrics.TransfersTotal.WithLabelValues(string(status)).Inc()
	s.logger.Info("transaction cancelled", zap.String("transaction_id", id.String()))
	return tx, nil
}

// Get returns a single transaction by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entities.BridgeTransaction, error) {
	return s.txRepo.GetByID(ctx, id)
}

// ListTransactions returns the most recent transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, limit int) ([]*entities.BridgeTransaction, error) {
	return s.txRepo.List(ctx, limit)
}

// ResumeIncomplete re-queues every pending or bridging transaction found at
// boot. Steps left in_progress by a crashed executor are reset to pending
// before the executor is relaunched.
func (s *Service) ResumeIncomplete(ctx context.Context) error {
	resumed := 0
	for _, status := range []entities.BridgeStatus{entities.BridgeStatusPending, entities.BridgeStatusBridging} {
		txs, err := s.txRepo.GetByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("listing %s transactions: %w", status, err)
		}
		for _, tx := range txs {
			dirty := false
			for i := range tx.Steps {
				if tx.Steps[i].Status == entities.StepStatusInProgress {
					tx.Steps[i].Status = entities.StepStatusPending
					dirty = true
				}
			}
			if dirty {
				if err := s.txRepo.Save(ctx, tx); err != nil {
					s.logger.Error("failed to reset interrupted transaction",
						zap.String("transaction_id", tx.ID.String()), zap.Error(err))
					continue
				}
			}
			if s.acquire(tx.ID) {
				s.launch(tx.ID)
				resumed++
			}
		}
	}
	if resumed > 0 {
		s.logger.Info("resumed incomplete transactions", zap.Int("count", resumed))
	}
	return nil
}

// Stop cancels the run context and waits for executors to drain.
func (s *Service) Stop() {
	s.cancelRun()
	s.wg.Wait()
}

func (s *Service) launch(id uuid.UUID) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(id)
		s.execute(s.runCtx, id)
	}()
}

func (s *Service) acquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[id] {
		return false
	}
	s.active[id] = true
	return true
}

func (s *Service) release(id uuid.UUID) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

func (s *Service) isActive(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

func (s *Service) quoteFee(ctx context.Context, tx *entities.BridgeTransaction) (decimal.Decimal, error) {
	src, dst := cctp.ChainDomains[tx.FromChain], cctp.ChainDomains[tx.ToChain]
	fees, err := s.attestor.GetFees(ctx, src, dst)
	if err != nil {
		return decimal.Zero, err
	}
	bps := decimal.NewFromUint64(fees.FastTransferFee.MinimumFee)
	return tx.Amount.Mul(bps).Div(decimal.NewFromInt(10_000)), nil
}

func (s *Service) syncNotification(ctx context.Context, tx *entities.BridgeTransaction) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SyncTransaction(ctx, tx); err != nil {
		s.logger.Warn("notification sync failed",
			zap.String("transaction_id", tx.ID.String()), zap.Error(err))
	}
}

func validateRequest(req entities.BridgeRequest) error {
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domainerrors.ErrInvalidInput)
	}
	if _, ok := cctp.ChainDomains[req.FromChain]; !ok {
		return fmt.Errorf("%w: unsupported source chain %q", domainerrors.ErrInvalidInput, req.FromChain)
	}
	if _, ok := cctp.ChainDomains[req.ToChain]; !ok {
		return fmt.Errorf("%w: unsupported destination chain %q", domainerrors.ErrInvalidInput, req.ToChain)
	}
	if req.FromChain == req.ToChain {
		return fmt.Errorf("%w: source and destination chain must differ", domainerrors.ErrInvalidInput)
	}
	switch req.TransferMethod {
	case entities.TransferMethodStandard, entities.TransferMethodFast:
	default:
		return fmt.Errorf("%w: unknown transfer method %q", domainerrors.ErrInvalidInput, req.TransferMethod)
	}
	if req.UserAddress == "" {
		return fmt.Errorf("%w: user address is required", domainerrors.ErrInvalidInput)
	}
	return nil
}

func patchStatus(status entities.BridgeStatus) repositories.TransactionPatch {
	return repositories.TransactionPatch{Status: &status}
}
