package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relayport/relay_service/internal/domain/entities"
	"github.com/relayport/relay_service/internal/infrastructure/adapters/cctp"
	"github.com/relayport/relay_service/internal/infrastructure/adapters/wallet"
	"github.com/relayport/relay_service/pkg/metrics"
)

// execute runs the transaction's remaining steps in order. Each iteration
// re-reads the persisted record so that cancellations and external updates
// are observed between steps.
func (s *Service) execute(ctx context.Context, id uuid.UUID) {
	log := s.logger.With(zap.String("transaction_id", id.String()))

	for {
		if ctx.Err() != nil {
			log.Info("executor stopping, service shutting down")
			return
		}

		tx, err := s.txRepo.GetByID(ctx, id)
		if err != nil {
			log.Error("executor cannot load transaction", zap.Error(err))
			return
		}
		if tx.Status.IsTerminal() || tx.Status == entities.BridgeStatusFailed {
			return
		}

		idx := tx.Steps.FirstIncomplete()
		if idx < 0 {
			s.finalize(ctx, tx, log)
			return
		}

		if err := s.executeStep(ctx, tx, idx, log); err != nil {
			if errors.Is(err, errExecutionHalted) {
				return
			}
			s.failStep(ctx, tx, idx, err, log)
			return
		}
	}
}

// errExecutionHalted stops the executor without recording a failure:
// cancellation and shutdown paths.
var errExecutionHalted = errors.New("execution halted")

// guardedSave persists tx only while the stored record is still runnable.
// Save is a full-record upsert, so a Cancel landing while a wallet call is
// in flight would otherwise be overwritten by the step's completion write.
// Read failures fall through to the save: a transient database hiccup must
// not lose step progress.
func (s *Service) guardedSave(ctx context.Context, tx *entities.BridgeTransaction) error {
	stored, err := s.txRepo.GetByID(ctx, tx.ID)
	if err == nil && stored.Status != entities.BridgeStatusPending && stored.Status != entities.BridgeStatusBridging {
		return errExecutionHalted
	}
	return s.txRepo.Save(ctx, tx)
}

func (s *Service) executeStep(ctx context.Context, tx *entities.BridgeTransaction, idx int, log *zap.Logger) error {
	step := &tx.Steps[idx]
	log = log.With(zap.String("step", string(step.Name)))

	// The status change is persisted before the side effect runs so a crash
	// mid-step is visible on restart.
	step.Status = entities.StepStatusInProgress
	tx.Status = entities.BridgeStatusBridging
	if err := s.guardedSave(ctx, tx); err != nil {
		if errors.Is(err, errExecutionHalted) {
			log.Info("step not started, transaction no longer running")
			return err
		}
		return fmt.Errorf("persisting step start: %w", err)
	}
	s.syncNotification(ctx, tx)
	log.Info("step started")

	started := time.Now()
	var (
		txHash string
		err    error
	)
	switch step.Name {
	case entities.StepApprove:
		txHash, err = s.wallet.SignAndBroadcast(ctx, tx.FromChain, wallet.Operation{Kind: entities.StepApprove, Transfer: tx})
	case entities.StepBurn:
		txHash, err = s.wallet.SignAndBroadcast(ctx, tx.FromChain, wallet.Operation{Kind: entities.StepBurn, Transfer: tx})
		if err == nil {
			tx.SourceTxHash = txHash
		}
	case entities.StepAttestation:
		var msg *cctp.Message
		msg, err = s.awaitAttestation(ctx, tx, log)
		if err == nil {
			tx.Message = msg.Message
			tx.Attestation = msg.Attestation
		}
	case entities.StepMint:
		txHash, err = s.executeMint(ctx, tx)
		if err == nil {
			tx.DestTxHash = txHash
		}
	default:
		err = fmt.Errorf("unknown step %q", step.Name)
	}

	if err != nil {
		if errors.Is(err, cctp.ErrPollingStopped) {
			log.Info("step stopped cooperatively")
			return errExecutionHalted
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return errExecutionHalted
		}
		return err
	}

	// Status stays bridging even after the last step: finalize owns the
	// completed transition once the loop sees no incomplete step.
	step.Status = entities.StepStatusCompleted
	step.TxHash = txHash
	if err := s.guardedSave(ctx, tx); err != nil {
		if errors.Is(err, errExecutionHalted) {
			log.Info("discarding step result, transaction no longer running")
			return err
		}
		return fmt.Errorf("persisting step completion: %w", err)
	}
	s.syncNotification(ctx, tx)
	metrics.StepDurationSeconds.WithLabelValues(string(step.Name)).Observe(time.Since(started).Seconds())
	log.Info("step completed", zap.String("tx_hash", txHash), zap.Duration("took", time.Since(started)))
	return nil
}

// awaitAttestation polls until the burn message is attested. An expired
// message is re-attested exactly once; a second expiry fails the step.
func (s *Service) awaitAttestation(ctx context.Context, tx *entities.BridgeTransaction, log *zap.Logger) (*cctp.Message, error) {
	if tx.SourceTxHash == "" {
		return nil, fmt.Errorf("attestation requires a burn transaction hash")
	}
	req := cctp.FetchRequest{
		SourceDomain: cctp.ChainDomains[tx.FromChain],
		BurnTxHash:   tx.SourceTxHash,
		OnProgress: func(attempt int) {
			if attempt%12 == 0 {
				log.Debug("still waiting for attestation", zap.Int("attempt", attempt))
			}
		},
		KeepPolling: s.keepPolling(tx.ID),
	}

	msg, err := s.attestor.FetchAttestation(ctx, req)
	if err != nil {
		return nil, err
	}
	if msg.Status != cctp.AttestationStatusExpired {
		return msg, nil
	}

	log.Warn("attestation expired, requesting re-attestation", zap.String("nonce", msg.EventNonce))
	if err := s.attestor.RequestReAttestation(ctx, msg.EventNonce); err != nil {
		return nil, fmt.Errorf("attestation expired and re-attestation failed: %w", err)
	}
	msg, err = s.attestor.FetchAttestation(ctx, req)
	if err != nil {
		return nil, err
	}
	if msg.Status == cctp.AttestationStatusExpired {
		return nil, fmt.Errorf("attestation expired again after re-attestation, nonce %s", msg.EventNonce)
	}
	return msg, nil
}

func (s *Service) executeMint(ctx context.Context, tx *entities.BridgeTransaction) (string, error) {
	if tx.Message == "" || tx.Attestation == "" {
		return "", fmt.Errorf("mint requires an attested message")
	}
	msg := &cctp.Message{
		Message:     tx.Message,
		Attestation: tx.Attestation,
		Status:      cctp.AttestationStatusComplete,
	}
	return s.wallet.SignAndBroadcast(ctx, tx.ToChain, wallet.Operation{
		Kind:        entities.StepMint,
		Transfer:    tx,
		Attestation: msg,
	})
}

// keepPolling re-reads persisted status before every poll wait so that a
// Cancel issued from another request stops the loop. Read failures keep the
// loop alive: a transient database hiccup should not abandon the attestation.
func (s *Service) keepPolling(id uuid.UUID) func(ctx context.Context) bool {
	return func(ctx context.Context) bool {
		tx, err := s.txRepo.GetByID(ctx, id)
		if err != nil {
			return true
		}
		return tx.Status == entities.BridgeStatusBridging || tx.Status == entities.BridgeStatusPending
	}
}

func (s *Service) failStep(ctx context.Context, tx *entities.BridgeTransaction, idx int, cause error, log *zap.Logger) {
	step := &tx.Steps[idx]
	step.Status = entities.StepStatusFailed
	step.Error = cause.Error()
	tx.Status = entities.BridgeStatusFailed
	tx.ErrorMessage = cause.Error()
	if err := s.guardedSave(ctx, tx); err != nil {
		if errors.Is(err, errExecutionHalted) {
			log.Info("discarding step failure, transaction no longer running")
			return
		}
		log.Error("failed to persist step failure", zap.Error(err))
	}
	s.syncNotification(ctx, tx)
	metrics.StepFailuresTotal.WithLabelValues(string(step.Name)).Inc()
	metrics.TransfersTotal.WithLabelValues(string(entities.BridgeStatusFailed)).Inc()
	log.Error("step failed", zap.String("step", string(step.Name)), zap.Error(cause))
}

func (s *Service) finalize(ctx context.Context, tx *entities.BridgeTransaction, log *zap.Logger) {
	tx.Status = entities.BridgeStatusCompleted
	if err := s.guardedSave(ctx, tx); err != nil {
		if errors.Is(err, errExecutionHalted) {
			log.Info("skipping completion, transaction no longer running")
			return
		}
		log.Error("failed to persist completion", zap.Error(err))
		return
	}
	s.syncNotification(ctx, tx)
	metrics.TransfersTotal.WithLabelValues(string(entities.BridgeStatusCompleted)).Inc()
	log.Info("transfer completed",
		zap.String("source_tx", tx.SourceTxHash),
		zap.String("dest_tx", tx.DestTxHash))
}
