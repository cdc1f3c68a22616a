package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relayport/relay_service/internal/domain/entities"
	domainerrors "github.com/relayport/relay_service/internal/domain/errors"
	"github.com/relayport/relay_service/internal/infrastructure/adapters/cctp"
	"github.com/relayport/relay_service/internal/infrastructure/adapters/wallet"
	"github.com/relayport/relay_service/internal/infrastructure/repositories"
)

type fakeTxRepo struct {
	mu  sync.Mutex
	txs map[uuid.UUID]*entities.BridgeTransaction
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{txs: make(map[uuid.UUID]*entities.BridgeTransaction)}
}

func cloneTx(tx *entities.BridgeTransaction) *entities.BridgeTransaction {
	cp := *tx
	cp.Steps = make(entities.BridgeSteps, len(tx.Steps))
	copy(cp.Steps, tx.Steps)
	return &cp
}

func (r *fakeTxRepo) Save(ctx context.Context, tx *entities.BridgeTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[tx.ID] = cloneTx(tx)
	return nil
}

func (r *fakeTxRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.BridgeTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, domainerrors.NotFoundError("bridge transaction", id.String())
	}
	return cloneTx(tx), nil
}

func (r *fakeTxRepo) Update(ctx context.Context, id uuid.UUID, patch repositories.TransactionPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return domainerrors.NotFoundError("bridge transaction", id.String())
	}
	if patch.Status != nil {
		tx.Status = *patch.Status
	}
	if patch.NotificationID != nil {
		tx.NotificationID = patch.NotificationID
	}
	return nil
}

func (r *fakeTxRepo) List(ctx context.Context, limit int) ([]*entities.BridgeTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entities.BridgeTransaction, 0, len(r.txs))
	for _, tx := range r.txs {
		out = append(out, cloneTx(tx))
	}
	return out, nil
}

func (r *fakeTxRepo) GetByStatus(ctx context.Context, status entities.BridgeStatus) ([]*entities.BridgeTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.BridgeTransaction
	for _, tx := range r.txs {
		if tx.Status == status {
			out = append(out, cloneTx(tx))
		}
	}
	return out, nil
}

type fakeWallet struct {
	mu     sync.Mutex
	calls  map[entities.StepName]int
	hashes map[entities.StepName]string
	fail   map[entities.StepName]error
	gates  map[entities.StepName]chan struct{}
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		calls: make(map[entities.StepName]int),
		hashes: map[entities.StepName]string{
			entities.StepApprove: "0xaaa",
			entities.StepBurn:    "0xbbb",
			entities.StepMint:    "0xccc",
		},
		fail:  make(map[entities.StepName]error),
		gates: make(map[entities.StepName]chan struct{}),
	}
}

func (w *fakeWallet) SignAndBroadcast(ctx context.Context, chain string, op wallet.Operation) (string, error) {
	w.mu.Lock()
	w.calls[op.Kind]++
	err := w.fail[op.Kind]
	hash := w.hashes[op.Kind]
	gate := w.gates[op.Kind]
	w.mu.Unlock()

	// a gated step stays in flight until the test releases it
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (w *fakeWallet) callCount(name entities.StepName) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[name]
}

type fakeAttestor struct {
	mu            sync.Mutex
	messages      []*cctp.Message
	reattested    []string
	reattestErr   error
	blockUntilCut bool
}

func (a *fakeAttestor) FetchAttestation(ctx context.Context, req cctp.FetchRequest) (*cctp.Message, error) {
	if a.blockUntilCut {
		for {
			if req.KeepPolling != nil && !req.KeepPolling(ctx) {
				return nil, cctp.ErrPollingStopped
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.messages) == 0 {
		return nil, cctp.ErrNoMessages
	}
	msg := a.messages[0]
	if len(a.messages) > 1 {
		a.messages = a.messages[1:]
	}
	return msg, nil
}

func (a *fakeAttestor) RequestReAttestation(ctx context.Context, nonce string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reattestErr != nil {
		return a.reattestErr
	}
	a.reattested = append(a.reattested, nonce)
	return nil
}

func (a *fakeAttestor) GetFees(ctx context.Context, sourceDomain, destDomain uint32) (*cctp.FeesResponse, error) {
	return &cctp.FeesResponse{
		SourceDomain:      sourceDomain,
		DestinationDomain: destDomain,
		FastTransferFee:   cctp.Fee{MinimumFee: 1},
	}, nil
}

func completeMessage() *cctp.Message {
	return &cctp.Message{
		Status:      cctp.AttestationStatusComplete,
		Message:     "0xmessage",
		Attestation: "0xattestation",
		EventNonce:  "42",
	}
}

type fakeNotifier struct {
	mu    sync.Mutex
	syncs int
}

func (n *fakeNotifier) SyncTransaction(ctx context.Context, tx *entities.BridgeTransaction) error {
	n.mu.Lock()
	n.syncs++
	n.mu.Unlock()
	return nil
}

func standardRequest() entities.BridgeRequest {
	return entities.BridgeRequest{
		FromChain:      "ethereum",
		ToChain:        "base",
		Amount:         decimal.NewFromInt(100),
		UserAddress:    "0xuser",
		TransferMethod: entities.TransferMethodStandard,
	}
}

func newTestService(repo *fakeTxRepo, w *fakeWallet, a *fakeAttestor) (*Service, *fakeNotifier) {
	notifier := &fakeNotifier{}
	svc := NewService(repo, w, a, notifier, zap.NewNop())
	return svc, notifier
}

func waitForStatus(t *testing.T, repo *fakeTxRepo, id uuid.UUID, status entities.BridgeStatus) *entities.BridgeTransaction {
	t.Helper()
	var tx *entities.BridgeTransaction
	require.Eventually(t, func() bool {
		got, err := repo.GetByID(context.Background(), id)
		if err != nil {
			return false
		}
		tx = got
		return got.Status == status
	}, 2*time.Second, 5*time.Millisecond, "transaction never reached %s", status)
	return tx
}

func TestStartRunsAllStepsToCompletion(t *testing.T) {
	repo := newFakeTxRepo()
	w := newFakeWallet()
	attestor := &fakeAttestor{messages: []*cctp.Message{completeMessage()}}
	svc, notifier := newTestService(repo, w, attestor)
	defer svc.Stop()

	tx, err := svc.Start(context.Background(), standardRequest())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, tx.ID)
	assert.Equal(t, entities.BridgeStatusPending, tx.Status)
	require.Len(t, tx.Steps, 4)

	final := waitForStatus(t, repo, tx.ID, entities.BridgeStatusCompleted)

	assert.Equal(t, tx.ID, final.ID)
	assert.Equal(t, "0xbbb", final.SourceTxHash)
	assert.Equal(t, "0xccc", final.DestTxHash)
	assert.Equal(t, "0xmessage", final.Message)
	assert.Equal(t, "0xattestation", final.Attestation)
	for _, step := range final.Steps {
		assert.Equal(t, entities.StepStatusCompleted, step.Status, "step %s", step.Name)
	}
	assert.Equal(t, "0xaaa", final.Step(entities.StepApprove).TxHash)
	assert.Equal(t, "0xbbb", final.Step(entities.StepBurn).TxHash)
	assert.Equal(t, "0xccc", final.Step(entities.StepMint).TxHash)
	assert.NoError(t, final.Steps.Validate())

	notifier.mu.Lock()
	assert.Greater(t, notifier.syncs, 0)
	notifier.mu.Unlock()
}

func TestStartValidation(t *testing.T) {
	repo := newFakeTxRepo()
	svc, _ := newTestService(repo, newFakeWallet(), &fakeAttestor{})
	defer svc.Stop()

	cases := []struct {
		name   string
		mutate func(*entities.BridgeRequest)
	}{
		{"zero amount", func(r *entities.BridgeRequest) { r.Amount = decimal.Zero }},
		{"negative amount", func(r *entities.BridgeRequest) { r.Amount = decimal.NewFromInt(-5) }},
		{"unknown source chain", func(r *entities.BridgeRequest) { r.FromChain = "dogechain" }},
		{"unknown destination chain", func(r *entities.BridgeRequest) { r.ToChain = "dogechain" }},
		{"same chain", func(r *entities.BridgeRequest) { r.ToChain = r.FromChain }},
		{"missing user address", func(r *entities.BridgeRequest) { r.UserAddress = "" }},
		{"unknown method", func(r *entities.BridgeRequest) { r.TransferMethod = "teleport" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := standardRequest()
			tc.mutate(&req)
			_, err := svc.Start(context.Background(), req)
			assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
		})
	}
}

func TestFastTransferQuotesFee(t *testing.T) {
	repo := newFakeTxRepo()
	attestor := &fakeAttestor{messages: []*cctp.Message{completeMessage()}}
	svc, _ := newTestService(repo, newFakeWallet(), attestor)
	defer svc.Stop()

	req := standardRequest()
	req.TransferMethod = entities.TransferMethodFast
	tx, err := svc.Start(context.Background(), req)
	require.NoError(t, err)

	// 100 USDC at 1 bps
	require.NotNil(t, tx.ProviderFeeUSDC)
	assert.True(t, tx.ProviderFeeUSDC.Equal(decimal.NewFromFloat(0.01)),
		"got fee %s", tx.ProviderFeeUSDC)
	require.NotNil(t, tx.EstimatedTimeMs)
	assert.Equal(t, estimatedTimeFastMs, *tx.EstimatedTimeMs)

	waitForStatus(t, repo, tx.ID, entities.BridgeStatusCompleted)
}

func TestMintFailureThenRetryReExecutesOnlyMint(t *testing.T) {
	repo := newFakeTxRepo()
	w := newFakeWallet()
	w.fail[entities.StepMint] = errors.New("user rejected signature")
	attestor := &fakeAttestor{messages: []*cctp.Message{completeMessage()}}
	svc, _ := newTestService(repo, w, attestor)
	defer svc.Stop()

	tx, err := svc.Start(context.Background(), standardRequest())
	require.NoError(t, err)

	failed := waitForStatus(t, repo, tx.ID, entities.BridgeStatusFailed)
	assert.Equal(t, entities.StepStatusFailed, failed.Step(entities.StepMint).Status)
	assert.Contains(t, failed.Step(entities.StepMint).Error, "user rejected signature")
	assert.Contains(t, failed.ErrorMessage, "user rejected signature")
	assert.Equal(t, entities.StepStatusCompleted, failed.Step(entities.StepBurn).Status)
	assert.Equal(t, "0xbbb", failed.SourceTxHash)

	w.mu.Lock()
	w.fail[entities.StepMint] = nil
	w.mu.Unlock()

	retried, err := svc.Retry(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, retried.ID)
	assert.Empty(t, retried.ErrorMessage)

	final := waitForStatus(t, repo, tx.ID, entities.BridgeStatusCompleted)
	assert.Equal(t, "0xbbb", final.SourceTxHash)
	assert.Equal(t, "0xccc", final.DestTxHash)

	// earlier steps were not re-executed
	assert.Equal(t, 1, w.callCount(entities.StepApprove))
	assert.Equal(t, 1, w.callCount(entities.StepBurn))
	assert.Equal(t, 2, w.callCount(entities.StepMint))
}

func TestRetryRefusals(t *testing.T) {
	repo := newFakeTxRepo()
	svc, _ := newTestService(repo, newFakeWallet(), &fakeAttestor{})
	defer svc.Stop()

	t.Run("unknown transaction", func(t *testing.T) {
		_, err := svc.Retry(context.Background(), uuid.New())
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	})

	t.Run("completed transaction", func(t *testing.T) {
		tx := seedTx(t, repo, entities.BridgeStatusCompleted, func(tx *entities.BridgeTransaction) {
			for i := range tx.Steps {
				tx.Steps[i].Status = entities.StepStatusCompleted
			}
		})
		_, err := svc.Retry(context.Background(), tx.ID)
		assert.ErrorIs(t, err, domainerrors.ErrConflict)
	})

	t.Run("cancelled transaction", func(t *testing.T) {
		tx := seedTx(t, repo, entities.BridgeStatusCancelled, nil)
		_, err := svc.Retry(context.Background(), tx.ID)
		assert.ErrorIs(t, err, domainerrors.ErrConflict)
	})

	t.Run("step in progress", func(t *testing.T) {
		tx := seedTx(t, repo, entities.BridgeStatusFailed, func(tx *entities.BridgeTransaction) {
			tx.Steps[0].Status = entities.StepStatusInProgress
		})
		_, err := svc.Retry(context.Background(), tx.ID)
		assert.ErrorIs(t, err, domainerrors.ErrConflict)
	})
}

func seedTx(t *testing.T, repo *fakeTxRepo, status entities.BridgeStatus, mutate func(*entities.BridgeTransaction)) *entities.BridgeTransaction {
	t.Helper()
	tx := &entities.BridgeTransaction{
		ID:             uuid.New(),
		FromChain:      "ethereum",
		ToChain:        "base",
		Amount:         decimal.NewFromInt(10),
		Status:         status,
		Steps:          entities.NewBridgeSteps(),
		UserAddress:    "0xuser",
		TransferMethod: entities.TransferMethodStandard,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if mutate != nil {
		mutate(tx)
	}
	require.NoError(t, repo.Save(context.Background(), tx))
	return tx
}

func TestCancelDuringAttestationStopsExecutor(t *testing.T) {
	repo := newFakeTxRepo()
	w := newFakeWallet()
	attestor := &fakeAttestor{blockUntilCut: true}
	svc, _ := newTestService(repo, w, attestor)
	defer svc.Stop()

	tx, err := svc.Start(context.Background(), standardRequest())
	require.NoError(t, err)

	// wait until the attestation step owns the execution
	require.Eventually(t, func() bool {
		got, err := repo.GetByID(context.Background(), tx.ID)
		return err == nil && got.Step(entities.StepAttestation).Status == entities.StepStatusInProgress
	}, 2*time.Second, 5*time.Millisecond)

	cancelled, err := svc.Cancel(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BridgeStatusCancelled, cancelled.Status)

	// the executor drains once the keep-polling check reads the new status
	require.Eventually(t, func() bool {
		return !svc.isActive(tx.ID)
	}, 2*time.Second, 5*time.Millisecond)

	final, err := repo.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BridgeStatusCancelled, final.Status)
	assert.Equal(t, entities.StepStatusCompleted, final.Step(entities.StepBurn).Status)
	assert.Equal(t, 0, w.callCount(entities.StepMint))
}

func TestCancelDuringWalletStepIsNotOverwritten(t *testing.T) {
	repo := newFakeTxRepo()
	w := newFakeWallet()
	gate := make(chan struct{})
	w.gates[entities.StepApprove] = gate
	attestor := &fakeAttestor{messages: []*cctp.Message{completeMessage()}}
	svc, _ := newTestService(repo, w, attestor)
	defer svc.Stop()

	tx, err := svc.Start(context.Background(), standardRequest())
	require.NoError(t, err)

	// wait until the approve call is in flight
	require.Eventually(t, func() bool {
		return w.callCount(entities.StepApprove) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancelled, err := svc.Cancel(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BridgeStatusCancelled, cancelled.Status)

	// releasing the wallet call must not resurrect the transaction
	close(gate)
	require.Eventually(t, func() bool {
		return !svc.isActive(tx.ID)
	}, 2*time.Second, 5*time.Millisecond)

	final, err := repo.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BridgeStatusCancelled, final.Status)
	assert.Equal(t, 0, w.callCount(entities.StepBurn))
	assert.Equal(t, 0, w.callCount(entities.StepMint))
}

func TestCancelRefusals(t *testing.T) {
	repo := newFakeTxRepo()
	svc, _ := newTestService(repo, newFakeWallet(), &fakeAttestor{})
	defer svc.Stop()

	for _, status := range []entities.BridgeStatus{entities.BridgeStatusCompleted, entities.BridgeStatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			tx := seedTx(t, repo, status, nil)
			_, err := svc.Cancel(context.Background(), tx.ID)
			assert.ErrorIs(t, err, domainerrors.ErrConflict)
		})
	}
}

func TestExpiredAttestationReattestedOnce(t *testing.T) {
	repo := newFakeTxRepo()
	attestor := &fakeAttestor{messages: []*cctp.Message{
		{Status: cctp.AttestationStatusExpired, EventNonce: "42"},
		completeMessage(),
	}}
	svc, _ := newTestService(repo, newFakeWallet(), attestor)
	defer svc.Stop()

	tx, err := svc.Start(context.Background(), standardRequest())
	require.NoError(t, err)

	final := waitForStatus(t, repo, tx.ID, entities.BridgeStatusCompleted)
	assert.Equal(t, "0xattestation", final.Attestation)

	attestor.mu.Lock()
	assert.Equal(t, []string{"42"}, attestor.reattested)
	attestor.mu.Unlock()
}

func TestReattestationFailureFailsStep(t *testing.T) {
	repo := newFakeTxRepo()
	attestor := &fakeAttestor{
		messages:    []*cctp.Message{{Status: cctp.AttestationStatusExpired, EventNonce: "42"}},
		reattestErr: fmt.Errorf("service said no"),
	}
	svc, _ := newTestService(repo, newFakeWallet(), attestor)
	defer svc.Stop()

	tx, err := svc.Start(context.Background(), standardRequest())
	require.NoError(t, err)

	failed := waitForStatus(t, repo, tx.ID, entities.BridgeStatusFailed)
	assert.Equal(t, entities.StepStatusFailed, failed.Step(entities.StepAttestation).Status)
	assert.Contains(t, failed.ErrorMessage, "re-attestation failed")
}

func TestResumeIncompleteResetsInterruptedSteps(t *testing.T) {
	repo := newFakeTxRepo()
	w := newFakeWallet()
	attestor := &fakeAttestor{messages: []*cctp.Message{completeMessage()}}

	// a previous run died while the burn step was in flight
	interrupted := seedTx(t, repo, entities.BridgeStatusBridging, func(tx *entities.BridgeTransaction) {
		tx.Steps[0].Status = entities.StepStatusCompleted
		tx.Steps[0].TxHash = "0xaaa"
		tx.Steps[1].Status = entities.StepStatusInProgress
	})

	svc, _ := newTestService(repo, w, attestor)
	defer svc.Stop()
	require.NoError(t, svc.ResumeIncomplete(context.Background()))

	final := waitForStatus(t, repo, interrupted.ID, entities.BridgeStatusCompleted)
	assert.Equal(t, "0xaaa", final.Step(entities.StepApprove).TxHash)
	assert.Equal(t, "0xbbb", final.SourceTxHash)
	assert.Equal(t, "0xccc", final.DestTxHash)
	assert.Equal(t, 0, w.callCount(entities.StepApprove))
	assert.Equal(t, 1, w.callCount(entities.StepBurn))
}
