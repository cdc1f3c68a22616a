package store_pruner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/relayport/relay_service/pkg/metrics"
)

// PrunableStore trims a store down to its newest records
type PrunableStore interface {
	PruneOld(ctx context.Context, keep int) (int64, error)
}

// Config holds retention settings per store
type Config struct {
	CronSpec          string
	KeepTransactions  int
	KeepNotifications int
}

// Worker periodically prunes both durable stores so they never grow past
// their retention caps.
type Worker struct {
	transactions  PrunableStore
	notifications PrunableStore
	config        Config
	logger        *zap.Logger
	cron          *cron.Cron
}

func New(transactions, notifications PrunableStore, config Config, logger *zap.Logger) *Worker {
	return &Worker{
		transactions:  transactions,
		notifications: notifications,
		config:        config,
		logger:        logger,
		cron:          cron.New(),
	}
}

// Start schedules the prune job and runs one pass immediately so a long-idle
// deployment is trimmed at boot rather than at the next cron tick.
func (w *Worker) Start(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.config.CronSpec, func() {
		w.runOnce(context.Background())
	}); err != nil {
		return err
	}
	w.cron.Start()
	go w.runOnce(ctx)
	w.logger.Info("store pruner started",
		zap.String("schedule", w.config.CronSpec),
		zap.Int("keep_transactions", w.config.KeepTransactions),
		zap.Int("keep_notifications", w.config.KeepNotifications))
	return nil
}

// Stop halts the schedule and waits for a running job to finish
func (w *Worker) Stop() {
	stopCtx := w.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		w.logger.Warn("store pruner stop timed out")
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w.prune(ctx, "transactions", w.transactions, w.config.KeepTransactions)
	w.prune(ctx, "notifications", w.notifications, w.config.KeepNotifications)
}

func (w *Worker) prune(ctx context.Context, store string, s PrunableStore, keep int) {
	removed, err := s.PruneOld(ctx, keep)
	if err != nil {
		w.logger.Error("prune failed", zap.String("store", store), zap.Error(err))
		return
	}
	if removed > 0 {
		metrics.PrunedRecordsTotal.WithLabelValues(store).Add(float64(removed))
		w.logger.Info("pruned old records", zap.String("store", store), zap.Int64("removed", removed))
	}
}
