package store_pruner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeStore struct {
	keepSeen []int
	removed  int64
	err      error
}

func (s *fakeStore) PruneOld(ctx context.Context, keep int) (int64, error) {
	s.keepSeen = append(s.keepSeen, keep)
	return s.removed, s.err
}

func TestRunOncePrunesBothStores(t *testing.T) {
	txStore := &fakeStore{removed: 3}
	nStore := &fakeStore{removed: 0}
	w := New(txStore, nStore, Config{
		CronSpec:          "0 */6 * * *",
		KeepTransactions:  100,
		KeepNotifications: 200,
	}, zap.NewNop())

	w.runOnce(context.Background())

	assert.Equal(t, []int{100}, txStore.keepSeen)
	assert.Equal(t, []int{200}, nStore.keepSeen)
}

func TestRunOnceSurvivesStoreError(t *testing.T) {
	txStore := &fakeStore{err: errors.New("deadlock detected")}
	nStore := &fakeStore{removed: 1}
	w := New(txStore, nStore, Config{
		CronSpec:          "0 */6 * * *",
		KeepTransactions:  50,
		KeepNotifications: 50,
	}, zap.NewNop())

	// a failing store never blocks the other one
	w.runOnce(context.Background())

	assert.Len(t, txStore.keepSeen, 1)
	assert.Len(t, nStore.keepSeen, 1)
}

func TestStartRejectsBadCronSpec(t *testing.T) {
	w := New(&fakeStore{}, &fakeStore{}, Config{CronSpec: "not a cron spec"}, zap.NewNop())
	assert.Error(t, w.Start(context.Background()))
}
