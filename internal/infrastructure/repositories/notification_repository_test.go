package repositories

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pruneNotificationsQuery = `DELETE FROM notifications WHERE id IN \( SELECT id FROM notifications ORDER BY created_at DESC OFFSET \$1 \)`

func TestNotificationRepositoryPruneOldDeletesBeyondKeep(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectExec(pruneNotificationsQuery).
		WithArgs(200).
		WillReturnResult(sqlmock.NewResult(0, 17))

	deleted, err := repo.PruneOld(context.Background(), 200)

	require.NoError(t, err)
	assert.Equal(t, int64(17), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkAllRead(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectExec(`UPDATE notifications SET read = TRUE WHERE read = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	require.NoError(t, repo.MarkAllRead(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
