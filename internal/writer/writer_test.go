package writer

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/XavierBriggs/Tyche/pkg/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var emittedAt = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func enterNotification(p string) models.Notification {
	return models.Notification{
		Kind:        models.NotificationRaffleEnter,
		Raffle:      "weekly",
		Round:       1,
		Participant: p,
		Amount:      testutil.Amount("1"),
		EmittedAt:   emittedAt,
	}
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func TestWriter_Flush(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Publishing to a missing server is logged, not returned
	redisClient := redis.NewClient(&redis.Options{
		Addr:        "localhost:6379",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer redisClient.Close()

	w := NewWriter(db, redisClient, nil)
	ctx := context.Background()

	w.Notify(ctx, enterNotification(testutil.PlayerA))
	w.Notify(ctx, enterNotification(testutil.PlayerB))
	assert.Equal(t, 2, w.Pending())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO raffle_events`).
		WithArgs(anyArgs(8)...).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, w.Flush(ctx))
	assert.Zero(t, w.Pending())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_FlushEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w := NewWriter(db, nil, nil)
	assert.NoError(t, w.Flush(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_FlushFailureKeepsBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w := NewWriter(db, nil, nil)
	ctx := context.Background()
	w.Notify(ctx, enterNotification(testutil.PlayerA))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO raffle_events`).
		WithArgs(anyArgs(8)...).
		WillReturnError(errors.New("relation does not exist"))
	mock.ExpectRollback()

	assert.Error(t, w.Flush(ctx))
	assert.Equal(t, 1, w.Pending())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO raffle_events`).
		WithArgs(anyArgs(8)...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, w.Flush(ctx))
	assert.Zero(t, w.Pending())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_StopFlushes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w := NewWriter(db, nil, nil)
	w.Start(context.Background())
	w.Notify(context.Background(), enterNotification(testutil.PlayerA))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO raffle_events`).
		WithArgs(anyArgs(8)...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w.Stop()
	assert.Zero(t, w.Pending())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_FullBatchWakesLoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w := NewWriter(db, nil, nil)
	w.batchSize = 3
	w.flushInterval = time.Hour

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO raffle_events`).
		WithArgs(anyArgs(8)...).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	for _, p := range []string{testutil.PlayerA, testutil.PlayerB, testutil.PlayerC} {
		w.Notify(ctx, enterNotification(p))
	}

	require.Eventually(t, func() bool { return w.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)
	w.Stop()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_RecentWinners(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w := NewWriter(db, nil, nil)

	mock.ExpectQuery(`SELECT raffle, participant, request_id, emitted_at`).
		WithArgs("weekly", "WinnerPicked", 5).
		WillReturnRows(sqlmock.NewRows([]string{"raffle", "participant", "request_id", "emitted_at"}).
			AddRow("weekly", testutil.PlayerB, 2, emittedAt).
			AddRow("weekly", testutil.PlayerA, 1, emittedAt.Add(-time.Hour)))

	winners, err := w.RecentWinners(context.Background(), "weekly", 5)
	require.NoError(t, err)
	require.Len(t, winners, 2)
	assert.Equal(t, models.Winner{
		Raffle:    "weekly",
		Winner:    testutil.PlayerB,
		RequestID: 2,
		PickedAt:  emittedAt,
	}, winners[0])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_NextRound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w := NewWriter(db, nil, nil)

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(round\), 0\) FROM raffle_events`).
		WithArgs("weekly", "WinnerPicked").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))

	next, err := w.NextRound(context.Background(), "weekly")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), next)

	assert.NoError(t, mock.ExpectationsWereMet())
}
