package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// retryableSentinel stands in for a serialization failure; tests classify it
// the way the postgres classifier would classify code 40001.
var retryableSentinel = errors.New("serialization conflict")

func isRetryable(err error) bool {
	return errors.Is(err, retryableSentinel)
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Microsecond,
		MaxDelay:    time.Millisecond,
	}
}

func TestRunInTransactionCommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, "UPDATE users SET open = true")
		return execErr
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	fnErr := errors.New("business rule violated")
	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		return fnErr
	})

	assert.ErrorIs(t, err, fnErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionRollsBackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunnerRequiresDependencies(t *testing.T) {
	db, _ := newMockDB(t)

	assert.Panics(t, func() {
		NewRunner(nil, RetryConfig{}, isRetryable, nil)
	})
	assert.Panics(t, func() {
		NewRunner(db, RetryConfig{}, nil, nil)
	})
}

func TestNewRunnerFillsDefaults(t *testing.T) {
	db, _ := newMockDB(t)

	r := NewRunner(db, RetryConfig{}, isRetryable, nil)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, r.cfg.MaxAttempts)
	assert.Equal(t, DefaultRetryConfig().BaseDelay, r.cfg.BaseDelay)
	assert.Same(t, db, r.DB())
}

func TestRunSerializableCommitsFirstTry(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewRunner(db, fastRetryConfig(), isRetryable, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := r.RunSerializable(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSerializableRetriesConflictThenSucceeds(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewRunner(db, fastRetryConfig(), isRetryable, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := r.RunSerializable(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		calls++
		if calls == 1 {
			return retryableSentinel
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSerializableDoesNotRetryBusinessErrors(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewRunner(db, fastRetryConfig(), isRetryable, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	fnErr := errors.New("not a conflict")
	calls := 0
	err := r.RunSerializable(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		calls++
		return fnErr
	})

	assert.ErrorIs(t, err, fnErr)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSerializableExhaustsRetries(t *testing.T) {
	db, mock := newMockDB(t)
	cfg := fastRetryConfig()
	r := NewRunner(db, cfg, isRetryable, nil)

	for i := 0; i < cfg.MaxAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	calls := 0
	err := r.RunSerializable(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		calls++
		return retryableSentinel
	})

	assert.ErrorIs(t, err, ErrTxRetriesExhausted)
	assert.Equal(t, cfg.MaxAttempts, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSerializableHonorsContextCancellation(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewRunner(db, RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    time.Second,
	}, isRetryable, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	err := r.RunSerializable(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cancel()
		return retryableSentinel
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
