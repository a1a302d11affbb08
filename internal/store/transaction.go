package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/gymbuddies/gymbuddies/internal/platform/logger"
)

// TxFn is a function that executes within a database transaction. The
// transaction is committed if the function returns nil, or rolled back if it
// returns an error.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// RunInTransaction executes the given function within a database transaction
// with default isolation. If the function returns an error, the transaction
// is rolled back; otherwise it is committed. Panics roll the transaction
// back and propagate.
func RunInTransaction(ctx context.Context, db *sql.DB, fn TxFn) error {
	return runTx(ctx, db, nil, fn)
}

func runTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFn) error {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		log.Error("failed to begin transaction",
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: begin: %v", ErrTransactionFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			if txErr := tx.Rollback(); txErr != nil {
				log.Error("failed to roll back transaction after panic",
					slog.String("error", txErr.Error()),
					slog.Any("panic", p))
			}
			// ALLOW-PANIC: propagating caught panic from transaction
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			log.Error("failed to roll back transaction",
				slog.String("rollback_error", rollbackErr.Error()),
				slog.String("original_error", err.Error()))
			return fmt.Errorf("error rolling back transaction: %v (original error: %w)",
				rollbackErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTransactionFailed, err)
	}
	return nil
}

// RetryConfig bounds the serializable runner's retry loop.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, first attempt included.
	MaxAttempts int
	// BaseDelay is the sleep before the first retry; each subsequent retry
	// doubles it, plus up to one BaseDelay of jitter.
	BaseDelay time.Duration
	// MaxDelay caps the per-retry sleep. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultRetryConfig mirrors the contention behavior the web layer was tuned
// for: ten attempts starting at five milliseconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 10,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Runner executes mutating operations under SERIALIZABLE isolation and
// retries the whole closure on serialization conflicts with exponential
// backoff plus jitter. Every mutating core operation runs inside exactly one
// Runner transaction; the retry loop is invisible to callers on success.
type Runner struct {
	db        *sql.DB
	cfg       RetryConfig
	retryable func(error) bool
	logger    *slog.Logger
}

// NewRunner creates a Runner. retryable classifies errors as serialization
// conflicts worth retrying; the postgres platform package provides the
// classifier for its error codes. If logger is nil, the default is used.
func NewRunner(db *sql.DB, cfg RetryConfig, retryable func(error) bool, logger *slog.Logger) *Runner {
	if db == nil {
		// ALLOW-PANIC: constructor enforcing required dependency
		panic("db cannot be nil")
	}
	if retryable == nil {
		// ALLOW-PANIC: constructor enforcing required dependency
		panic("retryable classifier cannot be nil")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		db:        db,
		cfg:       cfg,
		retryable: retryable,
		logger:    logger.With(slog.String("component", "tx_runner")),
	}
}

// DB exposes the underlying connection for read-only work that does not need
// the serializable retry loop.
func (r *Runner) DB() *sql.DB {
	return r.db
}

// RunSerializable runs fn inside a SERIALIZABLE transaction, retrying the
// entire closure on serialization conflicts. A retried attempt starts the
// whole transaction over, so fn must be safe to re-execute from scratch.
// After the retry ceiling the conflict surfaces as ErrTxRetriesExhausted.
func (r *Runner) RunSerializable(ctx context.Context, fn TxFn) error {
	log := logger.FromContextOrDefault(ctx, r.logger)
	opID := uuid.New().String()

	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}

	var err error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err = runTx(ctx, r.db, opts, fn)
		if err == nil {
			if attempt > 1 {
				log.Debug("serializable transaction committed after retries",
					slog.String("op_id", opID),
					slog.Int("attempts", attempt))
			}
			return nil
		}
		if !r.retryable(err) {
			return err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := r.backoff(attempt)
		log.Warn("serialization conflict, retrying transaction",
			slog.String("op_id", opID),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Error("serializable transaction exhausted retries",
		slog.String("op_id", opID),
		slog.Int("attempts", r.cfg.MaxAttempts),
		slog.String("error", err.Error()))
	return fmt.Errorf("%w after %d attempts: %v", ErrTxRetriesExhausted, r.cfg.MaxAttempts, err)
}

// backoff computes the sleep before the next retry: BaseDelay doubled per
// attempt, plus up to one BaseDelay of jitter, capped at MaxDelay.
func (r *Runner) backoff(attempt int) time.Duration {
	delay := r.cfg.BaseDelay << (attempt - 1)
	delay += time.Duration(rand.Int63n(int64(r.cfg.BaseDelay) + 1))
	if r.cfg.MaxDelay > 0 && delay > r.cfg.MaxDelay {
		delay = r.cfg.MaxDelay
	}
	return delay
}
