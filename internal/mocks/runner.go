package mocks

import (
	"context"

	"github.com/gymbuddies/gymbuddies/internal/store"
)

// DirectRunner runs transaction closures immediately with a nil transaction.
// The in-memory stores ignore WithTx, so services exercised under
// DirectRunner behave as if every operation committed.
type DirectRunner struct{}

// RunSerializable runs fn once with no transaction.
func (DirectRunner) RunSerializable(ctx context.Context, fn store.TxFn) error {
	return fn(ctx, nil)
}

// FailingRunner fails every transaction with the configured error without
// running the closure. Useful for surfacing retry-exhaustion paths.
type FailingRunner struct {
	Err error
}

// RunSerializable returns the configured error.
func (r FailingRunner) RunSerializable(ctx context.Context, fn store.TxFn) error {
	return r.Err
}
