package store

import (
	"context"
	"database/sql"

	"github.com/gymbuddies/gymbuddies/internal/domain"
)

// ScheduleStore defines the interface for per-user schedule persistence.
//
// The authoritative schedule lives on the user row as a full week vector.
// A derived per-block projection (one row per non-empty block) answers
// block-indexed queries such as "who is available at time T". The projection
// is rewritten only by UpdateSchedule, inside the same transaction as the
// vector write, so the two can never drift.
type ScheduleStore interface {
	// GetSchedule returns the user's full week vector.
	// Returns ErrUserNotFound if the user does not exist.
	GetSchedule(ctx context.Context, netid string) (domain.Schedule, error)

	// UpdateSchedule atomically replaces the user's full schedule vector
	// and rewrites the derived per-block rows.
	// Returns ErrUserNotFound if the user does not exist.
	UpdateSchedule(ctx context.Context, netid string, schedule domain.Schedule) error

	// AddStatus ORs the status flags into every block where marked is true,
	// then stores the result via UpdateSchedule. Raising MATCHED or PENDING
	// never disturbs AVAILABLE.
	AddStatus(ctx context.Context, netid string, marked []bool, status domain.ScheduleStatus) error

	// RemoveStatus clears the status flags from every block where marked is
	// true, then stores the result via UpdateSchedule. Clearing an unset
	// flag is a no-op.
	RemoveStatus(ctx context.Context, netid string, marked []bool, status domain.ScheduleStatus) error

	// BlocksWithStatus returns the blocks whose status carries all flags in
	// mask, in block order. Serves the available/pending/matched views.
	BlocksWithStatus(ctx context.Context, netid string, mask domain.ScheduleStatus) ([]domain.TimeBlock, error)

	// AvailableUsersAt returns the netids of users whose given block is
	// AVAILABLE, in netid order.
	AvailableUsersAt(ctx context.Context, block domain.TimeBlock) ([]string, error)

	// WithTx returns a ScheduleStore bound to the provided transaction.
	WithTx(tx *sql.Tx) ScheduleStore
}
