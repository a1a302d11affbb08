package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gymbuddies/gymbuddies/internal/domain"
	"github.com/gymbuddies/gymbuddies/internal/platform/logger"
	"github.com/gymbuddies/gymbuddies/internal/store"
)

// PostgresScheduleStore implements the store.ScheduleStore interface
// using a PostgreSQL database as the storage backend.
//
// The authoritative vector lives on users.schedule; schedule_blocks holds
// one row per non-empty block and exists to answer block-indexed queries.
// Every vector write rewrites the projection in the same statement batch, so
// callers that need the pair to move atomically must run under a
// transaction (see store.Runner).
type PostgresScheduleStore struct {
	db store.DBTX
}

// NewPostgresScheduleStore creates a new PostgreSQL implementation of the
// ScheduleStore interface.
func NewPostgresScheduleStore(db store.DBTX) *PostgresScheduleStore {
	return &PostgresScheduleStore{
		db: db,
	}
}

// Ensure PostgresScheduleStore implements store.ScheduleStore interface
var _ store.ScheduleStore = (*PostgresScheduleStore)(nil)

// WithTx implements store.ScheduleStore.WithTx
func (s *PostgresScheduleStore) WithTx(tx *sql.Tx) store.ScheduleStore {
	return &PostgresScheduleStore{
		db: tx,
	}
}

// GetSchedule implements store.ScheduleStore.GetSchedule
func (s *PostgresScheduleStore) GetSchedule(
	ctx context.Context,
	netid string,
) (domain.Schedule, error) {
	query := `SELECT schedule FROM users WHERE netid = $1`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, netid).Scan(&raw)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", MapError(err))
	}

	return decodeSchedule(raw)
}

// UpdateSchedule implements store.ScheduleStore.UpdateSchedule
func (s *PostgresScheduleStore) UpdateSchedule(
	ctx context.Context,
	netid string,
	schedule domain.Schedule,
) error {
	log := logger.FromContextOrDefault(ctx, nil)

	if err := schedule.Validate(); err != nil {
		return err
	}

	query := `UPDATE users SET schedule = $1, last_updated = $2 WHERE netid = $3`

	result, err := s.db.ExecContext(ctx, query,
		encodeSchedule(schedule),
		time.Now().UTC(),
		netid,
	)
	if err != nil {
		log.Error("failed to update schedule",
			"netid", netid,
			"error", err)
		return fmt.Errorf("failed to update schedule: %w", MapError(err))
	}

	if err := CheckRowsAffected(result, "user"); err != nil {
		return store.ErrUserNotFound
	}

	return s.rewriteBlocks(ctx, netid, schedule)
}

// AddStatus implements store.ScheduleStore.AddStatus
func (s *PostgresScheduleStore) AddStatus(
	ctx context.Context,
	netid string,
	marked []bool,
	status domain.ScheduleStatus,
) error {
	return s.applyStatus(ctx, netid, marked, status, domain.ScheduleStatus.With)
}

// RemoveStatus implements store.ScheduleStore.RemoveStatus
func (s *PostgresScheduleStore) RemoveStatus(
	ctx context.Context,
	netid string,
	marked []bool,
	status domain.ScheduleStatus,
) error {
	return s.applyStatus(ctx, netid, marked, status, domain.ScheduleStatus.Without)
}

func (s *PostgresScheduleStore) applyStatus(
	ctx context.Context,
	netid string,
	marked []bool,
	status domain.ScheduleStatus,
	apply func(domain.ScheduleStatus, domain.ScheduleStatus) domain.ScheduleStatus,
) error {
	if len(marked) != domain.NumWeekBlocks {
		return fmt.Errorf(
			"%w: marked vector has %d blocks, want %d",
			domain.ErrInvalidSchedule,
			len(marked),
			domain.NumWeekBlocks,
		)
	}

	schedule, err := s.GetSchedule(ctx, netid)
	if err != nil {
		return err
	}

	for i, m := range marked {
		if m {
			schedule[i] = apply(schedule[i], status)
		}
	}

	return s.UpdateSchedule(ctx, netid, schedule)
}

// BlocksWithStatus implements store.ScheduleStore.BlocksWithStatus
func (s *PostgresScheduleStore) BlocksWithStatus(
	ctx context.Context,
	netid string,
	mask domain.ScheduleStatus,
) ([]domain.TimeBlock, error) {
	schedule, err := s.GetSchedule(ctx, netid)
	if err != nil {
		return nil, err
	}
	return schedule.Blocks(mask), nil
}

// AvailableUsersAt implements store.ScheduleStore.AvailableUsersAt
func (s *PostgresScheduleStore) AvailableUsersAt(
	ctx context.Context,
	block domain.TimeBlock,
) ([]string, error) {
	if !block.Valid() {
		return nil, fmt.Errorf("%w: block %d out of range", domain.ErrInvalidSchedule, block)
	}

	query := `
		SELECT netid
		FROM schedule_blocks
		WHERE block = $1 AND (status & $2) <> 0
		ORDER BY netid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, block, domain.StatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to query available users: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var netids []string
	for rows.Next() {
		var netid string
		if err := rows.Scan(&netid); err != nil {
			return nil, fmt.Errorf("failed to scan netid: %w", err)
		}
		netids = append(netids, netid)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating available users: %w", err)
	}

	return netids, nil
}

// rewriteBlocks replaces the user's projection rows with one row per
// non-empty block of the given vector.
func (s *PostgresScheduleStore) rewriteBlocks(
	ctx context.Context,
	netid string,
	schedule domain.Schedule,
) error {
	if _, err := s.db.ExecContext(
		ctx,
		`DELETE FROM schedule_blocks WHERE netid = $1`,
		netid,
	); err != nil {
		return fmt.Errorf("failed to clear schedule blocks: %w", MapError(err))
	}

	var (
		values []string
		args   []any
	)
	args = append(args, netid)
	for block, status := range schedule {
		if status == domain.StatusUnavailable {
			continue
		}
		args = append(args, block, status)
		values = append(values, fmt.Sprintf("($1, $%d, $%d)", len(args)-1, len(args)))
	}
	if len(values) == 0 {
		return nil
	}

	query := `INSERT INTO schedule_blocks (netid, block, status) VALUES ` +
		strings.Join(values, ", ")

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert schedule blocks: %w", MapError(err))
	}

	return nil
}
