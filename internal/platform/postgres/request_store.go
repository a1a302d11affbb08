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

// requestColumns is the select list shared by every query that scans a full
// request row. Keep it in sync with scanRequest.
const requestColumns = `id, src_netid, dest_netid, status, schedule, made_at,
	finalized_at, deleted_at, prev_id, read`

// activeStatusClause matches the active lifecycle states (pending and
// finalized) on a requests row aliased r.
const activeStatusClause = `r.status IN (1, 3)`

// PostgresRequestStore implements the store.RequestStore interface
// using a PostgreSQL database as the storage backend.
type PostgresRequestStore struct {
	db store.DBTX
}

// NewPostgresRequestStore creates a new PostgreSQL implementation of the
// RequestStore interface.
func NewPostgresRequestStore(db store.DBTX) *PostgresRequestStore {
	return &PostgresRequestStore{
		db: db,
	}
}

// Ensure PostgresRequestStore implements store.RequestStore interface
var _ store.RequestStore = (*PostgresRequestStore)(nil)

// WithTx implements store.RequestStore.WithTx
func (s *PostgresRequestStore) WithTx(tx *sql.Tx) store.RequestStore {
	return &PostgresRequestStore{
		db: tx,
	}
}

// Insert implements store.RequestStore.Insert
func (s *PostgresRequestStore) Insert(
	ctx context.Context,
	req *domain.Request,
) (*domain.Request, error) {
	log := logger.FromContextOrDefault(ctx, nil)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO requests (src_netid, dest_netid, status, schedule,
			made_at, finalized_at, deleted_at, prev_id, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	inserted := *req
	err := s.db.QueryRowContext(ctx, query,
		req.SrcNetID,
		req.DestNetID,
		req.Status,
		encodeSchedule(req.Schedule),
		req.MadeAt.UTC(),
		nullableTime(req.FinalizedAt),
		nullableTime(req.DeletedAt),
		nullableID(req.PrevID),
		req.Read,
	).Scan(&inserted.ID)
	if err != nil {
		log.Error("failed to insert request",
			"src_netid", req.SrcNetID,
			"dest_netid", req.DestNetID,
			"error", err)
		return nil, fmt.Errorf("failed to insert request: %w", MapError(err))
	}

	return &inserted, nil
}

// Get implements store.RequestStore.Get
func (s *PostgresRequestStore) Get(ctx context.Context, id int64) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests r WHERE id = $1`

	row := s.db.QueryRowContext(ctx, query, id)
	req, err := scanRequest(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", MapError(err))
	}

	return req, nil
}

// Update implements store.RequestStore.Update
func (s *PostgresRequestStore) Update(
	ctx context.Context,
	id int64,
	update store.RequestUpdate,
) error {
	log := logger.FromContextOrDefault(ctx, nil)

	var (
		sets []string
		args []any
	)
	if update.Status != nil {
		args = append(args, *update.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if update.FinalizedAt != nil {
		args = append(args, nullableTime(*update.FinalizedAt))
		sets = append(sets, fmt.Sprintf("finalized_at = $%d", len(args)))
	}
	if update.DeletedAt != nil {
		args = append(args, nullableTime(*update.DeletedAt))
		sets = append(sets, fmt.Sprintf("deleted_at = $%d", len(args)))
	}
	if update.Read != nil {
		args = append(args, *update.Read)
		sets = append(sets, fmt.Sprintf("read = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE requests SET %s WHERE id = $%d",
		strings.Join(sets, ", "),
		len(args),
	)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update request",
			"request_id", id,
			"error", err)
		return fmt.Errorf("failed to update request: %w", MapError(err))
	}

	if err := CheckRowsAffected(result, "request"); err != nil {
		return store.ErrRequestNotFound
	}

	return nil
}

// Delete implements store.RequestStore.Delete
func (s *PostgresRequestStore) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM requests WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", MapError(err))
	}

	if err := CheckRowsAffected(result, "request"); err != nil {
		return store.ErrRequestNotFound
	}

	return nil
}

// Active implements store.RequestStore.Active
func (s *PostgresRequestStore) Active(
	ctx context.Context,
	netid string,
	dir store.Direction,
) ([]*domain.Request, error) {
	var sideClause string
	switch dir {
	case store.DirIncoming:
		sideClause = `r.dest_netid = $1`
	case store.DirOutgoing:
		sideClause = `r.src_netid = $1`
	default:
		sideClause = `(r.src_netid = $1 OR r.dest_netid = $1)`
	}

	query := `
		SELECT ` + requestColumns + `
		FROM requests r
		WHERE ` + sideClause + ` AND ` + activeStatusClause + `
		ORDER BY r.made_at ASC, r.id ASC
	`

	return s.queryRequests(ctx, query, netid)
}

// ActiveBetween implements store.RequestStore.ActiveBetween
func (s *PostgresRequestStore) ActiveBetween(
	ctx context.Context,
	a, b string,
) ([]*domain.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests r
		WHERE ((r.src_netid = $1 AND r.dest_netid = $2)
			OR (r.src_netid = $2 AND r.dest_netid = $1))
			AND ` + activeStatusClause + `
		ORDER BY r.made_at ASC, r.id ASC
	`

	return s.queryRequests(ctx, query, a, b)
}

// ByStatus implements store.RequestStore.ByStatus
func (s *PostgresRequestStore) ByStatus(
	ctx context.Context,
	netid string,
	status domain.RequestStatus,
) ([]*domain.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests r
		WHERE (r.src_netid = $1 OR r.dest_netid = $1) AND r.status = $2
		ORDER BY r.made_at DESC, r.id DESC
	`

	return s.queryRequests(ctx, query, netid, status)
}

// All implements store.RequestStore.All
func (s *PostgresRequestStore) All(ctx context.Context, netid string) ([]*domain.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests r
		WHERE r.src_netid = $1 OR r.dest_netid = $1
		ORDER BY r.made_at DESC, r.id DESC
	`

	return s.queryRequests(ctx, query, netid)
}

// queryRequests runs a query whose select list is requestColumns and scans
// every row.
func (s *PostgresRequestStore) queryRequests(
	ctx context.Context,
	query string,
	args ...any,
) ([]*domain.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var reqs []*domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request row: %w", err)
		}
		reqs = append(reqs, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating request rows: %w", err)
	}

	return reqs, nil
}

// scanRequest reads one full request row in requestColumns order.
func scanRequest(row rowScanner) (*domain.Request, error) {
	var (
		req         domain.Request
		rawSchedule []byte
		finalizedAt sql.NullTime
		deletedAt   sql.NullTime
		prevID      sql.NullInt64
	)

	err := row.Scan(
		&req.ID,
		&req.SrcNetID,
		&req.DestNetID,
		&req.Status,
		&rawSchedule,
		&req.MadeAt,
		&finalizedAt,
		&deletedAt,
		&prevID,
		&req.Read,
	)
	if err != nil {
		return nil, err
	}

	if req.Schedule, err = decodeSchedule(rawSchedule); err != nil {
		return nil, err
	}
	if finalizedAt.Valid {
		req.FinalizedAt = finalizedAt.Time
	}
	if deletedAt.Valid {
		req.DeletedAt = deletedAt.Time
	}
	if prevID.Valid {
		req.PrevID = prevID.Int64
	}

	return &req, nil
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// nullableID maps a zero id to SQL NULL so prev_id's foreign key holds.
func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
