package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gymbuddies/gymbuddies/internal/domain"
	"github.com/gymbuddies/gymbuddies/internal/platform/logger"
	"github.com/gymbuddies/gymbuddies/internal/store"
)

// userColumns is the select list shared by every query that scans a full
// user row. Keep it in sync with scanUser.
const userColumns = `netid, name, contact, bio, gender, ok_male, ok_female,
	ok_nonbinary, level, level_preference, interests, open, notifications,
	schedule, blocked, last_updated`

// PostgresUserStore implements the store.UserStore interface
// using a PostgreSQL database as the storage backend.
type PostgresUserStore struct {
	db store.DBTX
}

// NewPostgresUserStore creates a new PostgreSQL implementation of the
// UserStore interface. It accepts any DBTX, so the same store works against
// a connection pool or inside a caller-managed transaction.
func NewPostgresUserStore(db store.DBTX) *PostgresUserStore {
	return &PostgresUserStore{
		db: db,
	}
}

// Ensure PostgresUserStore implements store.UserStore interface
var _ store.UserStore = (*PostgresUserStore)(nil)

// WithTx implements store.UserStore.WithTx
func (s *PostgresUserStore) WithTx(tx *sql.Tx) store.UserStore {
	return &PostgresUserStore{
		db: tx,
	}
}

// Create implements store.UserStore.Create
func (s *PostgresUserStore) Create(ctx context.Context, user *domain.User) error {
	log := logger.FromContextOrDefault(ctx, nil)

	if err := user.Validate(); err != nil {
		return err
	}

	interests, err := encodeInterests(user.Interests)
	if err != nil {
		return fmt.Errorf("failed to encode interests: %w", err)
	}
	blocked, err := encodeBlocked(user.Blocked)
	if err != nil {
		return fmt.Errorf("failed to encode blocked list: %w", err)
	}

	if user.LastUpdated.IsZero() {
		user.LastUpdated = time.Now().UTC()
	}

	query := `
		INSERT INTO users (netid, name, contact, bio, gender, ok_male,
			ok_female, ok_nonbinary, level, level_preference, interests,
			open, notifications, schedule, blocked, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = s.db.ExecContext(ctx, query,
		user.NetID,
		user.Name,
		user.Contact,
		user.Bio,
		user.Gender,
		user.OkMale,
		user.OkFemale,
		user.OkNonbinary,
		user.Level,
		user.LevelPreference,
		interests,
		user.Open,
		user.Notifications,
		encodeSchedule(user.Schedule),
		blocked,
		user.LastUpdated,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", store.ErrNetIDExists, err)
		}
		log.Error("failed to create user",
			"netid", user.NetID,
			"error", err)
		return fmt.Errorf("failed to create user: %w", MapError(err))
	}

	return nil
}

// Get implements store.UserStore.Get
func (s *PostgresUserStore) Get(ctx context.Context, netid string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE netid = $1`

	row := s.db.QueryRowContext(ctx, query, netid)
	user, err := scanUser(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", MapError(err))
	}

	return user, nil
}

// UpdateProfile implements store.UserStore.UpdateProfile. The update is a
// read-modify-write of the full row; callers needing atomicity against
// concurrent writers run it inside the serializable runner.
func (s *PostgresUserStore) UpdateProfile(
	ctx context.Context,
	netid string,
	update domain.ProfileUpdate,
) error {
	log := logger.FromContextOrDefault(ctx, nil)

	user, err := s.Get(ctx, netid)
	if err != nil {
		return err
	}

	update.Apply(user)
	user.LastUpdated = time.Now().UTC()

	interests, err := encodeInterests(user.Interests)
	if err != nil {
		return fmt.Errorf("failed to encode interests: %w", err)
	}
	blocked, err := encodeBlocked(user.Blocked)
	if err != nil {
		return fmt.Errorf("failed to encode blocked list: %w", err)
	}

	query := `
		UPDATE users
		SET name = $1, contact = $2, bio = $3, gender = $4, ok_male = $5,
			ok_female = $6, ok_nonbinary = $7, level = $8,
			level_preference = $9, interests = $10, open = $11,
			notifications = $12, blocked = $13, last_updated = $14
		WHERE netid = $15
	`

	result, err := s.db.ExecContext(ctx, query,
		user.Name,
		user.Contact,
		user.Bio,
		user.Gender,
		user.OkMale,
		user.OkFemale,
		user.OkNonbinary,
		user.Level,
		user.LevelPreference,
		interests,
		user.Open,
		user.Notifications,
		blocked,
		user.LastUpdated,
		netid,
	)
	if err != nil {
		log.Error("failed to update user profile",
			"netid", netid,
			"error", err)
		return fmt.Errorf("failed to update user profile: %w", MapError(err))
	}

	if err := CheckRowsAffected(result, "user"); err != nil {
		return store.ErrUserNotFound
	}

	return nil
}

// Touch implements store.UserStore.Touch
func (s *PostgresUserStore) Touch(ctx context.Context, netid string, at time.Time) error {
	query := `UPDATE users SET last_updated = $1 WHERE netid = $2`

	result, err := s.db.ExecContext(ctx, query, at.UTC(), netid)
	if err != nil {
		return fmt.Errorf("failed to touch user: %w", MapError(err))
	}

	if err := CheckRowsAffected(result, "user"); err != nil {
		return store.ErrUserNotFound
	}

	return nil
}

// Delete implements store.UserStore.Delete
func (s *PostgresUserStore) Delete(ctx context.Context, netid string) error {
	log := logger.FromContextOrDefault(ctx, nil)

	query := `DELETE FROM users WHERE netid = $1`

	result, err := s.db.ExecContext(ctx, query, netid)
	if err != nil {
		log.Error("failed to delete user",
			"netid", netid,
			"error", err)
		return fmt.Errorf("failed to delete user: %w", MapError(err))
	}

	if err := CheckRowsAffected(result, "user"); err != nil {
		return store.ErrUserNotFound
	}

	return nil
}

// Sample implements store.UserStore.Sample
func (s *PostgresUserStore) Sample(
	ctx context.Context,
	exclude string,
	n int,
) ([]*domain.User, error) {
	if n <= 0 {
		return nil, nil
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE netid <> $1
		ORDER BY random()
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, exclude, n)
	if err != nil {
		return nil, fmt.Errorf("failed to sample users: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sampled user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sampled users: %w", err)
	}

	return users, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one full user row in userColumns order.
func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user         domain.User
		rawInterests []byte
		rawSchedule  []byte
		rawBlocked   []byte
	)

	err := row.Scan(
		&user.NetID,
		&user.Name,
		&user.Contact,
		&user.Bio,
		&user.Gender,
		&user.OkMale,
		&user.OkFemale,
		&user.OkNonbinary,
		&user.Level,
		&user.LevelPreference,
		&rawInterests,
		&user.Open,
		&user.Notifications,
		&rawSchedule,
		&rawBlocked,
		&user.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if user.Interests, err = decodeInterests(rawInterests); err != nil {
		return nil, err
	}
	if user.Schedule, err = decodeSchedule(rawSchedule); err != nil {
		return nil, err
	}
	if user.Blocked, err = decodeBlocked(rawBlocked); err != nil {
		return nil, err
	}

	return &user, nil
}
