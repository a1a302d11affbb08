package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/gymbuddies/gymbuddies/internal/domain"
)

// UserStore defines the interface for user profile persistence.
type UserStore interface {
	// Create saves a new user to the store.
	// Returns ErrNetIDExists if the netid is already taken.
	// Returns validation errors from the domain User if data is invalid.
	Create(ctx context.Context, user *domain.User) error

	// Get retrieves a user by netid.
	// Returns ErrUserNotFound if the user does not exist.
	Get(ctx context.Context, netid string) (*domain.User, error)

	// UpdateProfile applies the set fields of the update to the user and
	// refreshes the last-updated timestamp.
	// Returns ErrUserNotFound if the user does not exist.
	UpdateProfile(ctx context.Context, netid string, update domain.ProfileUpdate) error

	// Touch refreshes the user's last-updated timestamp. Pollers use the
	// timestamp to decide whether their view of the user is stale.
	// Returns ErrUserNotFound if the user does not exist.
	Touch(ctx context.Context, netid string, at time.Time) error

	// Delete removes a user from the store. The caller is responsible for
	// deactivating the user's requests first (see pairing.DeleteAllForUser).
	// Returns ErrUserNotFound if the user does not exist.
	Delete(ctx context.Context, netid string) error

	// Sample returns up to n users drawn at random, excluding the given
	// netid. Fewer than n users are returned when the store is small.
	Sample(ctx context.Context, exclude string, n int) ([]*domain.User, error)

	// WithTx returns a UserStore bound to the provided transaction. The
	// transaction is created and managed by the caller (typically a
	// service running under the serializable runner).
	WithTx(tx *sql.Tx) UserStore
}
