package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/gymbuddies/gymbuddies/internal/domain"
)

// Direction selects which side of a request a netid is on when querying.
type Direction int

const (
	// DirEither matches requests where the netid is on either side.
	DirEither Direction = 0
	// DirIncoming matches requests addressed to the netid.
	DirIncoming Direction = 1
	// DirOutgoing matches requests proposed by the netid.
	DirOutgoing Direction = 2
)

// RequestUpdate enumerates the mutable request fields. Nil fields are left
// untouched. An explicit struct keeps invalid field names a compile-time
// error instead of a silently ignored map key.
type RequestUpdate struct {
	Status      *domain.RequestStatus
	FinalizedAt *time.Time
	DeletedAt   *time.Time
	Read        *bool
}

// RequestStore defines the interface for pairing-request persistence.
type RequestStore interface {
	// Insert saves a new request and returns it with the store-assigned id.
	// Returns validation errors from the domain Request if data is invalid.
	Insert(ctx context.Context, req *domain.Request) (*domain.Request, error)

	// Get retrieves a request by id.
	// Returns ErrRequestNotFound if the request does not exist.
	Get(ctx context.Context, id int64) (*domain.Request, error)

	// Update applies the set fields of the update to the request.
	// Returns ErrRequestNotFound if the request does not exist.
	Update(ctx context.Context, id int64, update RequestUpdate) error

	// Delete removes the request row outright. Lifecycle transitions keep
	// rows around for history; only account deletion removes them.
	// Returns ErrRequestNotFound if the request does not exist.
	Delete(ctx context.Context, id int64) error

	// Active returns the active (pending or finalized) requests touching
	// netid on the given side, ordered by creation time.
	Active(ctx context.Context, netid string, dir Direction) ([]*domain.Request, error)

	// ActiveBetween returns the active requests between the unordered pair
	// of netids. The request-uniqueness invariant caps the result at one
	// element, but the slice return lets consistency checks see violations.
	ActiveBetween(ctx context.Context, a, b string) ([]*domain.Request, error)

	// ByStatus returns the requests touching netid that carry the given
	// status, newest first. Used for the matches and history views.
	ByStatus(ctx context.Context, netid string, status domain.RequestStatus) ([]*domain.Request, error)

	// All returns every request touching netid regardless of status.
	All(ctx context.Context, netid string) ([]*domain.Request, error)

	// WithTx returns a RequestStore bound to the provided transaction.
	WithTx(tx *sql.Tx) RequestStore
}
