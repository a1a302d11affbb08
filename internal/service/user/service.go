// Package user manages profiles and account lifecycle: registration,
// profile updates, blocking, and deletion with its request cascade.
package user

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/gymbuddies/gymbuddies/internal/domain"
	"github.com/gymbuddies/gymbuddies/internal/platform/logger"
	"github.com/gymbuddies/gymbuddies/internal/service/pairing"
	"github.com/gymbuddies/gymbuddies/internal/store"
)

// TxRunner abstracts the serializable transaction runner.
type TxRunner interface {
	RunSerializable(ctx context.Context, fn store.TxFn) error
}

// Service provides profile and account operations.
type Service interface {
	// Register creates a new profile.
	Register(ctx context.Context, u *domain.User) error

	// Get retrieves a profile by netid.
	Get(ctx context.Context, netid string) (*domain.User, error)

	// UpdateProfile applies the set fields of the update.
	UpdateProfile(ctx context.Context, netid string, update domain.ProfileUpdate) error

	// Delete removes the account. Every request touching the user is
	// deactivated and removed first, so partners' schedules release their
	// claims.
	Delete(ctx context.Context, netid string) error
}

// userService implements the Service interface.
type userService struct {
	users   store.UserStore
	pairing pairing.Service
	runner  TxRunner
	logger  *slog.Logger
}

var _ Service = (*userService)(nil)

// NewService creates a user Service.
func NewService(
	users store.UserStore,
	pairingSvc pairing.Service,
	runner TxRunner,
	log *slog.Logger,
) (Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user: user store cannot be nil")
	}
	if pairingSvc == nil {
		return nil, fmt.Errorf("user: pairing service cannot be nil")
	}
	if runner == nil {
		return nil, fmt.Errorf("user: transaction runner cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &userService{
		users:   users,
		pairing: pairingSvc,
		runner:  runner,
		logger:  log.With(slog.String("component", "user_service")),
	}, nil
}

// Register implements Service.Register
func (s *userService) Register(ctx context.Context, u *domain.User) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if u.Schedule == nil {
		u.Schedule = domain.NewSchedule()
	}
	if err := u.Validate(); err != nil {
		return err
	}

	err := s.runner.RunSerializable(ctx, func(ctx context.Context, tx *sql.Tx) error {
		users := s.users
		if tx != nil {
			users = users.WithTx(tx)
		}
		return users.Create(ctx, u)
	})
	if err != nil {
		return err
	}

	log.Info("user registered", slog.String("netid", u.NetID))
	return nil
}

// Get implements Service.Get
func (s *userService) Get(ctx context.Context, netid string) (*domain.User, error) {
	return s.users.Get(ctx, netid)
}

// UpdateProfile implements Service.UpdateProfile
func (s *userService) UpdateProfile(
	ctx context.Context,
	netid string,
	update domain.ProfileUpdate,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := s.runner.RunSerializable(ctx, func(ctx context.Context, tx *sql.Tx) error {
		users := s.users
		if tx != nil {
			users = users.WithTx(tx)
		}
		return users.UpdateProfile(ctx, netid, update)
	})
	if err != nil {
		return err
	}

	log.Info("profile updated", slog.String("netid", netid))
	return nil
}

// Delete implements Service.Delete
func (s *userService) Delete(ctx context.Context, netid string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	// The request cascade runs first in its own serializable transaction;
	// partners' schedule flags are released before the profile disappears.
	if err := s.pairing.DeleteAllForUser(ctx, netid); err != nil {
		return err
	}

	err := s.runner.RunSerializable(ctx, func(ctx context.Context, tx *sql.Tx) error {
		users := s.users
		if tx != nil {
			users = users.WithTx(tx)
		}
		return users.Delete(ctx, netid)
	})
	if err != nil {
		return err
	}

	log.Info("user deleted", slog.String("netid", netid))
	return nil
}
