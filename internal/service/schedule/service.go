// Package schedule exposes per-user availability to the web layer: reading
// the week vector and its flag-scoped views, and replacing availability
// under the serializable runner.
package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/gymbuddies/gymbuddies/internal/domain"
	"github.com/gymbuddies/gymbuddies/internal/platform/logger"
	"github.com/gymbuddies/gymbuddies/internal/store"
)

// TxRunner abstracts the serializable transaction runner.
type TxRunner interface {
	RunSerializable(ctx context.Context, fn store.TxFn) error
}

// Service provides schedule reads and availability updates.
type Service interface {
	// Get returns the user's full week vector.
	Get(ctx context.Context, netid string) (domain.Schedule, error)

	// Events returns the user's availability as contiguous runs for the
	// calendar view.
	Events(ctx context.Context, netid string) ([]domain.Event, error)

	// SetAvailability replaces the user's AVAILABLE blocks with those of
	// the desired vector. Pending and matched claims on blocks that stay
	// available are carried over; requests hold those claims, not the
	// availability edit.
	SetAvailability(ctx context.Context, netid string, desired domain.Schedule) error

	// Available returns the blocks the user has marked available.
	Available(ctx context.Context, netid string) ([]domain.TimeBlock, error)

	// Pending returns the blocks claimed by the user's pending requests.
	Pending(ctx context.Context, netid string) ([]domain.TimeBlock, error)

	// Matched returns the blocks claimed by the user's finalized matches.
	Matched(ctx context.Context, netid string) ([]domain.TimeBlock, error)

	// AvailableUsersAt returns who is available at the given block.
	AvailableUsersAt(ctx context.Context, block domain.TimeBlock) ([]string, error)
}

// scheduleService implements the Service interface.
type scheduleService struct {
	schedules store.ScheduleStore
	runner    TxRunner
	logger    *slog.Logger
}

var _ Service = (*scheduleService)(nil)

// NewService creates a schedule Service.
func NewService(
	schedules store.ScheduleStore,
	runner TxRunner,
	log *slog.Logger,
) (Service, error) {
	if schedules == nil {
		return nil, fmt.Errorf("schedule: schedule store cannot be nil")
	}
	if runner == nil {
		return nil, fmt.Errorf("schedule: transaction runner cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &scheduleService{
		schedules: schedules,
		runner:    runner,
		logger:    log.With(slog.String("component", "schedule_service")),
	}, nil
}

// Get implements Service.Get
func (s *scheduleService) Get(ctx context.Context, netid string) (domain.Schedule, error) {
	return s.schedules.GetSchedule(ctx, netid)
}

// Events implements Service.Events
func (s *scheduleService) Events(ctx context.Context, netid string) ([]domain.Event, error) {
	schedule, err := s.schedules.GetSchedule(ctx, netid)
	if err != nil {
		return nil, err
	}
	return schedule.Events(), nil
}

// SetAvailability implements Service.SetAvailability
func (s *scheduleService) SetAvailability(
	ctx context.Context,
	netid string,
	desired domain.Schedule,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := desired.Validate(); err != nil {
		return err
	}

	err := s.runner.RunSerializable(ctx, func(ctx context.Context, tx *sql.Tx) error {
		schedules := s.schedules
		if tx != nil {
			schedules = schedules.WithTx(tx)
		}

		current, err := schedules.GetSchedule(ctx, netid)
		if err != nil {
			return err
		}

		// New availability, existing claims. The claim flags belong to the
		// request lifecycle and survive an availability edit unchanged.
		next := domain.NewSchedule()
		claims := domain.StatusPending.With(domain.StatusMatched)
		for i := range next {
			next[i] = current[i] & claims
			if desired[i].Has(domain.StatusAvailable) {
				next[i] = next[i].With(domain.StatusAvailable)
			}
		}

		return schedules.UpdateSchedule(ctx, netid, next)
	})
	if err != nil {
		return err
	}

	log.Info("availability updated", slog.String("netid", netid))
	return nil
}

// Available implements Service.Available
func (s *scheduleService) Available(ctx context.Context, netid string) ([]domain.TimeBlock, error) {
	return s.schedules.BlocksWithStatus(ctx, netid, domain.StatusAvailable)
}

// Pending implements Service.Pending
func (s *scheduleService) Pending(ctx context.Context, netid string) ([]domain.TimeBlock, error) {
	return s.schedules.BlocksWithStatus(ctx, netid, domain.StatusPending)
}

// Matched implements Service.Matched
func (s *scheduleService) Matched(ctx context.Context, netid string) ([]domain.TimeBlock, error) {
	return s.schedules.BlocksWithStatus(ctx, netid, domain.StatusMatched)
}

// AvailableUsersAt implements Service.AvailableUsersAt
func (s *scheduleService) AvailableUsersAt(
	ctx context.Context,
	block domain.TimeBlock,
) ([]string, error) {
	return s.schedules.AvailableUsersAt(ctx, block)
}
