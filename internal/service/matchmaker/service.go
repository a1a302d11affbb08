// Package matchmaker ranks candidate workout partners for a user. The
// ranking is read-only: it samples candidates, applies hard filters, scores
// the survivors, and returns the top netids. It never writes and runs
// outside the serializable transaction runner.
package matchmaker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gymbuddies/gymbuddies/internal/config"
	"github.com/gymbuddies/gymbuddies/internal/domain"
	"github.com/gymbuddies/gymbuddies/internal/platform/logger"
	"github.com/gymbuddies/gymbuddies/internal/store"
)

// blocksPerHour is the window size for schedule-overlap scoring: only full
// contiguous hours where both users are available count.
const blocksPerHour = domain.NumHourBlocks

// Service finds compatible workout partners.
type Service interface {
	// FindMatches returns up to the configured number of candidate netids
	// for the user, best match first.
	FindMatches(ctx context.Context, netid string) ([]string, error)
}

// matchmakerService implements the Service interface.
type matchmakerService struct {
	users    store.UserStore
	requests store.RequestStore
	cfg      config.MatchmakerConfig
	logger   *slog.Logger
}

var _ Service = (*matchmakerService)(nil)

// NewService creates a matchmaker Service.
func NewService(
	users store.UserStore,
	requests store.RequestStore,
	cfg config.MatchmakerConfig,
	log *slog.Logger,
) (Service, error) {
	if users == nil {
		return nil, fmt.Errorf("matchmaker: user store cannot be nil")
	}
	if requests == nil {
		return nil, fmt.Errorf("matchmaker: request store cannot be nil")
	}
	if cfg.SamplePool <= 0 {
		return nil, fmt.Errorf("matchmaker: sample pool must be positive, got %d", cfg.SamplePool)
	}
	if cfg.ReturnCount <= 0 {
		return nil, fmt.Errorf("matchmaker: return count must be positive, got %d", cfg.ReturnCount)
	}
	if log == nil {
		log = slog.Default()
	}
	return &matchmakerService{
		users:    users,
		requests: requests,
		cfg:      cfg,
		logger:   log.With(slog.String("component", "matchmaker_service")),
	}, nil
}

// candidate pairs a scored user with its score for ranking.
type candidate struct {
	netid string
	score float64
}

// FindMatches implements Service.FindMatches
func (s *matchmakerService) FindMatches(ctx context.Context, netid string) ([]string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	requester, err := s.users.Get(ctx, netid)
	if err != nil {
		return nil, err
	}

	pool, err := s.users.Sample(ctx, netid, s.cfg.SamplePool)
	if err != nil {
		return nil, err
	}

	// Users already engaged with the requester are hard-filtered, whichever
	// side proposed.
	active, err := s.requests.Active(ctx, netid, store.DirEither)
	if err != nil {
		return nil, err
	}
	engaged := make(map[string]bool, len(active))
	for _, req := range active {
		engaged[req.OtherParty(netid)] = true
	}

	var candidates []candidate
	for _, other := range pool {
		if !s.admissible(requester, other, engaged) {
			continue
		}

		overlap := hourOverlapBlocks(requester.Schedule, other.Schedule)
		if overlap == 0 {
			continue
		}

		candidates = append(candidates, candidate{
			netid: other.NetID,
			score: s.score(requester, other, overlap),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score == candidates[j].score {
			return candidates[i].netid < candidates[j].netid
		}
		return candidates[i].score > candidates[j].score
	})

	n := s.cfg.ReturnCount
	if len(candidates) < n {
		n = len(candidates)
	}
	matched := make([]string, 0, n)
	for _, c := range candidates[:n] {
		matched = append(matched, c.netid)
	}

	log.Debug("computed matches",
		slog.String("netid", netid),
		slog.Int("pool", len(pool)),
		slog.Int("scored", len(candidates)),
		slog.Int("returned", len(matched)))
	return matched, nil
}

// admissible applies the hard filters: engaged pairs, blocked lists in
// either direction, closed users, and pairwise gender incompatibility.
func (s *matchmakerService) admissible(
	requester, other *domain.User,
	engaged map[string]bool,
) bool {
	if other.NetID == requester.NetID {
		return false
	}
	if engaged[other.NetID] {
		return false
	}
	if requester.HasBlocked(other.NetID) || other.HasBlocked(requester.NetID) {
		return false
	}
	if !other.Open {
		return false
	}
	if !requester.AcceptsGender(other.Gender) || !other.AcceptsGender(requester.Gender) {
		return false
	}
	return true
}

// score computes the weighted compatibility score for an admissible
// candidate.
func (s *matchmakerService) score(requester, other *domain.User, overlapBlocks int) float64 {
	level := 0
	if requester.LevelPreference.Satisfied(requester.Level, other.Level) {
		level++
	}
	if other.LevelPreference.Satisfied(other.Level, requester.Level) {
		level++
	}

	interests := requester.SharedInterests(other)
	scheduleTerm := float64(overlapBlocks) / float64(domain.NumWeekBlocks)

	return s.cfg.LevelWeight*float64(level) +
		s.cfg.InterestsWeight*float64(interests) +
		s.cfg.ScheduleWeight*scheduleTerm
}

// hourOverlapBlocks counts the blocks inside full contiguous one-hour
// windows where both users are AVAILABLE. A run of mutual availability
// contributes its length rounded down to whole hours; partial hours do not
// count.
func hourOverlapBlocks(a, b domain.Schedule) int {
	total := 0
	run := 0

	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i <= n; i++ {
		if i < n && a[i].Has(domain.StatusAvailable) && b[i].Has(domain.StatusAvailable) {
			run++
			continue
		}
		total += (run / blocksPerHour) * blocksPerHour
		run = 0
	}
	return total
}
