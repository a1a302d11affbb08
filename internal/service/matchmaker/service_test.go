package matchmaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymbuddies/gymbuddies/internal/config"
	"github.com/gymbuddies/gymbuddies/internal/domain"
	"github.com/gymbuddies/gymbuddies/internal/mocks"
)

func testConfig() config.MatchmakerConfig {
	return config.MatchmakerConfig{
		SamplePool:      25,
		ReturnCount:     10,
		LevelWeight:     0.5,
		InterestsWeight: 0.1,
		ScheduleWeight:  1.0,
	}
}

// availableFor marks count blocks AVAILABLE starting at block start.
func availableFor(start, count int) domain.Schedule {
	s := domain.NewSchedule()
	for i := 0; i < count; i++ {
		s[start+i] = domain.StatusAvailable
	}
	return s
}

func candidateUser(netid string, schedule domain.Schedule) *domain.User {
	return &domain.User{
		NetID:       netid,
		OkMale:      true,
		OkFemale:    true,
		OkNonbinary: true,
		Open:        true,
		Schedule:    schedule,
	}
}

func newTestService(t *testing.T, mem *mocks.MemStore, cfg config.MatchmakerConfig) Service {
	t.Helper()
	svc, err := NewService(mem.Users(), mem.Requests(), cfg, nil)
	require.NoError(t, err)
	return svc
}

func TestNewServiceValidatesConfig(t *testing.T) {
	mem := mocks.NewMemStore()

	_, err := NewService(nil, mem.Requests(), testConfig(), nil)
	assert.Error(t, err)

	bad := testConfig()
	bad.SamplePool = 0
	_, err = NewService(mem.Users(), mem.Requests(), bad, nil)
	assert.Error(t, err)
}

func TestFindMatchesExcludesIneligible(t *testing.T) {
	mem := mocks.NewMemStore()
	shared := availableFor(0, 24)

	mem.AddUser(candidateUser("me0000", shared))

	// Eligible.
	mem.AddUser(candidateUser("ok1111", shared))

	// Closed to matching.
	closed := candidateUser("closed22", shared)
	closed.Open = false
	mem.AddUser(closed)

	// Has blocked the requester.
	blocker := candidateUser("block33", shared)
	blocker.Blocked = []string{"me0000"}
	mem.AddUser(blocker)

	// Gender-incompatible: requester does not accept them.
	them := candidateUser("gender44", shared)
	them.Gender = domain.GenderMale
	mem.AddUser(them)
	update := mem.User("me0000")
	update.OkMale = false
	mem.AddUser(update)

	// Already in an active negotiation with the requester.
	engaged := candidateUser("busy55", shared)
	mem.AddUser(engaged)
	mem.AddRequest(&domain.Request{
		SrcNetID:  "me0000",
		DestNetID: "busy55",
		Status:    domain.RequestPending,
		Schedule:  availableFor(0, 12),
		MadeAt:    time.Now().UTC(),
	})

	// No mutual full-hour availability.
	mem.AddUser(candidateUser("late66", availableFor(1000, 24)))

	svc := newTestService(t, mem, testConfig())
	matches, err := svc.FindMatches(context.Background(), "me0000")
	require.NoError(t, err)

	assert.Equal(t, []string{"ok1111"}, matches)
}

func TestFindMatchesNeverReturnsRequester(t *testing.T) {
	mem := mocks.NewMemStore()
	mem.AddUser(candidateUser("me0000", availableFor(0, 24)))

	svc := newTestService(t, mem, testConfig())
	matches, err := svc.FindMatches(context.Background(), "me0000")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindMatchesRanksByScore(t *testing.T) {
	mem := mocks.NewMemStore()
	shared := availableFor(0, 24)

	me := candidateUser("me0000", shared)
	me.Level = domain.LevelIntermediate
	me.LevelPreference = domain.LevelPrefEqual
	me.Interests = map[string]bool{"lifting": true, "cardio": true}
	mem.AddUser(me)

	// Same level, shared interests: strongest candidate.
	best := candidateUser("best11", shared)
	best.Level = domain.LevelIntermediate
	best.Interests = map[string]bool{"lifting": true, "cardio": true}
	mem.AddUser(best)

	// Wrong level for the requester's EQUAL preference, no interests.
	weak := candidateUser("weak22", shared)
	weak.Level = domain.LevelBeginner
	mem.AddUser(weak)

	svc := newTestService(t, mem, testConfig())
	matches, err := svc.FindMatches(context.Background(), "me0000")
	require.NoError(t, err)

	assert.Equal(t, []string{"best11", "weak22"}, matches)
}

func TestFindMatchesCapsReturnCount(t *testing.T) {
	mem := mocks.NewMemStore()
	shared := availableFor(0, 24)
	mem.AddUser(candidateUser("me0000", shared))
	for _, netid := range []string{"aa1", "bb2", "cc3", "dd4"} {
		mem.AddUser(candidateUser(netid, shared))
	}

	cfg := testConfig()
	cfg.ReturnCount = 2
	svc := newTestService(t, mem, cfg)

	matches, err := svc.FindMatches(context.Background(), "me0000")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestHourOverlapBlocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b domain.Schedule
		want int
	}{
		{
			name: "no overlap",
			a:    availableFor(0, 12),
			b:    availableFor(100, 12),
			want: 0,
		},
		{
			name: "exactly one hour",
			a:    availableFor(0, 12),
			b:    availableFor(0, 12),
			want: 12,
		},
		{
			name: "partial hour does not count",
			a:    availableFor(0, 11),
			b:    availableFor(0, 11),
			want: 0,
		},
		{
			name: "ninety minutes rounds down to one hour",
			a:    availableFor(0, 18),
			b:    availableFor(0, 18),
			want: 12,
		},
		{
			name: "offset overlap counts the intersection",
			a:    availableFor(0, 24),
			b:    availableFor(6, 18),
			want: 12,
		},
		{
			name: "two separate hours",
			a:    mergeSchedules(availableFor(0, 12), availableFor(48, 12)),
			b:    mergeSchedules(availableFor(0, 12), availableFor(48, 12)),
			want: 24,
		},
		{
			name: "gap splits runs below an hour",
			a:    mergeSchedules(availableFor(0, 6), availableFor(7, 6)),
			b:    availableFor(0, 13),
			want: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, hourOverlapBlocks(tt.a, tt.b))
		})
	}
}

func mergeSchedules(a, b domain.Schedule) domain.Schedule {
	out := a.Clone()
	for i, st := range b {
		out[i] = out[i].With(st)
	}
	return out
}
