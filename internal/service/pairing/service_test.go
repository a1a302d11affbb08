package pairing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymbuddies/gymbuddies/internal/domain"
	"github.com/gymbuddies/gymbuddies/internal/mocks"
	"github.com/gymbuddies/gymbuddies/internal/service/pairing"
	"github.com/gymbuddies/gymbuddies/internal/store"
)

// monday6pm covers Monday 18:00-19:00, twelve blocks.
func monday6pm() []domain.TimeBlock {
	var blocks []domain.TimeBlock
	for i := 0; i < 12; i++ {
		blocks = append(blocks, domain.FromDayTime(0, 18*12+i))
	}
	return blocks
}

func availabilityAt(blocks []domain.TimeBlock) domain.Schedule {
	s := domain.NewSchedule()
	for _, b := range blocks {
		s[b] = domain.StatusAvailable
	}
	return s
}

func openUser(netid string, blocks []domain.TimeBlock) *domain.User {
	return &domain.User{
		NetID:       netid,
		OkMale:      true,
		OkFemale:    true,
		OkNonbinary: true,
		Open:        true,
		Schedule:    availabilityAt(blocks),
	}
}

func newTestService(t *testing.T) (pairing.Service, *mocks.MemStore) {
	t.Helper()
	mem := mocks.NewMemStore()
	svc, err := pairing.NewService(
		mem.Users(),
		mem.Requests(),
		mem.Schedules(),
		mocks.DirectRunner{},
		nil,
	)
	require.NoError(t, err)
	return svc, mem
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	mem := mocks.NewMemStore()

	_, err := pairing.NewService(nil, mem.Requests(), mem.Schedules(), mocks.DirectRunner{}, nil)
	assert.Error(t, err)

	_, err = pairing.NewService(mem.Users(), mem.Requests(), mem.Schedules(), nil, nil)
	assert.Error(t, err)
}

func TestNewThenFinalize(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))

	req, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, req.Status)
	assert.Equal(t, int64(0), req.PrevID)

	// Creation raises PENDING on both participants without disturbing
	// AVAILABLE.
	for _, netid := range []string{"xx1111", "yy2222"} {
		u := mem.User(netid)
		for _, b := range hour {
			assert.True(t, u.Schedule[b].Has(domain.StatusPending), "block %d pending on %s", b, netid)
			assert.True(t, u.Schedule[b].Has(domain.StatusAvailable))
			assert.False(t, u.Schedule[b].Has(domain.StatusMatched))
		}
	}

	finalized, err := svc.Finalize(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestFinalized, finalized.Status)
	assert.False(t, finalized.FinalizedAt.IsZero())
	assert.False(t, finalized.Read)

	for _, netid := range []string{"xx1111", "yy2222"} {
		u := mem.User(netid)
		for _, b := range hour {
			assert.True(t, u.Schedule[b].Has(domain.StatusMatched), "block %d matched on %s", b, netid)
			assert.False(t, u.Schedule[b].Has(domain.StatusPending))
		}
	}
}

func TestNewToSelf(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))

	_, err := svc.New(context.Background(), "xx1111", "xx1111", availabilityAt(hour))
	assert.ErrorIs(t, err, pairing.ErrRequestToSelf)
}

func TestNewToBlockedUser(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	blocker := openUser("xx1111", hour)
	blocker.Blocked = []string{"yy2222"}
	mem.AddUser(blocker)
	mem.AddUser(openUser("yy2222", hour))

	_, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	assert.ErrorIs(t, err, pairing.ErrBlockedUser)

	var blockedErr *pairing.BlockedUserError
	require.ErrorAs(t, err, &blockedErr)
	assert.Equal(t, "xx1111", blockedErr.Blocker)

	// The block is symmetric: the recipient having blocked the proposer
	// also fails.
	_, err = svc.New(context.Background(), "yy2222", "xx1111", availabilityAt(hour))
	assert.ErrorIs(t, err, pairing.ErrBlockedUser)
}

func TestNewEmptySchedule(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))

	_, err := svc.New(context.Background(), "xx1111", "yy2222", domain.NewSchedule())
	assert.ErrorIs(t, err, pairing.ErrEmptyRequestSchedule)
}

func TestNewWhileClosed(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()

	closed := openUser("xx1111", hour)
	closed.Open = false
	mem.AddUser(closed)
	mem.AddUser(openUser("yy2222", hour))

	_, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	assert.ErrorIs(t, err, pairing.ErrRequestWhileClosed)

	_, err = svc.New(context.Background(), "yy2222", "xx1111", availabilityAt(hour))
	assert.ErrorIs(t, err, pairing.ErrRequestToClosedUser)
}

func TestNewUnknownUser(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))

	_, err := svc.New(context.Background(), "xx1111", "ghost", availabilityAt(hour))
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestNewDuplicatePair(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))

	first, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)

	// Same unordered pair, either direction.
	_, err = svc.New(context.Background(), "yy2222", "xx1111", availabilityAt(hour))
	assert.ErrorIs(t, err, pairing.ErrRequestAlreadyExists)

	var existsErr *pairing.AlreadyExistsError
	require.ErrorAs(t, err, &existsErr)
	assert.Equal(t, first.ID, existsErr.RequestID)
}

func TestNewConflictsWithMatchedBlock(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))

	taken := openUser("yy2222", hour)
	taken.Schedule[hour[3]] = taken.Schedule[hour[3]].With(domain.StatusMatched)
	mem.AddUser(taken)

	_, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	assert.ErrorIs(t, err, pairing.ErrConflictingSchedule)

	var conflictErr *pairing.ConflictingScheduleError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "yy2222", conflictErr.NetID)
	assert.Equal(t, []domain.TimeBlock{hour[3]}, conflictErr.Blocks)
}

func TestNewConflictsWithUnavailableBlock(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	// yy2222 is only available for the first half of the hour.
	mem.AddUser(openUser("yy2222", hour[:6]))

	_, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	assert.ErrorIs(t, err, pairing.ErrConflictingSchedule)
}

func TestFinalizeRequiresPending(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))

	req, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)
	require.NoError(t, svc.Reject(context.Background(), req.ID))

	_, err = svc.Finalize(context.Background(), req.ID)
	assert.ErrorIs(t, err, pairing.ErrStatusMismatch)

	var mismatch *pairing.StatusMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, domain.RequestPending, mismatch.Expected)
	assert.Equal(t, domain.RequestRejected, mismatch.Actual)
}

func TestFinalizeCascadesOverlappingPending(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))
	mem.AddUser(openUser("zz3333", hour))

	first, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)
	second, err := svc.New(context.Background(), "xx1111", "zz3333", availabilityAt(hour))
	require.NoError(t, err)

	// Accepting the first negotiation squeezes out the competing pending
	// proposal over the same blocks.
	_, err = svc.Finalize(context.Background(), first.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RequestRejected, mem.Request(second.ID).Status)

	// zz3333's pending claim is released; xx1111's blocks are matched.
	z := mem.User("zz3333")
	x := mem.User("xx1111")
	for _, b := range hour {
		assert.False(t, z.Schedule[b].Has(domain.StatusPending))
		assert.True(t, x.Schedule[b].Has(domain.StatusMatched))
		assert.False(t, x.Schedule[b].Has(domain.StatusPending))
	}
}

func TestFinalizeFailsOnFinalizedOverlap(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	matched := openUser("xx1111", hour)
	for _, b := range hour {
		matched.Schedule[b] = matched.Schedule[b].With(domain.StatusMatched)
	}
	mem.AddUser(matched)
	mem.AddUser(openUser("yy2222", hour))
	mem.AddUser(openUser("zz3333", hour))

	firstID := mem.AddRequest(&domain.Request{
		SrcNetID:    "xx1111",
		DestNetID:   "yy2222",
		Status:      domain.RequestFinalized,
		Schedule:    availabilityAt(hour),
		MadeAt:      time.Now().UTC().Add(-time.Hour),
		FinalizedAt: time.Now().UTC().Add(-time.Hour),
	})
	secondID := mem.AddRequest(&domain.Request{
		SrcNetID:  "zz3333",
		DestNetID: "xx1111",
		Status:    domain.RequestPending,
		Schedule:  availabilityAt(hour[3:4]),
		MadeAt:    time.Now().UTC().Add(-2 * time.Hour),
	})

	_, err := svc.Finalize(context.Background(), secondID)
	assert.ErrorIs(t, err, pairing.ErrOverlapRequests)

	var overlapErr *pairing.OverlapError
	require.ErrorAs(t, err, &overlapErr)
	assert.Equal(t, firstID, overlapErr.RequestID)

	// Once the standing match is terminated the block is free again.
	require.NoError(t, svc.Terminate(context.Background(), firstID))
	_, err = svc.Finalize(context.Background(), secondID)
	require.NoError(t, err)
}

func TestFinalizeIgnoresDisjointRequests(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()

	// Tuesday 7:00-8:00.
	var tuesday []domain.TimeBlock
	for i := 0; i < 12; i++ {
		tuesday = append(tuesday, domain.FromDayTime(1, 7*12+i))
	}

	both := append(append([]domain.TimeBlock{}, hour...), tuesday...)
	mem.AddUser(openUser("xx1111", both))
	mem.AddUser(openUser("yy2222", hour))
	mem.AddUser(openUser("zz3333", tuesday))

	first, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)
	second, err := svc.New(context.Background(), "xx1111", "zz3333", availabilityAt(tuesday))
	require.NoError(t, err)

	// Disjoint block sets never conflict, even with a shared participant.
	_, err = svc.Finalize(context.Background(), first.ID)
	require.NoError(t, err)
	_, err = svc.Finalize(context.Background(), second.ID)
	require.NoError(t, err)
}

func TestRejectClearsPendingOnce(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))

	req, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)
	require.NoError(t, svc.Reject(context.Background(), req.ID))

	for _, netid := range []string{"xx1111", "yy2222"} {
		u := mem.User(netid)
		for _, b := range hour {
			assert.False(t, u.Schedule[b].Has(domain.StatusPending))
			assert.True(t, u.Schedule[b].Has(domain.StatusAvailable))
		}
	}

	// Rejecting twice fails; already rejected.
	err = svc.Reject(context.Background(), req.ID)
	assert.ErrorIs(t, err, pairing.ErrStatusMismatch)
}

func TestRejectKeepsOtherPendingClaims(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))
	mem.AddUser(openUser("zz3333", hour))

	first, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)
	_, err = svc.New(context.Background(), "xx1111", "zz3333", availabilityAt(hour))
	require.NoError(t, err)

	require.NoError(t, svc.Reject(context.Background(), first.ID))

	// xx1111 still has a live negotiation with zz3333 over these blocks.
	x := mem.User("xx1111")
	y := mem.User("yy2222")
	for _, b := range hour {
		assert.True(t, x.Schedule[b].Has(domain.StatusPending))
		assert.False(t, y.Schedule[b].Has(domain.StatusPending))
	}
}

func TestTerminateIdempotence(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))

	req, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)
	_, err = svc.Finalize(context.Background(), req.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Terminate(context.Background(), req.ID))

	for _, netid := range []string{"xx1111", "yy2222"} {
		u := mem.User(netid)
		for _, b := range hour {
			assert.False(t, u.Schedule[b].Has(domain.StatusMatched))
			assert.True(t, u.Schedule[b].Has(domain.StatusAvailable))
		}
	}

	// Second terminate fails with a status mismatch and does not disturb
	// the schedule again.
	err = svc.Terminate(context.Background(), req.ID)
	assert.ErrorIs(t, err, pairing.ErrStatusMismatch)
}

func TestModifySwapsDirectionAndLinks(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))

	orig, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)

	counter, err := svc.Modify(context.Background(), orig.ID, availabilityAt(hour[:6]))
	require.NoError(t, err)

	assert.Equal(t, "yy2222", counter.SrcNetID)
	assert.Equal(t, "xx1111", counter.DestNetID)
	assert.Equal(t, orig.ID, counter.PrevID)
	assert.Equal(t, domain.RequestPending, counter.Status)

	// The original was deactivated.
	assert.Equal(t, domain.RequestRejected, mem.Request(orig.ID).Status)

	// Only the counter-offer's blocks remain pending.
	x := mem.User("xx1111")
	for _, b := range hour[:6] {
		assert.True(t, x.Schedule[b].Has(domain.StatusPending))
	}
	for _, b := range hour[6:] {
		assert.False(t, x.Schedule[b].Has(domain.StatusPending))
	}
}

func TestModifyRejectsNoChange(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))

	orig, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)

	_, err = svc.Modify(context.Background(), orig.ID, availabilityAt(hour))
	assert.ErrorIs(t, err, pairing.ErrNoChangeModification)
}

func TestModifyRequiresActivePrevious(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))

	orig, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)
	require.NoError(t, svc.Reject(context.Background(), orig.ID))

	_, err = svc.Modify(context.Background(), orig.ID, availabilityAt(hour[:6]))
	assert.ErrorIs(t, err, pairing.ErrPreviousRequestInactive)
}

func TestDeleteAllForUser(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))

	req, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)
	_, err = svc.Finalize(context.Background(), req.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAllForUser(context.Background(), "xx1111"))

	assert.Equal(t, 0, mem.RequestCount())

	// The surviving partner's matched blocks are released.
	y := mem.User("yy2222")
	for _, b := range hour {
		assert.False(t, y.Schedule[b].Has(domain.StatusMatched))
	}
}

func TestBrowseViews(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()

	var tuesday []domain.TimeBlock
	for i := 0; i < 12; i++ {
		tuesday = append(tuesday, domain.FromDayTime(1, 7*12+i))
	}

	both := append(append([]domain.TimeBlock{}, hour...), tuesday...)
	mem.AddUser(openUser("xx1111", both))
	mem.AddUser(openUser("yy2222", hour))
	mem.AddUser(openUser("zz3333", tuesday))

	in, err := svc.New(context.Background(), "yy2222", "xx1111", availabilityAt(hour))
	require.NoError(t, err)
	out, err := svc.New(context.Background(), "xx1111", "zz3333", availabilityAt(tuesday))
	require.NoError(t, err)

	incoming, err := svc.Incoming(context.Background(), "xx1111")
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, in.ID, incoming[0].ID)

	outgoing, err := svc.Outgoing(context.Background(), "xx1111")
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, out.ID, outgoing[0].ID)

	_, err = svc.Finalize(context.Background(), out.ID)
	require.NoError(t, err)

	matches, err := svc.Matches(context.Background(), "xx1111")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, out.ID, matches[0].ID)

	require.NoError(t, svc.Reject(context.Background(), in.ID))

	history, err := svc.History(context.Background(), "xx1111")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, in.ID, history[0].ID)
}

func TestUnreadAndMarkRead(t *testing.T) {
	svc, mem := newTestService(t)
	hour := monday6pm()
	mem.AddUser(openUser("xx1111", hour))
	mem.AddUser(openUser("yy2222", hour))

	req, err := svc.New(context.Background(), "xx1111", "yy2222", availabilityAt(hour))
	require.NoError(t, err)

	unread, err := svc.Unread(context.Background(), "yy2222")
	require.NoError(t, err)
	require.Len(t, unread, 1)

	require.NoError(t, svc.MarkRead(context.Background(), req.ID))

	unread, err = svc.Unread(context.Background(), "yy2222")
	require.NoError(t, err)
	assert.Empty(t, unread)

	// Finalizing resets the read flag: there is a new unread "matched"
	// notification.
	require.NoError(t, svc.MarkRead(context.Background(), req.ID))
	_, err = svc.Finalize(context.Background(), req.ID)
	require.NoError(t, err)

	unread, err = svc.Unread(context.Background(), "yy2222")
	require.NoError(t, err)
	require.Len(t, unread, 1)
}
