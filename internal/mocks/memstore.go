package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/gymbuddies/gymbuddies/internal/domain"
	"github.com/gymbuddies/gymbuddies/internal/store"
)

// MemStore is an in-memory implementation of the store interfaces. All three
// store views operate on the same state, mirroring how the PostgreSQL stores
// share one database.
type MemStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	requests map[int64]*domain.Request
	nextID   int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:    make(map[string]*domain.User),
		requests: make(map[int64]*domain.Request),
		nextID:   1,
	}
}

// AddUser seeds a user directly, bypassing validation. A nil schedule is
// replaced with an empty week.
func (m *MemStore) AddUser(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Schedule == nil {
		u.Schedule = domain.NewSchedule()
	}
	m.users[u.NetID] = cloneUser(u)
}

// AddRequest seeds a request directly and returns its assigned id.
func (m *MemStore) AddRequest(r *domain.Request) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	stored := cloneRequest(r)
	stored.ID = id
	m.requests[id] = stored
	return id
}

// User returns a copy of the stored user, or nil.
func (m *MemStore) User(netid string) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[netid]
	if !ok {
		return nil
	}
	return cloneUser(u)
}

// Request returns a copy of the stored request, or nil.
func (m *MemStore) Request(id int64) *domain.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil
	}
	return cloneRequest(r)
}

// RequestCount returns the number of stored request rows.
func (m *MemStore) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Users returns the store.UserStore view.
func (m *MemStore) Users() store.UserStore { return &memUserStore{m} }

// Requests returns the store.RequestStore view.
func (m *MemStore) Requests() store.RequestStore { return &memRequestStore{m} }

// Schedules returns the store.ScheduleStore view.
func (m *MemStore) Schedules() store.ScheduleStore { return &memScheduleStore{m} }

func cloneUser(u *domain.User) *domain.User {
	out := *u
	out.Schedule = u.Schedule.Clone()
	out.Blocked = append([]string(nil), u.Blocked...)
	if u.Interests != nil {
		out.Interests = make(map[string]bool, len(u.Interests))
		for k, v := range u.Interests {
			out.Interests[k] = v
		}
	}
	return &out
}

func cloneRequest(r *domain.Request) *domain.Request {
	out := *r
	out.Schedule = r.Schedule.Clone()
	return &out
}

// memUserStore implements store.UserStore over MemStore.
type memUserStore struct {
	m *MemStore
}

var _ store.UserStore = (*memUserStore)(nil)

func (s *memUserStore) Create(ctx context.Context, user *domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.users[user.NetID]; ok {
		return store.ErrNetIDExists
	}
	s.m.users[user.NetID] = cloneUser(user)
	return nil
}

func (s *memUserStore) Get(ctx context.Context, netid string) (*domain.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[netid]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *memUserStore) UpdateProfile(
	ctx context.Context,
	netid string,
	update domain.ProfileUpdate,
) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[netid]
	if !ok {
		return store.ErrUserNotFound
	}
	update.Apply(u)
	u.LastUpdated = time.Now().UTC()
	return nil
}

func (s *memUserStore) Touch(ctx context.Context, netid string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[netid]
	if !ok {
		return store.ErrUserNotFound
	}
	u.LastUpdated = at
	return nil
}

func (s *memUserStore) Delete(ctx context.Context, netid string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.users[netid]; !ok {
		return store.ErrUserNotFound
	}
	delete(s.m.users, netid)
	return nil
}

func (s *memUserStore) Sample(
	ctx context.Context,
	exclude string,
	n int,
) ([]*domain.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	// Deterministic order keeps tests reproducible; the real store samples
	// randomly.
	netids := make([]string, 0, len(s.m.users))
	for netid := range s.m.users {
		if netid != exclude {
			netids = append(netids, netid)
		}
	}
	sort.Strings(netids)

	var out []*domain.User
	for _, netid := range netids {
		if len(out) == n {
			break
		}
		out = append(out, cloneUser(s.m.users[netid]))
	}
	return out, nil
}

func (s *memUserStore) WithTx(tx *sql.Tx) store.UserStore { return s }

// memRequestStore implements store.RequestStore over MemStore.
type memRequestStore struct {
	m *MemStore
}

var _ store.RequestStore = (*memRequestStore)(nil)

func (s *memRequestStore) Insert(
	ctx context.Context,
	req *domain.Request,
) (*domain.Request, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	stored := cloneRequest(req)
	stored.ID = s.m.nextID
	s.m.nextID++
	s.m.requests[stored.ID] = stored
	return cloneRequest(stored), nil
}

func (s *memRequestStore) Get(ctx context.Context, id int64) (*domain.Request, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	r, ok := s.m.requests[id]
	if !ok {
		return nil, store.ErrRequestNotFound
	}
	return cloneRequest(r), nil
}

func (s *memRequestStore) Update(
	ctx context.Context,
	id int64,
	update store.RequestUpdate,
) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	r, ok := s.m.requests[id]
	if !ok {
		return store.ErrRequestNotFound
	}
	if update.Status != nil {
		r.Status = *update.Status
	}
	if update.FinalizedAt != nil {
		r.FinalizedAt = *update.FinalizedAt
	}
	if update.DeletedAt != nil {
		r.DeletedAt = *update.DeletedAt
	}
	if update.Read != nil {
		r.Read = *update.Read
	}
	return nil
}

func (s *memRequestStore) Delete(ctx context.Context, id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.requests[id]; !ok {
		return store.ErrRequestNotFound
	}
	delete(s.m.requests, id)
	return nil
}

func (s *memRequestStore) Active(
	ctx context.Context,
	netid string,
	dir store.Direction,
) ([]*domain.Request, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	var out []*domain.Request
	for _, r := range s.m.requests {
		if !r.Status.Active() {
			continue
		}
		switch dir {
		case store.DirIncoming:
			if r.DestNetID != netid {
				continue
			}
		case store.DirOutgoing:
			if r.SrcNetID != netid {
				continue
			}
		default:
			if !r.Involves(netid) {
				continue
			}
		}
		out = append(out, cloneRequest(r))
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *memRequestStore) ActiveBetween(
	ctx context.Context,
	a, b string,
) ([]*domain.Request, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	var out []*domain.Request
	for _, r := range s.m.requests {
		if !r.Status.Active() {
			continue
		}
		if (r.SrcNetID == a && r.DestNetID == b) || (r.SrcNetID == b && r.DestNetID == a) {
			out = append(out, cloneRequest(r))
		}
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *memRequestStore) ByStatus(
	ctx context.Context,
	netid string,
	status domain.RequestStatus,
) ([]*domain.Request, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	var out []*domain.Request
	for _, r := range s.m.requests {
		if r.Involves(netid) && r.Status == status {
			out = append(out, cloneRequest(r))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *memRequestStore) All(ctx context.Context, netid string) ([]*domain.Request, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	var out []*domain.Request
	for _, r := range s.m.requests {
		if r.Involves(netid) {
			out = append(out, cloneRequest(r))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *memRequestStore) WithTx(tx *sql.Tx) store.RequestStore { return s }

func sortOldestFirst(reqs []*domain.Request) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].MadeAt.Equal(reqs[j].MadeAt) {
			return reqs[i].ID < reqs[j].ID
		}
		return reqs[i].MadeAt.Before(reqs[j].MadeAt)
	})
}

func sortNewestFirst(reqs []*domain.Request) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].MadeAt.Equal(reqs[j].MadeAt) {
			return reqs[i].ID > reqs[j].ID
		}
		return reqs[i].MadeAt.After(reqs[j].MadeAt)
	})
}

// memScheduleStore implements store.ScheduleStore over MemStore.
type memScheduleStore struct {
	m *MemStore
}

var _ store.ScheduleStore = (*memScheduleStore)(nil)

func (s *memScheduleStore) GetSchedule(
	ctx context.Context,
	netid string,
) (domain.Schedule, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[netid]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u.Schedule.Clone(), nil
}

func (s *memScheduleStore) UpdateSchedule(
	ctx context.Context,
	netid string,
	schedule domain.Schedule,
) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[netid]
	if !ok {
		return store.ErrUserNotFound
	}
	u.Schedule = schedule.Clone()
	u.LastUpdated = time.Now().UTC()
	return nil
}

func (s *memScheduleStore) AddStatus(
	ctx context.Context,
	netid string,
	marked []bool,
	status domain.ScheduleStatus,
) error {
	return s.applyStatus(netid, marked, status, domain.ScheduleStatus.With)
}

func (s *memScheduleStore) RemoveStatus(
	ctx context.Context,
	netid string,
	marked []bool,
	status domain.ScheduleStatus,
) error {
	return s.applyStatus(netid, marked, status, domain.ScheduleStatus.Without)
}

func (s *memScheduleStore) applyStatus(
	netid string,
	marked []bool,
	status domain.ScheduleStatus,
	apply func(domain.ScheduleStatus, domain.ScheduleStatus) domain.ScheduleStatus,
) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[netid]
	if !ok {
		return store.ErrUserNotFound
	}
	if len(marked) != len(u.Schedule) {
		return domain.ErrInvalidSchedule
	}
	for i, m := range marked {
		if m {
			u.Schedule[i] = apply(u.Schedule[i], status)
		}
	}
	u.LastUpdated = time.Now().UTC()
	return nil
}

func (s *memScheduleStore) BlocksWithStatus(
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

func (s *memScheduleStore) AvailableUsersAt(
	ctx context.Context,
	block domain.TimeBlock,
) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	var netids []string
	for netid, u := range s.m.users {
		if block.Valid() && u.Schedule[block].Has(domain.StatusAvailable) {
			netids = append(netids, netid)
		}
	}
	sort.Strings(netids)
	return netids, nil
}

func (s *memScheduleStore) WithTx(tx *sql.Tx) store.ScheduleStore { return s }
