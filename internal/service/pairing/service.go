// Package pairing implements the request state machine: creation,
// counter-offers, finalization, rejection, and termination of pairing
// proposals, with schedule-flag side effects applied in the same
// serializable transaction as the status change.
package pairing

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/gymbuddies/gymbuddies/internal/domain"
	"github.com/gymbuddies/gymbuddies/internal/platform/logger"
	"github.com/gymbuddies/gymbuddies/internal/store"
)

// TxRunner abstracts the serializable transaction runner. Mutating
// operations run their whole closure under one serializable transaction;
// the runner retries the closure on serialization conflicts.
type TxRunner interface {
	RunSerializable(ctx context.Context, fn store.TxFn) error
}

// Service exposes the request lifecycle to the web layer.
type Service interface {
	// New creates a PENDING request from src to dest over the AVAILABLE
	// blocks of the proposed schedule.
	New(ctx context.Context, src, dest string, proposed domain.Schedule) (*domain.Request, error)

	// Modify counter-offers a request: it creates a new request with the
	// proposing direction flipped and the original deactivated, linked via
	// the new request's PrevID.
	Modify(ctx context.Context, requestID int64, proposed domain.Schedule) (*domain.Request, error)

	// Finalize accepts a PENDING request. Overlap with a FINALIZED request
	// fails with OverlapError; overlapping PENDING requests of either
	// participant are rejected as a side effect, so finalized claims are
	// exclusive per block.
	Finalize(ctx context.Context, requestID int64) (*domain.Request, error)

	// Reject declines a PENDING request.
	Reject(ctx context.Context, requestID int64) error

	// Terminate ends a FINALIZED match and releases its MATCHED blocks.
	Terminate(ctx context.Context, requestID int64) error

	// DeleteAllForUser deactivates and removes every request touching
	// netid. Used on account deletion.
	DeleteAllForUser(ctx context.Context, netid string) error

	// Get retrieves a single request.
	Get(ctx context.Context, requestID int64) (*domain.Request, error)

	// Incoming returns the PENDING requests addressed to netid, oldest
	// first.
	Incoming(ctx context.Context, netid string) ([]*domain.Request, error)

	// Outgoing returns the PENDING requests proposed by netid, oldest
	// first.
	Outgoing(ctx context.Context, netid string) ([]*domain.Request, error)

	// Matches returns netid's FINALIZED requests, newest first.
	Matches(ctx context.Context, netid string) ([]*domain.Request, error)

	// History returns netid's rejected and terminated requests, newest
	// first.
	History(ctx context.Context, netid string) ([]*domain.Request, error)

	// Unread returns the active requests touching netid that have not been
	// marked read.
	Unread(ctx context.Context, netid string) ([]*domain.Request, error)

	// MarkRead records that netid has seen the request.
	MarkRead(ctx context.Context, requestID int64) error
}

// pairingService implements the Service interface.
type pairingService struct {
	users     store.UserStore
	requests  store.RequestStore
	schedules store.ScheduleStore
	runner    TxRunner
	logger    *slog.Logger
}

var _ Service = (*pairingService)(nil)

// NewService creates a pairing Service. All store and runner dependencies
// are required.
func NewService(
	users store.UserStore,
	requests store.RequestStore,
	schedules store.ScheduleStore,
	runner TxRunner,
	log *slog.Logger,
) (Service, error) {
	if users == nil {
		return nil, NewPairingServiceError("new", "user store cannot be nil", nil)
	}
	if requests == nil {
		return nil, NewPairingServiceError("new", "request store cannot be nil", nil)
	}
	if schedules == nil {
		return nil, NewPairingServiceError("new", "schedule store cannot be nil", nil)
	}
	if runner == nil {
		return nil, NewPairingServiceError("new", "transaction runner cannot be nil", nil)
	}
	if log == nil {
		log = slog.Default()
	}
	return &pairingService{
		users:     users,
		requests:  requests,
		schedules: schedules,
		runner:    runner,
		logger:    log.With(slog.String("component", "pairing_service")),
	}, nil
}

// txStores binds the stores to the transaction. A nil transaction leaves
// the stores as constructed, which test fakes rely on.
func (s *pairingService) txStores(tx *sql.Tx) (store.UserStore, store.RequestStore, store.ScheduleStore) {
	if tx == nil {
		return s.users, s.requests, s.schedules
	}
	return s.users.WithTx(tx), s.requests.WithTx(tx), s.schedules.WithTx(tx)
}

// New implements Service.New
func (s *pairingService) New(
	ctx context.Context,
	src, dest string,
	proposed domain.Schedule,
) (*domain.Request, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var created *domain.Request
	err := s.runner.RunSerializable(ctx, func(ctx context.Context, tx *sql.Tx) error {
		users, requests, schedules := s.txStores(tx)
		var err error
		created, err = s.create(ctx, users, requests, schedules, src, dest, proposed, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info("pairing request created",
		slog.Int64("request_id", created.ID),
		slog.String("src_netid", src),
		slog.String("dest_netid", dest))
	return created, nil
}

// Modify implements Service.Modify
func (s *pairingService) Modify(
	ctx context.Context,
	requestID int64,
	proposed domain.Schedule,
) (*domain.Request, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var created *domain.Request
	err := s.runner.RunSerializable(ctx, func(ctx context.Context, tx *sql.Tx) error {
		users, requests, schedules := s.txStores(tx)

		prev, err := requests.Get(ctx, requestID)
		if err != nil {
			return err
		}

		// A counter-offer flips the proposing direction.
		created, err = s.create(
			ctx,
			users,
			requests,
			schedules,
			prev.DestNetID,
			prev.SrcNetID,
			proposed,
			prev,
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info("pairing request modified",
		slog.Int64("request_id", created.ID),
		slog.Int64("prev_request_id", requestID))
	return created, nil
}

// create runs the full precondition ladder and inserts the new PENDING
// request. prev is non-nil for counter-offers; it is deactivated on success.
func (s *pairingService) create(
	ctx context.Context,
	users store.UserStore,
	requests store.RequestStore,
	schedules store.ScheduleStore,
	src, dest string,
	proposed domain.Schedule,
	prev *domain.Request,
) (*domain.Request, error) {
	if src == dest {
		return nil, ErrRequestToSelf
	}
	if err := proposed.Validate(); err != nil {
		return nil, err
	}

	selected := proposed.Blocks(domain.StatusAvailable)
	if len(selected) == 0 {
		return nil, ErrEmptyRequestSchedule
	}

	srcUser, err := users.Get(ctx, src)
	if err != nil {
		return nil, err
	}
	destUser, err := users.Get(ctx, dest)
	if err != nil {
		return nil, err
	}

	if srcUser.HasBlocked(dest) {
		return nil, &BlockedUserError{Blocker: src, Blocked: dest}
	}
	if destUser.HasBlocked(src) {
		return nil, &BlockedUserError{Blocker: dest, Blocked: src}
	}

	if prev != nil {
		if proposed.Equal(prev.Schedule) {
			return nil, ErrNoChangeModification
		}
		if !prev.Status.Active() {
			return nil, ErrPreviousRequestInactive
		}
	} else {
		// The open gate only guards fresh proposals; a counter-offer on an
		// active negotiation goes through even if a party has since closed.
		if !srcUser.Open {
			return nil, ErrRequestWhileClosed
		}
		if !destUser.Open {
			return nil, ErrRequestToClosedUser
		}
	}

	active, err := requests.ActiveBetween(ctx, src, dest)
	if err != nil {
		return nil, err
	}
	for _, other := range active {
		if prev != nil && other.ID == prev.ID {
			continue
		}
		return nil, &AlreadyExistsError{RequestID: other.ID}
	}

	for _, u := range []*domain.User{srcUser, destUser} {
		var conflicts []domain.TimeBlock
		for _, b := range selected {
			st := u.Schedule[b]
			if !st.Has(domain.StatusAvailable) || st.Has(domain.StatusMatched) {
				conflicts = append(conflicts, b)
			}
		}
		if len(conflicts) > 0 {
			return nil, &ConflictingScheduleError{NetID: u.NetID, Blocks: conflicts}
		}
	}

	var prevID int64
	if prev != nil {
		if err := s.deactivate(ctx, users, requests, schedules, prev); err != nil {
			return nil, err
		}
		prevID = prev.ID
	}

	// Normalize the stored proposal to a pure availability mask.
	normalized := domain.NewSchedule()
	marked := proposed.Marked(domain.StatusAvailable)
	for i, m := range marked {
		if m {
			normalized[i] = domain.StatusAvailable
		}
	}

	inserted, err := requests.Insert(ctx, &domain.Request{
		SrcNetID:  src,
		DestNetID: dest,
		Status:    domain.RequestPending,
		Schedule:  normalized,
		MadeAt:    time.Now().UTC(),
		PrevID:    prevID,
	})
	if err != nil {
		return nil, NewPairingServiceError("create", "failed to insert request", err)
	}

	// A block is PENDING while at least one pending request claims it.
	if err := schedules.AddStatus(ctx, src, marked, domain.StatusPending); err != nil {
		return nil, NewPairingServiceError("create", "failed to flag proposer blocks", err)
	}
	if err := schedules.AddStatus(ctx, dest, marked, domain.StatusPending); err != nil {
		return nil, NewPairingServiceError("create", "failed to flag recipient blocks", err)
	}

	return inserted, nil
}

// Finalize implements Service.Finalize
func (s *pairingService) Finalize(ctx context.Context, requestID int64) (*domain.Request, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var finalized *domain.Request
	err := s.runner.RunSerializable(ctx, func(ctx context.Context, tx *sql.Tx) error {
		users, requests, schedules := s.txStores(tx)

		req, err := requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestPending {
			return &StatusMismatchError{Expected: domain.RequestPending, Actual: req.Status}
		}

		// Re-check overlap against every other active request touching
		// either participant. A finalized overlap is a hard failure; pending
		// overlaps lose to the acceptance and are rejected below.
		others, err := s.activeTouchingPair(ctx, requests, req)
		if err != nil {
			return err
		}
		var cascade []*domain.Request
		for _, other := range others {
			if !other.Overlaps(req) {
				continue
			}
			if other.Status == domain.RequestFinalized {
				return &OverlapError{RequestID: other.ID}
			}
			cascade = append(cascade, other)
		}
		for _, other := range cascade {
			if err := s.rejectTx(ctx, users, requests, schedules, other); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		status := domain.RequestFinalized
		read := false
		err = requests.Update(ctx, req.ID, store.RequestUpdate{
			Status:      &status,
			FinalizedAt: &now,
			Read:        &read,
		})
		if err != nil {
			return NewPairingServiceError("finalize", "failed to update request", err)
		}

		// Swap the pair's PENDING claim for MATCHED on the accepted blocks.
		marked := req.Schedule.Marked(domain.StatusAvailable)
		for _, netid := range []string{req.SrcNetID, req.DestNetID} {
			if err := schedules.RemoveStatus(ctx, netid, marked, domain.StatusPending); err != nil {
				return NewPairingServiceError("finalize", "failed to clear pending blocks", err)
			}
			if err := schedules.AddStatus(ctx, netid, marked, domain.StatusMatched); err != nil {
				return NewPairingServiceError("finalize", "failed to flag matched blocks", err)
			}
		}

		updated := *req
		updated.Status = status
		updated.FinalizedAt = now
		updated.Read = read
		finalized = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("pairing request finalized",
		slog.Int64("request_id", requestID),
		slog.String("src_netid", finalized.SrcNetID),
		slog.String("dest_netid", finalized.DestNetID))
	return finalized, nil
}

// Reject implements Service.Reject
func (s *pairingService) Reject(ctx context.Context, requestID int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := s.runner.RunSerializable(ctx, func(ctx context.Context, tx *sql.Tx) error {
		users, requests, schedules := s.txStores(tx)

		req, err := requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestPending {
			return &StatusMismatchError{Expected: domain.RequestPending, Actual: req.Status}
		}
		return s.rejectTx(ctx, users, requests, schedules, req)
	})
	if err != nil {
		return err
	}

	log.Info("pairing request rejected", slog.Int64("request_id", requestID))
	return nil
}

// Terminate implements Service.Terminate
func (s *pairingService) Terminate(ctx context.Context, requestID int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := s.runner.RunSerializable(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, requests, schedules := s.txStores(tx)

		req, err := requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestFinalized {
			return &StatusMismatchError{Expected: domain.RequestFinalized, Actual: req.Status}
		}
		return s.terminateTx(ctx, requests, schedules, req)
	})
	if err != nil {
		return err
	}

	log.Info("pairing request terminated", slog.Int64("request_id", requestID))
	return nil
}

// DeleteAllForUser implements Service.DeleteAllForUser
func (s *pairingService) DeleteAllForUser(ctx context.Context, netid string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var removed int
	err := s.runner.RunSerializable(ctx, func(ctx context.Context, tx *sql.Tx) error {
		users, requests, schedules := s.txStores(tx)

		all, err := requests.All(ctx, netid)
		if err != nil {
			return err
		}

		for _, req := range all {
			switch req.Status {
			case domain.RequestPending:
				if err := s.rejectTx(ctx, users, requests, schedules, req); err != nil {
					return err
				}
			case domain.RequestFinalized:
				if err := s.terminateTx(ctx, requests, schedules, req); err != nil {
					return err
				}
			}
			if err := requests.Delete(ctx, req.ID); err != nil {
				return err
			}
		}
		removed = len(all)
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("deleted all pairing requests for user",
		slog.String("netid", netid),
		slog.Int("count", removed))
	return nil
}

// Get implements Service.Get
func (s *pairingService) Get(ctx context.Context, requestID int64) (*domain.Request, error) {
	return s.requests.Get(ctx, requestID)
}

// Incoming implements Service.Incoming
func (s *pairingService) Incoming(ctx context.Context, netid string) ([]*domain.Request, error) {
	return s.activeWithStatus(ctx, netid, store.DirIncoming, domain.RequestPending)
}

// Outgoing implements Service.Outgoing
func (s *pairingService) Outgoing(ctx context.Context, netid string) ([]*domain.Request, error) {
	return s.activeWithStatus(ctx, netid, store.DirOutgoing, domain.RequestPending)
}

// Matches implements Service.Matches
func (s *pairingService) Matches(ctx context.Context, netid string) ([]*domain.Request, error) {
	return s.requests.ByStatus(ctx, netid, domain.RequestFinalized)
}

// History implements Service.History
func (s *pairingService) History(ctx context.Context, netid string) ([]*domain.Request, error) {
	all, err := s.requests.All(ctx, netid)
	if err != nil {
		return nil, err
	}
	var history []*domain.Request
	for _, req := range all {
		if req.Status.Terminal() {
			history = append(history, req)
		}
	}
	return history, nil
}

// Unread implements Service.Unread
func (s *pairingService) Unread(ctx context.Context, netid string) ([]*domain.Request, error) {
	active, err := s.requests.Active(ctx, netid, store.DirEither)
	if err != nil {
		return nil, err
	}
	var unread []*domain.Request
	for _, req := range active {
		if !req.Read {
			unread = append(unread, req)
		}
	}
	return unread, nil
}

// MarkRead implements Service.MarkRead
func (s *pairingService) MarkRead(ctx context.Context, requestID int64) error {
	read := true
	return s.runner.RunSerializable(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, requests, _ := s.txStores(tx)
		return requests.Update(ctx, requestID, store.RequestUpdate{Read: &read})
	})
}

// activeWithStatus narrows the active requests on one side of netid to a
// single status.
func (s *pairingService) activeWithStatus(
	ctx context.Context,
	netid string,
	dir store.Direction,
	status domain.RequestStatus,
) ([]*domain.Request, error) {
	active, err := s.requests.Active(ctx, netid, dir)
	if err != nil {
		return nil, err
	}
	var out []*domain.Request
	for _, req := range active {
		if req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}

// activeTouchingPair returns the active requests touching either participant
// of req, excluding req itself, deduplicated.
func (s *pairingService) activeTouchingPair(
	ctx context.Context,
	requests store.RequestStore,
	req *domain.Request,
) ([]*domain.Request, error) {
	seen := map[int64]bool{req.ID: true}
	var out []*domain.Request
	for _, netid := range []string{req.SrcNetID, req.DestNetID} {
		active, err := requests.Active(ctx, netid, store.DirEither)
		if err != nil {
			return nil, err
		}
		for _, other := range active {
			if seen[other.ID] {
				continue
			}
			seen[other.ID] = true
			out = append(out, other)
		}
	}
	return out, nil
}

// deactivate retires an active request through the transition its status
// calls for.
func (s *pairingService) deactivate(
	ctx context.Context,
	users store.UserStore,
	requests store.RequestStore,
	schedules store.ScheduleStore,
	req *domain.Request,
) error {
	switch req.Status {
	case domain.RequestPending:
		return s.rejectTx(ctx, users, requests, schedules, req)
	case domain.RequestFinalized:
		return s.terminateTx(ctx, requests, schedules, req)
	default:
		return ErrPreviousRequestInactive
	}
}

// rejectTx applies the reject transition inside the caller's transaction:
// status REJECTED, deletion timestamp, pending flags recomputed for both
// participants, both users touched.
func (s *pairingService) rejectTx(
	ctx context.Context,
	users store.UserStore,
	requests store.RequestStore,
	schedules store.ScheduleStore,
	req *domain.Request,
) error {
	now := time.Now().UTC()
	status := domain.RequestRejected
	err := requests.Update(ctx, req.ID, store.RequestUpdate{
		Status:    &status,
		DeletedAt: &now,
	})
	if err != nil {
		return NewPairingServiceError("reject", "failed to update request", err)
	}

	if err := s.recomputePending(ctx, requests, schedules, req); err != nil {
		return err
	}

	for _, netid := range []string{req.SrcNetID, req.DestNetID} {
		if err := users.Touch(ctx, netid, now); err != nil {
			return NewPairingServiceError("reject", "failed to touch user", err)
		}
	}
	return nil
}

// terminateTx applies the terminate transition inside the caller's
// transaction: MATCHED flags released, status TERMINATED, deletion
// timestamp. Finalized claims are exclusive per block, so a plain clear
// releases exactly this request's blocks.
func (s *pairingService) terminateTx(
	ctx context.Context,
	requests store.RequestStore,
	schedules store.ScheduleStore,
	req *domain.Request,
) error {
	marked := req.Schedule.Marked(domain.StatusAvailable)
	for _, netid := range []string{req.SrcNetID, req.DestNetID} {
		if err := schedules.RemoveStatus(ctx, netid, marked, domain.StatusMatched); err != nil {
			return NewPairingServiceError("terminate", "failed to clear matched blocks", err)
		}
	}

	now := time.Now().UTC()
	status := domain.RequestTerminated
	err := requests.Update(ctx, req.ID, store.RequestUpdate{
		Status:    &status,
		DeletedAt: &now,
	})
	if err != nil {
		return NewPairingServiceError("terminate", "failed to update request", err)
	}
	return nil
}

// recomputePending clears the PENDING flag on req's blocks for each
// participant, except where another still-pending request keeps a claim.
// Recomputing instead of blind-clearing avoids dropping flags that a
// different negotiation over the same blocks still owns.
func (s *pairingService) recomputePending(
	ctx context.Context,
	requests store.RequestStore,
	schedules store.ScheduleStore,
	req *domain.Request,
) error {
	marked := req.Schedule.Marked(domain.StatusAvailable)

	for _, netid := range []string{req.SrcNetID, req.DestNetID} {
		clear := make([]bool, len(marked))
		copy(clear, marked)

		active, err := requests.Active(ctx, netid, store.DirEither)
		if err != nil {
			return err
		}
		for _, other := range active {
			if other.ID == req.ID || other.Status != domain.RequestPending {
				continue
			}
			claimed := other.Schedule.Marked(domain.StatusAvailable)
			for i := range clear {
				if claimed[i] {
					clear[i] = false
				}
			}
		}

		any := false
		for _, c := range clear {
			if c {
				any = true
				break
			}
		}
		if !any {
			continue
		}
		if err := schedules.RemoveStatus(ctx, netid, clear, domain.StatusPending); err != nil {
			return NewPairingServiceError("reject", "failed to clear pending blocks", err)
		}
	}
	return nil
}
