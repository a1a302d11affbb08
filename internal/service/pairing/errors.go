package pairing

import (
	"errors"
	"fmt"

	"github.com/gymbuddies/gymbuddies/internal/domain"
)

// Sentinel errors for the request state machine. Every failed transition is
// distinguishable by kind with errors.Is; the web layer maps each to a
// user-facing message. Typed errors below wrap these sentinels and carry the
// offending details for errors.As callers.
var (
	// ErrRequestToSelf indicates a user tried to send a pairing request to
	// themselves.
	ErrRequestToSelf = errors.New("cannot send a pairing request to yourself")

	// ErrEmptyRequestSchedule indicates the proposed schedule selects no blocks.
	ErrEmptyRequestSchedule = errors.New("request schedule has no selected blocks")

	// ErrRequestWhileClosed indicates the proposer is closed to new matches.
	ErrRequestWhileClosed = errors.New("cannot send a request while closed to new matches")

	// ErrRequestToClosedUser indicates the recipient is closed to new matches.
	ErrRequestToClosedUser = errors.New("recipient is closed to new matches")

	// ErrNoChangeModification indicates a counter-offer proposed the exact
	// schedule of the request it modifies.
	ErrNoChangeModification = errors.New("modified schedule is identical to the previous request")

	// ErrPreviousRequestInactive indicates the request being modified is no
	// longer pending or finalized.
	ErrPreviousRequestInactive = errors.New("previous request is no longer active")

	// ErrBlockedUser indicates one participant has blocked the other.
	ErrBlockedUser = errors.New("pairing request blocked")

	// ErrRequestAlreadyExists indicates an active request already exists
	// between the pair.
	ErrRequestAlreadyExists = errors.New("an active request already exists between these users")

	// ErrConflictingSchedule indicates a proposed block is already matched or
	// not available on a participant's authoritative schedule.
	ErrConflictingSchedule = errors.New("request schedule conflicts with a participant's schedule")

	// ErrOverlapRequests indicates the request shares a block with another
	// finalized request and cannot be finalized.
	ErrOverlapRequests = errors.New("request overlaps a finalized request")

	// ErrStatusMismatch indicates the request's current status does not
	// permit the attempted transition.
	ErrStatusMismatch = errors.New("request status does not permit this transition")
)

// BlockedUserError reports which direction the block runs.
type BlockedUserError struct {
	Blocker string
	Blocked string
}

func (e *BlockedUserError) Error() string {
	return fmt.Sprintf("pairing request blocked: %s has blocked %s", e.Blocker, e.Blocked)
}

func (e *BlockedUserError) Unwrap() error {
	return ErrBlockedUser
}

// AlreadyExistsError carries the id of the active request between the pair.
type AlreadyExistsError struct {
	RequestID int64
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("an active request already exists between these users (request %d)", e.RequestID)
}

func (e *AlreadyExistsError) Unwrap() error {
	return ErrRequestAlreadyExists
}

// ConflictingScheduleError carries the blocks that conflict with a
// participant's authoritative schedule.
type ConflictingScheduleError struct {
	NetID  string
	Blocks []domain.TimeBlock
}

func (e *ConflictingScheduleError) Error() string {
	return fmt.Sprintf(
		"request schedule conflicts with %s's schedule on %d block(s)",
		e.NetID,
		len(e.Blocks),
	)
}

func (e *ConflictingScheduleError) Unwrap() error {
	return ErrConflictingSchedule
}

// OverlapError carries the finalized request that claims a shared block.
type OverlapError struct {
	RequestID int64
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("request overlaps finalized request %d", e.RequestID)
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlapRequests
}

// StatusMismatchError reports the status the transition required and the
// status the request actually carried.
type StatusMismatchError struct {
	Expected domain.RequestStatus
	Actual   domain.RequestStatus
}

func (e *StatusMismatchError) Error() string {
	return fmt.Sprintf(
		"request must be %s for this transition, but is %s",
		e.Expected.Readable(),
		e.Actual.Readable(),
	)
}

func (e *StatusMismatchError) Unwrap() error {
	return ErrStatusMismatch
}

// PairingServiceError wraps unexpected failures from the stores with the
// operation that produced them.
type PairingServiceError struct {
	Operation string
	Message   string
	Err       error
}

func (e *PairingServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pairing service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("pairing service %s failed: %s", e.Operation, e.Message)
}

func (e *PairingServiceError) Unwrap() error {
	return e.Err
}

// NewPairingServiceError creates a new PairingServiceError.
func NewPairingServiceError(operation, message string, err error) *PairingServiceError {
	return &PairingServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
