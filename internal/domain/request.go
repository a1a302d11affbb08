package domain

import (
	"time"
)

// RequestStatus enumerates the lifecycle states of a pairing request.
//
// The numeric values are part of the storage format and must not be
// reordered.
type RequestStatus int

const (
	// RequestRejected is terminal: the request was declined before
	// finalization (or cancelled by its proposer).
	RequestRejected RequestStatus = 0

	// RequestPending is the initial state of every request.
	RequestPending RequestStatus = 1

	// RequestReturn is reserved. It is declared for storage compatibility
	// with historical rows but no transition produces or consumes it.
	RequestReturn RequestStatus = 2

	// RequestFinalized means both parties agreed: the match is live.
	RequestFinalized RequestStatus = 3

	// RequestTerminated is terminal: a finalized match was ended.
	RequestTerminated RequestStatus = 4
)

// Readable returns a lower-case human-readable name for the status.
func (s RequestStatus) Readable() string {
	switch s {
	case RequestRejected:
		return "rejected"
	case RequestPending:
		return "pending"
	case RequestReturn:
		return "returned"
	case RequestFinalized:
		return "finalized"
	case RequestTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Active reports whether the status still claims schedule blocks: a request
// is active while it is pending or finalized.
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestFinalized
}

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == RequestRejected || s == RequestTerminated
}

// Request is a proposed pairing between two users over a subset of the
// week's time blocks. Requests are never edited in place: a counter-offer
// creates a new request whose PrevID links back to the superseded one.
type Request struct {
	ID         int64
	SrcNetID   string
	DestNetID  string
	Status     RequestStatus
	Schedule   Schedule // proposed blocks, marked AVAILABLE
	MadeAt     time.Time
	FinalizedAt time.Time // zero until finalized
	DeletedAt  time.Time // zero until rejected or terminated
	PrevID     int64     // 0 when the request is not a counter-offer
	Read       bool      // notification bookkeeping for the recipient
}

// Validate checks structural integrity of the request.
func (r *Request) Validate() error {
	if r.SrcNetID == "" || r.DestNetID == "" {
		return ErrEmptyNetID
	}
	if r.SrcNetID == r.DestNetID {
		return ErrSameParticipants
	}
	return r.Schedule.Validate()
}

// Involves reports whether netid is one of the two participants.
func (r *Request) Involves(netid string) bool {
	return r.SrcNetID == netid || r.DestNetID == netid
}

// OtherParty returns the participant that is not netid. It returns the
// source when netid is not a participant at all, which callers guard against
// with Involves.
func (r *Request) OtherParty(netid string) string {
	if r.SrcNetID == netid {
		return r.DestNetID
	}
	return r.SrcNetID
}

// Overlaps reports whether the two requests claim a common block: true iff
// at least one TimeBlock is marked AVAILABLE in both proposals.
func (r *Request) Overlaps(other *Request) bool {
	return r.Schedule.Overlaps(other.Schedule)
}
