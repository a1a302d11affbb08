package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrEmptyNetID is returned when a netid is missing.
	ErrEmptyNetID = errors.New("netid cannot be empty")

	// ErrSameParticipants is returned when a request names the same netid
	// on both sides.
	ErrSameParticipants = errors.New("request participants must differ")

	// ErrInvalidSchedule is returned when a schedule vector does not have
	// the canonical week length.
	ErrInvalidSchedule = errors.New("invalid schedule")
)
