package domain

import "errors"

var (
	ErrInvalidPhase     = errors.New("operation not allowed in current phase")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyLocked    = errors.New("vote already locked")
	ErrCapacityExceeded = errors.New("registration capacity exceeded")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrMatchEnded       = errors.New("match has ended")
	ErrForbidden        = errors.New("not a participant of this match")
	ErrInvalidVote      = errors.New("vote must be REAL or BOT")
	ErrInvalidMessage   = errors.New("message must not be empty")
	// ErrBusy means another request holds the match right now; nothing was
	// written and the call may be repeated.
	ErrBusy             = errors.New("match is busy, try again")
)
