package game

import "errors"

// Typed errors raised by the ledger and the services built on it.
// Handlers map these onto HTTP statuses; the matchmaking retry loop
// absorbs ErrCapacityExceeded and ErrStaleWrite internally.
var (
	// ErrCapacityExceeded: the join lost the race for the last open slot.
	// Retryable against another match.
	ErrCapacityExceeded = errors.New("team capacity exceeded")

	// ErrMemberNotFound: leave of a user who is not in the match.
	ErrMemberNotFound = errors.New("user is not a member of this match")

	// ErrMatchNotFound: stale or unknown match id.
	ErrMatchNotFound = errors.New("match not found")

	// ErrMatchInProgress: leave attempted after the match started.
	ErrMatchInProgress = errors.New("cannot leave a match in progress")

	// ErrMatchNotPlaying: discovery or settlement outside the playing state.
	ErrMatchNotPlaying = errors.New("match is not in progress")

	// ErrNoMatchAvailable: every joinable match was lost to races and the
	// bounded retry budget ran out.
	ErrNoMatchAvailable = errors.New("no match available")

	// ErrAlreadyInMatch: the user holds an active match and may not queue
	// into a second one.
	ErrAlreadyInMatch = errors.New("user already has an active match")

	// ErrStaleWrite: a guarded write found the record changed underneath it.
	// Callers re-read and retry.
	ErrStaleWrite = errors.New("stale write conflict")

	// ErrStoreUnavailable: transient store failure. The write may have
	// partially applied; retries must be idempotent.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSuspiciousMovement: location reading implies implausible speed.
	ErrSuspiciousMovement = errors.New("suspicious movement detected")

	// ErrInvalidMatchType: match type label is not of the NvN form.
	ErrInvalidMatchType = errors.New("invalid match type")
)
