package domain

import "errors"

var (
	// ErrNotFound is returned for unknown card, game or job ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned when a request is missing or has malformed fields.
	// Nothing is mutated when it is returned.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstream wraps failures of external providers such as game archives.
	ErrUpstream = errors.New("upstream failure")
	// ErrPersistence wraps failures to flush state to durable storage.
	// The in-memory state is still the last known good state.
	ErrPersistence = errors.New("persistence failure")
)
