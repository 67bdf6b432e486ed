package jobs

import "errors"

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrDuplicateJob is returned when Create sees an id that already exists.
	ErrDuplicateJob = errors.New("duplicate job id")
	// ErrInvalidTransition is returned when a terminal job is mutated.
	ErrInvalidTransition = errors.New("invalid job transition")
)
