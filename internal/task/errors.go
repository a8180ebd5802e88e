package task

import "errors"

var (
	// ErrDuplicateRequest is returned when a caller already has an ad-hoc task
	// in flight.
	ErrDuplicateRequest = errors.New("task: calculation already in progress for caller")

	// ErrInterrupted is delivered to the callback of a task that was cleared,
	// cancelled or failed before assembly.
	ErrInterrupted = errors.New("task: calculation interrupted")

	ErrEmptyEntity = errors.New("task: empty entity name")
)
