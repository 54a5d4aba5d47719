package agent

import "errors"

var (
	// ErrAlreadyPaired rejects Install while an identifier is held.
	ErrAlreadyPaired = errors.New("agent: already paired")

	// ErrMissingIdentifier rejects Install, AssignID, or GetFrame without an id.
	ErrMissingIdentifier = errors.New("agent: missing sys_id")

	// ErrInvalidIdentifier rejects a sys_id that cannot be used as a topic
	// level: one containing '/', '+' or '#'.
	ErrInvalidIdentifier = errors.New("agent: sys_id is not a valid topic level")

	// ErrNotPaired rejects operations that need an identifier.
	ErrNotPaired = errors.New("agent: not paired")

	// ErrNoThreshold rejects samples when no detection distance is known.
	ErrNoThreshold = errors.New("agent: no proximity threshold")

	// ErrInvalidDistance rejects negative or non-numeric samples.
	ErrInvalidDistance = errors.New("agent: invalid distance")

	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("agent: stopped")

	// ErrBusy is returned by Post when the command queue is full.
	ErrBusy = errors.New("agent: command queue full")
)
