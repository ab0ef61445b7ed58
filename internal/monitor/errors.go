package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrResolutionDenied means a process name lookup failed. The platform
	// cannot tell a permission failure from a process that exited between
	// enumeration and lookup, so both end up here.
	ErrResolutionDenied = errors.New("process name lookup denied")

	// ErrNoOwningProcess means the connection carried no process id.
	ErrNoOwningProcess = errors.New("connection has no owning process")

	// ErrSourceUnavailable means the connection enumeration itself failed or
	// timed out. It aborts one cycle only.
	ErrSourceUnavailable = errors.New("connection source unavailable")

	// ErrTerminationFailure means the OS rejected a termination request.
	ErrTerminationFailure = errors.New("termination failed")

	// ErrInvalidSelection means a termination was requested without a usable
	// process id. No OS call is made.
	ErrInvalidSelection = errors.New("invalid selection")
)

// TerminationError carries the OS reason for a rejected termination.
// It matches ErrTerminationFailure with errors.Is.
type TerminationError struct {
	PID    int32
	Reason string
	Err    error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("failed to terminate PID %d: %s", e.PID, e.Reason)
}

// Is makes errors.Is(err, ErrTerminationFailure) hold.
func (e *TerminationError) Is(target error) bool {
	return target == ErrTerminationFailure
}

func (e *TerminationError) Unwrap() error {
	return e.Err
}
