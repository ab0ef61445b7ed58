package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lu-zhengda/tcpmon/internal/process"
)

// Executor carries out the kill action. It touches no monitor state, so it
// can run while a cycle is in flight.
type Executor struct {
	terminator process.Terminator
	logger     *slog.Logger
	counters   *counters
}

// NewExecutor creates an Executor around the OS termination primitive.
func NewExecutor(t process.Terminator, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{terminator: t, logger: logger, counters: &counters{}}
}

// Terminate makes a single best-effort request to terminate pid. It does
// not wait for the process to exit and never retries.
func (e *Executor) Terminate(ctx context.Context, pid int32) (Ack, error) {
	if pid <= 0 {
		e.counters.invalidSelections.Add(1)
		return Ack{}, fmt.Errorf("%w: no process id", ErrInvalidSelection)
	}
	if process.IsProtected(pid) {
		e.counters.invalidSelections.Add(1)
		return Ack{}, fmt.Errorf("%w: refusing to terminate protected PID %d", ErrInvalidSelection, pid)
	}

	if err := e.terminator.Terminate(ctx, pid); err != nil {
		e.counters.terminationFailures.Add(1)
		e.logger.Warn("termination rejected", "pid", pid, "err", err)
		return Ack{}, &TerminationError{PID: pid, Reason: err.Error(), Err: err}
	}

	e.counters.terminations.Add(1)
	e.logger.Info("termination requested", "pid", pid)
	return Ack{PID: pid}, nil
}
