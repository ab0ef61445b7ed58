package process

import (
	"context"
	"fmt"

	gproc "github.com/shirou/gopsutil/v4/process"
)

// protectedPIDs lists PIDs that should never be terminated.
var protectedPIDs = map[int32]bool{
	0: true,
	1: true,
}

// IsProtected reports whether pid must never be terminated.
func IsProtected(pid int32) bool {
	return protectedPIDs[pid]
}

// Terminator is the OS primitive behind the kill action: it requests
// termination and returns without waiting for the process to exit.
type Terminator interface {
	Terminate(ctx context.Context, pid int32) error
}

// Manager provides process lifecycle management on top of gopsutil.
type Manager struct {
	fetcher *InfoFetcher
}

// NewManager creates a new process manager.
func NewManager() *Manager {
	return &Manager{fetcher: NewInfoFetcher()}
}

// Terminate sends SIGTERM (TerminateProcess on Windows) to pid. Errors
// carry the OS text unchanged: "process does not exist", "operation not
// permitted", and so on.
func (m *Manager) Terminate(ctx context.Context, pid int32) error {
	p, err := gproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.TerminateWithContext(ctx)
}

// IsRunning checks if a process with the given PID exists.
func (m *Manager) IsRunning(ctx context.Context, pid int32) bool {
	ok, err := gproc.PidExistsWithContext(ctx, pid)
	return err == nil && ok
}

// Info retrieves detailed process information.
func (m *Manager) Info(ctx context.Context, pid int32) (*ProcessInfo, error) {
	if !m.IsRunning(ctx, pid) {
		return nil, fmt.Errorf("process %d is not running", pid)
	}
	return m.fetcher.GetInfo(ctx, pid)
}
