package process

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	gproc "github.com/shirou/gopsutil/v4/process"

	"github.com/lu-zhengda/tcpmon/internal/conn"
)

// Resolver maps a PID to a display name. Implementations cannot tell a
// denied lookup from a process that exited mid-enumeration; both are
// reported as an error.
type Resolver interface {
	Name(ctx context.Context, pid int32) (string, error)
}

// Resolver names accepted by NewResolver. They mirror the connection
// source names so one config key picks both.
const (
	ResolverGopsutil = conn.SourceGopsutil
	ResolverPs       = conn.SourceLsof
)

// NewResolver returns the Resolver paired with the named connection source.
func NewResolver(name string, runner conn.CmdRunner) (Resolver, error) {
	switch name {
	case "", ResolverGopsutil:
		return NewPsutilResolver(), nil
	case ResolverPs:
		return NewPsResolver(runner), nil
	default:
		return nil, fmt.Errorf("unknown process resolver %q", name)
	}
}

// PsutilResolver resolves names through gopsutil.
type PsutilResolver struct{}

// NewPsutilResolver creates a new gopsutil-backed resolver.
func NewPsutilResolver() *PsutilResolver {
	return &PsutilResolver{}
}

// Name returns the executable name of pid.
func (r *PsutilResolver) Name(ctx context.Context, pid int32) (string, error) {
	p, err := gproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", fmt.Errorf("failed to open PID %d: %w", pid, err)
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read name of PID %d: %w", pid, err)
	}
	return name, nil
}

// PsResolver resolves names with ps -o comm=.
type PsResolver struct {
	runner conn.CmdRunner
}

// NewPsResolver creates a new ps-backed resolver.
func NewPsResolver(runner conn.CmdRunner) *PsResolver {
	return &PsResolver{runner: runner}
}

// Name returns the binary name of pid, stripped of its directory.
func (r *PsResolver) Name(ctx context.Context, pid int32) (string, error) {
	out, err := r.runner.Run(ctx, "ps", "-p", strconv.Itoa(int(pid)), "-o", "comm=")
	if err != nil {
		return "", fmt.Errorf("failed to run ps for PID %d: %w", pid, err)
	}
	name := strings.TrimSpace(string(out))
	if name == "" {
		return "", fmt.Errorf("process %d not found", pid)
	}
	return filepath.Base(name), nil
}
