package conn

import (
	"context"
	"fmt"

	gnet "github.com/shirou/gopsutil/v4/net"
)

// Source yields the host's current TCP connections. No ordering is
// guaranteed.
type Source interface {
	Connections(ctx context.Context) ([]Connection, error)
}

// Source names accepted by NewSource.
const (
	SourceGopsutil = "gopsutil"
	SourceLsof     = "lsof"
)

// NewSource returns the Source registered under name.
func NewSource(name string, runner CmdRunner) (Source, error) {
	switch name {
	case "", SourceGopsutil:
		return NewPsutilSource(), nil
	case SourceLsof:
		return NewLsofSource(runner), nil
	default:
		return nil, fmt.Errorf("unknown connection source %q (use %s or %s)", name, SourceGopsutil, SourceLsof)
	}
}

// PsutilSource implements Source using gopsutil, which reads the kernel
// tables directly (procfs on Linux, sysctl on BSD/macOS, iphlpapi on Windows).
type PsutilSource struct{}

// NewPsutilSource creates a new gopsutil-backed source.
func NewPsutilSource() *PsutilSource {
	return &PsutilSource{}
}

// Connections returns all TCP connections, IPv4 and IPv6.
func (s *PsutilSource) Connections(ctx context.Context) ([]Connection, error) {
	stats, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to list tcp connections: %w", err)
	}
	return fromStats(stats), nil
}

// fromStats converts gopsutil connection stats, keeping their order.
func fromStats(stats []gnet.ConnectionStat) []Connection {
	conns := make([]Connection, 0, len(stats))
	for _, st := range stats {
		conns = append(conns, Connection{
			Local:  NewEndpoint(st.Laddr.IP, st.Laddr.Port),
			Remote: NewEndpoint(st.Raddr.IP, st.Raddr.Port),
			Status: st.Status,
			PID:    st.Pid,
		})
	}
	return conns
}

// LsofSource implements Source using lsof.
type LsofSource struct {
	runner CmdRunner
}

// NewLsofSource creates a new source backed by lsof.
func NewLsofSource(runner CmdRunner) *LsofSource {
	return &LsofSource{runner: runner}
}

// Connections returns all TCP connections lsof can see.
func (s *LsofSource) Connections(ctx context.Context) ([]Connection, error) {
	out, err := s.runner.Run(ctx, "lsof", "-iTCP", "-P", "-n")
	if err != nil {
		return nil, fmt.Errorf("failed to run lsof: %w", err)
	}
	return ParseLsofOutput(string(out)), nil
}
