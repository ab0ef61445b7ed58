package process

import (
	"context"
	"fmt"
	"time"

	gproc "github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo holds detailed information about a running process.
type ProcessInfo struct {
	PID        int32
	PPID       int32
	Name       string
	Command    string // full command line
	User       string
	StartTime  time.Time
	CPUPercent float64
	MemRSS     uint64 // in bytes
	Status     string
	Children   []int32
}

// InfoFetcher retrieves detailed process information.
type InfoFetcher struct{}

// NewInfoFetcher creates a new InfoFetcher.
func NewInfoFetcher() *InfoFetcher {
	return &InfoFetcher{}
}

// GetInfo retrieves detailed information for a process. Only the name is
// required; every other field is best effort since many of them need
// privileges the caller may not have.
func (f *InfoFetcher) GetInfo(ctx context.Context, pid int32) (*ProcessInfo, error) {
	p, err := gproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to get process info for PID %d: %w", pid, err)
	}

	name, err := p.NameWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read name of PID %d: %w", pid, err)
	}

	info := &ProcessInfo{PID: pid, Name: name}

	if cmd, err := p.CmdlineWithContext(ctx); err == nil {
		info.Command = cmd
	}
	if user, err := p.UsernameWithContext(ctx); err == nil {
		info.User = user
	}
	if ppid, err := p.PpidWithContext(ctx); err == nil {
		info.PPID = ppid
	}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
		info.StartTime = time.UnixMilli(ms)
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		info.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.MemRSS = mem.RSS
	}
	if st, err := p.StatusWithContext(ctx); err == nil && len(st) > 0 {
		info.Status = st[0]
	}
	if children, err := p.ChildrenWithContext(ctx); err == nil {
		for _, c := range children {
			info.Children = append(info.Children, c.Pid)
		}
	}

	return info, nil
}
