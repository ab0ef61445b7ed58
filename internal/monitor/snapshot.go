package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lu-zhengda/tcpmon/internal/conn"
	"github.com/lu-zhengda/tcpmon/internal/process"
)

// Snapshotter performs one sampling pass: it pulls the connection list and
// resolves every owning process afresh.
type Snapshotter struct {
	source   conn.Source
	resolver process.Resolver
	logger   *slog.Logger
}

// NewSnapshotter creates a Snapshotter.
func NewSnapshotter(source conn.Source, resolver process.Resolver, logger *slog.Logger) *Snapshotter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Snapshotter{source: source, resolver: resolver, logger: logger}
}

// Sample returns one record per connection that has a local address, in
// the order the source yields them. Name lookups never fail the sample.
// Records own their endpoints; nothing is shared with the source.
func (s *Snapshotter) Sample(ctx context.Context) ([]Record, error) {
	conns, err := s.source.Connections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	// Names are looked up once per PID within a sample and never kept
	// across samples.
	names := make(map[int32]string)

	records := make([]Record, 0, len(conns))
	for _, c := range conns {
		if c.Local == nil {
			continue
		}

		name, ok := names[c.PID]
		if !ok {
			var err error
			name, err = s.resolveName(ctx, c.PID)
			if err != nil && !errors.Is(err, ErrNoOwningProcess) {
				s.logger.Debug("process name unresolved", "pid", c.PID, "err", err)
			}
			names[c.PID] = name
		}

		rec := Record{
			PID:         c.PID,
			ProcessName: name,
			Local:       *c.Local,
			Status:      c.Status,
		}
		if c.Remote != nil {
			remote := *c.Remote
			rec.Remote = &remote
		}
		records = append(records, rec)
	}
	return records, nil
}

// resolveName always returns a display name; the error says which
// placeholder was used and why.
func (s *Snapshotter) resolveName(ctx context.Context, pid int32) (string, error) {
	if pid <= 0 {
		return NameUnknown, ErrNoOwningProcess
	}
	name, err := s.resolver.Name(ctx, pid)
	if err != nil {
		return NameAccessDenied, fmt.Errorf("%w: %w", ErrResolutionDenied, err)
	}
	return name, nil
}
