// Package monitor is the sampling and classification core: it turns the
// host's TCP table into classified records, keeps the rolling count
// history, and drives both on a schedule.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lu-zhengda/tcpmon/internal/conn"
	"github.com/lu-zhengda/tcpmon/internal/history"
	"github.com/lu-zhengda/tcpmon/internal/process"
)

// Options configures a Monitor.
type Options struct {
	Source       conn.Source
	Resolver     process.Resolver
	Terminator   process.Terminator
	Watchlist    PortSet // empty means DefaultPortSet
	HistorySize  int     // 0 means history.DefaultCapacity
	CycleTimeout time.Duration
	Filter       string
	Logger       *slog.Logger
}

// Monitor owns all core state: watchlist, filter, current records and
// history. Cycles are serialized so history entries land in the order the
// cycles sampled.
type Monitor struct {
	snapshotter *Snapshotter
	executor    *Executor
	watchlist   PortSet
	timeout     time.Duration
	logger      *slog.Logger
	now         func() time.Time

	cycleMu sync.Mutex // held for one whole cycle

	mu      sync.RWMutex
	filter  string
	records []Record
	history *history.Buffer
	last    Cycle
	seq     uint64

	counters *counters
}

// New creates a Monitor.
func New(opts Options) (*Monitor, error) {
	if opts.Source == nil {
		return nil, errors.New("monitor: connection source is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("monitor: process resolver is required")
	}
	if opts.Terminator == nil {
		return nil, errors.New("monitor: terminator is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watchlist := opts.Watchlist
	if watchlist.Len() == 0 {
		watchlist = DefaultPortSet()
	}

	size := opts.HistorySize
	if size == 0 {
		size = history.DefaultCapacity
	}

	executor := NewExecutor(opts.Terminator, logger)

	return &Monitor{
		snapshotter: NewSnapshotter(opts.Source, opts.Resolver, logger),
		executor:    executor,
		watchlist:   watchlist,
		timeout:     opts.CycleTimeout,
		logger:      logger,
		now:         time.Now,
		filter:      opts.Filter,
		history:     history.NewBuffer(size),
		counters:    executor.counters,
	}, nil
}

// RunCycle samples, classifies, filters and appends the filtered count to
// the history. A source failure yields an empty record set (and a zero
// history entry); it is reported in Cycle.Err. When ctx is cancelled while
// sampling, the result is discarded and no state changes.
func (m *Monitor) RunCycle(ctx context.Context) Cycle {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	start := m.now()
	filter := m.Filter()

	records, err := m.sample(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Cycle{At: start, Filter: filter, Err: ctxErr}
	}

	classified := Classify(records, m.watchlist)
	visible := Filter(classified, filter)

	cycle := Cycle{
		At:       start,
		Duration: m.now().Sub(start),
		Filter:   filter,
		Records:  visible,
		Sampled:  len(classified),
		Err:      err,
	}
	for _, r := range visible {
		if r.Suspicious {
			cycle.Suspicious++
		}
	}

	m.mu.Lock()
	m.seq++
	cycle.Seq = m.seq
	m.records = visible
	m.history.Append(len(visible))
	m.last = cycle
	m.mu.Unlock()

	cycle.Records = cloneRecords(visible)

	m.counters.cycles.Add(1)
	m.counters.lastDuration.Store(int64(cycle.Duration))
	if err != nil {
		m.counters.cycleErrors.Add(1)
		m.logger.Warn("sampling cycle failed", "seq", cycle.Seq, "err", err)
	} else {
		m.logger.Debug("sampling cycle done",
			"seq", cycle.Seq,
			"sampled", cycle.Sampled,
			"visible", cycle.Count(),
			"suspicious", cycle.Suspicious,
			"duration", cycle.Duration,
		)
	}

	return cycle
}

// sample runs the snapshotter under the per-cycle timeout. The platform
// call may ignore ctx, so it runs in its own goroutine; if ctx ends first
// its eventual result is dropped.
func (m *Monitor) sample(ctx context.Context) ([]Record, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	type result struct {
		records []Record
		err     error
	}
	done := make(chan result, 1)
	go func() {
		records, err := m.snapshotter.Sample(ctx)
		done <- result{records: records, err: err}
	}()

	select {
	case r := <-done:
		return r.records, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && m.timeout > 0 {
			return nil, fmt.Errorf("%w: sampling did not finish within %s: %w", ErrSourceUnavailable, m.timeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, ctx.Err())
	}
}

// CurrentRecords returns the records of the last completed cycle.
func (m *Monitor) CurrentRecords() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneRecords(m.records)
}

// CurrentHistory returns the per-cycle counts, oldest first.
func (m *Monitor) CurrentHistory() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.Snapshot()
}

// HistoryStats summarizes the history window.
func (m *Monitor) HistoryStats() history.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.Summary()
}

// HistoryCapacity returns the size of the history window.
func (m *Monitor) HistoryCapacity() int {
	return m.history.Cap()
}

// LastCycle returns the last completed cycle.
func (m *Monitor) LastCycle() Cycle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last := m.last
	last.Records = cloneRecords(m.last.Records)
	return last
}

// SetFilter sets the port criterion applied from the next cycle on.
func (m *Monitor) SetFilter(criterion string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = criterion
}

// Filter returns the current port criterion.
func (m *Monitor) Filter() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filter
}

// Watchlist returns the suspicious-port set.
func (m *Monitor) Watchlist() PortSet {
	return m.watchlist
}

// KillSelected asks the OS to terminate pid. It does not take the cycle
// lock.
func (m *Monitor) KillSelected(ctx context.Context, pid int32) (Ack, error) {
	return m.executor.Terminate(ctx, pid)
}
