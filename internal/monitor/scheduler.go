package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultInterval is the period between scheduled cycles.
const DefaultInterval = 2 * time.Second

// Ticker is the periodic clock driving a Scheduler.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

// NewTicker wraps time.Ticker.
func NewTicker(d time.Duration) Ticker {
	return &timeTicker{t: time.NewTicker(d)}
}

func (t *timeTicker) C() <-chan time.Time { return t.t.C }
func (t *timeTicker) Stop()               { t.t.Stop() }

// CycleRunner runs one full sampling cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) Cycle
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTicker replaces the real ticker, e.g. with a hand-stepped one.
func WithTicker(fn func(time.Duration) Ticker) SchedulerOption {
	return func(s *Scheduler) { s.newTicker = fn }
}

// WithOnCycle registers a hook called after every published cycle, from
// the scheduler goroutine.
func WithOnCycle(fn func(Cycle)) SchedulerOption {
	return func(s *Scheduler) { s.onCycle = fn }
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler runs cycles on one worker goroutine: one at start, one per
// tick, and one per manual trigger. Manual triggers coalesce: while one is
// pending, further RefreshNow calls are absorbed by it. Triggers never
// reset the ticker phase.
type Scheduler struct {
	runner    CycleRunner
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	onCycle   func(Cycle)
	logger    *slog.Logger

	trigger chan struct{}
	running atomic.Bool
}

// NewScheduler creates a Scheduler. A non-positive interval means
// DefaultInterval.
func NewScheduler(runner CycleRunner, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		runner:    runner,
		interval:  interval,
		newTicker: NewTicker,
		logger:    slog.New(slog.DiscardHandler),
		trigger:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the scheduling period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// RefreshNow requests an immediate cycle. It returns false when a request
// is already pending; that pending cycle covers this one.
func (s *Scheduler) RefreshNow() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run drives cycles until ctx is cancelled. Cancellation stops new cycles
// at once; a cycle blocked in the platform call is abandoned and its result
// discarded.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("scheduler is already running")
	}
	defer s.running.Store(false)

	ticker := s.newTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.runOnce(ctx)
		case <-s.trigger:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	cycle := s.runner.RunCycle(ctx)
	if ctx.Err() != nil {
		return
	}
	if cycle.Err != nil {
		s.logger.Warn("cycle failed", "seq", cycle.Seq, "err", cycle.Err)
	}
	if s.onCycle != nil {
		s.onCycle(cycle)
	}
}
