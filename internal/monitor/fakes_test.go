package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lu-zhengda/tcpmon/internal/conn"
)

func ep(ip string, port uint32) *conn.Endpoint {
	return &conn.Endpoint{IP: ip, Port: port}
}

// fakeSource returns a fixed connection list.
type fakeSource struct {
	conns []conn.Connection
	err   error
	calls atomic.Int32
}

func (f *fakeSource) Connections(_ context.Context) ([]conn.Connection, error) {
	f.calls.Add(1)
	return f.conns, f.err
}

// countingSource returns n connections on its n-th call.
type countingSource struct {
	n atomic.Int32
}

func (s *countingSource) Connections(_ context.Context) ([]conn.Connection, error) {
	n := s.n.Add(1)
	conns := make([]conn.Connection, n)
	for i := range conns {
		conns[i] = conn.Connection{Local: ep("127.0.0.1", uint32(10000+i)), Status: "ESTABLISHED"}
	}
	return conns, nil
}

// blockingSource blocks until release is closed, announcing each call on
// entered.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingSource() *blockingSource {
	return &blockingSource{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (s *blockingSource) Connections(_ context.Context) ([]conn.Connection, error) {
	s.entered <- struct{}{}
	<-s.release
	return []conn.Connection{{Local: ep("127.0.0.1", 80), Status: "LISTEN"}}, nil
}

// fakeResolver succeeds for every pid except those in deny.
type fakeResolver struct {
	deny  map[int32]bool
	mu    sync.Mutex
	calls []int32
}

func (r *fakeResolver) Name(_ context.Context, pid int32) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, pid)
	r.mu.Unlock()
	if r.deny[pid] {
		return "", errors.New("access denied")
	}
	return fmt.Sprintf("proc-%d", pid), nil
}

func (r *fakeResolver) Calls() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int32(nil), r.calls...)
}

// fakeTerminator records calls and returns err.
type fakeTerminator struct {
	err   error
	mu    sync.Mutex
	calls []int32
}

func (f *fakeTerminator) Terminate(_ context.Context, pid int32) error {
	f.mu.Lock()
	f.calls = append(f.calls, pid)
	f.mu.Unlock()
	return f.err
}

func (f *fakeTerminator) Calls() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int32(nil), f.calls...)
}

// fakeTicker is stepped by hand.
type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

func (t *fakeTicker) factory() func(time.Duration) Ticker {
	return func(time.Duration) Ticker { return t }
}

func newTestMonitor(t *testing.T, opts Options) *Monitor {
	t.Helper()
	if opts.Resolver == nil {
		opts.Resolver = &fakeResolver{}
	}
	if opts.Terminator == nil {
		opts.Terminator = &fakeTerminator{}
	}
	m, err := New(opts)
	if err != nil {
		t.Fatalf("unexpected error creating monitor: %v", err)
	}
	return m
}

// waitFor receives from ch or fails the test after a second.
func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}
