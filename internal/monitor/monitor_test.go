package monitor

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/lu-zhengda/tcpmon/internal/conn"
)

// mixedConnections has two records on port 22, two ordinary ones and one
// without a local endpoint.
func mixedConnections() []conn.Connection {
	return []conn.Connection{
		{Local: ep("0.0.0.0", 22), Status: "LISTEN", PID: 100},
		{Local: ep("10.0.0.1", 22), Remote: ep("10.0.0.5", 51000), Status: "ESTABLISHED", PID: 999},
		{Local: ep("0.0.0.0", 8080), Status: "LISTEN", PID: 200},
		{Local: ep("10.0.0.1", 51000), Remote: ep("1.1.1.1", 443), Status: "ESTABLISHED", PID: 300},
		{Local: nil, Remote: ep("10.0.0.7", 80), Status: "SYN_SENT", PID: 400},
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no source", Options{Resolver: &fakeResolver{}, Terminator: &fakeTerminator{}}},
		{"no resolver", Options{Source: &fakeSource{}, Terminator: &fakeTerminator{}}},
		{"no terminator", Options{Source: &fakeSource{}, Resolver: &fakeResolver{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	m := newTestMonitor(t, Options{Source: &fakeSource{}})

	if m.HistoryCapacity() != 30 {
		t.Errorf("history capacity: got %d, want 30", m.HistoryCapacity())
	}
	if m.Watchlist().Len() != 8 {
		t.Errorf("watchlist: got %d ports, want 8", m.Watchlist().Len())
	}
	if len(m.CurrentRecords()) != 0 || len(m.CurrentHistory()) != 0 {
		t.Error("expected empty initial state")
	}
}

func TestRunCycle_EndToEnd(t *testing.T) {
	m := newTestMonitor(t, Options{
		Source:   &fakeSource{conns: mixedConnections()},
		Resolver: &fakeResolver{deny: map[int32]bool{999: true}},
	})

	cycle := m.RunCycle(context.Background())
	if cycle.Err != nil {
		t.Fatalf("unexpected error: %v", cycle.Err)
	}

	records := m.CurrentRecords()
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}

	var suspicious int
	for _, r := range records {
		if r.Suspicious {
			suspicious++
		}
	}
	if suspicious != 2 || cycle.Suspicious != 2 {
		t.Errorf("suspicious: got %d (cycle %d), want 2", suspicious, cycle.Suspicious)
	}

	if records[1].ProcessName != NameAccessDenied {
		t.Errorf("denied name: got %q, want %q", records[1].ProcessName, NameAccessDenied)
	}
	if records[0].ProcessName != "proc-100" {
		t.Errorf("resolved name: got %q, want proc-100", records[0].ProcessName)
	}

	if got := m.CurrentHistory(); !reflect.DeepEqual(got, []int{4}) {
		t.Errorf("history: got %v, want [4]", got)
	}
	if cycle.Seq != 1 || cycle.Sampled != 4 {
		t.Errorf("cycle: seq=%d sampled=%d", cycle.Seq, cycle.Sampled)
	}
}

func TestRunCycle_FilterDrivesHistory(t *testing.T) {
	m := newTestMonitor(t, Options{Source: &fakeSource{conns: mixedConnections()}})
	ctx := context.Background()

	m.RunCycle(ctx)
	m.SetFilter("22")
	cycle := m.RunCycle(ctx)

	if got := m.CurrentHistory(); !reflect.DeepEqual(got, []int{4, 2}) {
		t.Errorf("history: got %v, want [4 2]", got)
	}
	if cycle.Filter != "22" || cycle.Sampled != 4 || cycle.Count() != 2 {
		t.Errorf("cycle: filter=%q sampled=%d count=%d", cycle.Filter, cycle.Sampled, cycle.Count())
	}
	for _, r := range m.CurrentRecords() {
		if r.Local.Port != 22 {
			t.Errorf("unexpected record on port %d", r.Local.Port)
		}
	}

	m.SetFilter("")
	m.RunCycle(ctx)
	if got := m.CurrentHistory(); !reflect.DeepEqual(got, []int{4, 2, 4}) {
		t.Errorf("history after clearing filter: got %v, want [4 2 4]", got)
	}
}

func TestRunCycle_SetFilterAppliesNextCycle(t *testing.T) {
	m := newTestMonitor(t, Options{Source: &fakeSource{conns: mixedConnections()}})

	m.RunCycle(context.Background())
	m.SetFilter("8080")

	if got := len(m.CurrentRecords()); got != 4 {
		t.Errorf("records changed before next cycle: got %d, want 4", got)
	}
	if m.Filter() != "8080" {
		t.Errorf("filter: got %q", m.Filter())
	}
}

func TestRunCycle_SourceErrorAppendsZero(t *testing.T) {
	src := &fakeSource{conns: mixedConnections()}
	m := newTestMonitor(t, Options{Source: src})
	ctx := context.Background()

	m.RunCycle(ctx)
	src.err = errors.New("permission denied")
	cycle := m.RunCycle(ctx)

	if !errors.Is(cycle.Err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", cycle.Err)
	}
	if len(m.CurrentRecords()) != 0 {
		t.Errorf("expected no records after failure, got %d", len(m.CurrentRecords()))
	}
	if got := m.CurrentHistory(); !reflect.DeepEqual(got, []int{4, 0}) {
		t.Errorf("history: got %v, want [4 0]", got)
	}

	// The next cycle recovers.
	src.err = nil
	if cycle := m.RunCycle(ctx); cycle.Err != nil {
		t.Errorf("unexpected error: %v", cycle.Err)
	}
	if got := m.CurrentHistory(); !reflect.DeepEqual(got, []int{4, 0, 4}) {
		t.Errorf("history: got %v, want [4 0 4]", got)
	}
}

func TestRunCycle_Timeout(t *testing.T) {
	src := newBlockingSource()
	defer close(src.release)
	m := newTestMonitor(t, Options{Source: src, CycleTimeout: 20 * time.Millisecond})

	cycle := m.RunCycle(context.Background())

	if !errors.Is(cycle.Err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", cycle.Err)
	}
	if !errors.Is(cycle.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", cycle.Err)
	}
	if got := m.CurrentHistory(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("history: got %v, want [0]", got)
	}
}

func TestRunCycle_CancelledDiscardsResult(t *testing.T) {
	m := newTestMonitor(t, Options{Source: &fakeSource{conns: mixedConnections()}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cycle := m.RunCycle(ctx)

	if !errors.Is(cycle.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", cycle.Err)
	}
	if len(m.CurrentHistory()) != 0 || len(m.CurrentRecords()) != 0 {
		t.Error("cancelled cycle changed state")
	}
	if m.LastCycle().Seq != 0 {
		t.Errorf("last cycle seq: got %d, want 0", m.LastCycle().Seq)
	}
}

func TestRunCycle_CancelWhileBlocked(t *testing.T) {
	src := newBlockingSource()
	defer close(src.release)
	m := newTestMonitor(t, Options{Source: src})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Cycle, 1)
	go func() { done <- m.RunCycle(ctx) }()

	waitFor(t, src.entered, "sample to start")
	cancel()
	cycle := waitFor(t, done, "cycle to be abandoned")

	if cycle.Err == nil {
		t.Error("expected an error from an abandoned cycle")
	}
	if len(m.CurrentHistory()) != 0 {
		t.Errorf("history: got %v, want empty", m.CurrentHistory())
	}
}

func TestRunCycle_SerializedHistoryOrder(t *testing.T) {
	m := newTestMonitor(t, Options{Source: &countingSource{}})
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RunCycle(ctx)
		}()
	}
	wg.Wait()

	// The source returns k connections on its k-th call, so serialized
	// cycles produce 1..n in order.
	got := m.CurrentHistory()
	want := make([]int, n)
	for i := range want {
		want[i] = i + 1
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("history: got %v, want %v", got, want)
	}
	if m.LastCycle().Seq != n {
		t.Errorf("last seq: got %d, want %d", m.LastCycle().Seq, n)
	}
}

func TestRunCycle_HistoryWindow(t *testing.T) {
	m := newTestMonitor(t, Options{Source: &countingSource{}, HistorySize: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m.RunCycle(ctx)
	}

	if got := m.CurrentHistory(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Errorf("history: got %v, want [3 4 5]", got)
	}
	if s := m.HistoryStats(); s.Min != 3 || s.Max != 5 || s.Last != 5 {
		t.Errorf("stats: got %+v", s)
	}
}

func TestCurrentRecords_IsCopy(t *testing.T) {
	m := newTestMonitor(t, Options{Source: &fakeSource{conns: mixedConnections()}})
	m.RunCycle(context.Background())

	records := m.CurrentRecords()
	records[0].ProcessName = "mutated"
	records[1].Remote.Port = 1

	current := m.CurrentRecords()
	if current[0].ProcessName == "mutated" {
		t.Error("caller mutation leaked into monitor state")
	}
	if current[1].Remote.Port != 51000 {
		t.Errorf("remote port: got %d, want 51000", current[1].Remote.Port)
	}
	if last := m.LastCycle(); last.Records[1].Remote.Port != 51000 {
		t.Errorf("last cycle remote port: got %d, want 51000", last.Records[1].Remote.Port)
	}
}

func TestRunCycle_ReturnedCycleIsCopy(t *testing.T) {
	m := newTestMonitor(t, Options{Source: &fakeSource{conns: mixedConnections()}})

	cycle := m.RunCycle(context.Background())
	cycle.Records[1].Remote.Port = 1

	if got := m.CurrentRecords()[1].Remote.Port; got != 51000 {
		t.Errorf("remote port: got %d, want 51000", got)
	}
}

func TestKillSelected_DuringCycle(t *testing.T) {
	src := newBlockingSource()
	term := &fakeTerminator{}
	m := newTestMonitor(t, Options{Source: src, Terminator: term})

	go m.RunCycle(context.Background())
	waitFor(t, src.entered, "sample to start")

	done := make(chan error, 1)
	go func() {
		_, err := m.KillSelected(context.Background(), 4242)
		done <- err
	}()

	if err := waitFor(t, done, "kill during cycle"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got := term.Calls(); !reflect.DeepEqual(got, []int32{4242}) {
		t.Errorf("calls: got %v, want [4242]", got)
	}
	close(src.release)
}

func TestKillSelected_InvalidSelection(t *testing.T) {
	term := &fakeTerminator{}
	m := newTestMonitor(t, Options{Source: &fakeSource{}, Terminator: term})

	if _, err := m.KillSelected(context.Background(), 0); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("expected ErrInvalidSelection, got %v", err)
	}
	if len(term.Calls()) != 0 {
		t.Error("expected no OS call")
	}
}
