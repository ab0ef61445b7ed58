package monitor

// Session is what the presentation layer talks to: the monitor's state and
// kill action, plus the scheduler's manual trigger.
type Session struct {
	*Monitor
	*Scheduler
}

// NewSession pairs a monitor with the scheduler driving it.
func NewSession(m *Monitor, s *Scheduler) *Session {
	return &Session{Monitor: m, Scheduler: s}
}
