package monitor

import (
	"time"

	"github.com/lu-zhengda/tcpmon/internal/conn"
)

// Placeholder process names.
const (
	NameUnknown      = "Unknown"
	NameAccessDenied = "Access Denied"
)

// Record is one TCP connection at sample time, resolved and classified.
// Records handed to callers are read-only copies.
type Record struct {
	PID         int32 // 0 when no owning process is known
	ProcessName string
	Local       conn.Endpoint
	Remote      *conn.Endpoint // nil when the socket has no peer
	Status      string
	Suspicious  bool
}

// HasPID reports whether an owning process is known.
func (r Record) HasPID() bool {
	return r.PID > 0
}

// RemoteString returns the peer as "ip:port", or "-" when there is none.
func (r Record) RemoteString() string {
	if r.Remote == nil {
		return "-"
	}
	return r.Remote.String()
}

// clone returns r with its own copy of the remote endpoint.
func (r Record) clone() Record {
	if r.Remote != nil {
		remote := *r.Remote
		r.Remote = &remote
	}
	return r
}

func cloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.clone()
	}
	return out
}

// Ack acknowledges that a termination request was delivered.
type Ack struct {
	PID int32
}

// Cycle is the outcome of one sampling pass.
type Cycle struct {
	Seq        uint64
	At         time.Time
	Duration   time.Duration
	Filter     string
	Records    []Record // classified and filtered, in source order
	Sampled    int      // records before filtering
	Suspicious int      // suspicious records among Records
	Err        error
}

// Count is the number of records that passed the filter, which is also the
// value appended to the history.
func (c Cycle) Count() int {
	return len(c.Records)
}
