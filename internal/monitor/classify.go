package monitor

import (
	"strconv"
	"strings"
)

// Classify returns a copy of records with Suspicious set: a record is
// suspicious iff its local port or its remote port is in set. No record is
// dropped.
func Classify(records []Record, set PortSet) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		r.Suspicious = set.Contains(r.Local.Port) ||
			(r.Remote != nil && set.Contains(r.Remote.Port))
		out[i] = r
	}
	return out
}

// Filter keeps the records whose local or remote port, written in decimal,
// contains criterion. An empty criterion keeps everything.
func Filter(records []Record, criterion string) []Record {
	if criterion == "" {
		return records
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if matchesPort(r, criterion) {
			out = append(out, r)
		}
	}
	return out
}

func matchesPort(r Record, criterion string) bool {
	if strings.Contains(strconv.FormatUint(uint64(r.Local.Port), 10), criterion) {
		return true
	}
	return r.Remote != nil &&
		strings.Contains(strconv.FormatUint(uint64(r.Remote.Port), 10), criterion)
}
