package monitor

import "sort"

// defaultSuspiciousPorts are ports commonly tied to remote access, cleartext
// legacy protocols and well-known backdoors.
var defaultSuspiciousPorts = []uint32{21, 22, 23, 25, 1337, 3389, 4444, 6666}

// PortSet is an immutable set of port numbers.
type PortSet struct {
	ports map[uint32]struct{}
}

// NewPortSet builds a set from ports. Duplicates are ignored.
func NewPortSet(ports ...uint32) PortSet {
	s := PortSet{ports: make(map[uint32]struct{}, len(ports))}
	for _, p := range ports {
		s.ports[p] = struct{}{}
	}
	return s
}

// DefaultPortSet returns the built-in suspicious-port watchlist.
func DefaultPortSet() PortSet {
	return NewPortSet(defaultSuspiciousPorts...)
}

// Contains reports whether port is in the set.
func (s PortSet) Contains(port uint32) bool {
	_, ok := s.ports[port]
	return ok
}

// Len returns the number of ports in the set.
func (s PortSet) Len() int {
	return len(s.ports)
}

// Ports returns the members in ascending order.
func (s PortSet) Ports() []uint32 {
	out := make([]uint32, 0, len(s.ports))
	for p := range s.ports {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
