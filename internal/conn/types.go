package conn

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint is one side of a TCP connection.
type Endpoint struct {
	IP   string
	Port uint32
}

// String returns "ip:port", bracketing IPv6 addresses.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP, strconv.FormatUint(uint64(e.Port), 10))
}

// NewEndpoint returns nil when the address carries no usable endpoint:
// port 0 on an empty or unspecified IP is how the platform reports "no peer".
func NewEndpoint(ip string, port uint32) *Endpoint {
	if port == 0 && (ip == "" || isUnspecified(ip)) {
		return nil
	}
	return &Endpoint{IP: ip, Port: port}
}

func isUnspecified(ip string) bool {
	if ip == "*" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsUnspecified()
}

// Connection is a TCP connection as reported by a Source, before any
// process resolution.
type Connection struct {
	Local  *Endpoint // nil when the platform reported no local address
	Remote *Endpoint // nil for sockets without a peer (LISTEN, ...)
	Status string    // LISTEN, ESTABLISHED, TIME_WAIT, etc.
	PID    int32     // 0 when the owning process is unknown
}

// String returns a human-readable representation of the connection.
func (c Connection) String() string {
	local, remote := "-", "-"
	if c.Local != nil {
		local = c.Local.String()
	}
	if c.Remote != nil {
		remote = c.Remote.String()
	}
	return fmt.Sprintf("%s -> %s %s (PID %d)", local, remote, c.Status, c.PID)
}
