package conn

import (
	"net"
	"strconv"
	"strings"
)

// ParseLsofOutput parses the columnar output from lsof -iTCP -P -n.
// Each line after the header has fields:
// COMMAND PID USER FD TYPE DEVICE SIZE/OFF NODE NAME [(STATE)]
// Non-TCP lines and lines that fail to parse are skipped.
func ParseLsofOutput(output string) []Connection {
	lines := strings.Split(output, "\n")
	if len(lines) < 2 {
		return nil
	}

	var conns []Connection
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		c, ok := parseLsofLine(line)
		if !ok {
			continue
		}
		conns = append(conns, c)
	}
	return conns
}

// parseLsofLine parses a single lsof output line into a Connection.
func parseLsofLine(line string) (Connection, bool) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return Connection{}, false
	}

	pid, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return Connection{}, false
	}

	if !strings.EqualFold(fields[7], "TCP") {
		return Connection{}, false
	}

	// The state, when present, is a separate "(STATE)" token after NAME.
	local, remote, state := parseNameField(strings.Join(fields[8:], " "), fields[4])

	return Connection{
		Local:  local,
		Remote: remote,
		Status: state,
		PID:    int32(pid),
	}, true
}

// parseNameField extracts both endpoints and the connection state from the
// NAME field. NAME formats:
//   - "*:8080 (LISTEN)" or "127.0.0.1:8080 (LISTEN)"
//   - "127.0.0.1:8080->127.0.0.1:54321 (ESTABLISHED)"
//   - "[::1]:5432 (LISTEN)"
//
// family is the TYPE column (IPv4/IPv6) and decides what "*" expands to.
func parseNameField(name, family string) (*Endpoint, *Endpoint, string) {
	state := ""

	if idx := strings.LastIndex(name, "("); idx != -1 {
		closeParen := strings.LastIndex(name, ")")
		if closeParen > idx {
			state = name[idx+1 : closeParen]
			name = strings.TrimSpace(name[:idx])
		}
	}

	localStr, remoteStr := name, ""
	if idx := strings.Index(name, "->"); idx != -1 {
		localStr, remoteStr = name[:idx], name[idx+2:]
	}

	if state == "" {
		state = "NONE"
	}

	return parseEndpoint(localStr, family), parseEndpoint(remoteStr, family), state
}

// parseEndpoint turns "host:port" into an Endpoint. Wildcard hosts become
// the unspecified address of the family and wildcard ports mean no endpoint.
func parseEndpoint(s, family string) *Endpoint {
	if s == "" {
		return nil
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return nil
	}

	if host == "*" {
		host = "0.0.0.0"
		if strings.EqualFold(family, "IPv6") {
			host = "::"
		}
	}

	if portStr == "*" {
		return nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil
	}

	return NewEndpoint(host, uint32(port))
}
