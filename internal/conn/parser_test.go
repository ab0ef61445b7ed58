package conn

import (
	"testing"
)

func TestParseLsofOutput(t *testing.T) {
	input := `COMMAND     PID      USER   FD   TYPE             DEVICE SIZE/OFF NODE NAME
nginx      1234      root    6u  IPv4 0x1234567890      0t0  TCP *:80 (LISTEN)
sshd        812      root    3u  IPv4 0x1234567891      0t0  TCP 10.0.0.5:22->10.0.0.9:51234 (ESTABLISHED)
node       5678   zhengda    8u  IPv6 0x1234567892      0t0  TCP *:3000 (LISTEN)
postgres   9012 _postgres    9u  IPv6 0x1234567893      0t0  TCP [::1]:5432 (LISTEN)
chrome     1111   zhengda   20u  IPv4 0x1234567894      0t0  TCP 192.168.1.10:54321->93.184.216.34:443 (TIME_WAIT)
`

	conns := ParseLsofOutput(input)

	if len(conns) != 5 {
		t.Fatalf("expected 5 connections, got %d", len(conns))
	}

	tests := []struct {
		idx    int
		pid    int32
		local  string
		remote string
		status string
	}{
		{0, 1234, "0.0.0.0:80", "", "LISTEN"},
		{1, 812, "10.0.0.5:22", "10.0.0.9:51234", "ESTABLISHED"},
		{2, 5678, "[::]:3000", "", "LISTEN"},
		{3, 9012, "[::1]:5432", "", "LISTEN"},
		{4, 1111, "192.168.1.10:54321", "93.184.216.34:443", "TIME_WAIT"},
	}

	for _, tt := range tests {
		c := conns[tt.idx]
		if c.PID != tt.pid {
			t.Errorf("[%d] pid: got %d, want %d", tt.idx, c.PID, tt.pid)
		}
		if c.Local == nil || c.Local.String() != tt.local {
			t.Errorf("[%d] local: got %v, want %q", tt.idx, c.Local, tt.local)
		}
		if tt.remote == "" {
			if c.Remote != nil {
				t.Errorf("[%d] remote: got %v, want none", tt.idx, c.Remote)
			}
		} else if c.Remote == nil || c.Remote.String() != tt.remote {
			t.Errorf("[%d] remote: got %v, want %q", tt.idx, c.Remote, tt.remote)
		}
		if c.Status != tt.status {
			t.Errorf("[%d] status: got %q, want %q", tt.idx, c.Status, tt.status)
		}
	}
}

func TestParseLsofOutput_SkipsUDP(t *testing.T) {
	input := `COMMAND     PID      USER   FD   TYPE             DEVICE SIZE/OFF NODE NAME
mDNSRespo   100      root    5u  IPv4 0x1234567890      0t0  UDP *:5353
`

	conns := ParseLsofOutput(input)
	if len(conns) != 0 {
		t.Fatalf("expected 0 connections, got %d", len(conns))
	}
}

func TestParseLsofOutput_WildcardPortHasNoLocal(t *testing.T) {
	input := `COMMAND     PID      USER   FD   TYPE             DEVICE SIZE/OFF NODE NAME
weird       200      root    5u  IPv4 0x1234567890      0t0  TCP *:* (CLOSED)
`

	conns := ParseLsofOutput(input)
	if len(conns) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(conns))
	}
	if conns[0].Local != nil {
		t.Errorf("local: got %v, want none", conns[0].Local)
	}
}

func TestParseLsofOutput_EmptyInput(t *testing.T) {
	conns := ParseLsofOutput("")
	if len(conns) != 0 {
		t.Errorf("expected 0 connections, got %d", len(conns))
	}
}

func TestParseLsofOutput_HeaderOnly(t *testing.T) {
	input := `COMMAND     PID      USER   FD   TYPE             DEVICE SIZE/OFF NODE NAME
`
	conns := ParseLsofOutput(input)
	if len(conns) != 0 {
		t.Errorf("expected 0 connections, got %d", len(conns))
	}
}

func TestParseNameField(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		family     string
		wantLocal  string
		wantRemote string
		wantSt     string
	}{
		{"listen wildcard", "*:8080 (LISTEN)", "IPv4", "0.0.0.0:8080", "", "LISTEN"},
		{"listen localhost", "127.0.0.1:3000 (LISTEN)", "IPv4", "127.0.0.1:3000", "", "LISTEN"},
		{"established", "192.168.1.10:54321->93.184.216.34:443 (ESTABLISHED)", "IPv4", "192.168.1.10:54321", "93.184.216.34:443", "ESTABLISHED"},
		{"ipv6 peer", "[fe80::1]:22->[fe80::2]:60000 (ESTABLISHED)", "IPv6", "[fe80::1]:22", "[fe80::2]:60000", "ESTABLISHED"},
		{"no state", "127.0.0.1:9000", "IPv4", "127.0.0.1:9000", "", "NONE"},
		{"wildcard star", "*:* (CLOSED)", "IPv4", "", "", "CLOSED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, remote, state := parseNameField(tt.input, tt.family)
			if got := endpointString(local); got != tt.wantLocal {
				t.Errorf("local: got %q, want %q", got, tt.wantLocal)
			}
			if got := endpointString(remote); got != tt.wantRemote {
				t.Errorf("remote: got %q, want %q", got, tt.wantRemote)
			}
			if state != tt.wantSt {
				t.Errorf("state: got %q, want %q", state, tt.wantSt)
			}
		})
	}
}

func endpointString(e *Endpoint) string {
	if e == nil {
		return ""
	}
	return e.String()
}
