package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lu-zhengda/tcpmon/internal/conn"
	"github.com/lu-zhengda/tcpmon/internal/logging"
	"github.com/lu-zhengda/tcpmon/internal/monitor"
	"github.com/lu-zhengda/tcpmon/internal/process"
	"github.com/prometheus/client_golang/prometheus"
)

const sampleLsof = `COMMAND     PID      USER   FD   TYPE             DEVICE SIZE/OFF NODE NAME
nginx      1234      root    6u  IPv4 0x1234567890      0t0  TCP *:80 (LISTEN)
sshd        812      root    3u  IPv4 0x1234567891      0t0  TCP 10.0.0.5:22->10.0.0.9:51234 (ESTABLISHED)
`

type nopTerminator struct{}

func (nopTerminator) Terminate(context.Context, int32) error { return nil }

func newTestSession(t *testing.T) *monitor.Session {
	t.Helper()
	resolver := process.NewPsResolver(&conn.MultiMockCmdRunner{
		Responses: map[string]conn.MockResponse{
			"ps -p 1234 -o comm=": {Output: []byte("/usr/sbin/nginx\n")},
			"ps -p 812 -o comm=":  {Output: []byte("sshd\n")},
		},
	})
	mon, err := monitor.New(monitor.Options{
		Source:     conn.NewLsofSource(&conn.MockCmdRunner{Output: []byte(sampleLsof)}),
		Resolver:   resolver,
		Terminator: nopTerminator{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mon.RunCycle(context.Background())
	return monitor.NewSession(mon, monitor.NewScheduler(mon, time.Hour))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := newTestSession(t)
	registry := prometheus.NewRegistry()
	registry.MustRegister(monitor.NewCollector(s.Monitor))
	srv := httptest.NewServer(newServeMux(s, registry, logging.Discard()))
	t.Cleanup(srv.Close)
	return srv
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestServe_Connections(t *testing.T) {
	srv := newTestServer(t)

	code, body := getBody(t, srv.URL+"/api/connections")
	if code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}

	var records []jsonRecord
	if err := json.Unmarshal([]byte(body), &records); err != nil {
		t.Fatalf("decode: %v\n%s", err, body)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !strings.Contains(body, `"remote": null`) {
		t.Errorf("listening socket should report a null remote:\n%s", body)
	}
	if records[0].Process != "nginx" || records[0].Local != "0.0.0.0:80" || records[0].Remote != nil {
		t.Errorf("first record: %+v", records[0])
	}
	if !records[1].Suspicious || records[1].Remote == nil || *records[1].Remote != "10.0.0.9:51234" {
		t.Errorf("second record: %+v", records[1])
	}

	_, body = getBody(t, srv.URL+"/api/connections?suspicious=true")
	records = nil
	if err := json.Unmarshal([]byte(body), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].PID != 812 {
		t.Errorf("suspicious only: got %+v", records)
	}
}

func TestServe_History(t *testing.T) {
	srv := newTestServer(t)

	_, body := getBody(t, srv.URL+"/api/history")
	var out struct {
		Capacity int   `json:"capacity"`
		Counts   []int `json:"counts"`
		Last     int   `json:"last"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Capacity != 30 || len(out.Counts) != 1 || out.Counts[0] != 2 || out.Last != 2 {
		t.Errorf("history: %+v", out)
	}
}

func TestServe_RefreshRateLimited(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/refresh", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("first refresh: got %d, want 202", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/api/refresh", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second refresh: got %d, want 429", resp.StatusCode)
	}
}

func TestServe_RefreshMethod(t *testing.T) {
	srv := newTestServer(t)

	code, _ := getBody(t, srv.URL+"/api/refresh")
	if code != http.StatusMethodNotAllowed {
		t.Errorf("GET refresh: got %d, want 405", code)
	}
}

func TestServe_MetricsAndHealth(t *testing.T) {
	srv := newTestServer(t)

	code, body := getBody(t, srv.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics status: got %d", code)
	}
	for _, want := range []string{
		"tcpmon_cycles_total 1",
		"tcpmon_suspicious_connections 1",
		`tcpmon_connections{status="LISTEN"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}

	code, body = getBody(t, srv.URL+"/healthz")
	if code != http.StatusOK || strings.TrimSpace(body) != "ok" {
		t.Errorf("healthz: %d %q", code, body)
	}
}

// brokenResponseWriter accepts headers but fails every body write.
type brokenResponseWriter struct {
	*httptest.ResponseRecorder
}

func (brokenResponseWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestServe_RefreshEncodeErrorLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	mux := newServeMux(newTestSession(t), prometheus.NewRegistry(), logger)

	w := brokenResponseWriter{httptest.NewRecorder()}
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))

	if w.Code != http.StatusAccepted {
		t.Errorf("status: got %d, want 202", w.Code)
	}
	if !strings.Contains(logs.String(), "encode refresh") || !strings.Contains(logs.String(), "connection reset") {
		t.Errorf("expected encode failure in log, got %q", logs.String())
	}
}
