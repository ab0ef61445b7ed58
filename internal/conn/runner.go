package conn

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// CmdRunner abstracts shell command execution for testability.
type CmdRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RealCmdRunner executes real shell commands.
type RealCmdRunner struct{}

// Run executes a command and returns its stdout. Stderr is suppressed
// to prevent it from leaking into TUI output.
func (r *RealCmdRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = io.Discard
	return cmd.Output()
}

// MockCmdRunner returns canned responses for testing and records every
// invocation.
type MockCmdRunner struct {
	Output []byte
	Err    error

	mu    sync.Mutex
	calls []string
}

// Run returns the pre-configured output and error.
func (m *MockCmdRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, commandKey(name, args))
	m.mu.Unlock()
	return m.Output, m.Err
}

// Calls returns the commands run so far, as "name arg1 arg2 ..." strings.
func (m *MockCmdRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MultiMockCmdRunner returns different responses based on the command.
// Keys are "name arg1 arg2 ..." strings.
type MultiMockCmdRunner struct {
	Responses map[string]MockResponse
}

// MockResponse holds a single command's output and error.
type MockResponse struct {
	Output []byte
	Err    error
}

// Run looks up the command key and returns its pre-configured response.
// Falls back to empty output and nil error if no match is found.
func (m *MultiMockCmdRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	if resp, ok := m.Responses[commandKey(name, args)]; ok {
		return resp.Output, resp.Err
	}
	return nil, nil
}

func commandKey(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
