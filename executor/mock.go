package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MockResponse scripts the outcome of commands whose line contains Match.
type MockResponse struct {
	Match    string
	Output   string
	ExitCode int
	Err      error
}

// MockTransfer records one Put or Get.
type MockTransfer struct {
	Local  string
	Remote string
	Opts   PutOptions
}

// MockExecutor implements Remote without touching any host. Commands are
// recorded; 'test -e' succeeds only for paths listed in Existing.
type MockExecutor struct {
	mu sync.Mutex

	HostName  string
	Commands  []Command
	Existing  map[string]bool
	Responses []MockResponse
	Puts      []MockTransfer
	Gets      []MockTransfer

	// Files maps remote paths to the content written locally by Get
	Files map[string]string

	Closed bool
}

// NewMockExecutor creates a mock for host.
func NewMockExecutor(host string) *MockExecutor {
	return &MockExecutor{
		HostName: host,
		Existing: make(map[string]bool),
		Files:    make(map[string]string),
	}
}

// Respond adds a scripted response and returns the mock for chaining.
func (m *MockExecutor) Respond(match, output string, exitCode int) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, MockResponse{Match: match, Output: output, ExitCode: exitCode})
	return m
}

func (m *MockExecutor) Name() string { return "mock" }

func (m *MockExecutor) Host() string { return m.HostName }

func (m *MockExecutor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MockExecutor) Run(ctx context.Context, cmd Command) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = append(m.Commands, cmd)

	result := &Result{StartTime: time.Now(), Metadata: map[string]interface{}{"command": cmd.Line}}

	if strings.HasPrefix(cmd.Line, "test -e ") {
		for path, ok := range m.Existing {
			if ok && cmd.Line == "test -e "+QuotePath(path) {
				result.Status = StatusCompleted
				return finish(result), nil
			}
		}
	}

	for _, r := range m.Responses {
		if !strings.Contains(cmd.Line, r.Match) {
			continue
		}
		result.Output = r.Output
		result.ExitCode = r.ExitCode
		if r.Err != nil {
			result.Status = StatusFailed
			return finish(result), r.Err
		}
		if r.ExitCode != 0 {
			result.Status = StatusFailed
			return finish(result), &ExecutionError{
				Message:  fmt.Sprintf("command failed: %s: exit status %d", cmd.Line, r.ExitCode),
				Code:     CodeCommand,
				ExitCode: r.ExitCode,
				Output:   r.Output,
			}
		}
		result.Status = StatusCompleted
		return finish(result), nil
	}

	if strings.HasPrefix(cmd.Line, "test -e ") {
		result.Status = StatusFailed
		result.ExitCode = 1
		return finish(result), &ExecutionError{Message: "not found", Code: CodeCommand, ExitCode: 1}
	}

	result.Status = StatusCompleted
	return finish(result), nil
}

func (m *MockExecutor) Put(ctx context.Context, localPath, remotePath string, opts PutOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts = append(m.Puts, MockTransfer{Local: localPath, Remote: remotePath, Opts: opts})
	return nil
}

func (m *MockExecutor) Get(ctx context.Context, remotePath, localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets = append(m.Gets, MockTransfer{Local: localPath, Remote: remotePath})
	if content, ok := m.Files[remotePath]; ok {
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return err
		}
		return os.WriteFile(localPath, []byte(content), 0o644)
	}
	return nil
}

// Lines returns the command lines run so far.
func (m *MockExecutor) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]string, 0, len(m.Commands))
	for _, c := range m.Commands {
		lines = append(lines, c.Line)
	}
	return lines
}

// Ran reports whether any command line contained sub.
func (m *MockExecutor) Ran(sub string) bool {
	for _, l := range m.Lines() {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

// Find returns the first command whose line contains sub.
func (m *MockExecutor) Find(sub string) (Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Commands {
		if strings.Contains(c.Line, sub) {
			return c, true
		}
	}
	return Command{}, false
}
