// Package executor runs shell commands for deploy tasks, either on the
// workstation or on a server, and moves files between the two.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Command is one shell command line and the context it runs in.
type Command struct {
	// Line is the shell command line
	Line string

	// Dir is the working directory (cd before running)
	Dir string

	// Env is exported before the command runs
	Env map[string]string

	// Sudo runs the command as root with 'sudo -n'
	Sudo bool
}

// Result contains the execution output and metadata
type Result struct {
	// Output is the combined stdout and stderr of the command
	Output string

	// Status indicates the execution status
	Status ExecutionStatus

	// ExitCode is the exit status of the command, -1 when unknown
	ExitCode int

	// Metadata contains additional execution information
	Metadata map[string]interface{}

	// StartTime when execution began
	StartTime time.Time

	// EndTime when execution completed
	EndTime time.Time

	// Duration is the total execution time
	Duration time.Duration
}

// Trimmed returns the output without surrounding white space.
func (r *Result) Trimmed() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Output)
}

// ExecutionStatus represents the state of an execution
type ExecutionStatus string

const (
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// Error codes carried by ExecutionError.
const (
	CodeCommand  = "COMMAND_ERROR"
	CodeTransfer = "TRANSFER_ERROR"
	CodeInvalid  = "INVALID_COMMAND"
)

// ExecutionError is returned when a command exits non-zero or cannot run.
type ExecutionError struct {
	Message  string
	Code     string
	ExitCode int
	Output   string
}

func (e *ExecutionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "execution error"
}

// ExitCodeOf returns the exit code carried by err, or -1.
func ExitCodeOf(err error) int {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.ExitCode
	}
	return -1
}

// Executor runs commands.
type Executor interface {
	// Run executes the command. A non-zero exit status is returned as an
	// *ExecutionError together with the result.
	Run(ctx context.Context, cmd Command) (*Result, error)

	// Name returns the executor's identifier
	Name() string
}

// PutOptions controls how a file is written by Put.
type PutOptions struct {
	// Mode is applied with chmod after upload when non-zero
	Mode os.FileMode

	// Sudo writes the file as root
	Sudo bool
}

// Transferer copies files to and from a host.
type Transferer interface {
	Put(ctx context.Context, localPath, remotePath string, opts PutOptions) error
	Get(ctx context.Context, remotePath, localPath string) error
}

// Remote is a connected server: commands plus file transfer.
type Remote interface {
	Executor
	Transferer

	// Host returns the address commands are run on
	Host() string

	// Close releases the connection
	Close() error
}

// Runf runs a formatted command line without extra context.
func Runf(ctx context.Context, e Executor, format string, args ...interface{}) (*Result, error) {
	return e.Run(ctx, Command{Line: fmt.Sprintf(format, args...)})
}

// Exists reports whether path exists on the executor's host. 'test -e'
// exiting with 1 means the path is absent; any other failure is an error.
func Exists(ctx context.Context, e Executor, path string, sudo bool) (bool, error) {
	_, err := e.Run(ctx, Command{Line: "test -e " + QuotePath(path), Sudo: sudo})
	if err == nil {
		return true, nil
	}
	if ExitCodeOf(err) == 1 {
		return false, nil
	}
	return false, err
}

// BuildLine renders a command to a single shell line: cd, exports, then the
// command itself, wrapped in 'sudo -n bash -c' when Sudo is set.
func BuildLine(cmd Command) string {
	var parts []string
	if cmd.Dir != "" {
		parts = append(parts, "cd "+QuotePath(cmd.Dir))
	}
	if len(cmd.Env) > 0 {
		keys := make([]string, 0, len(cmd.Env))
		for k := range cmd.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		exports := make([]string, 0, len(keys))
		for _, k := range keys {
			exports = append(exports, k+"="+Quote(cmd.Env[k]))
		}
		parts = append(parts, "export "+strings.Join(exports, " "))
	}
	parts = append(parts, cmd.Line)
	line := strings.Join(parts, " && ")
	if cmd.Sudo {
		return "sudo -n bash -c " + Quote(line)
	}
	return line
}

func finish(result *Result) *Result {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	return result
}
