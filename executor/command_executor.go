package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/mitchellh/go-homedir"
)

// CommandExecutor runs commands on the workstation through a shell.
type CommandExecutor struct {
	Shell string
}

// NewCommandExecutor creates a local executor using bash.
func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{
		Shell: "bash",
	}
}

func (e *CommandExecutor) Name() string {
	return "local"
}

// Run executes cmd with the working directory and environment applied to
// the child process. Dir may start with "~".
func (e *CommandExecutor) Run(ctx context.Context, cmd Command) (*Result, error) {
	result := &Result{
		StartTime: time.Now(),
		ExitCode:  -1,
		Metadata:  make(map[string]interface{}),
	}

	if cmd.Line == "" {
		result.Status = StatusFailed
		return finish(result), &ExecutionError{
			Message: "empty command",
			Code:    CodeInvalid,
		}
	}

	line := cmd.Line
	if cmd.Sudo {
		line = "sudo -n bash -c " + Quote(line)
	}
	result.Metadata["command"] = line
	result.Metadata["shell"] = e.Shell

	c := exec.CommandContext(ctx, e.Shell, "-c", line)
	if cmd.Dir != "" {
		dir, err := homedir.Expand(cmd.Dir)
		if err != nil {
			result.Status = StatusFailed
			return finish(result), &ExecutionError{
				Message: fmt.Sprintf("cannot expand folder %s: %v", cmd.Dir, err),
				Code:    CodeInvalid,
			}
		}
		c.Dir = dir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), envList(cmd.Env)...)
	}

	output, err := c.CombinedOutput()
	result.Output = string(output)

	if err != nil {
		result.Status = StatusFailed
		if ctx.Err() != nil {
			result.Status = StatusCancelled
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		result.Metadata["exit_code"] = result.ExitCode
		return finish(result), &ExecutionError{
			Message:  fmt.Sprintf("command failed: %s: %v: %s", cmd.Line, err, trimOutput(result.Output)),
			Code:     CodeCommand,
			ExitCode: result.ExitCode,
			Output:   result.Output,
		}
	}

	result.Status = StatusCompleted
	result.ExitCode = 0
	result.Metadata["exit_code"] = 0
	return finish(result), nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// trimOutput keeps error messages readable when a command prints a lot.
func trimOutput(s string) string {
	const max = 2000
	if len(s) > max {
		return "..." + s[len(s)-max:]
	}
	return s
}
