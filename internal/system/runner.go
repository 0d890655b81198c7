package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds a single external command.
const DefaultCommandTimeout = 2 * time.Minute

// Result is the outcome of an external command.
type Result struct {
	// Stdout is the captured standard output.
	Stdout string
	// Stderr is the captured standard error.
	Stderr string
	// ExitCode is the process exit status. Negative when the process did not start.
	ExitCode int
}

// Runner executes host commands.
type Runner interface {
	// Run executes name with args and returns its captured output.
	// A non-zero exit status is reported as an error together with the result.
	Run(ctx context.Context, name string, args ...string) (*Result, error)
	// LookPath resolves an executable on PATH.
	LookPath(name string) (string, error)
}

// ErrCommandFailed marks a command that exited with a non-zero status.
var ErrCommandFailed = errors.New("command failed")

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Timeout bounds each command. Zero means DefaultCommandTimeout.
	Timeout time.Duration
}

// NewExecRunner creates a runner with the given per-command timeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(cmdCtx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()

		return result, fmt.Errorf("%s %s: exit %d: %s: %w",
			name, strings.Join(args, " "), result.ExitCode, strings.TrimSpace(result.Stderr), ErrCommandFailed)
	}

	result.ExitCode = -1

	return result, fmt.Errorf("%s: %w", name, err)
}

// LookPath implements Runner.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
