// Package exec invokes skills as external commands. A skill's executable
// lives in a skills directory, receives its input as JSON on stdin, and
// reports its output as JSON on stdout.
package exec

import (
	"bytes"
	"context"
	"os/exec"
)

// CommandRunner abstracts external command execution so tests can fake it.
type CommandRunner interface {
	// Run executes a command with the given stdin and returns stdout.
	// Stderr is folded into the returned error on failure.
	Run(ctx context.Context, workDir string, stdin []byte, name string, args ...string) ([]byte, error)
}

// Runner implements CommandRunner using os/exec.
type Runner struct{}

// NewRunner creates a Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes a command with the given stdin and returns its stdout.
func (r *Runner) Run(ctx context.Context, workDir string, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &CommandError{Cmd: name, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// CommandError carries a failed command's stderr alongside the exec error.
type CommandError struct {
	Cmd    string
	Stderr string
	Err    error
}

// Error formats the failure with its captured stderr.
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return e.Cmd + ": " + e.Err.Error() + ": " + e.Stderr
	}
	return e.Cmd + ": " + e.Err.Error()
}

// Unwrap exposes the underlying exec error.
func (e *CommandError) Unwrap() error { return e.Err }

var _ CommandRunner = (*Runner)(nil)
