// Package process is the subprocess collaborator used by the Git source and
// the build step.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command describes one subprocess invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the current environment.
	Env []string
	// Timeout bounds the command when positive.
	Timeout time.Duration
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs subprocesses.
type Runner interface {
	// Run executes cmd. A non-zero exit is reported through Result.ExitCode,
	// not as an error; errors mean the command could not run or timed out.
	Run(ctx context.Context, cmd Command) (Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct{}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = time.Second
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%s: %w", c, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("running %s: %w", c, err)
}

// ExitError reports a command that exited non-zero.
type ExitError struct {
	Command  string
	Output   string
	ExitCode int
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// RunChecked runs cmd and turns a non-zero exit into an *ExitError.
func RunChecked(ctx context.Context, r Runner, cmd Command) (Result, error) {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, &ExitError{Command: cmd.String(), ExitCode: res.ExitCode, Output: res.Stderr + res.Stdout}
	}
	return res, nil
}
