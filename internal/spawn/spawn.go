// Package spawn runs external commands for rules and notifiers.
package spawn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Command describes a process to run.
type Command struct {
	Name string
	Args []string

	// Input is written to standard input when HasInput is set.
	Input    string
	HasInput bool

	CaptureOutput      bool
	CaptureErrorOutput bool
}

// ShellCommand runs line through /bin/sh -c.
func ShellCommand(line string) Command {
	return Command{Name: "/bin/sh", Args: []string{"-c", line}}
}

// WithInput returns a copy of c that feeds input to the process.
func (c Command) WithInput(input string) Command {
	c.Input, c.HasInput = input, true
	return c
}

// Captured returns a copy of c that captures both output streams.
func (c Command) Captured() Command {
	c.CaptureOutput, c.CaptureErrorOutput = true, true
	return c
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode    int
	Output      string
	ErrorOutput string
}

// Success reports a zero exit status.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner runs commands to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	log *zap.Logger
}

// NewExecRunner creates an ExecRunner. log may be nil.
func NewExecRunner(log *zap.Logger) *ExecRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecRunner{log: log}
}

// Run starts the command and waits for it. A non-zero exit status is
// reported in Result, not as an error; errors mean the process could not
// be run at all.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)

	var stdout, stderr bytes.Buffer
	if cmd.CaptureOutput {
		c.Stdout = &stdout
	}
	if cmd.CaptureErrorOutput {
		c.Stderr = &stderr
	}
	if cmd.HasInput {
		c.Stdin = strings.NewReader(cmd.Input)
	}

	r.log.Debug("running command", zap.Stringer("command", cmd))

	err := c.Run()
	res := Result{Output: stdout.String(), ErrorOutput: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("run %s: %w", cmd.Name, err)
	}
	return res, nil
}
