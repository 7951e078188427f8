// SPDX-License-Identifier: MPL-2.0

// Package hookrunner executes lifecycle hook and migration commands through
// an embedded POSIX shell interpreter. Commands run in-process, so hook
// execution does not depend on a system shell being installed.
package hookrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

type (
	// Result captures one command execution.
	Result struct {
		Command  string
		ExitCode int
		Stdout   string
		Stderr   string
	}

	// Runner executes hook command strings in a working directory.
	Runner struct {
		logger *log.Logger
		// env is the environment exposed to hooks; defaults to the process
		// environment.
		env []string
	}

	// Option configures a Runner.
	Option func(*Runner)
)

// WithEnv replaces the environment exposed to hook commands.
func WithEnv(env []string) Option {
	return func(r *Runner) { r.env = env }
}

// New creates a hook runner. A nil logger falls back to the default.
func New(logger *log.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	r := &Runner{
		logger: logger.With("component", "hookrunner"),
		env:    os.Environ(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a single command string in workDir. A non-zero exit status is
// returned as an error alongside the Result, so callers can both abort and
// report captured output.
func (r *Runner) Run(ctx context.Context, command, workDir string) (*Result, error) {
	result := &Result{Command: command}

	prog, err := syntax.NewParser().Parse(strings.NewReader(command), "hook")
	if err != nil {
		result.ExitCode = 1
		return result, fmt.Errorf("hook syntax error: %w", err)
	}

	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.Dir(workDir),
		interp.Env(expand.ListEnviron(r.env...)),
		interp.StdIO(nil, &stdout, &stderr),
	)
	if err != nil {
		result.ExitCode = 1
		return result, fmt.Errorf("failed to create interpreter: %w", err)
	}

	runErr := runner.Run(ctx, prog)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if runErr != nil {
		var exitStatus interp.ExitStatus
		if errors.As(runErr, &exitStatus) {
			result.ExitCode = int(exitStatus)
			return result, fmt.Errorf("hook exited with status %d: %s", result.ExitCode, command)
		}
		result.ExitCode = 1
		return result, fmt.Errorf("hook execution failed: %w", runErr)
	}

	r.logger.Debug("hook completed", "command", command, "workdir", workDir)
	return result, nil
}

// RunAll executes commands in order and stops at the first failure,
// returning the results accumulated so far.
func (r *Runner) RunAll(ctx context.Context, commands []string, workDir string) ([]*Result, error) {
	results := make([]*Result, 0, len(commands))
	for _, command := range commands {
		res, err := r.Run(ctx, command, workDir)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
