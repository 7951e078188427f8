// SPDX-License-Identifier: MPL-2.0

package hookrunner

import (
	"context"
	"strings"
	"testing"
)

func TestRunSuccess(t *testing.T) {
	r := New(nil)

	res, err := r.Run(context.Background(), "echo hello", t.TempDir())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if got := strings.TrimSpace(res.Stdout); got != "hello" {
		t.Errorf("Stdout = %q, want hello", got)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	r := New(nil)

	res, err := r.Run(context.Background(), "exit 3", t.TempDir())
	if err == nil {
		t.Fatal("Run() expected error for non-zero exit")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestRunSyntaxError(t *testing.T) {
	r := New(nil)

	if _, err := r.Run(context.Background(), "if then fi done", t.TempDir()); err == nil {
		t.Fatal("Run() expected syntax error")
	}
}

func TestRunWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	r := New(nil)

	res, err := r.Run(context.Background(), "pwd", dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := strings.TrimSpace(res.Stdout); got != dir {
		t.Errorf("pwd = %q, want %q", got, dir)
	}
}

func TestRunAllStopsAtFailure(t *testing.T) {
	r := New(nil)

	results, err := r.RunAll(context.Background(), []string{
		"echo one",
		"exit 1",
		"echo never",
	}, t.TempDir())
	if err == nil {
		t.Fatal("RunAll() expected error")
	}
	if len(results) != 2 {
		t.Errorf("results = %d, want 2 (stop at first failure)", len(results))
	}
}

func TestRunWithEnv(t *testing.T) {
	r := New(nil, WithEnv([]string{"HOOK_TARGET=auth"}))

	res, err := r.Run(context.Background(), "echo $HOOK_TARGET", t.TempDir())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := strings.TrimSpace(res.Stdout); got != "auth" {
		t.Errorf("Stdout = %q, want auth", got)
	}
}
