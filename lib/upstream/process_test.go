// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/iostream/lib/logging"
	"github.com/bureau-foundation/iostream/lib/testutil"
)

// writeScript creates an executable shell script in a temp directory.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-iotop")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

// collect reads lines until the channel closes.
func collect(t *testing.T, lines <-chan string) []string {
	t.Helper()
	var result []string
	deadline := time.After(10 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return result
			}
			result = append(result, line)
		case <-deadline:
			t.Fatalf("lines channel not closed; got %d lines so far", len(result))
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDefaultArgs(t *testing.T) {
	args := DefaultArgs()
	if len(args) != 1 || args[0] != "-bokqqq" {
		t.Errorf("DefaultArgs() = %v, want [-bokqqq]", args)
	}
}

func TestLinesAndCleanExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `echo "  1 be/4 root 0.00 K/s 0.00 K/s 0.00 % 0.00 % one"
echo "  2 be/4 root 0.00 K/s 0.00 K/s 0.00 % 0.00 % two"
printf 'no trailing newline'`)

	process, err := Start(context.Background(), Config{Path: script})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	lines := collect(t, process.Lines())
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), lines)
	}
	if !strings.HasSuffix(lines[0], "one") || strings.HasSuffix(lines[0], "\n") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[2] != "no trailing newline" {
		t.Errorf("line 2 = %q", lines[2])
	}
	if err := process.Err(); err != nil {
		t.Errorf("Err() = %v, want nil for exit 0", err)
	}
	testutil.RequireClosed(t, process.Done(), 5*time.Second)
}

func TestReceivesArguments(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `echo "$@"`)

	process, err := Start(context.Background(), Config{Path: script})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	lines := collect(t, process.Lines())
	if len(lines) != 1 || lines[0] != "-bokqqq" {
		t.Errorf("child saw arguments %q, want -bokqqq", lines)
	}

	process, err = Start(context.Background(), Config{Path: script, Args: []string{"-b", "-d", "5"}})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	lines = collect(t, process.Lines())
	if len(lines) != 1 || lines[0] != "-b -d 5" {
		t.Errorf("child saw arguments %q, want -b -d 5", lines)
	}
}

func TestNonZeroExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `echo partial; exit 2`)
	process, err := Start(context.Background(), Config{Path: script})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	lines := collect(t, process.Lines())
	if len(lines) != 1 || lines[0] != "partial" {
		t.Errorf("lines = %q", lines)
	}

	var exitErr *exec.ExitError
	if !errors.As(process.Err(), &exitErr) {
		t.Fatalf("Err() = %v, want *exec.ExitError", process.Err())
	}
	if exitErr.ExitCode() != 2 {
		t.Errorf("exit code = %d, want 2", exitErr.ExitCode())
	}
}

func TestStderrLogged(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `echo "CONFIG_TASK_DELAY_ACCT not enabled in kernel" >&2`)
	var output syncBuffer
	logger := logging.NewWriter(&output, slog.LevelDebug, false)

	process, err := Start(context.Background(), Config{Path: script, Logger: logger})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	collect(t, process.Lines())

	logged := output.String()
	if !strings.Contains(logged, `"msg":"upstream stderr"`) {
		t.Errorf("stderr line not logged: %s", logged)
	}
	if !strings.Contains(logged, "CONFIG_TASK_DELAY_ACCT") {
		t.Errorf("stderr content missing from log: %s", logged)
	}
	if !strings.Contains(logged, `"level":"WARN"`) {
		t.Errorf("stderr not logged at WARN: %s", logged)
	}
}

func TestSpawnFailure(t *testing.T) {
	t.Parallel()

	_, err := Start(context.Background(), Config{Path: filepath.Join(t.TempDir(), "missing-iotop")})
	if err == nil {
		t.Fatal("Start() with a missing executable should fail")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Start() = %v, want not-exist", err)
	}

	if _, err := Start(context.Background(), Config{}); err == nil {
		t.Error("Start() with no path should fail")
	}
}

func TestStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `while :; do echo tick; sleep 0.05; done`)
	process, err := Start(context.Background(), Config{Path: script})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	testutil.RequireReceive(t, process.Lines(), 5*time.Second, "no output before stop")

	if err := process.Stop(); err != nil {
		t.Errorf("Stop() = %v, want nil", err)
	}
	testutil.RequireClosed(t, process.Done(), time.Second)
	if err := process.Stop(); err != nil {
		t.Errorf("second Stop() = %v, want nil", err)
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `trap '' TERM
echo ready
while :; do sleep 0.05; done`)
	process, err := Start(context.Background(), Config{Path: script, GracePeriod: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	testutil.RequireReceive(t, process.Lines(), 5*time.Second)

	stopped := make(chan error, 1)
	go func() { stopped <- process.Stop() }()
	if err := testutil.RequireReceive(t, stopped, 5*time.Second, "Stop did not kill a child ignoring SIGTERM"); err != nil {
		t.Errorf("Stop() = %v, want nil", err)
	}
}

func TestStopKillsProcessGroup(t *testing.T) {
	t.Parallel()

	// The background sleep inherits stdout. If it survived, the pipe
	// would stay open and Lines would not close until WaitDelay.
	script := writeScript(t, `sleep 300 &
echo ready
wait`)
	process, err := Start(context.Background(), Config{Path: script, GracePeriod: 10 * time.Second})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	testutil.RequireReceive(t, process.Lines(), 5*time.Second)

	stopped := make(chan error, 1)
	go func() { stopped <- process.Stop() }()
	testutil.RequireReceive(t, stopped, 5*time.Second, "grandchild kept the pipe open")
}

func TestContextCancel(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `echo ready; sleep 300`)
	ctx, cancel := context.WithCancel(context.Background())
	process, err := Start(ctx, Config{Path: script})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	testutil.RequireReceive(t, process.Lines(), 5*time.Second)

	cancel()
	testutil.RequireClosed(t, process.Done(), 5*time.Second)
	if err := process.Err(); err != nil {
		t.Errorf("Err() after cancel = %v, want nil", err)
	}
}
