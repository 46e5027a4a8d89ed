// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultGracePeriod is how long Stop waits after SIGTERM before
// sending SIGKILL to the process group.
const DefaultGracePeriod = 5 * time.Second

// maxLineLength bounds a single stdout line. iotop truncates nothing,
// so long command lines need more than bufio's 64 KiB default.
const maxLineLength = 1 << 20

// DefaultArgs returns the iotop arguments for line-oriented output.
func DefaultArgs() []string {
	return []string{"-bokqqq"}
}

// Config describes the child to run.
type Config struct {
	// Path is the executable. A bare name is resolved through PATH.
	Path string

	// Args are passed to the executable. Nil selects DefaultArgs; an
	// empty non-nil slice passes no arguments.
	Args []string

	// GracePeriod defaults to DefaultGracePeriod.
	GracePeriod time.Duration

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Process is a running upstream child.
type Process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	logger *slog.Logger

	lines chan string
	done  chan struct{}

	// err is written once before done closes.
	err error

	stopping atomic.Bool
}

// Start spawns the child. The child is terminated when ctx is done or
// Stop is called. A spawn failure (missing executable, permission
// denied) is returned directly.
func Start(ctx context.Context, config Config) (*Process, error) {
	if config.Path == "" {
		return nil, errors.New("upstream: Config.Path is required")
	}
	if config.Args == nil {
		config.Args = DefaultArgs()
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	processContext, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(processContext, config.Path, config.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: unix.SIGTERM,
	}

	p := &Process{
		cmd:    cmd,
		cancel: cancel,
		logger: config.Logger,
		lines:  make(chan string, 64),
		done:   make(chan struct{}),
	}

	// Cancellation signals the whole group so helpers the child forks
	// die with it, then escalates if it ignores SIGTERM.
	grace := config.GracePeriod
	cmd.Cancel = func() error {
		processGroupID := -cmd.Process.Pid
		if err := unix.Kill(processGroupID, unix.SIGTERM); err != nil {
			return unix.Kill(processGroupID, unix.SIGKILL)
		}
		go func() {
			select {
			case <-time.After(grace):
				// ESRCH from an already-exited group is harmless.
				_ = unix.Kill(processGroupID, unix.SIGKILL)
			case <-p.done:
			}
		}()
		return nil
	}
	// Output is copied through io.Pipes rather than StdoutPipe so that
	// WaitDelay applies: a grandchild holding the child's stdout open
	// cannot keep Wait from returning once the child has gone.
	cmd.WaitDelay = 2 * grace
	stdoutReader, stdoutWriter := io.Pipe()
	stderrReader, stderrWriter := io.Pipe()
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter

	if err := cmd.Start(); err != nil {
		cancel()
		stdoutWriter.Close()
		stderrWriter.Close()
		return nil, fmt.Errorf("upstream: starting %s: %w", config.Path, err)
	}

	p.logger.Info("upstream started",
		"path", cmd.Path,
		"args", config.Args,
		"pid", cmd.Process.Pid,
	)

	go p.supervise(processContext, stdoutReader, stderrReader, func() {
		stdoutWriter.Close()
		stderrWriter.Close()
	})
	return p, nil
}

// supervise reads both streams until the child is reaped and its
// output fully consumed, then publishes the exit status.
func (p *Process) supervise(ctx context.Context, stdout, stderr io.Reader, closeWriters func()) {
	var readers sync.WaitGroup
	readers.Add(2)

	var scanErr error
	go func() {
		defer readers.Done()
		scanErr = p.readStdout(ctx, stdout)
	}()
	go func() {
		defer readers.Done()
		p.readStderr(stderr)
	}()

	waitErr := p.cmd.Wait()
	closeWriters()
	readers.Wait()
	switch {
	case p.stopping.Load() || ctx.Err() != nil:
		// Our own signal killed it; that is not an upstream failure.
		p.err = nil
	case waitErr != nil:
		p.err = waitErr
	case scanErr != nil:
		p.err = scanErr
	}

	p.logger.Info("upstream exited",
		"pid", p.cmd.Process.Pid,
		"error", p.err,
	)

	close(p.lines)
	close(p.done)
	p.cancel()
}

func (p *Process) readStdout(ctx context.Context, stdout io.Reader) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
	for scanner.Scan() {
		select {
		case p.lines <- scanner.Text():
		case <-ctx.Done():
			// Nobody will read further lines; keep draining so the
			// child is never blocked on a full pipe while it dies.
			_, _ = io.Copy(io.Discard, stdout)
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, stdout)
		return fmt.Errorf("upstream: reading stdout: %w", err)
	}
	return nil
}

func (p *Process) readStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
	for scanner.Scan() {
		p.logger.Warn("upstream stderr", "line", scanner.Text())
	}
	_, _ = io.Copy(io.Discard, stderr)
}

// Lines returns the channel of stdout lines, without trailing
// newlines. It is closed once stdout reaches EOF and the child has
// been reaped.
func (p *Process) Lines() <-chan string { return p.lines }

// Err reports why the child ended: an *exec.ExitError for a non-zero
// exit or a signal, a read error, or nil for a clean exit or a Stop.
// Only meaningful once Lines is closed.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Done is closed when the child has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Pid returns the child's process ID.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Stop terminates the child's process group (SIGTERM, then SIGKILL
// after the grace period) and waits for it to be reaped. Safe to call
// more than once and after the child has exited on its own.
func (p *Process) Stop() error {
	select {
	case <-p.done:
		return p.err
	default:
	}
	p.stopping.Store(true)
	p.cancel()
	<-p.done
	return p.err
}
