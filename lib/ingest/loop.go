// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/bureau-foundation/iostream/lib/clock"
	"github.com/bureau-foundation/iostream/lib/iostat"
	"github.com/bureau-foundation/iostream/lib/retention"
)

// ErrUpstreamClosed is returned by Run when the line source ends.
var ErrUpstreamClosed = errors.New("upstream closed")

// LineSource delivers upstream output one line at a time. Lines is
// closed when the source ends; Err then reports why (nil for a clean
// exit). upstream.Process satisfies it.
type LineSource interface {
	Lines() <-chan string
	Err() error
}

// ErrorPolicy selects what happens to a line that does not parse.
type ErrorPolicy string

const (
	// PolicyFatal stops ingest on the first malformed line.
	PolicyFatal ErrorPolicy = "fatal"
	// PolicySkip logs the line at WARN and continues.
	PolicySkip ErrorPolicy = "skip"
)

// ParseErrorPolicy validates a policy name. The empty string selects
// PolicyFatal.
func ParseErrorPolicy(name string) (ErrorPolicy, error) {
	switch ErrorPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicyFatal:
		return PolicyFatal, nil
	case PolicySkip:
		return PolicySkip, nil
	}
	return "", fmt.Errorf("unknown parse error policy %q (want fatal or skip)", name)
}

// Config holds the Loop's dependencies.
type Config struct {
	// Store receives every parsed sample. Required.
	Store *retention.Store

	// Clock stamps samples. Defaults to clock.Real().
	Clock clock.Clock

	// Policy defaults to PolicyFatal.
	Policy ErrorPolicy

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Stats counts what a Loop has done so far.
type Stats struct {
	Lines       uint64
	Ingested    uint64
	ParseErrors uint64
}

// Loop appends parsed upstream lines to a store. Create with New.
type Loop struct {
	store  *retention.Store
	clock  clock.Clock
	policy ErrorPolicy
	logger *slog.Logger

	lines       atomic.Uint64
	ingested    atomic.Uint64
	parseErrors atomic.Uint64
	running     atomic.Bool
	stopped     atomic.Bool
}

// New creates a Loop. Panics if config.Store is nil.
func New(config Config) *Loop {
	if config.Store == nil {
		panic("ingest: Config.Store is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Policy == "" {
		config.Policy = PolicyFatal
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		store:  config.Store,
		clock:  config.Clock,
		policy: config.Policy,
		logger: config.Logger,
	}
}

// Run consumes source until it closes, ctx is cancelled, or a line
// fails to parse under PolicyFatal. Cancellation returns nil. Run must
// not be called concurrently: the loop is the store's only writer.
func (l *Loop) Run(ctx context.Context, source LineSource) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("ingest: loop is already running")
	}
	defer l.stopped.Store(true)

	lines := source.Lines()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// A source closed by our own cancellation is a clean stop.
				if ctx.Err() != nil {
					return nil
				}
				if err := source.Err(); err != nil {
					return fmt.Errorf("%w: %w", ErrUpstreamClosed, err)
				}
				return ErrUpstreamClosed
			}
			if err := l.ingest(line); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) ingest(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	l.lines.Add(1)

	record, err := iostat.Parse(line)
	if err != nil {
		l.parseErrors.Add(1)
		if l.policy == PolicyFatal {
			return fmt.Errorf("ingest: %w", err)
		}
		l.logger.Warn("skipping unparseable upstream line",
			"line", line,
			"error", err,
		)
		return nil
	}

	sample := l.store.Append(record, l.clock.Now().Unix())
	l.ingested.Add(1)
	l.logger.Debug("sample ingested",
		"seq", sample.Sequence,
		"tid", sample.ThreadID,
		"command", sample.Command,
	)
	return nil
}

// Stopped reports whether Run has returned.
func (l *Loop) Stopped() bool { return l.stopped.Load() }

// Policy returns the parse error policy in effect.
func (l *Loop) Policy() ErrorPolicy { return l.policy }

// Stats returns the loop's counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Lines:       l.lines.Load(),
		Ingested:    l.ingested.Load(),
		ParseErrors: l.parseErrors.Load(),
	}
}
