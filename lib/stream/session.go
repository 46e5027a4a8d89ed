// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bureau-foundation/iostream/lib/clock"
	"github.com/bureau-foundation/iostream/lib/iostat"
	"github.com/bureau-foundation/iostream/lib/retention"
)

// Sender delivers frames to one subscriber. Send blocks until the
// frame is written or fails; any error ends the session.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// Session streams a store to one subscriber: welcome, backlog, then
// live samples, each sample exactly once and in sequence order.
type Session struct {
	store   *retention.Store
	sender  Sender
	encoder Encoder
	clock   clock.Clock
	logger  *slog.Logger

	// cursor is touched only by the goroutine running Run.
	cursor retention.Cursor

	delivered atomic.Uint64
	gaps      atomic.Uint64
}

// NewSession creates a session. A nil encoder selects JSON, a nil
// clock the real clock, and a nil logger discards.
func NewSession(store *retention.Store, sender Sender, encoder Encoder, clk clock.Clock, logger *slog.Logger) *Session {
	if encoder == nil {
		encoder = JSONEncoder{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		store:   store,
		sender:  sender,
		encoder: encoder,
		clock:   clk,
		logger:  logger,
	}
}

// Run streams until ctx is done or a send fails, returning the cause.
// It never returns nil.
func (s *Session) Run(ctx context.Context) error {
	welcome, err := s.encoder.Welcome(Welcome{ServerTime: s.clock.Now().Unix()})
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, welcome); err != nil {
		return fmt.Errorf("sending welcome: %w", err)
	}

	if err := s.deliver(ctx, s.store.Snapshot()); err != nil {
		return err
	}

	for {
		if err := s.store.WaitForUpdate(ctx, s.cursor); err != nil {
			return err
		}
		if err := s.deliver(ctx, s.store.EntriesAfter(s.cursor)); err != nil {
			return err
		}
	}
}

// deliver sends batch in order, advancing the cursor after each
// successful send.
func (s *Session) deliver(ctx context.Context, batch []iostat.Sample) error {
	if len(batch) == 0 {
		return nil
	}

	if _, ok := s.cursor.Sequence(); ok {
		if first := batch[0].Sequence; first > s.cursor.Next() {
			missed := first - s.cursor.Next()
			s.gaps.Add(missed)
			s.logger.Debug("subscriber fell behind the retention window",
				"missed", missed,
				"resumed_at", first,
			)
		}
	}

	for _, sample := range batch {
		message, err := s.encoder.Sample(sample)
		if err != nil {
			return err
		}
		if err := s.sender.Send(ctx, message); err != nil {
			return fmt.Errorf("sending sample %d: %w", sample.Sequence, err)
		}
		s.cursor = s.cursor.Advance(sample.Sequence)
		s.delivered.Add(1)
	}
	return nil
}

// Delivered returns the number of samples sent so far.
func (s *Session) Delivered() uint64 { return s.delivered.Load() }

// Gaps returns the number of samples evicted before this session could
// send them.
func (s *Session) Gaps() uint64 { return s.gaps.Load() }
