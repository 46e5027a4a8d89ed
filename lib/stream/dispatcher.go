// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/iostream/lib/clock"
	"github.com/bureau-foundation/iostream/lib/metrics"
	"github.com/bureau-foundation/iostream/lib/netutil"
	"github.com/bureau-foundation/iostream/lib/retention"
)

const (
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultPingInterval is the keepalive period. A subscriber that
	// has not answered within twice this is dropped.
	DefaultPingInterval = 30 * time.Second

	// readLimit caps inbound frames. Subscribers have nothing to say
	// beyond control frames.
	readLimit = 4096
)

// errShutdown is the session cause when the dispatcher is closed.
var errShutdown = errors.New("server shutting down")

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Store is streamed to every subscriber. Required.
	Store *retention.Store

	// Clock supplies the welcome time and drives keepalive pings.
	// Defaults to clock.Real().
	Clock clock.Clock

	WriteTimeout time.Duration
	PingInterval time.Duration

	// CheckOrigin is passed to the upgrader. Nil accepts every origin:
	// subscribers are unauthenticated and the stream is read-only.
	CheckOrigin func(r *http.Request) bool

	// Metrics may be nil.
	Metrics *metrics.Metrics

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Dispatcher is the WebSocket endpoint. It runs one Session per
// connection, isolated from every other.
type Dispatcher struct {
	store        *retention.Store
	clock        clock.Clock
	writeTimeout time.Duration
	pingInterval time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	upgrader     websocket.Upgrader

	// ctx is cancelled by Close and parents every session.
	ctx    context.Context
	cancel context.CancelCauseFunc

	active   atomic.Int64
	sessions sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Panics if config.Store is nil.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Store == nil {
		panic("stream: DispatcherConfig.Store is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.CheckOrigin == nil {
		config.CheckOrigin = func(*http.Request) bool { return true }
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	return &Dispatcher{
		store:        config.Store,
		clock:        config.Clock,
		writeTimeout: config.WriteTimeout,
		pingInterval: config.PingInterval,
		metrics:      config.Metrics,
		logger:       config.Logger,
		upgrader: websocket.Upgrader{
			Subprotocols:    Subprotocols,
			CheckOrigin:     config.CheckOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// ServeHTTP upgrades the request and streams until the subscriber
// leaves, a write fails, or the dispatcher is closed.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if d.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error response.
		d.logger.Debug("websocket upgrade failed",
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		return
	}

	d.sessions.Add(1)
	defer d.sessions.Done()
	d.active.Add(1)
	defer d.active.Add(-1)

	subprotocol := conn.Subprotocol()
	logger := d.logger.With("remote_addr", r.RemoteAddr)
	logger.Info("subscriber connected", "subprotocol", subprotocol)
	d.metrics.SessionOpened(subprotocol)

	ctx, cancel := context.WithCancelCause(d.ctx)
	defer cancel(nil)

	sender := &connSender{conn: conn, timeout: d.writeTimeout, metrics: d.metrics}
	session := NewSession(d.store, sender, EncoderFor(subprotocol), d.clock, logger)

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		d.readFrames(conn, cancel)
	}()
	go func() {
		defer background.Done()
		d.keepalive(ctx, conn, cancel)
	}()

	runErr := session.Run(ctx)
	reason := context.Cause(ctx)
	if reason == nil {
		// The session ended on its own: a send failed.
		reason = runErr
		cancel(runErr)
	}

	closeCode := websocket.CloseNormalClosure
	if errors.Is(reason, errShutdown) {
		closeCode = websocket.CloseGoingAway
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(closeCode, ""),
		time.Now().Add(time.Second))
	conn.Close()
	background.Wait()

	logger.Info("subscriber disconnected",
		"reason", reason,
		"delivered", session.Delivered(),
		"gaps", session.Gaps(),
	)
	d.metrics.SessionClosed(disconnectLabel(reason), session.Gaps())
}

// readFrames drains inbound frames so control frames are processed.
// Any read error, including a client close, ends the session. Socket
// deadlines are always wall-clock time, since the network stack
// enforces them; only the ping schedule follows the injected clock.
func (d *Dispatcher) readFrames(conn *websocket.Conn, cancel context.CancelCauseFunc) {
	conn.SetReadLimit(readLimit)
	pongWait := 2 * d.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			cancel(&readError{err: err})
			return
		}
	}
}

// keepalive pings on every tick of the injected clock until ctx ends.
// WriteControl is safe alongside the session's writes; its deadline is
// wall-clock time like every other socket deadline.
func (d *Dispatcher) keepalive(ctx context.Context, conn *websocket.Conn, cancel context.CancelCauseFunc) {
	ticker := d.clock.NewTicker(d.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(d.writeTimeout)); err != nil {
				cancel(fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

// Active returns the number of connected subscribers.
func (d *Dispatcher) Active() int { return int(d.active.Load()) }

// Close ends every session with a going-away close frame and waits
// for them to finish or for ctx to end. New upgrades are refused.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.cancel(errShutdown)

	done := make(chan struct{})
	go func() {
		d.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d subscribers: %w", d.Active(), ctx.Err())
	}
}

// readError marks a session ended by the subscriber's side of the
// connection.
type readError struct{ err error }

func (e *readError) Error() string { return "subscriber: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

func disconnectLabel(reason error) string {
	var readErr *readError
	switch {
	case errors.Is(reason, errShutdown):
		return "shutdown"
	case netutil.IsPeerGone(reason):
		return "client_closed"
	case errors.As(reason, &readErr):
		return "read_error"
	default:
		return "write_error"
	}
}

// connSender writes frames to a WebSocket connection with a per-frame
// deadline. Only the session goroutine calls Send.
type connSender struct {
	conn    *websocket.Conn
	timeout time.Duration
	metrics *metrics.Metrics
}

func (s *connSender) Send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	frameType := websocket.TextMessage
	if message.Binary {
		frameType = websocket.BinaryMessage
	}
	if err := s.conn.WriteMessage(frameType, message.Payload); err != nil {
		return err
	}
	s.metrics.MessageSent(len(message.Payload))
	return nil
}
