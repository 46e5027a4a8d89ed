// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/iostream/lib/clock"
	"github.com/bureau-foundation/iostream/lib/iostat"
	"github.com/bureau-foundation/iostream/lib/metrics"
	"github.com/bureau-foundation/iostream/lib/retention"
)

type testServer struct {
	store      *retention.Store
	dispatcher *Dispatcher
	server     *httptest.Server
	url        string
}

func newTestServer(t *testing.T, store *retention.Store, configure func(*DispatcherConfig)) *testServer {
	t.Helper()
	config := DispatcherConfig{
		Store: store,
		Clock: clock.Fake(time.Unix(1_700_000_000, 0)),
	}
	if configure != nil {
		configure(&config)
	}
	dispatcher := NewDispatcher(config)
	server := httptest.NewServer(dispatcher)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = dispatcher.Close(ctx)
		server.Close()
	})
	return &testServer{
		store:      store,
		dispatcher: dispatcher,
		server:     server,
		url:        "ws" + strings.TrimPrefix(server.URL, "http"),
	}
}

func (s *testServer) dial(t *testing.T, subprotocols ...string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: subprotocols, HandshakeTimeout: testTimeout}
	conn, response, err := dialer.Dial(s.url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", s.url, err)
	}
	response.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
	frameType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if frameType != websocket.TextMessage {
		t.Fatalf("frame type = %d, want text", frameType)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		t.Fatalf("decoding %s: %v", payload, err)
	}
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatcherLateJoinScenario(t *testing.T) {
	t.Parallel()

	store := retention.New(10)
	for timestamp := int64(0); timestamp <= 20; timestamp++ {
		store.Append(record(uint32(timestamp)), timestamp)
	}
	server := newTestServer(t, store, nil)
	conn := server.dial(t)

	if conn.Subprotocol() != "" {
		t.Errorf("no subprotocol requested, got %q", conn.Subprotocol())
	}

	var welcome Welcome
	readJSON(t, conn, &welcome)
	if welcome.ServerTime != 1_700_000_000 {
		t.Errorf("server_time = %d", welcome.ServerTime)
	}

	for want := uint64(10); want <= 20; want++ {
		var sample iostat.Sample
		readJSON(t, conn, &sample)
		if sample.Sequence != want {
			t.Fatalf("got seq %d, want %d", sample.Sequence, want)
		}
	}

	// The next frame after the backlog is the next append, nothing
	// replayed in between.
	store.Append(record(21), 21)
	var live iostat.Sample
	readJSON(t, conn, &live)
	if live.Sequence != 21 {
		t.Errorf("live sample seq = %d, want 21", live.Sequence)
	}
}

func TestDispatcherLiveUpdates(t *testing.T) {
	t.Parallel()

	store := retention.New(900)
	server := newTestServer(t, store, nil)
	conn := server.dial(t, SubprotocolJSON)
	if conn.Subprotocol() != SubprotocolJSON {
		t.Errorf("negotiated %q, want %q", conn.Subprotocol(), SubprotocolJSON)
	}

	var welcome Welcome
	readJSON(t, conn, &welcome)
	waitFor(t, "session to register", func() bool { return server.dispatcher.Active() == 1 })

	for i := range 50 {
		store.Append(record(uint32(i)), int64(i))
	}
	for want := uint64(0); want < 50; want++ {
		var sample iostat.Sample
		readJSON(t, conn, &sample)
		if sample.Sequence != want {
			t.Fatalf("got seq %d, want %d", sample.Sequence, want)
		}
	}
}

func TestDispatcherDisconnectIsolation(t *testing.T) {
	t.Parallel()

	store := retention.New(900)
	server := newTestServer(t, store, nil)

	leaving := server.dial(t)
	staying := server.dial(t)
	var welcome Welcome
	readJSON(t, leaving, &welcome)
	readJSON(t, staying, &welcome)
	waitFor(t, "two sessions", func() bool { return server.dispatcher.Active() == 2 })

	store.Append(record(1), 1)
	var sample iostat.Sample
	readJSON(t, leaving, &sample)
	readJSON(t, staying, &sample)

	_ = leaving.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	leaving.Close()
	waitFor(t, "departed session to end", func() bool { return server.dispatcher.Active() == 1 })

	store.Append(record(2), 2)
	readJSON(t, staying, &sample)
	if sample.Sequence != 1 {
		t.Errorf("remaining subscriber got seq %d, want 1", sample.Sequence)
	}
}

func TestDispatcherCBORSubprotocol(t *testing.T) {
	t.Parallel()

	store := retention.New(900)
	store.Append(record(31), 5)
	server := newTestServer(t, store, nil)

	conn := server.dial(t, SubprotocolCBOR)
	if conn.Subprotocol() != SubprotocolCBOR {
		t.Fatalf("negotiated %q, want %q", conn.Subprotocol(), SubprotocolCBOR)
	}

	_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
	frameType, _, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading welcome: %v", err)
	}
	if frameType != websocket.BinaryMessage {
		t.Errorf("welcome frame type = %d, want binary", frameType)
	}

	frameType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading sample: %v", err)
	}
	if frameType != websocket.BinaryMessage {
		t.Errorf("sample frame type = %d, want binary", frameType)
	}
	sample := decodeCBORSample(t, payload)
	if sample.ThreadID != 31 || sample.Timestamp != 5 {
		t.Errorf("decoded %+v", sample)
	}
}

func TestDispatcherLegacySubprotocol(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, retention.New(900), nil)
	conn := server.dial(t, SubprotocolLegacy)
	if conn.Subprotocol() != SubprotocolLegacy {
		t.Fatalf("negotiated %q, want %q", conn.Subprotocol(), SubprotocolLegacy)
	}
	var welcome Welcome
	readJSON(t, conn, &welcome)
}

func TestDispatcherCloseSendsGoingAway(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, retention.New(900), nil)
	conn := server.dial(t)
	var welcome Welcome
	readJSON(t, conn, &welcome)
	waitFor(t, "session to register", func() bool { return server.dispatcher.Active() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := server.dispatcher.Close(ctx); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after Close = %v, want going-away close", err)
	}
	if server.dispatcher.Active() != 0 {
		t.Errorf("Active() = %d after Close", server.dispatcher.Active())
	}

	// New subscribers are refused once closed.
	response, err := http.Get(server.server.URL)
	if err != nil {
		t.Fatalf("GET after Close: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status after Close = %d, want 503", response.StatusCode)
	}
}

func TestDispatcherRejectsPlainHTTP(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, retention.New(900), nil)
	response, err := http.Get(server.server.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", response.StatusCode)
	}
}

func TestDispatcherPings(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(time.Unix(0, 0))
	server := newTestServer(t, retention.New(900), func(config *DispatcherConfig) {
		config.Clock = fake
		config.PingInterval = time.Minute
	})
	conn := server.dial(t)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	var welcome Welcome
	readJSON(t, conn, &welcome)

	// Reads must be in progress for the ping handler to run.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Minute)
	select {
	case <-pinged:
	case <-time.After(testTimeout):
		t.Fatal("no ping after one interval")
	}
}

func TestDispatcherMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	store := retention.New(900)
	store.Append(record(1), 1)
	server := newTestServer(t, store, func(config *DispatcherConfig) {
		config.Metrics = metrics.New(registry)
	})

	conn := server.dial(t, SubprotocolCBOR)
	_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
	for range 2 {
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("reading: %v", err)
		}
	}
	conn.Close()
	waitFor(t, "session to end", func() bool { return server.dispatcher.Active() == 0 })

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	found := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if counter := metric.GetCounter(); counter != nil {
				found[family.GetName()] += counter.GetValue()
			}
		}
	}
	if found["iostream_stream_sessions_total"] != 1 {
		t.Errorf("sessions_total = %v, want 1", found["iostream_stream_sessions_total"])
	}
	if found["iostream_stream_messages_sent_total"] != 2 {
		t.Errorf("messages_sent_total = %v, want 2", found["iostream_stream_messages_sent_total"])
	}
	if found["iostream_stream_disconnections_total"] != 1 {
		t.Errorf("disconnections_total = %v, want 1", found["iostream_stream_disconnections_total"])
	}
}
