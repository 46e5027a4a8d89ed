// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package streamclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/iostream/lib/clock"
	"github.com/bureau-foundation/iostream/lib/iostat"
	"github.com/bureau-foundation/iostream/lib/retention"
	"github.com/bureau-foundation/iostream/lib/stream"
)

const testTimeout = 5 * time.Second

func startServer(t *testing.T, store *retention.Store) (*stream.Dispatcher, string) {
	t.Helper()
	dispatcher := stream.NewDispatcher(stream.DispatcherConfig{
		Store: store,
		Clock: clock.Fake(time.Unix(1_700_000_000, 0)),
	})
	server := httptest.NewServer(dispatcher)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = dispatcher.Close(ctx)
		server.Close()
	})
	return dispatcher, "ws" + strings.TrimPrefix(server.URL, "http")
}

func fillStore(count int) *retention.Store {
	store := retention.New(900)
	for i := range count {
		store.Append(iostat.Record{ThreadID: uint32(100 + i), Command: "kworker"}, int64(i))
	}
	return store
}

func TestClientBacklogAndLive(t *testing.T) {
	for _, subprotocol := range []string{stream.SubprotocolJSON, stream.SubprotocolCBOR, stream.SubprotocolLegacy} {
		t.Run(subprotocol, func(t *testing.T) {
			t.Parallel()

			store := fillStore(3)
			_, url := startServer(t, store)

			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			defer cancel()

			client, err := Dial(ctx, Config{URL: url, Subprotocol: subprotocol})
			if err != nil {
				t.Fatalf("Dial() failed: %v", err)
			}
			defer client.Close()

			if client.Subprotocol() != subprotocol {
				t.Errorf("Subprotocol() = %q, want %q", client.Subprotocol(), subprotocol)
			}
			if !client.ServerTime().Equal(time.Unix(1_700_000_000, 0)) {
				t.Errorf("ServerTime() = %v", client.ServerTime())
			}

			for want := uint64(0); want < 3; want++ {
				sample, err := client.Next(ctx)
				if err != nil {
					t.Fatalf("Next() failed: %v", err)
				}
				if sample.Sequence != want || sample.ThreadID != uint32(100+want) {
					t.Errorf("sample = seq %d tid %d, want seq %d", sample.Sequence, sample.ThreadID, want)
				}
			}

			store.Append(iostat.Record{ThreadID: 7, Command: "sync"}, 10)
			sample, err := client.Next(ctx)
			if err != nil {
				t.Fatalf("Next() failed: %v", err)
			}
			if sample.Sequence != 3 || sample.Command != "sync" {
				t.Errorf("live sample = %+v", sample)
			}
		})
	}
}

func TestClientNextCancelled(t *testing.T) {
	t.Parallel()

	_, url := startServer(t, fillStore(0))
	client, err := Dial(context.Background(), Config{URL: url})
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() = %v, want context.DeadlineExceeded", err)
	}
}

func TestClientServerShutdown(t *testing.T) {
	t.Parallel()

	dispatcher, url := startServer(t, fillStore(0))
	client, err := Dial(context.Background(), Config{URL: url})
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer client.Close()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = dispatcher.Close(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if _, err := client.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after server shutdown = %v, want io.EOF", err)
	}
}

func TestDialRejectsNonWelcome(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"seq":0}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	_, err := Dial(context.Background(), Config{URL: "ws" + strings.TrimPrefix(server.URL, "http")})
	if err == nil {
		t.Fatal("Dial() should reject a stream that does not start with a welcome")
	}
}

func TestDialErrors(t *testing.T) {
	t.Parallel()

	if _, err := Dial(context.Background(), Config{}); err == nil {
		t.Error("Dial() without a URL should fail")
	}

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	_, err := Dial(context.Background(), Config{URL: "ws" + strings.TrimPrefix(server.URL, "http")})
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("Dial() to a non-WebSocket endpoint = %v, want HTTP 404", err)
	}
}
