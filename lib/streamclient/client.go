// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package streamclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/iostream/lib/codec"
	"github.com/bureau-foundation/iostream/lib/iostat"
	"github.com/bureau-foundation/iostream/lib/stream"
)

// Config describes the subscription.
type Config struct {
	// URL is the ws:// or wss:// stream endpoint. Required.
	URL string

	// Subprotocol to request. Defaults to stream.SubprotocolJSON.
	Subprotocol string

	// Header is sent with the handshake.
	Header http.Header

	// HandshakeTimeout defaults to 10 seconds.
	HandshakeTimeout time.Duration
}

// Client is an open subscription. Next must not be called
// concurrently.
type Client struct {
	conn       *websocket.Conn
	serverTime time.Time
}

// welcomeFrame distinguishes a missing server_time from zero.
type welcomeFrame struct {
	ServerTime *int64 `json:"server_time"`
}

// Dial connects and reads the welcome message.
func Dial(ctx context.Context, config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("streamclient: Config.URL is required")
	}
	if config.Subprotocol == "" {
		config.Subprotocol = stream.SubprotocolJSON
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}

	dialer := websocket.Dialer{
		Subprotocols:     []string{config.Subprotocol},
		HandshakeTimeout: config.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, response, err := dialer.DialContext(ctx, config.URL, config.Header)
	if err != nil {
		if response != nil {
			return nil, fmt.Errorf("streamclient: dialing %s: %w (HTTP %d)", config.URL, err, response.StatusCode)
		}
		return nil, fmt.Errorf("streamclient: dialing %s: %w", config.URL, err)
	}
	if response != nil && response.Body != nil {
		response.Body.Close()
	}

	client := &Client{conn: conn}
	var welcome welcomeFrame
	if err := client.read(ctx, &welcome); err != nil {
		conn.Close()
		return nil, fmt.Errorf("streamclient: reading welcome: %w", err)
	}
	if welcome.ServerTime == nil {
		conn.Close()
		return nil, errors.New("streamclient: first message is not a welcome")
	}
	client.serverTime = time.Unix(*welcome.ServerTime, 0)
	return client, nil
}

// ServerTime is the server's clock at attach.
func (c *Client) ServerTime() time.Time { return c.serverTime }

// Subprotocol returns the negotiated subprotocol.
func (c *Client) Subprotocol() string { return c.conn.Subprotocol() }

// Next blocks for the next sample. It returns io.EOF when the server
// closes the stream normally, and ctx.Err() when ctx ends; the client
// is unusable after any error.
func (c *Client) Next(ctx context.Context) (iostat.Sample, error) {
	var sample iostat.Sample
	err := c.read(ctx, &sample)
	return sample, err
}

func (c *Client) read(ctx context.Context, v any) error {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	frameType, payload, err := c.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return io.EOF
		}
		return err
	}

	switch frameType {
	case websocket.BinaryMessage:
		err = codec.Unmarshal(payload, v)
	default:
		err = json.Unmarshal(payload, v)
	}
	if err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	return nil
}

// Close sends a normal close frame and closes the connection.
func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
