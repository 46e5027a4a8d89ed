// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/iostream/lib/codec"
	"github.com/bureau-foundation/iostream/lib/iostat"
)

// Subprotocol names accepted during the WebSocket handshake.
const (
	SubprotocolJSON   = "iostream.json"
	SubprotocolCBOR   = "iostream.cbor"
	SubprotocolLegacy = "rust-websocket"
)

// Subprotocols lists the accepted subprotocols in server preference
// order.
var Subprotocols = []string{SubprotocolJSON, SubprotocolCBOR, SubprotocolLegacy}

// Welcome is the first message of every session.
type Welcome struct {
	// ServerTime is the server's Unix time at attach, which a client
	// uses to place sample timestamps relative to its own clock.
	ServerTime int64 `json:"server_time"`
}

// Message is one encoded frame.
type Message struct {
	// Binary selects a binary frame; otherwise the payload is sent as
	// text.
	Binary  bool
	Payload []byte
}

// Encoder turns session events into frames.
type Encoder interface {
	Welcome(welcome Welcome) (Message, error)
	Sample(sample iostat.Sample) (Message, error)
}

// JSONEncoder produces text frames.
type JSONEncoder struct{}

func (JSONEncoder) Welcome(welcome Welcome) (Message, error) {
	return jsonMessage(welcome)
}

func (JSONEncoder) Sample(sample iostat.Sample) (Message, error) {
	return jsonMessage(sample)
}

func jsonMessage(v any) (Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encoding JSON message: %w", err)
	}
	return Message{Payload: payload}, nil
}

// CBOREncoder produces binary frames. Field names follow the JSON
// tags, so both encodings describe the same maps.
type CBOREncoder struct{}

func (CBOREncoder) Welcome(welcome Welcome) (Message, error) {
	return cborMessage(welcome)
}

func (CBOREncoder) Sample(sample iostat.Sample) (Message, error) {
	return cborMessage(sample)
}

func cborMessage(v any) (Message, error) {
	payload, err := codec.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encoding CBOR message: %w", err)
	}
	return Message{Binary: true, Payload: payload}, nil
}

// EncoderFor returns the encoder for a negotiated subprotocol. An
// empty or unknown name selects JSON.
func EncoderFor(subprotocol string) Encoder {
	if subprotocol == SubprotocolCBOR {
		return CBOREncoder{}
	}
	return JSONEncoder{}
}
