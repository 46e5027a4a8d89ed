// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package streamclient subscribes to an iostreamd WebSocket stream.
//
// [Dial] performs the handshake and consumes the welcome message;
// [Client.Next] then returns samples one at a time, backlog first.
// Text frames are decoded as JSON and binary frames as CBOR, so the
// client works with any subprotocol the server negotiates.
package streamclient
