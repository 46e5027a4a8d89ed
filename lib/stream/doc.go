// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream serves a [retention.Store] to WebSocket subscribers.
//
// Each accepted connection gets one [Session], run on the handler's
// goroutine. A session sends a welcome message carrying the server's
// Unix time, replays every retained sample in sequence order, then
// blocks on the store and forwards each new sample as it is appended.
// The session's cursor is the only per-subscriber state and lives on
// the session, so the writer's cost does not grow with subscribers and
// a slow or departed subscriber affects nobody else.
//
// Three subprotocols are negotiated:
//
//   - iostream.json (default): one JSON object per text frame.
//   - iostream.cbor: one CBOR map per binary frame, same field names.
//   - rust-websocket: JSON text frames, for dashboards that still
//     request the legacy subprotocol name.
//
// The package also provides the /history snapshot export and the
// /healthz probe.
package stream
