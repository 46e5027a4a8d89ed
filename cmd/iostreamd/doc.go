// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// iostreamd samples per-thread disk I/O from iotop and streams it to
// WebSocket subscribers.
//
// It runs "iotop -bokqqq", parses every output line into a sample,
// and keeps the last --interval seconds of samples in memory. Every
// subscriber to ws://HOST:PORT/ first receives a welcome message with
// the server's Unix time, then the whole retained history, then each
// new sample as it arrives.
//
// Endpoints on the same listener:
//
//	/          WebSocket stream (subprotocols iostream.json, iostream.cbor, rust-websocket)
//	/history   current snapshot as JSON, or CBOR with ?format=cbor; zstd if accepted
//	/healthz   200 while ingest is running, 503 once it has stopped
//	/metrics   Prometheus metrics
//
// The daemon exits non-zero if iotop cannot be started, exits, or (by
// default) prints a line it cannot parse.
package main
