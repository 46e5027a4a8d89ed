// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service runs iostreamd's HTTP listener.
//
// [HTTPServer] binds early so a bad address fails at startup, signals
// readiness once accepting, and on context cancellation drains
// in-flight requests. WebSocket connections are hijacked from
// net/http and are invisible to http.Server.Shutdown, so the server
// calls an OnShutdown hook first to let the stream dispatcher end its
// sessions within the same deadline.
package service
