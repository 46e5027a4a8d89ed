// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exports iostreamd's state as Prometheus collectors
// under the "iostream" namespace.
//
// Store and ingest figures are read on scrape through GaugeFunc and
// CounterFunc collectors, so the writer path does no metric work.
// Subscriber figures are updated by the stream dispatcher as sessions
// open, send, and close.
//
// A nil *Metrics is valid and records nothing, which keeps tests and
// embedders free of registry plumbing.
package metrics
