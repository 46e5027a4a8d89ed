// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package iostat defines the per-thread disk I/O sample that flows from
// the upstream iotop process through the retention store to
// subscribers, and the parser that turns one line of iotop batch
// output into a [Record].
//
// A [Record] is what a single output line carries. A [Sample] is a
// Record that has been admitted to the retention store: it has a
// sequence number (the sole ordering and de-duplication key) and an
// ingest timestamp (used only for retention-window eviction). Samples
// are values and are never modified after construction.
//
// The JSON field names on Sample are the wire format consumed by
// browser dashboards, so they must not be renamed.
package iostat
