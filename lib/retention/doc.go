// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package retention holds the recent history of disk I/O samples in
// memory and lets any number of readers follow it.
//
// A [Store] has exactly one writer, the ingest loop, which calls
// [Store.Append] for every parsed line. Append assigns the next
// sequence number, adds the sample to the tail, evicts samples older
// than the retention window from the head, and wakes every blocked
// reader. Readers never register with the store: each keeps its own
// [Cursor] (the last sequence it delivered) and asks for
// [Store.EntriesAfter] that cursor, so the writer's cost does not grow
// with the number of readers and a stalled reader holds nothing the
// writer needs.
//
// # Locking
//
// The samples are guarded by a sync.RWMutex: Append holds it
// exclusively for append+evict, Snapshot and EntriesAfter hold it
// shared for the duration of a copy. Wakeups use a second, independent
// lock around a broadcast channel. Append publishes the newest
// sequence and closes the current channel under that lock; a reader in
// [Store.WaitForUpdate] compares its cursor against the published
// sequence and picks up the channel under the same lock. Either the
// reader sees the new sequence and returns at once, or it holds the
// exact channel the next Append closes. There is no window in which a
// notification can be lost.
//
// # Memory
//
// Retained sequences are always contiguous (eviction only removes from
// the head), so a cursor maps to a slice index by subtraction. Evicted
// slots are zeroed and the backing array is compacted once the dead
// prefix outgrows the live region, so memory tracks the number of
// samples inside the window rather than the number ever ingested.
package retention
