// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retention

import (
	"context"
	"fmt"
	"sync"

	"github.com/bureau-foundation/iostream/lib/iostat"
)

// DefaultWindow is the default retention window in seconds (15
// minutes).
const DefaultWindow int64 = 900

// minCompactLength is the smallest dead prefix worth compacting.
// Below this, shifting the live region costs more than the slack it
// reclaims.
const minCompactLength = 64

// Store is a sequence-numbered, time-windowed buffer of samples shared
// between one writer and any number of readers. See the package
// documentation for the locking and memory model.
//
// All methods are safe for concurrent use, but Append must only be
// called from a single goroutine: sequence assignment is the writer's
// job and the store does not arbitrate between writers.
type Store struct {
	window int64

	entriesMutex sync.RWMutex
	// entries[head:] is the live region, ascending by sequence with no
	// gaps. entries[:head] has been evicted and zeroed.
	entries []iostat.Sample
	head    int
	// nextSequence is the sequence the next Append assigns.
	nextSequence uint64
	// latestTimestamp is the timestamp of the most recent Append.
	latestTimestamp int64
	evicted         uint64

	signalMutex sync.Mutex
	// published is one past the newest sequence readers may wait for.
	// It trails nextSequence only between the two critical sections
	// of Append.
	published uint64
	// updated is closed by the next Append and then replaced.
	updated chan struct{}
}

// Stats is a point-in-time summary of a Store.
type Stats struct {
	// Retained is the number of samples currently held.
	Retained int
	// OldestSequence and NewestSequence bound the retained range.
	// Both are zero when Retained is zero.
	OldestSequence uint64
	NewestSequence uint64
	// OldestTimestamp and NewestTimestamp are the ingest timestamps of
	// the oldest and newest retained samples.
	OldestTimestamp int64
	NewestTimestamp int64
	// Appended is the total number of samples ever appended.
	Appended uint64
	// Evicted is the total number of samples removed by the window.
	Evicted uint64
}

// New creates an empty store that keeps samples whose timestamp is no
// more than window seconds older than the newest sample. Panics if
// window is negative.
func New(window int64) *Store {
	if window < 0 {
		panic(fmt.Sprintf("retention: window must not be negative, got %d", window))
	}
	return &Store{
		window:  window,
		updated: make(chan struct{}),
	}
}

// Window returns the retention window in seconds.
func (s *Store) Window() int64 { return s.window }

// Append stores record as the next sample, stamped with timestamp
// (Unix seconds), evicts every sample older than timestamp-window, and
// wakes all readers blocked in WaitForUpdate. It returns the sample as
// stored.
//
// Eviction is measured against the appended timestamp, not the wall
// clock, so retention is a pure function of the appended timestamps. A
// timestamp earlier than the previous one (a wall-clock step
// backwards) is raised to the previous value: timestamp order then
// always agrees with sequence order, which is what lets eviction stop
// at the first sample inside the window.
func (s *Store) Append(record iostat.Record, timestamp int64) iostat.Sample {
	s.entriesMutex.Lock()
	if s.nextSequence > 0 && timestamp < s.latestTimestamp {
		timestamp = s.latestTimestamp
	}
	sample := record.Sample(s.nextSequence, timestamp)
	s.nextSequence++
	s.latestTimestamp = timestamp
	s.entries = append(s.entries, sample)
	s.evictLocked(timestamp - s.window)
	s.entriesMutex.Unlock()

	s.signalMutex.Lock()
	s.published = sample.Sequence + 1
	close(s.updated)
	s.updated = make(chan struct{})
	s.signalMutex.Unlock()

	return sample
}

// evictLocked drops samples older than cutoff from the head and
// compacts the backing array when the dead prefix dominates. Caller
// holds entriesMutex exclusively.
func (s *Store) evictLocked(cutoff int64) {
	for s.head < len(s.entries) && s.entries[s.head].Timestamp < cutoff {
		s.entries[s.head] = iostat.Sample{}
		s.head++
		s.evicted++
	}

	live := len(s.entries) - s.head
	if s.head < minCompactLength || s.head < live {
		return
	}

	// Reallocate when the array is far larger than the window needs
	// (after a burst), otherwise shift in place.
	if cap(s.entries) > 4*(live+minCompactLength) {
		compacted := make([]iostat.Sample, live, 2*(live+minCompactLength))
		copy(compacted, s.entries[s.head:])
		s.entries = compacted
	} else {
		copied := copy(s.entries, s.entries[s.head:])
		clear(s.entries[copied:])
		s.entries = s.entries[:copied]
	}
	s.head = 0
}

// Snapshot returns a copy of every retained sample in ascending
// sequence order. The writer is blocked only for the duration of the
// copy.
func (s *Store) Snapshot() []iostat.Sample {
	return s.EntriesAfter(Cursor{})
}

// EntriesAfter returns a copy of every retained sample whose sequence
// is greater than the cursor's, in ascending order. Returns nil when
// there is nothing newer. If samples after the cursor have already
// been evicted, the result starts at the oldest retained sample; the
// caller can detect the gap by comparing the first sequence with
// cursor.Next().
func (s *Store) EntriesAfter(cursor Cursor) []iostat.Sample {
	s.entriesMutex.RLock()
	defer s.entriesMutex.RUnlock()

	live := s.entries[s.head:]
	if len(live) == 0 {
		return nil
	}

	start := 0
	if first := live[0].Sequence; cursor.Next() > first {
		offset := cursor.Next() - first
		if offset >= uint64(len(live)) {
			return nil
		}
		start = int(offset)
	}

	result := make([]iostat.Sample, len(live)-start)
	copy(result, live[start:])
	return result
}

// WaitForUpdate blocks until the store holds a sample newer than
// cursor, returning nil, or until ctx is done, returning ctx.Err().
// If a newer sample already exists it returns immediately. There is
// no built-in timeout.
//
// A nil return means new data was published, not that any particular
// sample is still retained; callers follow up with EntriesAfter.
func (s *Store) WaitForUpdate(ctx context.Context, cursor Cursor) error {
	for {
		s.signalMutex.Lock()
		if s.published > cursor.Next() {
			s.signalMutex.Unlock()
			return nil
		}
		wake := s.updated
		s.signalMutex.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Updated returns a channel that is closed by the next Append. Each
// Append replaces the channel, so callers must fetch a fresh one after
// every wakeup. Use WaitForUpdate unless the wait must be combined
// with other events in a select; the check-then-wait ordering that
// makes WaitForUpdate safe is then the caller's responsibility: fetch
// the channel first, then check EntriesAfter, then wait.
func (s *Store) Updated() <-chan struct{} {
	s.signalMutex.Lock()
	defer s.signalMutex.Unlock()
	return s.updated
}

// Len returns the number of retained samples.
func (s *Store) Len() int {
	s.entriesMutex.RLock()
	defer s.entriesMutex.RUnlock()
	return len(s.entries) - s.head
}

// Stats returns a consistent summary of the store.
func (s *Store) Stats() Stats {
	s.entriesMutex.RLock()
	defer s.entriesMutex.RUnlock()

	stats := Stats{
		Retained: len(s.entries) - s.head,
		Appended: s.nextSequence,
		Evicted:  s.evicted,
	}
	if stats.Retained > 0 {
		oldest := s.entries[s.head]
		newest := s.entries[len(s.entries)-1]
		stats.OldestSequence = oldest.Sequence
		stats.NewestSequence = newest.Sequence
		stats.OldestTimestamp = oldest.Timestamp
		stats.NewestTimestamp = newest.Timestamp
	}
	return stats
}
