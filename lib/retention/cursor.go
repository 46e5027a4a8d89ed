// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retention

// Cursor is a reader's delivery position: the sequence number of the
// last sample it delivered. The zero value means nothing has been
// delivered yet, so every retained sample is "after" it.
type Cursor struct {
	// next is one past the last delivered sequence. Zero encodes
	// "none", which keeps the zero value useful and avoids a separate
	// validity flag.
	next uint64
}

// CursorAt returns a cursor positioned after sequence, as if that
// sample had just been delivered.
func CursorAt(sequence uint64) Cursor {
	return Cursor{next: sequence + 1}
}

// Advance returns the cursor positioned after sequence. Cursors only
// move forward; advancing to a sequence at or behind the current
// position returns the cursor unchanged.
func (c Cursor) Advance(sequence uint64) Cursor {
	if sequence+1 <= c.next {
		return c
	}
	return Cursor{next: sequence + 1}
}

// Sequence returns the last delivered sequence and true, or zero and
// false if nothing has been delivered.
func (c Cursor) Sequence() (uint64, bool) {
	if c.next == 0 {
		return 0, false
	}
	return c.next - 1, true
}

// Covers reports whether the sample with the given sequence has
// already been delivered through this cursor.
func (c Cursor) Covers(sequence uint64) bool {
	return sequence < c.next
}

// Next returns the first sequence the cursor has not yet delivered.
func (c Cursor) Next() uint64 { return c.next }
