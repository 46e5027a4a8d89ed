// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// iostream-top is a terminal viewer for an iostreamd stream. It keeps
// the latest sample for each thread seen within the last --window
// seconds of stream time and shows them sorted by I/O wait, busiest
// first. Press q or Ctrl-C to quit.
package main
