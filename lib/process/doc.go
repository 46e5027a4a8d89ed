// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entry-point helper for iostream binaries:
// reporting an unrecoverable error from run() and exiting non-zero.
// It is the one place outside CLI help text that writes to stderr
// directly, because it runs when the structured logger may not exist
// yet (bad flags, unreadable config).
package process
