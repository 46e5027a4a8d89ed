// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package upstream runs the iotop sampler as a child process and
// exposes its standard output as a channel of lines.
//
// The child is started in batch mode with [DefaultArgs] (-b batch,
// -o only active threads, -k kilobytes, -qqq no headers or totals), so
// every stdout line is one thread's row. It runs in its own process
// group and receives SIGTERM if the daemon dies first. Stderr lines
// are logged at WARN.
//
// [Process] satisfies ingest.LineSource: the Lines channel closes when
// the child's stdout reaches EOF, after which Err reports how the
// child exited.
package upstream
