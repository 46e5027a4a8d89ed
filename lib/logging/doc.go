// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog logger for iostream binaries.
//
// On a terminal the logger writes slog's text format for people;
// anywhere else (systemd journal, container runtime, pipes) it writes
// JSON, one record per line. Loggers are always passed explicitly;
// nothing in iostream calls slog.Default.
package logging
