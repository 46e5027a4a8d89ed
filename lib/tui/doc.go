// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui holds the color theme and text helpers for iostream's
// terminal viewer. Colors are lipgloss ANSI 256-color codes for broad
// terminal compatibility.
package tui
