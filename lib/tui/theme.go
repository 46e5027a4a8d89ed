// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color palette for the viewer.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Load colors, from idle to saturated. Indexed by LoadColor.
	LoadColors [4]lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	HeaderBackground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
	ErrorText        lipgloss.Color
}

// Load thresholds in percent for LoadColor.
var loadThresholds = [...]float32{1, 25, 75}

// LoadColor returns the color for a percentage (I/O wait or swap-in).
// Values at or below 1% render faint; above 75% render in the
// hottest color.
func (theme Theme) LoadColor(percent float32) lipgloss.Color {
	for i, threshold := range loadThresholds {
		if percent <= threshold {
			return theme.LoadColors[i]
		}
	}
	return theme.LoadColors[len(theme.LoadColors)-1]
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	LoadColors: [4]lipgloss.Color{
		lipgloss.Color("245"), // idle: gray
		lipgloss.Color("114"), // light: green
		lipgloss.Color("220"), // busy: yellow/amber
		lipgloss.Color("196"), // saturated: bright red
	},

	HeaderForeground: lipgloss.Color("255"),
	HeaderBackground: lipgloss.Color("236"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),
	ErrorText:        lipgloss.Color("196"),
}

// Truncate shortens s to at most width terminal cells, marking the cut
// with an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
