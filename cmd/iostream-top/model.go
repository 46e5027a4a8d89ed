// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/iostream/lib/iostat"
	"github.com/bureau-foundation/iostream/lib/tui"
)

// streamEvent is one result from the subscription pump.
type streamEvent struct {
	sample iostat.Sample
	err    error
}

type sampleMsg struct{ sample iostat.Sample }

type streamEndMsg struct{ err error }

// listenForStreamEvent returns a tea.Cmd that blocks until the pump
// delivers the next event.
func listenForStreamEvent(channel <-chan streamEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-channel
		if !ok {
			return streamEndMsg{}
		}
		if event.err != nil {
			return streamEndMsg{err: event.err}
		}
		return sampleMsg{sample: event.sample}
	}
}

// model is the viewer state.
type model struct {
	source  string
	events  <-chan streamEvent
	window  int64
	maxRows int
	theme   tui.Theme

	threads  map[uint32]iostat.Sample
	newest   int64
	received uint64
	ended    bool
	endErr   error

	width  int
	height int
}

func newModel(source string, events <-chan streamEvent, window int64, maxRows int) model {
	return model{
		source:  source,
		events:  events,
		window:  window,
		maxRows: maxRows,
		theme:   tui.DefaultTheme,
		threads: make(map[uint32]iostat.Sample),
		width:   100,
		height:  24,
	}
}

func (m model) Init() tea.Cmd {
	return listenForStreamEvent(m.events)
}

func (m model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch message.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
	case sampleMsg:
		m.add(message.sample)
		return m, listenForStreamEvent(m.events)
	case streamEndMsg:
		m.ended = true
		m.endErr = message.err
	}
	return m, nil
}

// add records sample as its thread's latest and drops threads not seen
// within the window of the newest timestamp.
func (m *model) add(sample iostat.Sample) {
	m.received++
	m.threads[sample.ThreadID] = sample
	if sample.Timestamp > m.newest {
		m.newest = sample.Timestamp
	}
	cutoff := m.newest - m.window
	for tid, existing := range m.threads {
		if existing.Timestamp < cutoff {
			delete(m.threads, tid)
		}
	}
}

// rows returns the visible threads, busiest first.
func (m model) rows() []iostat.Sample {
	rows := make([]iostat.Sample, 0, len(m.threads))
	for _, sample := range m.threads {
		rows = append(rows, sample)
	}
	slices.SortFunc(rows, func(a, b iostat.Sample) int {
		if c := cmp.Compare(b.IOPercent, a.IOPercent); c != 0 {
			return c
		}
		if c := cmp.Compare(b.DiskReadRate+b.DiskWriteRate, a.DiskReadRate+a.DiskWriteRate); c != 0 {
			return c
		}
		return cmp.Compare(a.ThreadID, b.ThreadID)
	})

	limit := max(m.height-4, 1)
	if m.maxRows > 0 && m.maxRows < limit {
		limit = m.maxRows
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

const columnFormat = "%7s %-6s %-10s %11s %11s %7s %7s "

func (m model) View() string {
	var builder strings.Builder

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(m.theme.HeaderForeground).
		Background(m.theme.HeaderBackground).
		Width(m.width)
	builder.WriteString(header.Render(fmt.Sprintf("iostream-top  %s  threads %d  samples %d",
		m.source, len(m.threads), m.received)))
	builder.WriteByte('\n')

	columns := fmt.Sprintf(columnFormat, "TID", "PRIO", "USER", "READ K/s", "WRITE K/s", "SWAPIN", "IO") + "COMMAND"
	builder.WriteString(lipgloss.NewStyle().Foreground(m.theme.FaintText).Render(tui.Truncate(columns, m.width)))
	builder.WriteByte('\n')

	commandWidth := m.width - lipgloss.Width(fmt.Sprintf(columnFormat, "", "", "", "", "", "", ""))
	for _, sample := range m.rows() {
		prefix := fmt.Sprintf(columnFormat,
			fmt.Sprint(sample.ThreadID),
			tui.Truncate(sample.Priority, 6),
			tui.Truncate(sample.User, 10),
			fmt.Sprintf("%.2f", sample.DiskReadRate),
			fmt.Sprintf("%.2f", sample.DiskWriteRate),
			fmt.Sprintf("%.2f%%", sample.SwapInPercent),
			fmt.Sprintf("%.2f%%", sample.IOPercent),
		)
		style := lipgloss.NewStyle().Foreground(m.theme.LoadColor(sample.IOPercent))
		builder.WriteString(style.Render(prefix + tui.Truncate(sample.Command, commandWidth)))
		builder.WriteByte('\n')
	}

	builder.WriteString(m.footer())
	return builder.String()
}

func (m model) footer() string {
	if !m.ended {
		return lipgloss.NewStyle().Foreground(m.theme.HelpText).Render("q quit")
	}
	status := "stream ended"
	if m.endErr != nil && !errors.Is(m.endErr, io.EOF) {
		status = "stream failed: " + m.endErr.Error()
	}
	return lipgloss.NewStyle().Foreground(m.theme.ErrorText).Render(status + "  (q quit)")
}
