// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package iostat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// linePattern matches one thread row of `iotop -bokqqq` output:
//
//	  2471 be/4 postgres    0.00 K/s   12.31 K/s  0.00 %  0.41 % postgres: walwriter
//
// Priority and user are matched lazily so that a command containing
// "K/s" or "%" cannot shift the numeric columns.
var linePattern = regexp.MustCompile(`^\s*(?P<tid>[0-9]+)\s+(?P<prio>.*?)\s+(?P<user>.*?)\s+` +
	`(?P<disk_read_kb>[0-9.]+) K/s\s+(?P<disk_write_kb>[0-9.]+) K/s\s+` +
	`(?P<swapin_percent>[0-9.]+) %\s+(?P<io_percent>[0-9.]+) % (?P<command>.*)$`)

var (
	tidIndex           = linePattern.SubexpIndex("tid")
	prioIndex          = linePattern.SubexpIndex("prio")
	userIndex          = linePattern.SubexpIndex("user")
	diskReadIndex      = linePattern.SubexpIndex("disk_read_kb")
	diskWriteIndex     = linePattern.SubexpIndex("disk_write_kb")
	swapInPercentIndex = linePattern.SubexpIndex("swapin_percent")
	ioPercentIndex     = linePattern.SubexpIndex("io_percent")
	commandIndex       = linePattern.SubexpIndex("command")
)

// ParseError reports a line of upstream output that does not match the
// expected iotop layout or carries an unparseable numeric field.
type ParseError struct {
	// Line is the offending input with any trailing newline removed.
	Line string
	// Field names the column that failed numeric conversion. Empty
	// when the line did not match the layout at all.
	Field string
	// Err is the underlying conversion error, if any.
	Err error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("iostat: line does not match iotop layout: %q", e.Line)
	}
	return fmt.Sprintf("iostat: invalid %s in line %q: %v", e.Field, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse converts one line of iotop batch output into a Record. A
// trailing "\n" or "\r\n" is ignored. Invalid UTF-8, which iotop
// passes through from process names, is replaced with U+FFFD so every
// string field is valid text on every wire format.
func Parse(line string) (Record, error) {
	line = strings.ToValidUTF8(strings.TrimRight(line, "\r\n"), "\uFFFD")

	fields := linePattern.FindStringSubmatch(line)
	if fields == nil {
		return Record{}, &ParseError{Line: line}
	}

	threadID, err := strconv.ParseUint(fields[tidIndex], 10, 32)
	if err != nil {
		return Record{}, &ParseError{Line: line, Field: "tid", Err: err}
	}

	record := Record{
		ThreadID: uint32(threadID),
		Priority: fields[prioIndex],
		User:     fields[userIndex],
		Command:  fields[commandIndex],
	}

	measurements := []struct {
		name   string
		index  int
		target *float32
	}{
		{"disk_read_kb", diskReadIndex, &record.DiskReadRate},
		{"disk_write_kb", diskWriteIndex, &record.DiskWriteRate},
		{"swapin_percent", swapInPercentIndex, &record.SwapInPercent},
		{"io_percent", ioPercentIndex, &record.IOPercent},
	}
	for _, measurement := range measurements {
		value, err := strconv.ParseFloat(fields[measurement.index], 32)
		if err != nil {
			return Record{}, &ParseError{Line: line, Field: measurement.name, Err: err}
		}
		*measurement.target = float32(value)
	}

	return record, nil
}
