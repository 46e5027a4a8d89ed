// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package iostat

// Record is one parsed line of iotop output, before it has been
// sequenced and timestamped by the retention store.
type Record struct {
	ThreadID      uint32
	Priority      string
	User          string
	DiskReadRate  float32
	DiskWriteRate float32
	SwapInPercent float32
	IOPercent     float32
	Command       string
}

// Sample is an immutable, sequenced disk I/O measurement for one
// thread. Sequence is strictly increasing within a process run and is
// the only ordering key; Timestamp is wall-clock Unix seconds at
// ingest and is used only for eviction.
type Sample struct {
	Sequence      uint64  `json:"seq"`
	Timestamp     int64   `json:"time"`
	ThreadID      uint32  `json:"tid"`
	Priority      string  `json:"prio"`
	User          string  `json:"user"`
	DiskReadRate  float32 `json:"disk_read_kb"`
	DiskWriteRate float32 `json:"disk_write_kb"`
	SwapInPercent float32 `json:"swapin_percent"`
	IOPercent     float32 `json:"io_percent"`
	Command       string  `json:"command"`
}

// Sample builds the stored form of the record with the given sequence
// number and ingest timestamp.
func (record Record) Sample(sequence uint64, timestamp int64) Sample {
	return Sample{
		Sequence:      sequence,
		Timestamp:     timestamp,
		ThreadID:      record.ThreadID,
		Priority:      record.Priority,
		User:          record.User,
		DiskReadRate:  record.DiskReadRate,
		DiskWriteRate: record.DiskWriteRate,
		SwapInPercent: record.SwapInPercent,
		IOPercent:     record.IOPercent,
		Command:       record.Command,
	}
}

// Record returns the measurement payload of the sample without its
// sequence number and timestamp.
func (sample Sample) Record() Record {
	return Record{
		ThreadID:      sample.ThreadID,
		Priority:      sample.Priority,
		User:          sample.User,
		DiskReadRate:  sample.DiskReadRate,
		DiskWriteRate: sample.DiskWriteRate,
		SwapInPercent: sample.SwapInPercent,
		IOPercent:     sample.IOPercent,
		Command:       sample.Command,
	}
}
