// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/iostream/lib/codec"
	"github.com/bureau-foundation/iostream/lib/iostat"
	"github.com/bureau-foundation/iostream/lib/metrics"
	"github.com/bureau-foundation/iostream/lib/retention"
)

// HistoryHandler serves the current snapshot as one document: a JSON
// array by default, a CBOR array with ?format=cbor, compressed with
// zstd when the client accepts it.
type HistoryHandler struct {
	Store   *retention.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "json":
		format = "json"
		w.Header().Set("Content-Type", "application/json")
	case "cbor":
		w.Header().Set("Content-Type", codec.ContentType)
	default:
		http.Error(w, "unknown format "+format+" (want json or cbor)", http.StatusBadRequest)
		return
	}

	snapshot := h.Store.Snapshot()
	if snapshot == nil {
		// An empty history is an empty array, not null.
		snapshot = []iostat.Sample{}
	}

	w.Header().Set("Vary", "Accept-Encoding")
	if r.Method == http.MethodHead {
		return
	}

	var body io.Writer = w
	var encoding string
	if acceptsEncoding(r.Header.Get("Accept-Encoding"), "zstd") {
		encoding = "zstd"
		w.Header().Set("Content-Encoding", encoding)
		compressor, err := zstd.NewWriter(w)
		if err != nil {
			http.Error(w, "compressor unavailable", http.StatusInternalServerError)
			return
		}
		defer compressor.Close()
		body = compressor
	}

	var err error
	if format == "cbor" {
		err = codec.NewEncoder(body).Encode(snapshot)
	} else {
		err = json.NewEncoder(body).Encode(snapshot)
	}
	if err != nil {
		// Headers are already sent; all that is left is to record it.
		h.logger().Warn("writing history failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	h.Metrics.HistoryServed(format, encoding)
}

func (h *HistoryHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.Logger
}

// acceptsEncoding reports whether an Accept-Encoding header lists
// coding with a non-zero quality.
func acceptsEncoding(header, coding string) bool {
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(name), coding) {
			continue
		}
		if value, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if quality, err := strconv.ParseFloat(value, 64); err == nil && quality == 0 {
				return false
			}
		}
		return true
	}
	return false
}

// IngestStatus is satisfied by *ingest.Loop.
type IngestStatus interface {
	Stopped() bool
}

// HealthHandler reports whether samples are still arriving.
type HealthHandler struct {
	Store  *retention.Store
	Ingest IngestStatus
}

type healthResponse struct {
	Status         string `json:"status"`
	Retained       int    `json:"retained"`
	NewestSequence uint64 `json:"newest_sequence"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats := h.Store.Stats()
	response := healthResponse{
		Status:         "ok",
		Retained:       stats.Retained,
		NewestSequence: stats.NewestSequence,
	}
	status := http.StatusOK
	if h.Ingest != nil && h.Ingest.Stopped() {
		response.Status = "ingest stopped"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
