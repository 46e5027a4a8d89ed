// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/iostream/lib/ingest"
	"github.com/bureau-foundation/iostream/lib/retention"
)

const namespace = "iostream"

// StoreSource is satisfied by *retention.Store.
type StoreSource interface {
	Stats() retention.Stats
}

// IngestSource is satisfied by *ingest.Loop.
type IngestSource interface {
	Stats() ingest.Stats
}

// Metrics holds the subscriber-side collectors and the registry that
// scrape-time collectors are added to.
type Metrics struct {
	registry prometheus.Registerer

	sessionsActive  prometheus.Gauge
	sessionsTotal   *prometheus.CounterVec
	disconnections  *prometheus.CounterVec
	messagesSent    prometheus.Counter
	bytesSent       prometheus.Counter
	sessionGaps     prometheus.Counter
	historyRequests *prometheus.CounterVec
}

// New creates the subscriber collectors and registers them. Returns
// nil when registry is nil.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		registry: registry,

		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "sessions_active",
			Help:      "Number of currently connected subscribers",
		}),

		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "sessions_total",
			Help:      "Total subscriber sessions started",
		}, []string{"subprotocol"}),

		disconnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "disconnections_total",
			Help:      "Total subscriber sessions ended",
		}, []string{"reason"}),

		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_sent_total",
			Help:      "Total messages written to subscribers",
		}),

		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes written to subscribers",
		}),

		sessionGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "evicted_before_delivery_total",
			Help:      "Samples evicted before a lagging subscriber received them",
		}),

		historyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "history_requests_total",
			Help:      "Total /history requests served",
		}, []string{"format", "encoding"}),
	}

	registry.MustRegister(
		m.sessionsActive,
		m.sessionsTotal,
		m.disconnections,
		m.messagesSent,
		m.bytesSent,
		m.sessionGaps,
		m.historyRequests,
	)
	return m
}

// RegisterStore adds scrape-time collectors over a store's Stats.
func (m *Metrics) RegisterStore(store StoreSource) {
	if m == nil {
		return
	}

	gauge := func(name, help string, value func(retention.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      name,
			Help:      help,
		}, func() float64 { return value(store.Stats()) })
	}
	counter := func(name, help string, value func(retention.Stats) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      name,
			Help:      help,
		}, func() float64 { return value(store.Stats()) })
	}

	m.registry.MustRegister(
		gauge("samples_retained", "Samples currently held in the retention window",
			func(s retention.Stats) float64 { return float64(s.Retained) }),
		gauge("newest_sequence", "Sequence number of the newest retained sample",
			func(s retention.Stats) float64 { return float64(s.NewestSequence) }),
		gauge("oldest_timestamp_seconds", "Ingest timestamp of the oldest retained sample",
			func(s retention.Stats) float64 { return float64(s.OldestTimestamp) }),
		gauge("newest_timestamp_seconds", "Ingest timestamp of the newest retained sample",
			func(s retention.Stats) float64 { return float64(s.NewestTimestamp) }),
		counter("samples_appended_total", "Total samples appended",
			func(s retention.Stats) float64 { return float64(s.Appended) }),
		counter("samples_evicted_total", "Total samples evicted by the retention window",
			func(s retention.Stats) float64 { return float64(s.Evicted) }),
	)
}

// RegisterIngest adds scrape-time collectors over an ingest loop's
// counters.
func (m *Metrics) RegisterIngest(loop IngestSource) {
	if m == nil {
		return
	}

	counter := func(name, help string, value func(ingest.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(loop.Stats())) })
	}

	m.registry.MustRegister(
		counter("lines_total", "Non-blank upstream lines read",
			func(s ingest.Stats) uint64 { return s.Lines }),
		counter("samples_total", "Upstream lines parsed and appended",
			func(s ingest.Stats) uint64 { return s.Ingested }),
		counter("parse_errors_total", "Upstream lines that failed to parse",
			func(s ingest.Stats) uint64 { return s.ParseErrors }),
	)
}

// SessionOpened records a new subscriber.
func (m *Metrics) SessionOpened(subprotocol string) {
	if m == nil {
		return
	}
	if subprotocol == "" {
		subprotocol = "none"
	}
	m.sessionsTotal.WithLabelValues(subprotocol).Inc()
	m.sessionsActive.Inc()
}

// SessionClosed records the end of a subscriber session and the
// number of samples it missed to eviction.
func (m *Metrics) SessionClosed(reason string, gaps uint64) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.disconnections.WithLabelValues(reason).Inc()
	m.sessionGaps.Add(float64(gaps))
}

// MessageSent records one message of size bytes written to a
// subscriber.
func (m *Metrics) MessageSent(size int) {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
	m.bytesSent.Add(float64(size))
}

// HistoryServed records a /history response.
func (m *Metrics) HistoryServed(format, encoding string) {
	if m == nil {
		return
	}
	if encoding == "" {
		encoding = "identity"
	}
	m.historyRequests.WithLabelValues(format, encoding).Inc()
}
