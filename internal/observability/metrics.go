// Package observability exposes Prometheus metrics for the POS core.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application metrics behind one registry.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	mutationsTotal  *prometheus.CounterVec
	flushesTotal    *prometheus.CounterVec
	flushDuration   prometheus.Histogram
	pushedRecords   prometheus.Counter
	pendingRecords  prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics initialises the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kess_mutations_total",
		Help: "Local entity mutations by kind and operation.",
	}, []string{"kind", "op"})
	flushes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kess_sync_flushes_total",
		Help: "Sync flush cycles by outcome.",
	}, []string{"outcome"})
	flushDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kess_sync_flush_duration_seconds",
		Help:    "Duration of sync flush cycles.",
		Buckets: prometheus.DefBuckets,
	})
	pushed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kess_sync_pushed_records_total",
		Help: "Records pushed to the remote authority.",
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kess_sync_pending_records",
		Help: "Records currently awaiting synchronization.",
	})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kess_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kess_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	registry.MustRegister(mutations, flushes, flushDuration, pushed, pending, requests, requestDuration)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		mutationsTotal:  mutations,
		flushesTotal:    flushes,
		flushDuration:   flushDuration,
		pushedRecords:   pushed,
		pendingRecords:  pending,
		requestsTotal:   requests,
		requestDuration: requestDuration,
	}
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// RecordMutation counts a successful local mutation.
func (m *Metrics) RecordMutation(kind, op string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(kind, op).Inc()
}

// RecordFlush counts one flush cycle.
func (m *Metrics) RecordFlush(outcome string, duration time.Duration, records int) {
	if m == nil {
		return
	}
	m.flushesTotal.WithLabelValues(outcome).Inc()
	m.flushDuration.Observe(duration.Seconds())
	if records > 0 {
		m.pushedRecords.Add(float64(records))
	}
}

// SetPendingRecords updates the pending backlog gauge.
func (m *Metrics) SetPendingRecords(n int) {
	if m == nil {
		return
	}
	m.pendingRecords.Set(float64(n))
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
