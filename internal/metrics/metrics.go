// Package metrics exposes Prometheus collectors for the API and workers.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kharcha"

type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	carryoverRuns    *prometheus.CounterVec
	carryoverRows    prometheus.Counter
	eventsPublished  *prometheus.CounterVec
	eventsConsumed   *prometheus.CounterVec
	summaryCacheHits *prometheus.CounterVec
}

// New builds a registry with the Go and process collectors plus the
// application metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		carryoverRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carryover_evaluations_total",
			Help:      "Carryover evaluations by outcome.",
		}, []string{"outcome"}),
		carryoverRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carryover_rows_inserted_total",
			Help:      "Income rows synthesized by carryover.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_events_published_total",
			Help:      "Record events handed to the broker.",
		}, []string{"kind", "type", "result"}),
		eventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_events_consumed_total",
			Help:      "Record events processed by the export worker.",
		}, []string{"result"}),
		summaryCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_cache_lookups_total",
			Help:      "Summary cache lookups by view and result.",
		}, []string{"view", "result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.carryoverRuns,
		m.carryoverRows,
		m.eventsPublished,
		m.eventsConsumed,
		m.summaryCacheHits,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// The observers below are nil-safe so components can run without metrics.

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveCarryover records one evaluation: outcome is "skipped",
// "inserted", "empty" or "failed".
func (m *Metrics) ObserveCarryover(outcome string, rows int) {
	if m == nil {
		return
	}
	m.carryoverRuns.WithLabelValues(outcome).Inc()
	if rows > 0 {
		m.carryoverRows.Add(float64(rows))
	}
}

func (m *Metrics) ObservePublish(kind, eventType string, err error) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind, eventType, result(err)).Inc()
}

func (m *Metrics) ObserveConsume(err error) {
	if m == nil {
		return
	}
	m.eventsConsumed.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveCacheLookup(view string, hit bool) {
	if m == nil {
		return
	}
	r := "miss"
	if hit {
		r = "hit"
	}
	m.summaryCacheHits.WithLabelValues(view, r).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
