// Package metrics provides Prometheus metrics for the joinery service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	TurnsTotal       *prometheus.CounterVec
	TurnDuration     *prometheus.HistogramVec
	ProviderDuration *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge
	EvictionsTotal   prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joinery_voice_turns_total",
				Help: "Voice turns processed by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "joinery_voice_turn_duration_seconds",
				Help:    "End-to-end voice turn latency by action.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		ProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "joinery_llm_request_duration_seconds",
				Help:    "Language model completion latency by model and result.",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"model", "result"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "joinery_sessions_active",
				Help: "Call sessions currently held in the session store.",
			},
		),
		EvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "joinery_sessions_evicted_total",
				Help: "Call sessions removed for inactivity.",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joinery_http_requests_total",
				Help: "HTTP requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joinery_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.TurnsTotal,
		m.TurnDuration,
		m.ProviderDuration,
		m.ActiveSessions,
		m.EvictionsTotal,
		m.HTTPRequests,
		m.ErrorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (for tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTurn counts a finished voice turn and its latency.
func (m *Metrics) RecordTurn(action, outcome string, d time.Duration) {
	m.TurnsTotal.WithLabelValues(action, outcome).Inc()
	m.TurnDuration.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveProvider records one language model call.
func (m *Metrics) ObserveProvider(model, result string, d time.Duration) {
	m.ProviderDuration.WithLabelValues(model, result).Observe(d.Seconds())
}

// SetActiveSessions sets the session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// AddEvictions counts sessions removed by the sweeper.
func (m *Metrics) AddEvictions(n int) {
	m.EvictionsTotal.Add(float64(n))
}

// RecordHTTP counts an HTTP response.
func (m *Metrics) RecordHTTP(route, code string) {
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}
