// Package metrics exposes Prometheus collectors for orchestrator turns, tool
// calls and model round-trips.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "psyclone"

// Metrics holds the collectors and the private registry they live in. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Turns          *prometheus.CounterVec
	TurnIterations prometheus.Histogram
	ToolCalls      *prometheus.CounterVec
	ModelCalls     *prometheus.CounterVec
	ModelDuration  prometheus.Histogram
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// New builds a Metrics with its own registry so tests can create as many as
// they like without duplicate registration panics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "turns_total",
				Help:      "Orchestrator turns by terminal state",
			},
			[]string{"state"},
		),
		TurnIterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "turn_iterations",
				Help:      "Model round-trips per orchestrator turn",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
			},
		),
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "tool_calls_total",
				Help:      "Tool invocations by name and outcome",
			},
			[]string{"tool", "error"},
		),
		ModelCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "model_calls_total",
				Help:      "Model requests by outcome",
			},
			[]string{"status"},
		),
		ModelDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "model_call_duration_seconds",
				Help:      "Model request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		m.Turns,
		m.TurnIterations,
		m.ToolCalls,
		m.ModelCalls,
		m.ModelDuration,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(state string, iterations int) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(state).Inc()
	m.TurnIterations.Observe(float64(iterations))
}

// ObserveToolCall records one tool invocation.
func (m *Metrics) ObserveToolCall(tool string, isError bool) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, strconv.FormatBool(isError)).Inc()
}

// ObserveModelCall records one model round-trip.
func (m *Metrics) ObserveModelCall(d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ModelCalls.WithLabelValues(status).Inc()
	m.ModelDuration.Observe(d.Seconds())
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
