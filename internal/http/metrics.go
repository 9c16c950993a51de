// Package http serves the MCP tool surface over HTTP/JSON-RPC, plus a
// Prometheus metrics endpoint and liveness/readiness probes.
package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exposed at /metrics: one flat
// metric per concern rather than one do-everything struct of labels.
type Metrics struct {
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
	ToolCallErrors   *prometheus.CounterVec
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	RoutingDecisions *prometheus.CounterVec
	RequestsInFlight prometheus.Gauge
}

// NewMetrics registers every collector against registry. A nil registry
// uses the default global one.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_tool_calls_total",
				Help: "Total number of MCP tool calls by tool name and outcome.",
			},
			[]string{"tool", "status"},
		),
		ToolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalhub_tool_call_duration_seconds",
				Help:    "MCP tool call duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		ToolCallErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_tool_call_errors_total",
				Help: "Total number of MCP tool call errors by tool name and error kind.",
			},
			[]string{"tool", "kind"},
		),
		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "signalhub_cache_hits_total",
				Help: "Total number of semantic cache hits served to tool calls.",
			},
		),
		CacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "signalhub_cache_misses_total",
				Help: "Total number of semantic cache misses on tool calls.",
			},
		),
		RoutingDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_routing_decisions_total",
				Help: "Total number of routing decisions by chosen model tier.",
			},
			[]string{"model"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalhub_requests_in_flight",
				Help: "Number of HTTP tool-call requests currently being processed.",
			},
		),
	}
}

// RecordToolCall records one tool invocation's outcome and latency.
func (m *Metrics) RecordToolCall(tool, status string, elapsed time.Duration) {
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordToolError records an error kind for a tool call.
func (m *Metrics) RecordToolError(tool, kind string) {
	m.ToolCallErrors.WithLabelValues(tool, kind).Inc()
}

// RecordCache records a cache hit or miss reported in a tool call's
// response envelope.
func (m *Metrics) RecordCache(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// RecordRoutingDecision records the chosen model tier for one query.
func (m *Metrics) RecordRoutingDecision(model string) {
	m.RoutingDecisions.WithLabelValues(model).Inc()
}

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
