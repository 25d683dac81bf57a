// Package metrics exposes Prometheus collectors for stage outcomes,
// generation latency, tool executions and tool session state.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "projectx"

// Metrics holds every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	stageRuns       *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	generations     *prometheus.CounterVec
	generationTime  *prometheus.HistogramVec
	toolExecutions  *prometheus.CounterVec
	toolDuration    prometheus.Histogram
	sessionReady    prometheus.Gauge
	sessionInitRuns *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage invocations by agent and outcome.",
		}, []string{"agent", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Stage latency by agent.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"agent"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation port calls by backend, template and outcome.",
		}, []string{"backend", "template", "outcome"}),
		generationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Generation backend latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"backend"}),
		toolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Execute requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		toolDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_execution_duration_seconds",
			Help:      "Execute request latency.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 240, 400},
		}),
		sessionReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tool_session_ready",
			Help:      "1 when the tool session set is Ready.",
		}),
		sessionInitRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_session_initializations_total",
			Help:      "Session set setups by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stageRuns, m.stageDuration,
		m.generations, m.generationTime,
		m.toolExecutions, m.toolDuration,
		m.sessionReady, m.sessionInitRuns,
		m.httpRequests,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveStage records one stage invocation.
func (m *Metrics) ObserveStage(agent, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(agent, outcome).Inc()
	m.stageDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// ObserveGeneration records one generation port call.
func (m *Metrics) ObserveGeneration(backend, template, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(backend, template, outcome).Inc()
	m.generationTime.WithLabelValues(backend).Observe(d.Seconds())
}

// ObserveExecution records one Execute request.
func (m *Metrics) ObserveExecution(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolExecutions.WithLabelValues(mode, outcome).Inc()
	m.toolDuration.Observe(d.Seconds())
}

// SetSessionReady flips the session gauge.
func (m *Metrics) SetSessionReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.sessionReady.Set(1)
	} else {
		m.sessionReady.Set(0)
	}
}

// ObserveSessionInit counts one session set setup.
func (m *Metrics) ObserveSessionInit(outcome string) {
	if m == nil {
		return
	}
	m.sessionInitRuns.WithLabelValues(outcome).Inc()
}

// ObserveRequest counts one HTTP request.
func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
