// Package metrics holds the prometheus collectors of the forecasting engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scenario outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Metrics holds all Prometheus collectors for the engine
type Metrics struct {
	registry *prometheus.Registry

	SessionsCreated  prometheus.Counter
	SessionsRerun    prometheus.Counter
	SessionsDeleted  prometheus.Counter
	ScenarioRuns     *prometheus.CounterVec
	ScenarioDuration *prometheus.HistogramVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	CacheRefreshFail *prometheus.CounterVec
}

// New creates all collectors on a fresh registry
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Number of forecast sessions created",
		}),
		SessionsRerun: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_rerun_total",
			Help:      "Number of forecast session re-runs",
		}),
		SessionsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_deleted_total",
			Help:      "Number of forecast sessions deleted",
		}),
		ScenarioRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scenario_runs_total",
				Help:      "Scenario evaluations by forecasting method and outcome",
			},
			[]string{"method", "outcome"},
		),
		ScenarioDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scenario_duration_seconds",
				Help:      "Time spent training, forecasting and scoring one scenario",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"method"},
		),
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Historical data cache hits per data source",
			},
			[]string{"source"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Historical data cache misses per data source",
			},
			[]string{"source"},
		),
		CacheRefreshFail: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_refresh_failures_total",
				Help:      "Data sources that failed to regenerate during a cache refresh",
			},
			[]string{"source"},
		),
	}
}

// WithRuntimeCollectors registers the go runtime and process collectors
func (m *Metrics) WithRuntimeCollectors() *Metrics {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveScenario records one scenario evaluation
func (m *Metrics) ObserveScenario(method string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFailed
	}
	m.ScenarioRuns.WithLabelValues(method, outcome).Inc()
	m.ScenarioDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveCache records a cache lookup
func (m *Metrics) ObserveCache(source string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.WithLabelValues(source).Inc()
	} else {
		m.CacheMisses.WithLabelValues(source).Inc()
	}
}

// CacheRefreshFailed records a data source that failed to regenerate
func (m *Metrics) CacheRefreshFailed(source string) {
	if m == nil {
		return
	}
	m.CacheRefreshFail.WithLabelValues(source).Inc()
}

// SessionCreated records a new session
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// SessionRerun records a session re-run
func (m *Metrics) SessionRerun() {
	if m == nil {
		return
	}
	m.SessionsRerun.Inc()
}

// SessionDeleted records a session deletion
func (m *Metrics) SessionDeleted() {
	if m == nil {
		return
	}
	m.SessionsDeleted.Inc()
}
