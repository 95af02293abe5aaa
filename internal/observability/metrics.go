// Package observability exposes prometheus metrics for the store and runner.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scaffolding"

// Metrics groups the collectors registered by NewMetrics.
type Metrics struct {
	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	mutations      *prometheus.CounterVec
	commitFailures prometheus.Counter
	historySteps   *prometheus.CounterVec
	pluginLoads    *prometheus.CounterVec
	executables    *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "runner",
				Name:      "runs_total",
				Help:      "Runner passes by mode and result.",
			},
			[]string{"mode", "result"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "runner",
				Name:      "run_duration_seconds",
				Help:      "Wall time of a runner pass including commit.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		executables: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "runner",
				Name:      "executables_total",
				Help:      "Executable invocations by result.",
			},
			[]string{"result"},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "mutations_applied_total",
				Help:      "Mutations applied to the store by kind.",
			},
			[]string{"kind"},
		),
		commitFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "commit_failures_total",
				Help:      "Commits aborted by a failing mutation.",
			},
		),
		historySteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "history_steps_total",
				Help:      "Undo and redo steps applied.",
			},
			[]string{"op"},
		),
		pluginLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "plugin_loads_total",
				Help:      "Plugin load routines run, by plugin.",
			},
			[]string{"plugin"},
		),
	}

	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.runs, m.runDuration, m.executables,
		m.mutations, m.commitFailures, m.historySteps, m.pluginLoads,
	}
}

// RecordRun counts one runner pass.
func (m *Metrics) RecordRun(mode string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.runs.WithLabelValues(mode, result).Inc()
	m.runDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordExecutable counts one executable invocation.
func (m *Metrics) RecordExecutable(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.executables.WithLabelValues("ok").Inc()
		return
	}
	m.executables.WithLabelValues("error").Inc()
}

// RecordMutation counts one applied mutation.
func (m *Metrics) RecordMutation(kind string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind).Inc()
}

// RecordCommitFailure counts one aborted commit.
func (m *Metrics) RecordCommitFailure() {
	if m == nil {
		return
	}
	m.commitFailures.Inc()
}

// RecordHistoryStep counts one undo or redo.
func (m *Metrics) RecordHistoryStep(op string) {
	if m == nil {
		return
	}
	m.historySteps.WithLabelValues(op).Inc()
}

// RecordPluginLoad counts one plugin load routine.
func (m *Metrics) RecordPluginLoad(name string) {
	if m == nil {
		return
	}
	m.pluginLoads.WithLabelValues(name).Inc()
}

// Handler serves the metrics gathered by g in the prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
