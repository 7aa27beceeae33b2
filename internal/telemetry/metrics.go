package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// Metrics is the remedyd prometheus collector set.
type Metrics struct {
	registry *prometheus.Registry

	Iterations        prometheus.Counter
	IterationDuration prometheus.Histogram
	Findings          *prometheus.CounterVec
	Decisions         *prometheus.CounterVec
	Implementations   *prometheus.CounterVec
	LearningRecords   prometheus.Counter
	PendingApprovals  prometheus.Gauge
}

// NewMetrics registers the collector set on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remedyd",
			Name:      "iterations_total",
			Help:      "Completed remediation iterations.",
		}),
		IterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "remedyd",
			Name:      "iteration_duration_seconds",
			Help:      "Wall-clock duration of a remediation iteration.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		Findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remedyd",
			Name:      "findings_total",
			Help:      "Findings produced by the analysis engine.",
		}, []string{"severity"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remedyd",
			Name:      "decisions_total",
			Help:      "Decisions produced, by implementation tier.",
		}, []string{"tier"}),
		Implementations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remedyd",
			Name:      "implementations_total",
			Help:      "Implementation attempts, by terminal outcome.",
		}, []string{"outcome"}),
		LearningRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remedyd",
			Name:      "learning_records_total",
			Help:      "Records appended to the learning store.",
		}),
		PendingApprovals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "remedyd",
			Name:      "pending_approvals",
			Help:      "Decisions currently waiting on operator approval.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Iterations,
		m.IterationDuration,
		m.Findings,
		m.Decisions,
		m.Implementations,
		m.LearningRecords,
		m.PendingApprovals,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFindings bumps the per-severity finding counters.
func (m *Metrics) ObserveFindings(findings []record.Finding) {
	for _, f := range findings {
		m.Findings.WithLabelValues(string(f.Severity)).Inc()
	}
}

// ObserveDecisions bumps the per-tier decision counters.
func (m *Metrics) ObserveDecisions(decisions []record.Decision) {
	for _, d := range decisions {
		m.Decisions.WithLabelValues(string(d.Tier)).Inc()
	}
}
