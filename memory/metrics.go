package memory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports memory subsystem counters. A nil *Metrics is a no-op.
type Metrics struct {
	extractions   *prometheus.CounterVec
	recalls       *prometheus.CounterVec
	embedFailures prometheus.Counter
	searchLatency prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		extractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "companion",
				Subsystem: "memory",
				Name:      "extractions_total",
				Help:      "Extraction calls by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		recalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "companion",
				Subsystem: "memory",
				Name:      "recall_total",
				Help:      "Context assemblies by memory path (relevant, recent, empty)",
			},
			[]string{"path"},
		),
		embedFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "companion",
				Subsystem: "memory",
				Name:      "embed_failures_total",
				Help:      "Embedding calls that yielded no vector",
			},
		),
		searchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "companion",
				Subsystem: "memory",
				Name:      "search_latency_seconds",
				Help:      "Episodic similarity search latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.extractions, m.recalls, m.embedFailures, m.searchLatency)
	}
	return m
}

func (m *Metrics) extraction(kind, outcome string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) recall(path string) {
	if m == nil {
		return
	}
	m.recalls.WithLabelValues(path).Inc()
}

func (m *Metrics) embedFailed() {
	if m == nil {
		return
	}
	m.embedFailures.Inc()
}

func (m *Metrics) observeSearch(start time.Time) {
	if m == nil {
		return
	}
	m.searchLatency.Observe(time.Since(start).Seconds())
}
