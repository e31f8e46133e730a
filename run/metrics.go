package run

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teranos/PTX/errors"
)

// Metrics counts runs and batch jobs. A nil *Metrics records nothing.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	BatchJobs     *prometheus.CounterVec
	BatchRecords  *prometheus.CounterVec
	BatchesActive prometheus.Gauge
}

// NewMetrics registers the run metrics with reg
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total pipeline runs by parser and outcome",
			},
			[]string{"parser", "outcome"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Pipeline run duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"parser"},
		),
		BatchJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_jobs_total",
				Help:      "Batch jobs by terminal status",
			},
			[]string{"status"},
		),
		BatchRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_records_total",
				Help:      "Batch records processed by outcome",
			},
			[]string{"outcome"},
		),
		BatchesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "batches_active",
				Help:      "Batch jobs currently iterating records",
			},
		),
	}
}

// outcome is "ok" or the error kind
func outcome(kind errors.Kind) string {
	if kind == errors.KindNone {
		return "ok"
	}
	return string(kind)
}

func (m *Metrics) observeRun(parser string, kind errors.Kind, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(parser, outcome(kind)).Inc()
	m.RunDuration.WithLabelValues(parser).Observe(d.Seconds())
}

func (m *Metrics) observeRecord(kind errors.Kind) {
	if m == nil {
		return
	}
	m.BatchRecords.WithLabelValues(outcome(kind)).Inc()
}

func (m *Metrics) batchStarted() {
	if m == nil {
		return
	}
	m.BatchesActive.Inc()
}

func (m *Metrics) batchFinished(status string) {
	if m == nil {
		return
	}
	m.BatchesActive.Dec()
	m.BatchJobs.WithLabelValues(status).Inc()
}
