package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes of one sweep.
const (
	SweepRunOK        = "ok"
	SweepRunFailed    = "failed"
	SweepRunContended = "contended"
)

// Row results inside one sweep run.
const (
	SweepRowProcessed = "processed"
	SweepRowSkipped   = "skipped"
	SweepRowFailed    = "failed"
)

// sweepBuckets spans a quiet pass over a handful of rows up to a backlog
// that takes most of the sweep interval.
var sweepBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60}

// SweepMetrics records how the lifecycle sweeps behave: how long each run
// takes, whether it ran at all, and what happened to the rows it visited.
type SweepMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	rows     *prometheus.CounterVec
}

func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "restobooking_sweep_duration_seconds",
		Help:    "Wall time of one lifecycle sweep run.",
		Buckets: sweepBuckets,
	}, []string{"sweep"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "restobooking_sweep_runs_total",
		Help: "Lifecycle sweep runs by outcome (ok, failed, contended).",
	}, []string{"sweep", "outcome"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "restobooking_sweep_rows_total",
		Help: "Reservations and waitlist entries visited by sweeps, by result.",
	}, []string{"sweep", "result"})
	reg.MustRegister(duration, runs, rows)
	return &SweepMetrics{duration: duration, runs: runs, rows: rows}
}

// ObserveRun records a finished run. A non-nil err counts as failed.
func (m *SweepMetrics) ObserveRun(sweep string, took time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	sweep = normalizeLabel(sweep)
	m.duration.WithLabelValues(sweep).Observe(took.Seconds())
	outcome := SweepRunOK
	if err != nil {
		outcome = SweepRunFailed
	}
	m.runs.WithLabelValues(sweep, outcome).Inc()
}

// Contended records a run skipped because another worker held the lock.
func (m *SweepMetrics) Contended(sweep string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(sweep), SweepRunContended).Inc()
}

func (m *SweepMetrics) AddRows(sweep, result string, n int) {
	if m == nil || m.rows == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(sweep), result).Add(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
