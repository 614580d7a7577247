// Package metrics exposes the Prometheus counters and histograms the
// ambient stack can carry without touching the optimizer's performance-
// tuning non-goal: lock verdicts, WAL throughput, checkpoint/vacuum
// duration, and GA convergence, in the style cuemby/warren registers its
// own metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LockVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reldb_lock_verdicts_total",
			Help: "Total number of CC Manager verdicts by variant and verdict kind",
		},
		[]string{"variant", "verdict"},
	)

	WALBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reldb_wal_bytes_written_total",
			Help: "Total bytes appended to the recovery log",
		},
	)

	CheckpointDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reldb_checkpoint_duration_seconds",
			Help:    "Time taken to flush a checkpoint",
			Buckets: prometheus.DefBuckets,
		},
	)

	VacuumDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reldb_vacuum_duration_seconds",
			Help:    "Time taken to vacuum a table's MVCC tombstones",
			Buckets: prometheus.DefBuckets,
		},
	)

	VacuumRowsReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reldb_vacuum_rows_reclaimed_total",
			Help: "Total number of tombstoned row versions vacuum found reclaimable",
		},
	)

	OptimizerBestFitness = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reldb_optimizer_best_fitness",
			Help: "Estimated cost of the best individual by GA generation, for watching search convergence",
		},
		[]string{"generation"},
	)
)

func init() {
	prometheus.MustRegister(LockVerdictsTotal)
	prometheus.MustRegister(WALBytesWritten)
	prometheus.MustRegister(CheckpointDuration)
	prometheus.MustRegister(VacuumDuration)
	prometheus.MustRegister(VacuumRowsReclaimed)
	prometheus.MustRegister(OptimizerBestFitness)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times one operation and records it to a histogram on ObserveDuration.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer { return &Timer{start: time.Now()} }

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}
