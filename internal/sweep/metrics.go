package sweep

import "github.com/prometheus/client_golang/prometheus"

var (
	// sweepRuns counts passes by outcome: ok, error, skipped.
	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Sweep passes by result.",
		},
		[]string{"result"},
	)

	// sweepDuration records wall time of completed passes.
	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of sweep passes in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	// sweepRevealed counts reviews flipped to active.
	sweepRevealed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_reviews_revealed_total",
			Help: "Reviews revealed by the sweep.",
		},
	)

	// sweepFailures counts tenancies (and aggregate writes) that failed
	// inside an otherwise successful pass.
	sweepFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_tenancy_failures_total",
			Help: "Per-tenancy failures isolated by the sweep.",
		},
	)
)

func init() {
	prometheus.MustRegister(sweepRuns, sweepDuration, sweepRevealed, sweepFailures)
}
