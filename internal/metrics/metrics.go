package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Calibration counters and timings exposed on /metrics.
var (
	CalibrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marlin_calibrations_total",
		Help: "Calibration runs by stop reason",
	}, []string{"stop_reason"})

	ContractsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marlin_contracts_total",
		Help: "Total contracts calibrated",
	})

	ContractsConverged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marlin_contracts_converged_total",
		Help: "Contracts that reached price convergence",
	})

	IterationsRun = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marlin_iterations_run",
		Help:    "Gradient descent rounds per calibration run",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2000, 4000, 8000},
	})

	CalibrationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marlin_calibration_seconds",
		Help:    "Wall time per calibration run",
		Buckets: prometheus.DefBuckets,
	})
)

// ObserveRun records one completed calibration.
func ObserveRun(stopReason string, contracts, converged, iterationsRun int, seconds float64) {
	CalibrationsTotal.WithLabelValues(stopReason).Inc()
	ContractsTotal.Add(float64(contracts))
	ContractsConverged.Add(float64(converged))
	IterationsRun.Observe(float64(iterationsRun))
	CalibrationSeconds.Observe(seconds)
}
