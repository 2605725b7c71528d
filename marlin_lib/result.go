package marlin

import "time"

// StopReason records why a calibration run ended.
type StopReason string

const (
	StopAllConverged  StopReason = "all_converged"
	StopMaxIterations StopReason = "max_iterations"
	StopCancelled     StopReason = "cancelled"
)

// Result is the immutable snapshot produced at the end of a calibration run.
// All per-contract slices are indexed the same way as the input batch. The
// reporting layer reads fields but must not mutate them.
type Result struct {
	Sigma         []float64  // final implied volatility per contract
	Converged     []bool     // whether the contract's price stabilized
	Iterations    []int      // round at which convergence was first detected
	FinalPrices   []float64  // model price at the final volatility
	PricingErrors []float64  // |final price - market price| per contract
	MAE           float64    // mean absolute pricing error over the batch
	StopReason    StopReason // why the loop terminated
	IterationsRun int        // rounds actually executed
	Elapsed       time.Duration
}

// newResult prices the batch one last time at the final volatilities and
// assembles the snapshot.
func newResult(e *MarlinEngine, b *Batch, sigma []float64, converged []bool, iterations []int,
	stop StopReason, iterationsRun int, elapsed time.Duration) *Result {

	n := b.Len()
	final := e.PriceBatch(b, sigma)

	errors := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		errors[i] = abs(final[i] - b.MarketPrice[i])
		sum += errors[i]
	}

	return &Result{
		Sigma:         sigma,
		Converged:     converged,
		Iterations:    iterations,
		FinalPrices:   final,
		PricingErrors: errors,
		MAE:           sum / float64(n),
		StopReason:    stop,
		IterationsRun: iterationsRun,
		Elapsed:       elapsed,
	}
}

// ConvergedCount returns how many contracts converged.
func (r *Result) ConvergedCount() int {
	count := 0
	for _, c := range r.Converged {
		if c {
			count++
		}
	}
	return count
}

// ConvergenceRate returns the converged fraction of the batch, in [0, 1].
func (r *Result) ConvergenceRate() float64 {
	return float64(r.ConvergedCount()) / float64(len(r.Converged))
}
