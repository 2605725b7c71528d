package marlin

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// Volatility bounds enforced after every optimizer update. The floor keeps
// sigma away from the pricing singularity at zero; the ceiling keeps runaway
// contracts from dragging the whole batch into overflow territory.
const (
	SigmaFloor = 0.001
	SigmaCeil  = 5.0
)

// SolverConfig tunes the calibration loop. The zero value of every field
// means "use the default".
type SolverConfig struct {
	InitialSigma         float64 `yaml:"initial_sigma"`         // starting guess, default 0.4
	LearningRate         float64 `yaml:"learning_rate"`         // default 0.001
	Beta1                float64 `yaml:"beta1"`                 // first moment decay, default 0.9
	Beta2                float64 `yaml:"beta2"`                 // second moment decay, default 0.999
	Eps                  float64 `yaml:"eps"`                   // update denominator guard, default 1e-7
	MaxIterations        int     `yaml:"max_iterations"`        // default 2000
	ConvergenceThreshold float64 `yaml:"convergence_threshold"` // price stability threshold, default 1e-4
	CheckEvery           int     `yaml:"check_every"`           // rounds between convergence checks, default 10
	Optimizer            string  `yaml:"optimizer"`             // "adam" or "adabelief", default "adam"

	// OnCheckpoint, when set, is invoked at every convergence check with a
	// progress snapshot. It runs on the calibration goroutine; keep it cheap.
	OnCheckpoint CheckpointFunc `yaml:"-"`
}

// DefaultSolverConfig returns the reference hyperparameters.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		InitialSigma:         0.4,
		LearningRate:         0.001,
		Beta1:                0.9,
		Beta2:                0.999,
		Eps:                  1e-7,
		MaxIterations:        2000,
		ConvergenceThreshold: 1e-4,
		CheckEvery:           10,
		Optimizer:            OptimizerAdam,
	}
}

func (c *SolverConfig) applyDefaults() {
	d := DefaultSolverConfig()
	if c.InitialSigma == 0 {
		c.InitialSigma = d.InitialSigma
	}
	if c.LearningRate == 0 {
		c.LearningRate = d.LearningRate
	}
	if c.Beta1 == 0 {
		c.Beta1 = d.Beta1
	}
	if c.Beta2 == 0 {
		c.Beta2 = d.Beta2
	}
	if c.Eps == 0 {
		c.Eps = d.Eps
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.ConvergenceThreshold == 0 {
		c.ConvergenceThreshold = d.ConvergenceThreshold
	}
	if c.CheckEvery == 0 {
		c.CheckEvery = d.CheckEvery
	}
	if c.Optimizer == "" {
		c.Optimizer = d.Optimizer
	}
}

// Checkpoint is the progress snapshot handed to OnCheckpoint at each
// convergence check.
type Checkpoint struct {
	Iteration int
	Converged int
	Total     int
	Loss      float64
	Elapsed   time.Duration
}

// CheckpointFunc observes calibration progress.
type CheckpointFunc func(Checkpoint)

// MarlinEngine runs batched option calculations on the CPU, splitting
// elementwise work across a worker pool. Every contract is independent, so
// workers write disjoint index ranges and need no synchronization.
type MarlinEngine struct {
	workers int
}

// NewMarlinEngine creates an engine sized to the machine.
func NewMarlinEngine() *MarlinEngine {
	return NewMarlinEngineWithWorkers(runtime.NumCPU())
}

// NewMarlinEngineWithWorkers creates an engine with a fixed worker count.
// Counts below one fall back to serial execution.
func NewMarlinEngineWithWorkers(workers int) *MarlinEngine {
	if workers < 1 {
		workers = 1
	}
	return &MarlinEngine{workers: workers}
}

// Workers returns the engine's worker count.
func (e *MarlinEngine) Workers() int {
	return e.workers
}

// parallelFor splits [0, n) into contiguous chunks, one per worker. Small
// ranges run serially: goroutine overhead beats the arithmetic below a few
// hundred contracts.
func (e *MarlinEngine) parallelFor(n int, fn func(start, end int)) {
	if e.workers == 1 || n < 256 {
		fn(0, n)
		return
	}

	chunk := (n + e.workers - 1) / e.workers
	var g errgroup.Group
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		start, end := start, end
		g.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	g.Wait() // workers never return errors
}

// priceInto writes the Black-Scholes price of every contract at the given
// volatilities into out.
func (e *MarlinEngine) priceInto(b *Batch, sigma, out []float64) {
	e.parallelFor(b.Len(), func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = Price(b.Underlying[i], b.Strike[i], b.TimeToExp[i], b.Rate[i], sigma[i], b.IsCall[i])
		}
	})
}

// gradInto writes the gradient of the mean-squared pricing loss with respect
// to each contract's volatility:
//
//	dLoss/dSigma[i] = 2·(model[i] - market[i])·vega[i] / n
func (e *MarlinEngine) gradInto(b *Batch, sigma, model, out []float64) {
	n := float64(b.Len())
	e.parallelFor(b.Len(), func(start, end int) {
		for i := start; i < end; i++ {
			diff := model[i] - b.MarketPrice[i]
			out[i] = 2 * diff * Vega(b.Underlying[i], b.Strike[i], b.TimeToExp[i], b.Rate[i], sigma[i]) / n
		}
	})
}

// PriceBatch prices every contract in the batch at the given volatilities.
func (e *MarlinEngine) PriceBatch(b *Batch, sigma []float64) []float64 {
	out := make([]float64, b.Len())
	e.priceInto(b, sigma, out)
	return out
}

// GreeksBatch computes the Greeks of every contract at the given
// volatilities.
func (e *MarlinEngine) GreeksBatch(b *Batch, sigma []float64) []Greeks {
	out := make([]Greeks, b.Len())
	e.parallelFor(b.Len(), func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = GreeksFor(b.Underlying[i], b.Strike[i], b.TimeToExp[i], b.Rate[i], sigma[i], b.IsCall[i])
		}
	})
	return out
}

// Calibrate solves the implied volatility of every contract in the batch by
// gradient descent on the squared pricing error, one shared optimizer round
// per iteration.
//
// Each round prices the whole batch, forms the mean-squared loss against the
// observed market prices, steps every volatility along its own gradient, and
// clamps the result to [SigmaFloor, SigmaCeil]. Every CheckEvery rounds the
// loop compares current prices against the previous checkpoint: contracts
// whose price moved less than ConvergenceThreshold are marked converged.
// Converged contracts keep receiving updates; the flag only drives early
// exit and reporting, it never freezes an element.
//
// The loop stops as soon as every contract is converged, when MaxIterations
// rounds have run, or, polled only at checkpoint boundaries, when ctx is
// cancelled. Non-convergence of some contracts is a reported outcome, not an
// error.
func (e *MarlinEngine) Calibrate(ctx context.Context, b *Batch, cfg SolverConfig) (*Result, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	n := b.Len()
	opt, err := newOptimizer(cfg.Optimizer, n, cfg.LearningRate, cfg.Beta1, cfg.Beta2, cfg.Eps)
	if err != nil {
		return nil, err
	}

	sigma := make([]float64, n)
	for i := range sigma {
		sigma[i] = cfg.InitialSigma
	}

	model := make([]float64, n)
	grads := make([]float64, n)
	converged := make([]bool, n)
	iterations := make([]int, n)
	checkpointPrices := make([]float64, n)

	start := time.Now()
	stop := StopMaxIterations
	iterationsRun := cfg.MaxIterations

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		e.priceInto(b, sigma, model)

		// Loss is accumulated serially so two runs of the same batch sum in
		// the same order and produce bit-identical results.
		loss := 0.0
		for i := 0; i < n; i++ {
			d := model[i] - b.MarketPrice[i]
			loss += d * d
		}
		loss /= float64(n)

		e.gradInto(b, sigma, model, grads)
		opt.Step(sigma, grads)

		for i := range sigma {
			if sigma[i] < SigmaFloor {
				sigma[i] = SigmaFloor
			} else if sigma[i] > SigmaCeil {
				sigma[i] = SigmaCeil
			}
		}

		if iter%cfg.CheckEvery != 0 {
			continue
		}

		// Convergence check: compare this round's pre-update prices against
		// the previous checkpoint, then roll the checkpoint forward for every
		// contract, converged or not.
		nConverged := 0
		for i := 0; i < n; i++ {
			if !converged[i] && abs(model[i]-checkpointPrices[i]) < cfg.ConvergenceThreshold {
				converged[i] = true
				iterations[i] = iter
			}
			checkpointPrices[i] = model[i]
			if converged[i] {
				nConverged++
			}
		}

		if cfg.OnCheckpoint != nil {
			cfg.OnCheckpoint(Checkpoint{
				Iteration: iter,
				Converged: nConverged,
				Total:     n,
				Loss:      loss,
				Elapsed:   time.Since(start),
			})
		}

		if nConverged == n {
			stop = StopAllConverged
			iterationsRun = iter + 1
			break
		}

		// The only cancellation point: abort requests are observed here, with
		// the checkpoint just taken as the consistent state.
		if ctx.Err() != nil {
			stop = StopCancelled
			iterationsRun = iter + 1
			break
		}
	}

	return newResult(e, b, sigma, converged, iterations, stop, iterationsRun, time.Since(start)), nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
