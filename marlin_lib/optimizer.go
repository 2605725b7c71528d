package marlin

import (
	"fmt"
	"math"
)

// Optimizer variants selectable through SolverConfig.Optimizer.
const (
	OptimizerAdam      = "adam"
	OptimizerAdaBelief = "adabelief"
)

// adamState maintains per-contract first and second moment estimates and a
// shared step counter, updated once per calibration round. It applies the
// bias-corrected update rule:
//
//	m[i] = beta1·m[i] + (1-beta1)·g[i]
//	v[i] = beta2·v[i] + (1-beta2)·g[i]²        (adam)
//	v[i] = beta2·v[i] + (1-beta2)·(g[i]-m[i])² (adabelief)
//	mHat = m[i] / (1 - beta1^t)
//	vHat = v[i] / (1 - beta2^t)
//	params[i] -= lr · mHat / (sqrt(vHat) + eps)
//
// There is no cross-element coupling: each contract evolves independently.
// The state never clamps parameters; bounds are the caller's job.
type adamState struct {
	lr           float64
	beta1, beta2 float64
	eps          float64
	adaBelief    bool

	m, v []float64
	t    int
}

// newOptimizer builds the optimizer state for n contracts, rejecting unknown
// variant names at configuration time.
func newOptimizer(variant string, n int, lr, beta1, beta2, eps float64) (*adamState, error) {
	st := &adamState{
		lr:    lr,
		beta1: beta1,
		beta2: beta2,
		eps:   eps,
		m:     make([]float64, n),
		v:     make([]float64, n),
	}

	switch variant {
	case OptimizerAdam:
	case OptimizerAdaBelief:
		st.adaBelief = true
	default:
		return nil, fmt.Errorf("unknown optimizer %q (want %q or %q)", variant, OptimizerAdam, OptimizerAdaBelief)
	}

	return st, nil
}

// Step applies one optimizer update to params in place. The step counter is
// shared by every element of the round: the whole batch always moves
// together, never partially.
//
// Elements whose gradient is not finite are skipped for the round: their
// moments and parameter stay untouched, so a degenerate round cannot leak
// NaN into the volatility vector.
func (a *adamState) Step(params, grads []float64) {
	a.t++

	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))

	for i := range params {
		g := grads[i]
		if math.IsNaN(g) || math.IsInf(g, 0) {
			continue
		}

		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		if a.adaBelief {
			diff := g - a.m[i]
			a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*diff*diff
		} else {
			a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		}

		mHat := a.m[i] / bc1
		vHat := a.v[i] / bc2

		params[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
}

// Timestep returns the number of rounds applied so far.
func (a *adamState) Timestep() int {
	return a.t
}
