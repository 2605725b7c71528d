package marlin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceKnownCall(t *testing.T) {
	// Textbook scenario: ATM one-year call, Black-Scholes closed form gives
	// roughly 12.34.
	price := Price(100, 100, 1.0, 0.05, 0.25, true)
	assert.InDelta(t, 12.336, price, 0.01)
}

func TestPutCallParity(t *testing.T) {
	cases := []struct {
		S, K, T, r, sigma float64
	}{
		{100, 100, 1.0, 0.05, 0.25},
		{120, 100, 0.5, 0.03, 0.40},
		{80, 100, 2.0, 0.01, 0.15},
		{100, 95, 0.1, 0.05, 0.60},
	}

	for _, c := range cases {
		call := Price(c.S, c.K, c.T, c.r, c.sigma, true)
		put := Price(c.S, c.K, c.T, c.r, c.sigma, false)
		parity := c.S - c.K*math.Exp(-c.r*c.T)
		assert.InDelta(t, parity, call-put, 1e-9, "parity violated at S=%v K=%v T=%v", c.S, c.K, c.T)
	}
}

func TestExpiredOptionIntrinsicValue(t *testing.T) {
	// T=0 must degrade to intrinsic value through the stabilized denominator,
	// never to NaN.
	cases := []struct {
		S, K   float64
		isCall bool
		want   float64
	}{
		{110, 100, true, 10},
		{90, 100, true, 0},
		{90, 100, false, 10},
		{110, 100, false, 0},
		{100, 100, true, 0},
		{100, 100, false, 0},
	}

	for _, c := range cases {
		got := Price(c.S, c.K, 0, 0.05, 0.25, c.isCall)
		require.False(t, math.IsNaN(got), "NaN at S=%v K=%v call=%v", c.S, c.K, c.isCall)
		assert.InDelta(t, c.want, got, 1e-3, "S=%v K=%v call=%v", c.S, c.K, c.isCall)
	}
}

func TestPriceFiniteAtExtremes(t *testing.T) {
	extremes := []struct {
		S, K, T, sigma float64
	}{
		{100, 100, 0, SigmaFloor},
		{100, 100, 1e-8, 0.25},
		{1000, 10, 1.0, SigmaFloor},
		{10, 1000, 1.0, SigmaCeil},
		{100, 100, 3.0, SigmaCeil},
	}

	for _, c := range extremes {
		for _, isCall := range []bool{true, false} {
			got := Price(c.S, c.K, c.T, 0.05, c.sigma, isCall)
			require.False(t, math.IsNaN(got) || math.IsInf(got, 0),
				"non-finite price at S=%v K=%v T=%v sigma=%v call=%v", c.S, c.K, c.T, c.sigma, isCall)
		}
	}
}

// fdVega approximates dPrice/dSigma with a central difference.
func fdVega(S, K, T, r, sigma float64, isCall bool, h float64) float64 {
	return (Price(S, K, T, r, sigma+h, isCall) - Price(S, K, T, r, sigma-h, isCall)) / (2 * h)
}

func TestVegaMatchesFiniteDifference(t *testing.T) {
	const h = 1e-5

	spots := []float64{80, 100, 120}
	expiries := []float64{0.001, 0.01, 0.25, 1.0, 2.0}
	vols := []float64{0.01, 0.1, 0.25, 1.0}

	for _, S := range spots {
		for _, T := range expiries {
			for _, sigma := range vols {
				analytic := Vega(S, 100, T, 0.05, sigma)
				numeric := fdVega(S, 100, T, 0.05, sigma, true, h)

				tol := 1e-3 * math.Abs(numeric)
				if tol < 1e-8 {
					tol = 1e-8 // both sides effectively zero
				}
				assert.InDelta(t, numeric, analytic, tol,
					"vega mismatch at S=%v T=%v sigma=%v", S, T, sigma)
			}
		}
	}
}

func TestVegaSharedByCallAndPut(t *testing.T) {
	const h = 1e-5

	for _, sigma := range []float64{0.05, 0.25, 0.8} {
		callVega := fdVega(100, 105, 0.75, 0.05, sigma, true, h)
		putVega := fdVega(100, 105, 0.75, 0.05, sigma, false, h)
		assert.InDelta(t, callVega, putVega, 1e-6, "sigma=%v", sigma)
	}
}

func TestGreeksSanity(t *testing.T) {
	call := GreeksFor(100, 100, 0.5, 0.05, 0.25, true)
	put := GreeksFor(100, 100, 0.5, 0.05, 0.25, false)

	assert.Greater(t, call.Delta, 0.0)
	assert.Less(t, call.Delta, 1.0)
	assert.Greater(t, put.Delta, -1.0)
	assert.Less(t, put.Delta, 0.0)

	// Gamma and vega are shared and positive for vanilla options.
	assert.Greater(t, call.Gamma, 0.0)
	assert.InDelta(t, call.Gamma, put.Gamma, 1e-12)
	assert.Greater(t, call.Vega, 0.0)
	assert.InDelta(t, call.Vega, put.Vega, 1e-9)

	// Delta parity: call delta - put delta = 1.
	assert.InDelta(t, 1.0, call.Delta-put.Delta, 1e-12)
}
