package marlin

import "math"

// Numerical guards for contracts at or near expiration and for vanishing
// volatility. Both match the reference solver: sqrt(T) and the d1 denominator
// are shifted by a tiny epsilon so degenerate inputs produce large but finite
// d1/d2 instead of NaN.
const (
	timeEpsilon  = 1e-10
	denomEpsilon = 1e-10
)

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPDF is the standard normal probability density function.
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// Price computes the Black-Scholes value of a single contract.
//
//	d1 = (ln(S/K) + (r + sigma²/2)·T) / (sigma·sqrt(T) + eps)
//	d2 = d1 - sigma·sqrt(T)
//
// At T=0 the stabilized terms drive d1/d2 to ±Inf and the result degrades to
// the intrinsic value max(S-K, 0) for calls and max(K-S, 0) for puts.
func Price(S, K, T, r, sigma float64, isCall bool) float64 {
	sqrtT := math.Sqrt(T + timeEpsilon)

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma*sqrtT + denomEpsilon)
	d2 := d1 - sigma*sqrtT

	if isCall {
		return S*normCDF(d1) - K*math.Exp(-r*T)*normCDF(d2)
	}
	return K*math.Exp(-r*T)*normCDF(-d2) - S*normCDF(-d1)
}

// Vega is the sensitivity of the contract price to volatility. Calls and puts
// share the same vega.
//
// This is the exact derivative of the stabilized Price above, not the
// textbook S·phi(d1)·sqrt(T): with den = sigma·sqrt(T)+eps both d1 and d2
// depend on sigma through the quotient, and the derivative has to account for
// that so it agrees with a finite-difference of Price even near expiry.
func Vega(S, K, T, r, sigma float64) float64 {
	sqrtT := math.Sqrt(T + timeEpsilon)
	den := sigma*sqrtT + denomEpsilon

	a := math.Log(S/K) + (r+0.5*sigma*sigma)*T
	d1 := a / den
	d2 := d1 - sigma*sqrtT

	// d(d1)/d(sigma) by the quotient rule; da/d(sigma) = sigma·T.
	dd1 := (sigma*T*den - a*sqrtT) / (den * den)
	dd2 := dd1 - sqrtT

	return S*normPDF(d1)*dd1 - K*math.Exp(-r*T)*normPDF(d2)*dd2
}

// Greeks holds the standard sensitivities of a priced contract.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// GreeksFor computes the Greeks of a single contract at the given volatility.
func GreeksFor(S, K, T, r, sigma float64, isCall bool) Greeks {
	sqrtT := math.Sqrt(T + timeEpsilon)

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma*sqrtT + denomEpsilon)
	d2 := d1 - sigma*sqrtT

	var g Greeks
	discount := K * math.Exp(-r*T)

	if isCall {
		g.Delta = normCDF(d1)
		g.Theta = -(S*normPDF(d1)*sigma)/(2*sqrtT) - r*discount*normCDF(d2)
		g.Rho = discount * T * normCDF(d2)
	} else {
		g.Delta = normCDF(d1) - 1
		g.Theta = -(S*normPDF(d1)*sigma)/(2*sqrtT) + r*discount*normCDF(-d2)
		g.Rho = -discount * T * normCDF(-d2)
	}

	g.Gamma = normPDF(d1) / (S * (sigma*sqrtT + denomEpsilon))
	g.Vega = Vega(S, K, T, r, sigma)

	return g
}
