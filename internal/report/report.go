package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	marlin "github.com/jwaldner/marlin/marlin_lib"
)

// Stats summarizes a calibration run the way the research workflow reports
// it: convergence rates, pricing accuracy, the shape of the fitted
// volatility surface, and how hard the optimizer had to work.
type Stats struct {
	Total        int
	Converged    int
	ConvergedPct float64
	MAE          float64
	RMSE         float64
	MeanPctError float64

	// Implied volatility distribution over converged contracts
	MeanIV   float64
	MedianIV float64
	StdIV    float64
	MinIV    float64
	MaxIV    float64

	// Iteration counts over converged contracts
	MeanIterations   float64
	MedianIterations int
	MaxIterations    int

	PerSymbol []SymbolStats
}

// SymbolStats is the per-symbol slice of a run summary.
type SymbolStats struct {
	Symbol    string
	Contracts int
	MeanIV    float64
	MAE       float64
}

// Compute builds run statistics from a calibration result. The volatility
// and iteration distributions follow only converged contracts; error metrics
// cover the whole batch.
func Compute(b *marlin.Batch, res *marlin.Result) Stats {
	n := b.Len()
	s := Stats{
		Total:     n,
		Converged: res.ConvergedCount(),
		MAE:       res.MAE,
	}
	s.ConvergedPct = 100 * float64(s.Converged) / float64(n)

	sumSq := 0.0
	sumPct := 0.0
	for i := 0; i < n; i++ {
		sumSq += res.PricingErrors[i] * res.PricingErrors[i]
		sumPct += 100 * res.PricingErrors[i] / b.MarketPrice[i]
	}
	s.RMSE = math.Sqrt(sumSq / float64(n))
	s.MeanPctError = sumPct / float64(n)

	var ivs []float64
	var iters []int
	for i := 0; i < n; i++ {
		if res.Converged[i] {
			ivs = append(ivs, res.Sigma[i])
			iters = append(iters, res.Iterations[i])
		}
	}

	if len(ivs) > 0 {
		s.MeanIV, s.StdIV = meanStd(ivs)
		s.MedianIV = median(ivs)
		s.MinIV, s.MaxIV = minMax(ivs)

		sumIter := 0
		maxIter := 0
		for _, it := range iters {
			sumIter += it
			if it > maxIter {
				maxIter = it
			}
		}
		s.MeanIterations = float64(sumIter) / float64(len(iters))
		sort.Ints(iters)
		s.MedianIterations = iters[len(iters)/2]
		s.MaxIterations = maxIter
	}

	s.PerSymbol = perSymbol(b, res)

	return s
}

func perSymbol(b *marlin.Batch, res *marlin.Result) []SymbolStats {
	if b.Symbols == nil {
		return nil
	}

	type acc struct {
		count int
		sumIV float64
		sumAE float64
	}
	bySymbol := make(map[string]*acc)
	for i := 0; i < b.Len(); i++ {
		if !res.Converged[i] {
			continue
		}
		a := bySymbol[b.Symbols[i]]
		if a == nil {
			a = &acc{}
			bySymbol[b.Symbols[i]] = a
		}
		a.count++
		a.sumIV += res.Sigma[i]
		a.sumAE += res.PricingErrors[i]
	}

	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	out := make([]SymbolStats, 0, len(symbols))
	for _, sym := range symbols {
		a := bySymbol[sym]
		out = append(out, SymbolStats{
			Symbol:    sym,
			Contracts: a.count,
			MeanIV:    a.sumIV / float64(a.count),
			MAE:       a.sumAE / float64(a.count),
		})
	}
	return out
}

// Render writes the human-readable summary.
func Render(w io.Writer, s Stats, res *marlin.Result) {
	fmt.Fprintf(w, "%s\n", divider("RESULTS SUMMARY"))
	fmt.Fprintf(w, "Contracts: %d\n", s.Total)
	fmt.Fprintf(w, "Converged: %d (%.2f%%)\n", s.Converged, s.ConvergedPct)
	fmt.Fprintf(w, "Non-convergence rate: %.2f%%\n", 100-s.ConvergedPct)
	fmt.Fprintf(w, "Stop reason: %s after %d iterations (%.2fs)\n",
		res.StopReason, res.IterationsRun, res.Elapsed.Seconds())

	fmt.Fprintf(w, "\n%s\n", divider("Pricing Accuracy"))
	fmt.Fprintf(w, "Mean Absolute Error (MAE): %.6f\n", s.MAE)
	fmt.Fprintf(w, "RMSE: %.6f\n", s.RMSE)
	fmt.Fprintf(w, "Mean %% Error: %.4f%%\n", s.MeanPctError)

	if s.Converged > 0 {
		fmt.Fprintf(w, "\n%s\n", divider("Implied Volatility Distribution"))
		fmt.Fprintf(w, "Mean IV: %.6f\n", s.MeanIV)
		fmt.Fprintf(w, "Median IV: %.6f\n", s.MedianIV)
		fmt.Fprintf(w, "Std Dev: %.6f\n", s.StdIV)
		fmt.Fprintf(w, "Min IV: %.6f\n", s.MinIV)
		fmt.Fprintf(w, "Max IV: %.6f\n", s.MaxIV)

		fmt.Fprintf(w, "\n%s\n", divider("Convergence Statistics"))
		fmt.Fprintf(w, "Average iterations: %.1f\n", s.MeanIterations)
		fmt.Fprintf(w, "Median iterations: %d\n", s.MedianIterations)
		fmt.Fprintf(w, "Max iterations: %d\n", s.MaxIterations)
	}

	if len(s.PerSymbol) > 0 {
		fmt.Fprintf(w, "\n%s\n", divider("Performance by Symbol"))
		for _, sym := range s.PerSymbol {
			fmt.Fprintf(w, "%-6s: %5d contracts | Avg IV: %.4f | MAE: %.6f\n",
				sym.Symbol, sym.Contracts, sym.MeanIV, sym.MAE)
		}
	}
}

func divider(title string) string {
	return fmt.Sprintf("%s %s", "===", title)
}

func meanStd(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	if len(xs) < 2 {
		return mean, 0
	}
	for _, x := range xs {
		std += (x - mean) * (x - mean)
	}
	std = math.Sqrt(std / float64(len(xs)-1))
	return mean, std
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

func minMax(xs []float64) (min, max float64) {
	min, max = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return min, max
}
