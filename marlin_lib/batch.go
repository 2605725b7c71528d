package marlin

import "fmt"

// Batch holds one option contract per index across parallel slices.
// All slices must be the same length; Symbols may be nil when the caller
// has no per-contract identifiers.
type Batch struct {
	Underlying  []float64 // spot price of the underlying, > 0
	Strike      []float64 // strike price, > 0
	TimeToExp   []float64 // time to expiration in years
	Rate        []float64 // risk-free rate
	MarketPrice []float64 // observed market price (mid of bid/ask), > 0
	IsCall      []bool    // true for calls, false for puts
	Symbols     []string  // optional, used only for reporting
}

// Len returns the number of contracts in the batch.
func (b *Batch) Len() int {
	return len(b.Underlying)
}

// Validate rejects batches the calibration loop cannot run on: empty input,
// mismatched slice lengths, or non-positive strikes/market prices. These are
// caller errors and must be caught before the loop starts, never mid-run.
func (b *Batch) Validate() error {
	n := b.Len()
	if n == 0 {
		return fmt.Errorf("empty batch: no contracts to calibrate")
	}

	if len(b.Strike) != n || len(b.TimeToExp) != n || len(b.Rate) != n ||
		len(b.MarketPrice) != n || len(b.IsCall) != n {
		return fmt.Errorf("mismatched batch arrays: underlying=%d strike=%d timeToExp=%d rate=%d marketPrice=%d isCall=%d",
			n, len(b.Strike), len(b.TimeToExp), len(b.Rate), len(b.MarketPrice), len(b.IsCall))
	}
	if b.Symbols != nil && len(b.Symbols) != n {
		return fmt.Errorf("mismatched batch arrays: symbols=%d contracts=%d", len(b.Symbols), n)
	}

	for i := 0; i < n; i++ {
		if b.Strike[i] <= 0 {
			return fmt.Errorf("contract %d: strike must be positive, got %g", i, b.Strike[i])
		}
		if b.MarketPrice[i] <= 0 {
			return fmt.Errorf("contract %d: market price must be positive, got %g", i, b.MarketPrice[i])
		}
		if b.Underlying[i] <= 0 {
			return fmt.Errorf("contract %d: underlying price must be positive, got %g", i, b.Underlying[i])
		}
	}

	return nil
}

// Symbol returns the contract symbol at index i, or an empty string when the
// batch carries no symbols.
func (b *Batch) Symbol(i int) string {
	if b.Symbols == nil {
		return ""
	}
	return b.Symbols[i]
}
