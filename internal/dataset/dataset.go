package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jwaldner/marlin/internal/utils"
	marlin "github.com/jwaldner/marlin/marlin_lib"
)

// Row is one option quote as it appears in the input table.
type Row struct {
	Symbol     string
	Date       time.Time
	Expiration time.Time
	Strike     float64
	Bid        float64
	Ask        float64
	Underlying float64
	IsCall     bool
}

// MidPrice returns the bid/ask midpoint used as the observed market price.
func (r Row) MidPrice() float64 {
	return (r.Bid + r.Ask) / 2
}

// Dataset is a filtered, calibration-ready batch plus bookkeeping about what
// the filters removed.
type Dataset struct {
	Batch   *marlin.Batch
	Rows    []Row // rows that survived filtering, aligned with Batch indices
	Loaded  int   // rows read from the source
	Dropped int   // rows removed by the filter chain
}

const dateLayout = "2006-01-02"

// requiredColumns maps header names to their meaning. Column order in the
// file doesn't matter; the header row does.
var requiredColumns = []string{"act_symbol", "date", "expiration", "strike", "call_put", "bid", "ask", "underlying_price"}

// LoadCSV reads option quote rows from a CSV file with a header row.
func LoadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open options file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// ReadCSV parses option quote rows from CSV data with a header row.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing required column %q in CSV header", name)
		}
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		row, err := parseRow(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func parseRow(record []string, cols map[string]int) (Row, error) {
	var row Row
	var err error

	row.Symbol = record[cols["act_symbol"]]

	if row.Date, err = time.Parse(dateLayout, record[cols["date"]]); err != nil {
		return row, fmt.Errorf("bad quote date: %w", err)
	}
	if row.Expiration, err = time.Parse(dateLayout, record[cols["expiration"]]); err != nil {
		return row, fmt.Errorf("bad expiration date: %w", err)
	}
	if row.Strike, err = strconv.ParseFloat(record[cols["strike"]], 64); err != nil {
		return row, fmt.Errorf("bad strike: %w", err)
	}
	if row.Bid, err = strconv.ParseFloat(record[cols["bid"]], 64); err != nil {
		return row, fmt.Errorf("bad bid: %w", err)
	}
	if row.Ask, err = strconv.ParseFloat(record[cols["ask"]], 64); err != nil {
		return row, fmt.Errorf("bad ask: %w", err)
	}
	if row.Underlying, err = strconv.ParseFloat(record[cols["underlying_price"]], 64); err != nil {
		return row, fmt.Errorf("bad underlying price: %w", err)
	}

	switch strings.ToUpper(strings.TrimSpace(record[cols["call_put"]])) {
	case "C", "CALL":
		row.IsCall = true
	case "P", "PUT":
		row.IsCall = false
	default:
		return row, fmt.Errorf("bad call_put value %q", record[cols["call_put"]])
	}

	return row, nil
}

// Prepare filters raw quote rows and assembles the calibration batch. The
// filter chain mirrors the data cleaning the solver expects as a
// precondition: positive time to expiration below maxYears, positive strike,
// positive bid, and a positive mid price.
func Prepare(rows []Row, riskFreeRate, maxYears float64) *Dataset {
	ds := &Dataset{Loaded: len(rows)}

	kept := make([]Row, 0, len(rows))
	for _, row := range rows {
		T := utils.YearsToExpiration(row.Date, row.Expiration)
		if T <= 0 || T >= maxYears {
			continue
		}
		if row.Strike <= 0 || row.Bid <= 0 || row.MidPrice() <= 0 || row.Underlying <= 0 {
			continue
		}
		kept = append(kept, row)
	}
	ds.Rows = kept
	ds.Dropped = ds.Loaded - len(kept)

	n := len(kept)
	b := &marlin.Batch{
		Underlying:  make([]float64, n),
		Strike:      make([]float64, n),
		TimeToExp:   make([]float64, n),
		Rate:        make([]float64, n),
		MarketPrice: make([]float64, n),
		IsCall:      make([]bool, n),
		Symbols:     make([]string, n),
	}
	for i, row := range kept {
		b.Underlying[i] = row.Underlying
		b.Strike[i] = row.Strike
		b.TimeToExp[i] = utils.YearsToExpiration(row.Date, row.Expiration)
		b.Rate[i] = riskFreeRate
		b.MarketPrice[i] = row.MidPrice()
		b.IsCall[i] = row.IsCall
		b.Symbols[i] = row.Symbol
	}
	ds.Batch = b

	return ds
}

// WriteResults writes the calibrated batch back out as CSV, one row per
// surviving contract with its implied volatility and fit quality appended.
func WriteResults(w io.Writer, ds *Dataset, res *marlin.Result) error {
	writer := csv.NewWriter(w)

	header := []string{"act_symbol", "date", "expiration", "strike", "call_put",
		"market_price", "implied_volatility", "converged", "iterations", "model_price", "pricing_error"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i, row := range ds.Rows {
		callPut := "P"
		if row.IsCall {
			callPut = "C"
		}
		record := []string{
			row.Symbol,
			row.Date.Format(dateLayout),
			row.Expiration.Format(dateLayout),
			strconv.FormatFloat(row.Strike, 'f', -1, 64),
			callPut,
			strconv.FormatFloat(row.MidPrice(), 'f', 6, 64),
			strconv.FormatFloat(res.Sigma[i], 'f', 6, 64),
			strconv.FormatBool(res.Converged[i]),
			strconv.Itoa(res.Iterations[i]),
			strconv.FormatFloat(res.FinalPrices[i], 'f', 6, 64),
			strconv.FormatFloat(res.PricingErrors[i], 'f', 6, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
