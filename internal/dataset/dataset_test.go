package dataset

import (
	"strings"
	"testing"
)

const sampleCSV = `act_symbol,date,expiration,strike,call_put,bid,ask,underlying_price
AAPL,2024-01-02,2024-06-21,180,C,12.50,13.00,185.50
AAPL,2024-01-02,2024-06-21,190,P,9.80,10.20,185.50
MSFT,2024-01-02,2024-03-15,400,Call,5.10,5.30,395.20
MSFT,2024-01-02,2023-12-15,400,C,5.10,5.30,395.20
SPY,2024-01-02,2030-06-21,500,C,40.00,41.00,475.00
TSLA,2024-01-02,2024-06-21,250,P,0.00,0.10,245.00
`

func TestReadCSV(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	if len(rows) != 6 {
		t.Fatalf("Expected 6 rows, got %d", len(rows))
	}

	first := rows[0]
	if first.Symbol != "AAPL" || first.Strike != 180 || !first.IsCall {
		t.Errorf("First row parsed wrong: %+v", first)
	}
	if first.MidPrice() != 12.75 {
		t.Errorf("Expected mid price 12.75, got %v", first.MidPrice())
	}
	if !rows[2].IsCall {
		t.Errorf("Expected 'Call' spelling to parse as a call")
	}
	if rows[1].IsCall {
		t.Errorf("Expected P row to parse as a put")
	}
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("act_symbol,date\nAAPL,2024-01-02\n"))
	if err == nil {
		t.Fatal("Expected error for missing columns")
	}
	if !strings.Contains(err.Error(), "missing required column") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestReadCSVBadOptionType(t *testing.T) {
	bad := "act_symbol,date,expiration,strike,call_put,bid,ask,underlying_price\n" +
		"AAPL,2024-01-02,2024-06-21,180,X,1.0,1.1,185.0\n"
	_, err := ReadCSV(strings.NewReader(bad))
	if err == nil {
		t.Fatal("Expected error for bad call_put value")
	}
}

func TestPrepareFilters(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	ds := Prepare(rows, 0.05, 3.0)

	// Row 3 is already expired (T <= 0), row 4 is out past the maxYears
	// cutoff, row 5 has a zero bid. The other three survive.
	if len(ds.Rows) != 3 {
		t.Fatalf("Expected 3 surviving rows, got %d", len(ds.Rows))
	}
	if ds.Loaded != 6 || ds.Dropped != 3 {
		t.Errorf("Expected loaded=6 dropped=3, got loaded=%d dropped=%d", ds.Loaded, ds.Dropped)
	}

	b := ds.Batch
	if b.Len() != 3 {
		t.Fatalf("Expected batch of 3, got %d", b.Len())
	}
	if err := b.Validate(); err != nil {
		t.Errorf("Prepared batch failed validation: %v", err)
	}
	for i := 0; i < b.Len(); i++ {
		if b.Rate[i] != 0.05 {
			t.Errorf("Contract %d: expected rate 0.05, got %v", i, b.Rate[i])
		}
		if b.TimeToExp[i] <= 0 || b.TimeToExp[i] >= 3 {
			t.Errorf("Contract %d: T=%v escaped the filter", i, b.TimeToExp[i])
		}
	}
	if b.Symbols[0] != "AAPL" || b.Symbols[2] != "MSFT" {
		t.Errorf("Symbols misaligned: %v", b.Symbols)
	}
}
