package runlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jwaldner/marlin/internal/logger"
)

func TestRecordWritesRunFile(t *testing.T) {
	if err := logger.InitWithConfig("error", filepath.Join(t.TempDir(), "test.log")); err != nil {
		t.Fatalf("logger init failed: %v", err)
	}

	dir := t.TempDir()
	rl := NewRunLogger(dir)

	rec := RunRecord{
		Timestamp:     time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC),
		Source:        "cli",
		Contracts:     1500,
		Converged:     1480,
		MAE:           0.012,
		IterationsRun: 730,
		StopReason:    "all_converged",
		Optimizer:     "adam",
		ElapsedMs:     812.5,
	}
	if err := rl.Record(rec); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// The worker owns the write; poll briefly for it to land.
	wantPath := filepath.Join(dir, "2024-06-01_12-30-00_1500contracts.json")
	var data []byte
	var err error
	for i := 0; i < 50; i++ {
		data, err = os.ReadFile(wantPath)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Run file never appeared at %s: %v", wantPath, err)
	}

	var got RunRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Run file is not valid JSON: %v", err)
	}
	if got.Contracts != 1500 || got.Converged != 1480 || got.StopReason != "all_converged" {
		t.Errorf("Run record round-trip mismatch: %+v", got)
	}
}

func TestCloseDrainsQueuedRecords(t *testing.T) {
	if err := logger.InitWithConfig("error", filepath.Join(t.TempDir(), "test.log")); err != nil {
		t.Fatalf("logger init failed: %v", err)
	}

	dir := t.TempDir()
	rl := NewRunLogger(dir)

	for i := 0; i < 5; i++ {
		rec := RunRecord{
			Timestamp: time.Date(2024, 6, 1, 12, 0, i, 0, time.UTC),
			Source:    "cli",
			Contracts: 100 + i,
		}
		if err := rl.Record(rec); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	// Close blocks until the worker has written every queued record, so the
	// files must all exist the moment it returns.
	rl.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("Expected 5 run files after Close, got %d", len(entries))
	}
}
