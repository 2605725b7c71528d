package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jwaldner/marlin/internal/logger"
)

// RunRecord is the durable summary of one calibration run.
type RunRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"` // "api" or "cli"
	Contracts     int       `json:"contracts"`
	Converged     int       `json:"converged"`
	MAE           float64   `json:"mae"`
	IterationsRun int       `json:"iterations_run"`
	StopReason    string    `json:"stop_reason"`
	Optimizer     string    `json:"optimizer"`
	ElapsedMs     float64   `json:"elapsed_ms"`
}

// RunLogger records calibration runs as JSON files. All file operations are
// owned by a single worker goroutine fed through a buffered channel, so
// concurrent API requests never race on the directory.
type RunLogger struct {
	recordChan chan RunRecord
	done       chan struct{}
	dir        string
}

// NewRunLogger starts the run log worker writing into dir.
func NewRunLogger(dir string) *RunLogger {
	rl := &RunLogger{
		recordChan: make(chan RunRecord, 100),
		done:       make(chan struct{}),
		dir:        dir,
	}
	go rl.worker()
	return rl
}

// Close stops accepting records and blocks until the worker has written
// everything already queued. Record must not be called after Close.
func (rl *RunLogger) Close() {
	close(rl.recordChan)
	<-rl.done
}

// Record queues a run record for writing. It never blocks: when the channel
// is full the record is dropped with an error rather than stalling a
// calibration response.
func (rl *RunLogger) Record(rec RunRecord) error {
	select {
	case rl.recordChan <- rec:
		return nil
	default:
		return fmt.Errorf("run log channel full")
	}
}

// worker processes all run records in a single goroutine - OWNS ALL FILE OPERATIONS
func (rl *RunLogger) worker() {
	defer close(rl.done)
	for rec := range rl.recordChan {
		if err := os.MkdirAll(rl.dir, 0755); err != nil {
			logger.Warn.Printf("⚠️ RUNLOG: Failed to create %s: %v", rl.dir, err)
			continue
		}

		name := fmt.Sprintf("%s_%dcontracts.json",
			rec.Timestamp.Format("2006-01-02_15-04-05"), rec.Contracts)
		path := filepath.Join(rl.dir, name)

		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			logger.Warn.Printf("⚠️ RUNLOG: Failed to marshal record: %v", err)
			continue
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			logger.Warn.Printf("⚠️ RUNLOG: Failed to write %s: %v", path, err)
			continue
		}
		logger.Debug.Printf("📝 RUNLOG: Recorded run to %s", path)
	}
}
