package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwaldner/marlin/internal/config"
	"github.com/jwaldner/marlin/internal/dataset"
	"github.com/jwaldner/marlin/internal/logger"
	"github.com/jwaldner/marlin/internal/report"
	"github.com/jwaldner/marlin/internal/runlog"
	"github.com/jwaldner/marlin/internal/treasury"
	marlin "github.com/jwaldner/marlin/marlin_lib"
)

func main() {
	inputPath := flag.String("input", "", "options chain CSV (required)")
	outputPath := flag.String("output", "", "write per-contract results CSV here (optional)")
	rate := flag.Float64("rate", 0, "risk-free rate override; 0 uses config or treasury")
	optimizer := flag.String("optimizer", "", "adam or adabelief; empty uses config")
	maxIter := flag.Int("max-iterations", 0, "gradient descent round cap; 0 uses config")
	learningRate := flag.Float64("lr", 0, "Adam learning rate; 0 uses config")
	workers := flag.Int("workers", 0, "engine workers; 0 uses config/NumCPU")
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	if err := logger.InitWithConfig(cfg.Logging.LogLevel, cfg.Logging.LogFile); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logger.Always.Printf("🚀 Marlin calibration run - input: %s", *inputPath)

	rows, err := dataset.LoadCSV(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *inputPath, err)
	}

	riskFreeRate := cfg.Data.RiskFreeRate
	switch {
	case *rate != 0:
		riskFreeRate = *rate
		logger.Info.Printf("💰 Risk-free rate %.4f (flag override)", riskFreeRate)
	case cfg.Data.UseTreasury:
		tc := treasury.NewTreasuryClient(cfg.Data.RiskFreeRate)
		riskFreeRate = tc.RiskFreeRate()
		logger.Info.Printf("💰 Risk-free rate %.4f (treasury)", riskFreeRate)
	default:
		logger.Info.Printf("💰 Risk-free rate %.4f (config)", riskFreeRate)
	}

	ds := dataset.Prepare(rows, riskFreeRate, cfg.Data.MaxYearsToExp)
	fmt.Printf("📂 Loaded %d rows, kept %d contracts (%d dropped by filters)\n",
		ds.Loaded, ds.Batch.Len(), ds.Dropped)
	if ds.Batch.Len() == 0 {
		log.Fatal("No contracts survived the data filters")
	}

	solver := cfg.Solver
	if *optimizer != "" {
		solver.Optimizer = *optimizer
	}
	if solver.Optimizer == "" {
		solver.Optimizer = marlin.OptimizerAdam
	}
	if *maxIter > 0 {
		solver.MaxIterations = *maxIter
	}
	if *learningRate > 0 {
		solver.LearningRate = *learningRate
	}
	solver.OnCheckpoint = func(cp marlin.Checkpoint) {
		logger.Info.Printf("📈 Round %d: %d/%d converged, loss=%.8f",
			cp.Iteration, cp.Converged, cp.Total, cp.Loss)
	}

	var engine *marlin.MarlinEngine
	if *workers > 0 {
		engine = marlin.NewMarlinEngineWithWorkers(*workers)
	} else if cfg.Engine.Workers > 0 {
		engine = marlin.NewMarlinEngineWithWorkers(cfg.Engine.Workers)
	} else {
		engine = marlin.NewMarlinEngine()
	}
	fmt.Printf("🔧 Engine: %d workers\n", engine.Workers())

	// Ctrl-C stops at the next convergence checkpoint with partial results.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	result, err := engine.Calibrate(ctx, ds.Batch, solver)
	if err != nil {
		log.Fatalf("Calibration failed: %v", err)
	}

	stats := report.Compute(ds.Batch, result)
	report.Render(os.Stdout, stats, result)

	if cfg.RunLog.Enabled {
		rl := runlog.NewRunLogger(cfg.RunLog.Dir)
		if err := rl.Record(runlog.RunRecord{
			Timestamp:     startTime,
			Source:        "cli",
			Contracts:     ds.Batch.Len(),
			Converged:     result.ConvergedCount(),
			MAE:           result.MAE,
			IterationsRun: result.IterationsRun,
			StopReason:    string(result.StopReason),
			Optimizer:     solver.Optimizer,
			ElapsedMs:     float64(result.Elapsed.Microseconds()) / 1000.0,
		}); err != nil {
			logger.Warn.Printf("⚠️ Failed to record run: %v", err)
		}
		rl.Close()
	}

	if *outputPath != "" {
		f, err := os.Create(*outputPath)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *outputPath, err)
		}
		defer f.Close()
		if err := dataset.WriteResults(f, ds, result); err != nil {
			log.Fatalf("Failed to write results: %v", err)
		}
		fmt.Printf("💾 Per-contract results written to %s\n", *outputPath)
	}
}
