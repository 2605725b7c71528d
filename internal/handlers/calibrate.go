package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jwaldner/marlin/internal/config"
	"github.com/jwaldner/marlin/internal/logger"
	"github.com/jwaldner/marlin/internal/metrics"
	"github.com/jwaldner/marlin/internal/models"
	"github.com/jwaldner/marlin/internal/runlog"
	"github.com/jwaldner/marlin/internal/utils"
	marlin "github.com/jwaldner/marlin/marlin_lib"
)

// CalibrateHandler serves the calibration and pricing API
type CalibrateHandler struct {
	engine    *marlin.MarlinEngine
	config    *config.Config
	runLogger *runlog.RunLogger
}

// NewCalibrateHandler creates the handler. runLogger may be nil when run
// logging is disabled.
func NewCalibrateHandler(engine *marlin.MarlinEngine, cfg *config.Config, rl *runlog.RunLogger) *CalibrateHandler {
	return &CalibrateHandler{
		engine:    engine,
		config:    cfg,
		runLogger: rl,
	}
}

// batchFromContracts converts the request payload into an engine batch.
func batchFromContracts(contracts []models.ContractInput) (*marlin.Batch, error) {
	n := len(contracts)
	b := &marlin.Batch{
		Underlying:  make([]float64, n),
		Strike:      make([]float64, n),
		TimeToExp:   make([]float64, n),
		Rate:        make([]float64, n),
		MarketPrice: make([]float64, n),
		IsCall:      make([]bool, n),
		Symbols:     make([]string, n),
	}
	for i, c := range contracts {
		b.Underlying[i] = c.Underlying
		b.Strike[i] = c.Strike
		b.TimeToExp[i] = c.TimeToExp
		b.Rate[i] = c.Rate
		b.MarketPrice[i] = c.MarketPrice
		b.Symbols[i] = c.Symbol
		switch strings.ToLower(c.OptionType) {
		case "call", "c":
			b.IsCall[i] = true
		case "put", "p":
			b.IsCall[i] = false
		default:
			return nil, fmt.Errorf("contract %d: unknown option_type %q", i, c.OptionType)
		}
	}
	return b, nil
}

// solverConfig merges per-request overrides onto the server defaults.
func (h *CalibrateHandler) solverConfig(opts models.SolverOptions) marlin.SolverConfig {
	cfg := h.config.Solver
	if opts.InitialSigma != 0 {
		cfg.InitialSigma = opts.InitialSigma
	}
	if opts.LearningRate != 0 {
		cfg.LearningRate = opts.LearningRate
	}
	if opts.MaxIterations != 0 {
		cfg.MaxIterations = opts.MaxIterations
	}
	if opts.ConvergenceThreshold != 0 {
		cfg.ConvergenceThreshold = opts.ConvergenceThreshold
	}
	if opts.CheckEvery != 0 {
		cfg.CheckEvery = opts.CheckEvery
	}
	if opts.Optimizer != "" {
		cfg.Optimizer = opts.Optimizer
	}
	if cfg.Optimizer == "" {
		cfg.Optimizer = marlin.OptimizerAdam
	}
	return cfg
}

// CalibrateAPIHandler solves implied volatilities for a batch of contracts.
func (h *CalibrateHandler) CalibrateAPIHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.CalibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Contracts) == 0 {
		http.Error(w, "contracts must not be empty", http.StatusBadRequest)
		return
	}

	batch, err := batchFromContracts(req.Contracts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg := h.solverConfig(req.Solver)
	logger.Debug.Printf("🎯 CALIBRATE: %d contracts, optimizer=%s, lr=%g",
		batch.Len(), cfg.Optimizer, cfg.LearningRate)

	startTime := time.Now()
	result, err := h.engine.Calibrate(r.Context(), batch, cfg)
	if err != nil {
		logger.Error.Printf("❌ Calibration failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	elapsed := time.Since(startTime)

	converged := result.ConvergedCount()
	logger.Info.Printf("✅ CALIBRATE: %d/%d converged in %d rounds (%.1fms, %s)",
		converged, batch.Len(), result.IterationsRun,
		float64(elapsed.Microseconds())/1000.0, result.StopReason)

	metrics.ObserveRun(string(result.StopReason), batch.Len(), converged,
		result.IterationsRun, elapsed.Seconds())

	if h.runLogger != nil {
		if err := h.runLogger.Record(runlog.RunRecord{
			Timestamp:     startTime,
			Source:        "api",
			Contracts:     batch.Len(),
			Converged:     converged,
			MAE:           result.MAE,
			IterationsRun: result.IterationsRun,
			StopReason:    string(result.StopReason),
			Optimizer:     cfg.Optimizer,
			ElapsedMs:     float64(elapsed.Microseconds()) / 1000.0,
		}); err != nil {
			logger.Warn.Printf("⚠️ Failed to record run: %v", err)
		}
	}

	results := make([]models.ContractResult, batch.Len())
	for i := range results {
		results[i] = models.ContractResult{
			Symbol:       batch.Symbol(i),
			ImpliedVol:   result.Sigma[i],
			Converged:    result.Converged[i],
			Iterations:   result.Iterations[i],
			ModelPrice:   result.FinalPrices[i],
			PricingError: result.PricingErrors[i],
		}
	}

	resp := models.CalibrationResponse{
		Success: true,
		Results: results,
		Meta: models.ResponseMetadata{
			Contracts:      batch.Len(),
			Converged:      converged,
			ConvergedPct:   result.ConvergenceRate() * 100.0,
			MAE:            result.MAE,
			IterationsRun:  result.IterationsRun,
			StopReason:     string(result.StopReason),
			Optimizer:      cfg.Optimizer,
			ProcessingTime: elapsed.Seconds(),
			Timestamp:      startTime.UTC().Format(time.RFC3339),
		},
	}
	json.NewEncoder(w).Encode(resp)
}

// PriceAPIHandler prices contracts at caller-supplied volatilities and
// returns the Greeks alongside.
func (h *CalibrateHandler) PriceAPIHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Contracts) == 0 {
		http.Error(w, "contracts must not be empty", http.StatusBadRequest)
		return
	}

	n := len(req.Contracts)
	batch := &marlin.Batch{
		Underlying:  make([]float64, n),
		Strike:      make([]float64, n),
		TimeToExp:   make([]float64, n),
		Rate:        make([]float64, n),
		MarketPrice: make([]float64, n),
		IsCall:      make([]bool, n),
		Symbols:     make([]string, n),
	}
	// Contracts without an explicit time to expiration price against the
	// next standard monthly expiration (third Friday).
	defaultT := 0.0
	sigma := make([]float64, n)
	for i, c := range req.Contracts {
		batch.Underlying[i] = c.Underlying
		batch.Strike[i] = c.Strike
		batch.TimeToExp[i] = c.TimeToExp
		if c.TimeToExp == 0 {
			if defaultT == 0 {
				exp, err := time.Parse("2006-01-02", utils.NextMonthlyExpiration())
				if err != nil {
					http.Error(w, "Failed to resolve default expiration", http.StatusInternalServerError)
					return
				}
				defaultT = utils.YearsToExpiration(time.Now(), exp)
			}
			batch.TimeToExp[i] = defaultT
		}
		batch.Rate[i] = c.Rate
		batch.MarketPrice[i] = 1 // unused for pricing, keeps Validate happy
		batch.Symbols[i] = c.Symbol
		sigma[i] = c.Sigma
		switch strings.ToLower(c.OptionType) {
		case "call", "c":
			batch.IsCall[i] = true
		case "put", "p":
			batch.IsCall[i] = false
		default:
			http.Error(w, fmt.Sprintf("contract %d: unknown option_type %q", i, c.OptionType), http.StatusBadRequest)
			return
		}
		if c.Sigma <= 0 {
			http.Error(w, fmt.Sprintf("contract %d: sigma must be positive", i), http.StatusBadRequest)
			return
		}
	}
	if err := batch.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	prices := h.engine.PriceBatch(batch, sigma)
	greeks := h.engine.GreeksBatch(batch, sigma)

	results := make([]models.PriceResult, n)
	for i := range results {
		results[i] = models.PriceResult{
			Symbol: batch.Symbol(i),
			Price:  prices[i],
			Delta:  greeks[i].Delta,
			Gamma:  greeks[i].Gamma,
			Theta:  greeks[i].Theta,
			Vega:   greeks[i].Vega,
			Rho:    greeks[i].Rho,
		}
	}

	json.NewEncoder(w).Encode(models.PriceResponse{Success: true, Results: results})
}

// HealthHandler reports server liveness and engine configuration.
func (h *CalibrateHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	optimizer := h.config.Solver.Optimizer
	if optimizer == "" {
		optimizer = marlin.OptimizerAdam
	}
	json.NewEncoder(w).Encode(models.HealthResponse{
		Status:    "ok",
		Engine:    "marlin",
		Workers:   h.engine.Workers(),
		Optimizer: optimizer,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
