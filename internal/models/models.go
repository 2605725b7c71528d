package models

// ContractInput represents one option contract in an API request
type ContractInput struct {
	Symbol      string  `json:"symbol,omitempty"`
	Underlying  float64 `json:"underlying"`
	Strike      float64 `json:"strike"`
	TimeToExp   float64 `json:"time_to_expiration"` // years
	Rate        float64 `json:"rate"`
	MarketPrice float64 `json:"market_price"`
	OptionType  string  `json:"option_type"` // "call" or "put"
}

// SolverOptions represents per-request solver overrides. Zero values fall
// back to the server's configured defaults.
type SolverOptions struct {
	InitialSigma         float64 `json:"initial_sigma,omitempty"`
	LearningRate         float64 `json:"learning_rate,omitempty"`
	MaxIterations        int     `json:"max_iterations,omitempty"`
	ConvergenceThreshold float64 `json:"convergence_threshold,omitempty"`
	CheckEvery           int     `json:"check_every,omitempty"`
	Optimizer            string  `json:"optimizer,omitempty"`
}

// CalibrationRequest represents a request to solve implied vols for a batch
type CalibrationRequest struct {
	Contracts []ContractInput `json:"contracts"`
	Solver    SolverOptions   `json:"solver,omitempty"`
}

// ContractResult represents the solved vol for one contract
type ContractResult struct {
	Symbol       string  `json:"symbol,omitempty"`
	ImpliedVol   float64 `json:"implied_volatility"`
	Converged    bool    `json:"converged"`
	Iterations   int     `json:"iterations"`
	ModelPrice   float64 `json:"model_price"`
	PricingError float64 `json:"pricing_error"`
}

// CalibrationResponse represents the complete calibration API response
type CalibrationResponse struct {
	Success bool             `json:"success"`
	Results []ContractResult `json:"results"`
	Meta    ResponseMetadata `json:"meta"`
}

// ResponseMetadata carries run-level stats alongside the per-contract results
type ResponseMetadata struct {
	Contracts      int     `json:"contracts"`
	Converged      int     `json:"converged"`
	ConvergedPct   float64 `json:"converged_pct"`
	MAE            float64 `json:"mae"`
	IterationsRun  int     `json:"iterations_run"`
	StopReason     string  `json:"stop_reason"`
	Optimizer      string  `json:"optimizer"`
	ProcessingTime float64 `json:"processing_time"` // seconds
	Timestamp      string  `json:"timestamp"`
}

// PriceRequest represents a request to price contracts at given vols
type PriceRequest struct {
	Contracts []PriceInput `json:"contracts"`
}

// PriceInput is a contract plus the volatility to price it at
type PriceInput struct {
	Symbol     string  `json:"symbol,omitempty"`
	Underlying float64 `json:"underlying"`
	Strike     float64 `json:"strike"`
	TimeToExp  float64 `json:"time_to_expiration"` // years; omitted means the next monthly expiration
	Rate       float64 `json:"rate"`
	Sigma      float64 `json:"sigma"`
	OptionType string  `json:"option_type"`
}

// PriceResult represents the model price and Greeks for one contract
type PriceResult struct {
	Symbol string  `json:"symbol,omitempty"`
	Price  float64 `json:"price"`
	Delta  float64 `json:"delta"`
	Gamma  float64 `json:"gamma"`
	Theta  float64 `json:"theta"`
	Vega   float64 `json:"vega"`
	Rho    float64 `json:"rho"`
}

// PriceResponse represents the complete pricing API response
type PriceResponse struct {
	Success bool          `json:"success"`
	Results []PriceResult `json:"results"`
}

// HealthResponse represents the health check payload
type HealthResponse struct {
	Status    string `json:"status"`
	Engine    string `json:"engine"`
	Workers   int    `json:"workers"`
	Optimizer string `json:"optimizer"`
	Timestamp string `json:"timestamp"`
}
