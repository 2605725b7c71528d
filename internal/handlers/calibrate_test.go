package handlers

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jwaldner/marlin/internal/config"
	"github.com/jwaldner/marlin/internal/logger"
	"github.com/jwaldner/marlin/internal/models"
	"github.com/jwaldner/marlin/internal/utils"
	marlin "github.com/jwaldner/marlin/marlin_lib"
)

func newTestHandler(t *testing.T) *CalibrateHandler {
	t.Helper()
	if err := logger.InitWithConfig("error", filepath.Join(t.TempDir(), "test.log")); err != nil {
		t.Fatalf("logger init failed: %v", err)
	}
	cfg := &config.Config{}
	return NewCalibrateHandler(marlin.NewMarlinEngineWithWorkers(1), cfg, nil)
}

func TestCalibrateAPIRecoversKnownVol(t *testing.T) {
	h := newTestHandler(t)

	// Market prices generated at sigma = 0.25.
	trueVol := 0.25
	contracts := []models.ContractInput{
		{Symbol: "AAPL240621C100", Underlying: 100, Strike: 100, TimeToExp: 0.5, Rate: 0.05, OptionType: "call"},
		{Symbol: "AAPL240621P95", Underlying: 100, Strike: 95, TimeToExp: 0.5, Rate: 0.05, OptionType: "put"},
	}
	contracts[0].MarketPrice = marlin.Price(100, 100, 0.5, 0.05, trueVol, true)
	contracts[1].MarketPrice = marlin.Price(100, 95, 0.5, 0.05, trueVol, false)

	body, _ := json.Marshal(models.CalibrationRequest{Contracts: contracts})
	req := httptest.NewRequest(http.MethodPost, "/api/calibrate", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.CalibrateAPIHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.CalibrationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if !resp.Success {
		t.Fatal("Expected success=true")
	}
	if len(resp.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(resp.Results))
	}
	for i, res := range resp.Results {
		if !res.Converged {
			t.Errorf("Contract %d did not converge", i)
		}
		if math.Abs(res.ImpliedVol-trueVol) > 1e-3 {
			t.Errorf("Contract %d: implied vol %.6f, want %.2f", i, res.ImpliedVol, trueVol)
		}
	}
	if resp.Meta.Converged != 2 || resp.Meta.Contracts != 2 {
		t.Errorf("Meta mismatch: %+v", resp.Meta)
	}
	if resp.Meta.Optimizer != "adam" {
		t.Errorf("Expected default optimizer adam, got %q", resp.Meta.Optimizer)
	}
}

func TestCalibrateAPIRejectsBadInput(t *testing.T) {
	h := newTestHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty contracts", `{"contracts":[]}`},
		{"bad json", `{"contracts":`},
		{"bad option type", `{"contracts":[{"underlying":100,"strike":100,"time_to_expiration":0.5,"rate":0.05,"market_price":5,"option_type":"straddle"}]}`},
		{"zero strike", `{"contracts":[{"underlying":100,"strike":0,"time_to_expiration":0.5,"rate":0.05,"market_price":5,"option_type":"call"}]}`},
		{"unknown optimizer", `{"contracts":[{"underlying":100,"strike":100,"time_to_expiration":0.5,"rate":0.05,"market_price":5,"option_type":"call"}],"solver":{"optimizer":"sgd"}}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/calibrate", bytes.NewBufferString(tc.body))
		rr := httptest.NewRecorder()
		h.CalibrateAPIHandler(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, rr.Code)
		}
	}
}

func TestCalibrateAPIMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/calibrate", nil)
	rr := httptest.NewRecorder()
	h.CalibrateAPIHandler(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rr.Code)
	}
}

func TestPriceAPIReturnsGreeks(t *testing.T) {
	h := newTestHandler(t)

	body := `{"contracts":[{"symbol":"SPY","underlying":100,"strike":100,"time_to_expiration":1.0,"rate":0.05,"sigma":0.2,"option_type":"call"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/price", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	h.PriceAPIHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.PriceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(resp.Results))
	}
	res := resp.Results[0]
	want := marlin.Price(100, 100, 1.0, 0.05, 0.2, true)
	if math.Abs(res.Price-want) > 1e-9 {
		t.Errorf("Price %.6f, want %.6f", res.Price, want)
	}
	if res.Delta <= 0 || res.Delta >= 1 {
		t.Errorf("Call delta %.4f out of (0,1)", res.Delta)
	}
	if res.Vega <= 0 {
		t.Errorf("Vega %.4f should be positive", res.Vega)
	}
}

func TestPriceAPIDefaultsToNextMonthlyExpiration(t *testing.T) {
	h := newTestHandler(t)

	body := `{"contracts":[{"underlying":100,"strike":100,"rate":0.05,"sigma":0.2,"option_type":"call"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/price", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	h.PriceAPIHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.PriceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}

	exp, err := time.Parse("2006-01-02", utils.NextMonthlyExpiration())
	if err != nil {
		t.Fatalf("Bad default expiration date: %v", err)
	}
	wantT := utils.YearsToExpiration(time.Now(), exp)
	want := marlin.Price(100, 100, wantT, 0.05, 0.2, true)
	if math.Abs(resp.Results[0].Price-want) > 1e-4 {
		t.Errorf("Price %.6f, want %.6f at the next monthly expiration (T=%.4f)", resp.Results[0].Price, want, wantT)
	}
}

func TestPriceAPIRejectsNonPositiveSigma(t *testing.T) {
	h := newTestHandler(t)
	body := `{"contracts":[{"underlying":100,"strike":100,"time_to_expiration":1.0,"rate":0.05,"sigma":0,"option_type":"call"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/price", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	h.PriceAPIHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	h.HealthHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var resp models.HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if resp.Status != "ok" || resp.Workers != 1 {
		t.Errorf("Unexpected health payload: %+v", resp)
	}
}
