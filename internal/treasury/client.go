package treasury

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jwaldner/marlin/internal/logger"
)

// TreasuryClient fetches the average Treasury Bill rate from the fiscaldata
// API as the risk-free rate for calibration. Fetches are cached for an hour;
// when the API is unreachable the last known rate (or the configured
// fallback) is used instead, because a slightly stale rate beats no
// calibration at all.
type TreasuryClient struct {
	httpClient    *http.Client
	baseURL       string
	fallbackRate  float64
	lastKnownRate float64
	lastFetchTime time.Time
}

const cacheTTL = time.Hour

type treasuryResponse struct {
	Data []treasuryRate `json:"data"`
}

type treasuryRate struct {
	RecordDate            string `json:"record_date"`
	AvgInterestRateAmount string `json:"avg_interest_rate_amt"`
}

// NewTreasuryClient creates a rate client with the given fallback rate.
func NewTreasuryClient(fallbackRate float64) *TreasuryClient {
	return &TreasuryClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:       "https://api.fiscaldata.treasury.gov/services/api/fiscal_service",
		fallbackRate:  fallbackRate,
		lastKnownRate: fallbackRate,
	}
}

// fetchRiskFreeRate does the actual API call (internal method)
func (tc *TreasuryClient) fetchRiskFreeRate() (float64, error) {
	url := fmt.Sprintf("%s/v2/accounting/od/avg_interest_rates?fields=avg_interest_rate_amt,record_date&filter=security_desc:eq:Treasury%%20Bills&sort=-record_date&page[size]=1", tc.baseURL)

	resp, err := tc.httpClient.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch Treasury rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("Treasury API returned status %d", resp.StatusCode)
	}

	var treasuryResp treasuryResponse
	if err := json.NewDecoder(resp.Body).Decode(&treasuryResp); err != nil {
		return 0, fmt.Errorf("failed to decode Treasury response: %w", err)
	}

	if len(treasuryResp.Data) == 0 {
		return 0, fmt.Errorf("no Treasury rate data returned")
	}

	// Convert percentage string to decimal (e.g., "3.983" -> 0.03983)
	rateStr := treasuryResp.Data[0].AvgInterestRateAmount
	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse rate %s: %w", rateStr, err)
	}

	return rate / 100.0, nil
}

// RiskFreeRate returns the current risk-free rate, fetching at most once per
// hour and falling back to the last known rate when the API is unavailable.
func (tc *TreasuryClient) RiskFreeRate() float64 {
	if !tc.lastFetchTime.IsZero() && time.Since(tc.lastFetchTime) < cacheTTL {
		return tc.lastKnownRate
	}

	rate, err := tc.fetchRiskFreeRate()
	if err != nil {
		logger.Warn.Printf("⚠️ Treasury API failed, using last known rate %.6f: %v", tc.lastKnownRate, err)
		return tc.lastKnownRate
	}

	tc.lastKnownRate = rate
	tc.lastFetchTime = time.Now()
	logger.Info.Printf("🏛️ Fetched Treasury Bill rate: %.3f%% (%.6f decimal)", rate*100, rate)

	return rate
}

// CacheInfo returns the cached rate, its age, and whether a fetch has ever
// succeeded.
func (tc *TreasuryClient) CacheInfo() (rate float64, age time.Duration, fetched bool) {
	if tc.lastFetchTime.IsZero() {
		return tc.lastKnownRate, 0, false
	}
	return tc.lastKnownRate, time.Since(tc.lastFetchTime), true
}
