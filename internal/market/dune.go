package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gridline/internal/httpx"
)

// DuneClient runs the support/resistance query against Dune Analytics and
// caches the result for the configured refresh window.
type DuneClient struct {
	apiKey       string
	baseURL      string
	method       string // "simple" or "percentile"
	lookbackDays int
	httpClient   *http.Client
	retry        httpx.RetryConfig
	log          zerolog.Logger

	mu        sync.Mutex
	cached    *Signal
	lastFetch time.Time
	cacheTTL  time.Duration
}

type DuneOptions struct {
	Method       string
	LookbackDays int
	RefreshHours int
}

func NewDuneClient(apiKey string, opts DuneOptions, log zerolog.Logger) *DuneClient {
	method := opts.Method
	if method == "" {
		method = "simple"
	}
	lookback := opts.LookbackDays
	if lookback <= 0 {
		lookback = 14
	}
	refreshHours := opts.RefreshHours
	if refreshHours <= 0 {
		refreshHours = 48
	}

	return &DuneClient{
		apiKey:       apiKey,
		baseURL:      "https://api.dune.com/api/v1",
		method:       method,
		lookbackDays: lookback,
		httpClient:   &http.Client{Timeout: 90 * time.Second},
		cacheTTL:     time.Duration(refreshHours) * time.Hour,
		log:          log.With().Str("component", "dune").Logger(),
		retry: httpx.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   3 * time.Second,
			MaxDelay:    15 * time.Second,
		},
	}
}

// Fetch returns the current S/R signal, serving from cache inside the TTL
// unless forceRefresh is set. Failures wrap ErrSignalUnavailable.
func (d *DuneClient) Fetch(ctx context.Context, forceRefresh bool) (*Signal, error) {
	d.mu.Lock()
	if !forceRefresh && d.cached != nil && time.Since(d.lastFetch) < d.cacheTTL {
		cached := *d.cached
		age := time.Since(d.lastFetch)
		d.mu.Unlock()
		d.log.Debug().Float64("age_min", age.Minutes()).Msg("using cached S/R data")
		return &cached, nil
	}
	d.mu.Unlock()

	rows, err := d.executeQuery(ctx, d.buildQuery())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignalUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: query returned no rows", ErrSignalUnavailable)
	}

	row := rows[0]
	support, sOK := rowDecimal(row, "support")
	resistance, rOK := rowDecimal(row, "resistance")
	midpoint, mOK := rowDecimal(row, "midpoint")
	avg, _ := rowDecimal(row, "avg_price")
	if !sOK || !rOK || !mOK {
		return nil, fmt.Errorf("%w: malformed row", ErrSignalUnavailable)
	}
	if support.GreaterThanOrEqual(resistance) {
		return nil, fmt.Errorf("%w: support %s >= resistance %s",
			ErrSignalUnavailable, support.StringFixed(2), resistance.StringFixed(2))
	}

	sig := &Signal{
		Support:      support,
		Resistance:   resistance,
		Midpoint:     midpoint,
		AvgPrice:     avg,
		Method:       d.method,
		LookbackDays: d.lookbackDays,
		FetchedAt:    time.Now(),
	}

	d.mu.Lock()
	d.cached = sig
	d.lastFetch = sig.FetchedAt
	d.mu.Unlock()

	d.log.Info().
		Str("support", support.StringFixed(2)).
		Str("resistance", resistance.StringFixed(2)).
		Str("midpoint", midpoint.StringFixed(2)).
		Str("method", d.method).
		Int("lookback_days", d.lookbackDays).
		Msg("S/R fetched")

	return sig, nil
}

// SeedCache warms the in-memory cache from a previously persisted signal
// (loaded from the database at boot). Entries past the TTL are ignored.
func (d *DuneClient) SeedCache(sig *Signal) {
	if sig == nil {
		return
	}
	age := time.Since(sig.FetchedAt)
	if age >= d.cacheTTL {
		d.log.Debug().Float64("age_hours", age.Hours()).Msg("stored S/R too old, not seeding cache")
		return
	}

	d.mu.Lock()
	d.cached = sig
	d.lastFetch = sig.FetchedAt
	d.mu.Unlock()
	d.log.Info().Str("midpoint", sig.Midpoint.StringFixed(2)).
		Float64("age_min", age.Minutes()).Msg("S/R cache seeded from store")
}

func (d *DuneClient) buildQuery() string {
	if d.method == "percentile" {
		return fmt.Sprintf(`
			SELECT
				approx_percentile(price, 0.05) as support,
				approx_percentile(price, 0.95) as resistance,
				approx_percentile(price, 0.50) as midpoint,
				AVG(price) as avg_price
			FROM prices.usd
			WHERE symbol = 'WETH'
				AND blockchain = 'ethereum'
				AND minute > now() - interval '%d' day
		`, d.lookbackDays)
	}

	return fmt.Sprintf(`
		SELECT
			MIN(price) as support,
			MAX(price) as resistance,
			(MIN(price) + MAX(price)) / 2 as midpoint,
			AVG(price) as avg_price
		FROM prices.usd
		WHERE symbol = 'WETH'
			AND blockchain = 'ethereum'
			AND minute > now() - interval '%d' day
	`, d.lookbackDays)
}

func (d *DuneClient) executeQuery(ctx context.Context, sql string) ([]map[string]any, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("dune API key not configured")
	}

	body, _ := json.Marshal(map[string]string{
		"sql":         sql,
		"performance": "medium",
	})

	resp, err := httpx.Do(ctx, d.httpClient, d.retry, d.log, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/sql/execute", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Dune-API-Key", d.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query execution failed: status %d", resp.StatusCode)
	}

	var exec struct {
		ExecutionID string `json:"execution_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&exec); err != nil {
		return nil, fmt.Errorf("decode execution response: %w", err)
	}
	if exec.ExecutionID == "" {
		return nil, fmt.Errorf("no execution ID returned")
	}

	d.log.Debug().Str("execution_id", exec.ExecutionID).Msg("query submitted")

	const maxAttempts = 30
	const pollInterval = 2 * time.Second

	for attempt := range maxAttempts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}

		statusReq, _ := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/execution/%s/status", d.baseURL, exec.ExecutionID), nil)
		statusReq.Header.Set("X-Dune-API-Key", d.apiKey)

		statusResp, err := d.httpClient.Do(statusReq)
		if err != nil {
			d.log.Warn().Int("attempt", attempt+1).Err(err).Msg("status check failed, retrying")
			continue
		}

		var status struct {
			State string `json:"state"`
			Error string `json:"error"`
		}
		json.NewDecoder(statusResp.Body).Decode(&status)
		statusResp.Body.Close()

		switch status.State {
		case "QUERY_STATE_COMPLETED", "completed":
			return d.fetchResults(ctx, exec.ExecutionID)
		case "QUERY_STATE_FAILED", "failed":
			msg := status.Error
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("query failed: %s", msg)
		default:
			d.log.Debug().Str("state", status.State).Msg("query pending")
		}
	}

	return nil, fmt.Errorf("query timed out after %d seconds", maxAttempts*int(pollInterval.Seconds()))
}

func (d *DuneClient) fetchResults(ctx context.Context, executionID string) ([]map[string]any, error) {
	resp, err := httpx.Do(ctx, d.httpClient, d.retry, d.log, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/execution/%s/results", d.baseURL, executionID), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Dune-API-Key", d.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch results: status %d", resp.StatusCode)
	}

	var data struct {
		Result struct {
			Rows []map[string]any `json:"rows"`
		} `json:"result"`
		Rows []map[string]any `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}

	rows := data.Result.Rows
	if rows == nil {
		rows = data.Rows
	}
	return rows, nil
}

// rowDecimal extracts a numeric column from a Dune result row.
func rowDecimal(row map[string]any, key string) (decimal.Decimal, bool) {
	v, ok := row[key]
	if !ok || v == nil {
		return decimal.Zero, false
	}
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}
