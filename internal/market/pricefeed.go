package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gridline/internal/httpx"
)

const defaultPriceURL = "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd"

// PriceFeed fetches the ETH/USD spot price from CoinGecko.
type PriceFeed struct {
	url        string
	httpClient *http.Client
	retry      httpx.RetryConfig
	log        zerolog.Logger
}

func NewPriceFeed(log zerolog.Logger) *PriceFeed {
	return &PriceFeed{
		url:        defaultPriceURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("component", "pricefeed").Logger(),
		retry: httpx.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
		},
	}
}

// NewPriceFeedURL is used by tests to point the feed at a stub server.
func NewPriceFeedURL(url string) *PriceFeed {
	f := NewPriceFeed(zerolog.Nop())
	f.url = url
	f.retry = httpx.RetryConfig{MaxAttempts: 1}
	return f
}

// Fetch returns the current spot price. Failures wrap ErrPriceUnavailable.
func (f *PriceFeed) Fetch(ctx context.Context) (decimal.Decimal, error) {
	resp, err := httpx.Do(ctx, f.httpClient, f.retry, f.log, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: status %d", ErrPriceUnavailable, resp.StatusCode)
	}

	// Decode the price as json.Number so no float64 rounding sneaks in.
	var data struct {
		Ethereum struct {
			USD json.Number `json:"usd"`
		} `json:"ethereum"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode: %v", ErrPriceUnavailable, err)
	}

	price, err := decimal.NewFromString(data.Ethereum.USD.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad price %q", ErrPriceUnavailable, data.Ethereum.USD)
	}
	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s", ErrPriceUnavailable, price)
	}
	return price, nil
}
