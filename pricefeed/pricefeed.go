package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PriceFeed supplies external spot prices for "BASE/QUOTE" markets.
type PriceFeed interface {
	GetSpot(ctx context.Context, market string) (float64, error)
}

// coinGeckoIDs maps our markets to CoinGecko asset ids.
var coinGeckoIDs = map[string]string{
	"BTC/USD": "bitcoin",
	"ETH/USD": "ethereum",
	"SOL/USD": "solana",
}

// CoinGeckoFeed implements PriceFeed against the public CoinGecko API.
type CoinGeckoFeed struct {
	client  *http.Client
	baseURL string
}

func NewCoinGeckoFeed() *CoinGeckoFeed {
	return NewCoinGeckoFeedWithURL("https://api.coingecko.com/api/v3")
}

// NewCoinGeckoFeedWithURL points the feed at a different endpoint, used by
// tests and API proxies.
func NewCoinGeckoFeedWithURL(baseURL string) *CoinGeckoFeed {
	return &CoinGeckoFeed{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: baseURL,
	}
}

type spotResponse map[string]struct {
	USD float64 `json:"usd"`
}

// GetSpot returns the USD spot price for a market like "BTC/USD".
func (f *CoinGeckoFeed) GetSpot(ctx context.Context, market string) (float64, error) {
	id, ok := coinGeckoIDs[market]
	if !ok {
		return 0, fmt.Errorf("unsupported market: %s", market)
	}

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", f.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("coingecko: unexpected status %d", resp.StatusCode)
	}

	var body spotResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}

	entry, ok := body[id]
	if !ok {
		return 0, fmt.Errorf("coingecko: no price for %s", id)
	}
	return entry.USD, nil
}
