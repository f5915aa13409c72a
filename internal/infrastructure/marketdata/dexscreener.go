package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
	"solcycle/internal/infrastructure/ratelimit"
	"solcycle/internal/pkg/retry"
)

const (
	defaultSearchURL = "https://api.dexscreener.com/latest/dex/search"

	searchAttempts = 3
	searchBackoff  = 2 * time.Second
)

// Client wraps the dexscreener search endpoint.
type Client struct {
	httpClient *http.Client
	searchURL  string
	pacer      *ratelimit.Pacer
	backoff    time.Duration
}

func New(searchURL string, pacer *ratelimit.Pacer) *Client {
	if searchURL == "" {
		searchURL = defaultSearchURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		searchURL:  searchURL,
		pacer:      pacer,
		backoff:    searchBackoff,
	}
}

type searchResponse struct {
	Pairs []pairJSON `json:"pairs"`
}

type pairJSON struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"quoteToken"`
	PriceNative string `json:"priceNative"`
	PriceUsd    string `json:"priceUsd"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	FDV           float64 `json:"fdv"`
	PairCreatedAt int64   `json:"pairCreatedAt"`
}

func (c *Client) SearchPairs(ctx context.Context, query string) ([]model.Pair, error) {
	var sr searchResponse
	err := retry.Do(ctx, searchAttempts, retry.Constant(c.backoff), func(int) error {
		if err := c.pacer.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.searchURL+"?q="+url.QueryEscape(query), nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("search request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("search read: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("search http %d", resp.StatusCode)
			// A rejected request stays rejected; only server-side
			// failures are worth another pull.
			if resp.StatusCode < http.StatusInternalServerError {
				return retry.Permanent(err)
			}
			return err
		}
		if err := json.Unmarshal(body, &sr); err != nil {
			return retry.Permanent(fmt.Errorf("search decode: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pairs := make([]model.Pair, 0, len(sr.Pairs))
	for _, p := range sr.Pairs {
		priceNative, _ := strconv.ParseFloat(p.PriceNative, 64)
		priceUSD, _ := strconv.ParseFloat(p.PriceUsd, 64)
		pairs = append(pairs, model.Pair{
			ChainID:       p.ChainID,
			DexID:         p.DexID,
			PairAddress:   p.PairAddress,
			BaseMint:      p.BaseToken.Address,
			BaseSymbol:    p.BaseToken.Symbol,
			QuoteMint:     p.QuoteToken.Address,
			PriceNative:   priceNative,
			PriceUsd:      priceUSD,
			LiquidityUSD:  p.Liquidity.USD,
			Volume24h:     p.Volume.H24,
			FDV:           p.FDV,
			PairCreatedAt: p.PairCreatedAt,
		})
	}
	return pairs, nil
}

var _ port.MarketData = (*Client)(nil)
