// Package marketdata provides a client for a Polygon-compatible market
// data API: previous-close aggregates and reference ticker details
// (market cap, listing metadata). Used to keep company market caps
// current between SEC filings.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/hedge/internal/clientdata"
)

const (
	defaultBaseURL = "https://api.polygon.io"
	maxRetries     = 3
)

// Quote is the previous trading day's aggregate for one ticker.
type Quote struct {
	Ticker    string  `msgpack:"ticker"`
	Close     float64 `msgpack:"close"`
	Open      float64 `msgpack:"open"`
	High      float64 `msgpack:"high"`
	Low       float64 `msgpack:"low"`
	Volume    float64 `msgpack:"volume"`
	Timestamp int64   `msgpack:"timestamp"` // Unix milliseconds
}

// TickerDetails is reference metadata for one ticker.
type TickerDetails struct {
	Ticker            string  `msgpack:"ticker"`
	Name              string  `msgpack:"name"`
	MarketCap         float64 `msgpack:"market_cap"`
	PrimaryExchange   string  `msgpack:"primary_exchange"`
	Active            bool    `msgpack:"active"`
	CIK               string  `msgpack:"cik"`
	SharesOutstanding float64 `msgpack:"shares_outstanding"`
}

// aggsResponse is the wire format of the previous-close endpoint.
type aggsResponse struct {
	Ticker       string `json:"ticker"`
	Status       string `json:"status"`
	ResultsCount int    `json:"resultsCount"`
	Results      []struct {
		Close     float64 `json:"c"`
		Open      float64 `json:"o"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Volume    float64 `json:"v"`
		Timestamp int64   `json:"t"`
	} `json:"results"`
}

// referenceResponse is the wire format of the ticker details endpoint.
type referenceResponse struct {
	Status  string `json:"status"`
	Results struct {
		Ticker            string  `json:"ticker"`
		Name              string  `json:"name"`
		MarketCap         float64 `json:"market_cap"`
		PrimaryExchange   string  `json:"primary_exchange"`
		Active            bool    `json:"active"`
		CIK               string  `json:"cik"`
		SharesOutstanding float64 `json:"weighted_shares_outstanding"`
	} `json:"results"`
}

// Client is the market data API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cacheRepo  *clientdata.Repository
	log        zerolog.Logger
}

// NewClient creates a new market data client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(apiKey string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// Free tier allows 5 requests/minute.
		limiter:   rate.NewLimiter(rate.Every(12*time.Second), 5),
		cacheRepo: cacheRepo,
		log:       log.With().Str("component", "marketdata").Logger(),
	}
}

// GetPreviousClose fetches the previous trading day's aggregate for a
// ticker. Returns (nil, nil) when the ticker has no data. If the API
// fails, returns stale cached data if available.
func (c *Client) GetPreviousClose(ctx context.Context, ticker string) (*Quote, error) {
	upper := strings.ToUpper(strings.TrimSpace(ticker))

	if c.cacheRepo != nil {
		var cached Quote
		found, err := c.cacheRepo.GetIfFresh("market_quotes", upper, &cached)
		if err != nil {
			c.log.Warn().Err(err).Str("ticker", upper).Msg("Quote cache read failed")
		} else if found {
			c.log.Debug().Str("ticker", upper).Msg("Quote cache hit")
			return &cached, nil
		}
	}

	url := fmt.Sprintf("%s/v2/aggs/ticker/%s/prev?adjusted=true&apiKey=%s", c.baseURL, upper, c.apiKey)

	var resp aggsResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		if c.cacheRepo != nil {
			var stale Quote
			found, cacheErr := c.cacheRepo.Get("market_quotes", upper, &stale)
			if cacheErr == nil && found {
				c.log.Warn().Err(err).Str("ticker", upper).Msg("Market data failed, using stale quote")
				return &stale, nil
			}
		}
		return nil, err
	}

	if resp.ResultsCount == 0 || len(resp.Results) == 0 {
		return nil, nil
	}

	result := resp.Results[0]
	quote := &Quote{
		Ticker:    upper,
		Close:     result.Close,
		Open:      result.Open,
		High:      result.High,
		Low:       result.Low,
		Volume:    result.Volume,
		Timestamp: result.Timestamp,
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("market_quotes", upper, quote, clientdata.TTLMarketQuotes); err != nil {
			c.log.Warn().Err(err).Str("ticker", upper).Msg("Failed to cache quote")
		}
	}

	return quote, nil
}

// GetTickerDetails fetches reference metadata (market cap, name) for a
// ticker. If the API fails, returns stale cached data if available.
func (c *Client) GetTickerDetails(ctx context.Context, ticker string) (*TickerDetails, error) {
	upper := strings.ToUpper(strings.TrimSpace(ticker))

	if c.cacheRepo != nil {
		var cached TickerDetails
		found, err := c.cacheRepo.GetIfFresh("market_reference", upper, &cached)
		if err != nil {
			c.log.Warn().Err(err).Str("ticker", upper).Msg("Reference cache read failed")
		} else if found {
			c.log.Debug().Str("ticker", upper).Msg("Reference cache hit")
			return &cached, nil
		}
	}

	url := fmt.Sprintf("%s/v3/reference/tickers/%s?apiKey=%s", c.baseURL, upper, c.apiKey)

	var resp referenceResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		if c.cacheRepo != nil {
			var stale TickerDetails
			found, cacheErr := c.cacheRepo.Get("market_reference", upper, &stale)
			if cacheErr == nil && found {
				c.log.Warn().Err(err).Str("ticker", upper).Msg("Market data failed, using stale reference")
				return &stale, nil
			}
		}
		return nil, err
	}

	details := &TickerDetails{
		Ticker:            resp.Results.Ticker,
		Name:              resp.Results.Name,
		MarketCap:         resp.Results.MarketCap,
		PrimaryExchange:   resp.Results.PrimaryExchange,
		Active:            resp.Results.Active,
		CIK:               resp.Results.CIK,
		SharesOutstanding: resp.Results.SharesOutstanding,
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("market_reference", upper, details, clientdata.TTLMarketReference); err != nil {
			c.log.Warn().Err(err).Str("ticker", upper).Msg("Failed to cache reference")
		}
	}

	return details, nil
}

// getJSON performs a rate-limited GET with retries and decodes the response.
func (c *Client) getJSON(ctx context.Context, requestURL string, dest interface{}) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		body, err := c.doRequest(ctx, requestURL)
		if err != nil {
			lastErr = err
			if attempt < maxRetries-1 {
				waitTime := time.Duration(1<<uint(attempt)) * time.Second // exponential backoff
				c.log.Warn().
					Err(err).
					Int("attempt", attempt+1).
					Dur("wait", waitTime).
					Msg("Market data request failed, retrying")

				timer := time.NewTimer(waitTime)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
			continue
		}

		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("failed to decode market data response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("market data request failed after %d attempts: %w", maxRetries, lastErr)
}

// doRequest performs a single HTTP GET.
func (c *Client) doRequest(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("market data API rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market data API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}
