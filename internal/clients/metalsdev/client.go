// Package metalsdev provides a client for the metals.dev spot price API.
// The service quotes precious metal spot prices in USD per troy ounce.
// The "demo" API key works for low-volume polling.
package metalsdev

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/hedge/internal/clientdata"
)

const (
	defaultBaseURL = "https://api.metals.dev/v1"
	maxRetries     = 3
)

// Metals tracked by the macro ingestion job.
const (
	MetalGold   = "gold"
	MetalSilver = "silver"
)

// SpotPrice is the cached quote for one metal.
type SpotPrice struct {
	Metal     string    `msgpack:"metal"`
	Price     float64   `msgpack:"price"`
	Currency  string    `msgpack:"currency"`
	Unit      string    `msgpack:"unit"`
	FetchedAt time.Time `msgpack:"fetched_at"`
}

// latestResponse is the wire format of the /latest endpoint.
type latestResponse struct {
	Status   string             `json:"status"`
	Currency string             `json:"currency"`
	Unit     string             `json:"unit"`
	Metals   map[string]float64 `json:"metals"`
}

// Client is the metals.dev API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cacheRepo  *clientdata.Repository
	log        zerolog.Logger
}

// NewClient creates a new metals.dev client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(apiKey string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// The demo tier tolerates very little traffic; one request per
		// 10 seconds is plenty for an hourly job.
		limiter:   rate.NewLimiter(rate.Every(10*time.Second), 2),
		cacheRepo: cacheRepo,
		log:       log.With().Str("component", "metalsdev").Logger(),
	}
}

// GetSpot returns the current spot price for a metal.
// One upstream call quotes every metal, so a single fetch warms the cache
// for all of them. If the API fails, returns stale cached data if available.
func (c *Client) GetSpot(ctx context.Context, metal string) (*SpotPrice, error) {
	if c.cacheRepo != nil {
		var cached SpotPrice
		found, err := c.cacheRepo.GetIfFresh("metals_spot", metal, &cached)
		if err != nil {
			c.log.Warn().Err(err).Str("metal", metal).Msg("Spot cache read failed")
		} else if found {
			c.log.Debug().Str("metal", metal).Msg("Spot cache hit")
			return &cached, nil
		}
	}

	prices, err := c.fetchLatest(ctx)
	if err != nil {
		if c.cacheRepo != nil {
			var stale SpotPrice
			found, cacheErr := c.cacheRepo.Get("metals_spot", metal, &stale)
			if cacheErr == nil && found {
				c.log.Warn().Err(err).Str("metal", metal).Msg("metals.dev failed, using stale spot price")
				return &stale, nil
			}
		}
		return nil, err
	}

	price, ok := prices[metal]
	if !ok {
		return nil, fmt.Errorf("metals.dev response has no %q price", metal)
	}

	return price, nil
}

// fetchLatest fetches all spot prices and caches each metal separately.
func (c *Client) fetchLatest(ctx context.Context) (map[string]*SpotPrice, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("currency", "USD")
	params.Set("unit", "toz")

	requestURL := c.baseURL + "/latest?" + params.Encode()

	var resp latestResponse
	if err := c.getJSON(ctx, requestURL, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "success" {
		return nil, fmt.Errorf("metals.dev returned status %q", resp.Status)
	}

	now := time.Now().UTC()
	prices := make(map[string]*SpotPrice, len(resp.Metals))
	for metal, price := range resp.Metals {
		spot := &SpotPrice{
			Metal:     metal,
			Price:     price,
			Currency:  resp.Currency,
			Unit:      resp.Unit,
			FetchedAt: now,
		}
		prices[metal] = spot

		// Only cache the metals the schema knows about.
		if c.cacheRepo != nil && (metal == MetalGold || metal == MetalSilver) {
			if err := c.cacheRepo.Store("metals_spot", metal, spot, clientdata.TTLMetalsSpot); err != nil {
				c.log.Warn().Err(err).Str("metal", metal).Msg("Failed to cache spot price")
			}
		}
	}

	return prices, nil
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
					Msg("metals.dev request failed, retrying")

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
			return fmt.Errorf("failed to decode metals.dev response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("metals.dev request failed after %d attempts: %w", maxRetries, lastErr)
}

// doRequest performs a single HTTP GET against metals.dev.
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

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metals.dev returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}
