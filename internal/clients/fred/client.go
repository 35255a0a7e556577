// Package fred provides a client for the St. Louis Fed's FRED API.
// FRED serves macroeconomic time series (dollar index, money supply,
// rates, inflation) as dated observations. An API key is required.
package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/hedge/internal/clientdata"
)

const (
	defaultBaseURL = "https://api.stlouisfed.org/fred"
	maxRetries     = 3
)

// Series IDs used by the macro ingestion job.
const (
	SeriesDollarIndex = "DTWEXBGS" // Trade-weighted broad dollar index
	SeriesM2          = "M2SL"     // M2 money supply
	SeriesFedFunds    = "FEDFUNDS" // Effective federal funds rate
	SeriesCPI         = "CPIAUCSL" // CPI, all urban consumers
	SeriesTenYear     = "GS10"     // 10-year treasury constant maturity
	SeriesPCE         = "PCEPI"    // PCE price index
)

// Observation is a single dated value of a series. Value is nil when FRED
// reports "." (no data for the period).
type Observation struct {
	Date  string   `json:"date" msgpack:"date"`
	Value *float64 `json:"value" msgpack:"value"`
}

// observationsResponse is the wire format of the observations endpoint.
// FRED encodes values as strings, with "." meaning missing.
type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// Client is the FRED API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cacheRepo  *clientdata.Repository
	log        zerolog.Logger
}

// NewClient creates a new FRED client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(apiKey string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// FRED allows 120 requests/minute; stay comfortably under it.
		limiter:   rate.NewLimiter(rate.Limit(2), 4),
		cacheRepo: cacheRepo,
		log:       log.With().Str("component", "fred").Logger(),
	}
}

// GetLatestObservation returns the most recent non-missing observation of a
// series, or nil when the series has no data.
func (c *Client) GetLatestObservation(ctx context.Context, seriesID string) (*Observation, error) {
	observations, err := c.GetObservations(ctx, seriesID, 5)
	if err != nil {
		return nil, err
	}

	// Observations come newest-first; skip missing values.
	for i := range observations {
		if observations[i].Value != nil {
			return &observations[i], nil
		}
	}

	return nil, nil
}

// GetObservations returns up to limit observations of a series, newest
// first. If the API fails, returns stale cached data if available.
func (c *Client) GetObservations(ctx context.Context, seriesID string, limit int) ([]Observation, error) {
	if limit < 1 {
		limit = 1
	}

	cacheKey := fmt.Sprintf("%s:%d", seriesID, limit)

	if c.cacheRepo != nil {
		var cached []Observation
		found, err := c.cacheRepo.GetIfFresh("fred_series", cacheKey, &cached)
		if err != nil {
			c.log.Warn().Err(err).Str("series", seriesID).Msg("FRED cache read failed")
		} else if found {
			c.log.Debug().Str("series", seriesID).Msg("FRED cache hit")
			return cached, nil
		}
	}

	params := url.Values{}
	params.Set("series_id", seriesID)
	params.Set("api_key", c.apiKey)
	params.Set("file_type", "json")
	params.Set("sort_order", "desc")
	params.Set("limit", strconv.Itoa(limit))

	requestURL := c.baseURL + "/series/observations?" + params.Encode()

	var resp observationsResponse
	if err := c.getJSON(ctx, requestURL, &resp); err != nil {
		if c.cacheRepo != nil {
			var stale []Observation
			found, cacheErr := c.cacheRepo.Get("fred_series", cacheKey, &stale)
			if cacheErr == nil && found {
				c.log.Warn().Err(err).Str("series", seriesID).Msg("FRED failed, using stale observations")
				return stale, nil
			}
		}
		return nil, err
	}

	observations := make([]Observation, 0, len(resp.Observations))
	for _, obs := range resp.Observations {
		o := Observation{Date: obs.Date}
		if obs.Value != "." && obs.Value != "" {
			if v, err := strconv.ParseFloat(obs.Value, 64); err == nil {
				o.Value = &v
			}
		}
		observations = append(observations, o)
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("fred_series", cacheKey, observations, clientdata.TTLFREDSeries); err != nil {
			c.log.Warn().Err(err).Str("series", seriesID).Msg("Failed to cache observations")
		}
	}

	return observations, nil
}

// YoYChange returns the year-over-year percentage change of a monthly
// series (latest vs. the observation 12 months earlier), or nil when
// there is not enough history.
func (c *Client) YoYChange(ctx context.Context, seriesID string) (*float64, error) {
	// 14 monthly observations cover the 12-month lookback plus slack for
	// missing periods.
	observations, err := c.GetObservations(ctx, seriesID, 14)
	if err != nil {
		return nil, err
	}

	var latest, yearAgo *float64
	var latestDate time.Time

	for _, obs := range observations {
		if obs.Value == nil {
			continue
		}
		if latest == nil {
			latest = obs.Value
			latestDate, err = time.Parse("2006-01-02", obs.Date)
			if err != nil {
				return nil, fmt.Errorf("failed to parse observation date %q: %w", obs.Date, err)
			}
			continue
		}

		obsDate, err := time.Parse("2006-01-02", obs.Date)
		if err != nil {
			continue
		}
		// First observation at least ~12 months older than the latest.
		if latestDate.Sub(obsDate) >= 360*24*time.Hour {
			yearAgo = obs.Value
			break
		}
	}

	if latest == nil || yearAgo == nil || *yearAgo == 0 {
		return nil, nil
	}

	change := (*latest/(*yearAgo) - 1) * 100
	return &change, nil
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
					Msg("FRED request failed, retrying")

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
			return fmt.Errorf("failed to decode FRED response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("FRED request failed after %d attempts: %w", maxRetries, lastErr)
}

// doRequest performs a single HTTP GET against FRED.
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
		return nil, fmt.Errorf("FRED returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}
