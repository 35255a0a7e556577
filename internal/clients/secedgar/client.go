// Package secedgar provides a client for the SEC EDGAR data APIs.
// EDGAR serves company filing indexes and XBRL company facts for every
// SEC registrant, keyed by ten-digit CIK. Access is free but the SEC
// enforces a fair-access policy: an identifying User-Agent is mandatory
// and clients must stay under 10 requests per second.
package secedgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/hedge/internal/clientdata"
	"github.com/rs/zerolog"
)

const (
	defaultDataBaseURL = "https://data.sec.gov"
	defaultFilesURL    = "https://www.sec.gov/files"

	// SEC fair-access policy: 10 requests per second.
	maxRequestsPerWindow = 10
	windowDuration       = time.Second

	maxRetries = 3
)

// Submissions is the filing index for one registrant.
type Submissions struct {
	CIK            string         `json:"cik"`
	EntityType     string         `json:"entityType"`
	SIC            string         `json:"sic"`
	SICDescription string         `json:"sicDescription"`
	Name           string         `json:"name"`
	Tickers        []string       `json:"tickers"`
	Exchanges      []string       `json:"exchanges"`
	Filings        FilingsSection `json:"filings"`
}

// FilingsSection wraps the recent-filings block.
type FilingsSection struct {
	Recent RecentFilings `json:"recent"`
}

// RecentFilings holds parallel arrays of filing metadata, one entry per
// filing (EDGAR's columnar format).
type RecentFilings struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
}

// CompanyFacts is the full XBRL fact set for one registrant.
type CompanyFacts struct {
	CIK        int64                      `json:"cik"`
	EntityName string                     `json:"entityName"`
	Facts      map[string]map[string]Fact `json:"facts"` // taxonomy -> concept -> fact
}

// Fact is one XBRL concept with observations grouped by unit.
type Fact struct {
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	Units       map[string][]FactValue `json:"units"` // unit (e.g. "USD") -> observations
}

// FactValue is a single reported observation of a concept.
type FactValue struct {
	Start string  `json:"start,omitempty"`
	End   string  `json:"end"`
	Val   float64 `json:"val"`
	FY    int     `json:"fy"`
	FP    string  `json:"fp"`
	Form  string  `json:"form"`
	Filed string  `json:"filed"`
	Frame string  `json:"frame,omitempty"`
}

// TickerEntry is one row of the SEC's company tickers index.
type TickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// Client is the SEC EDGAR API client.
type Client struct {
	dataBaseURL string
	filesURL    string
	userAgent   string
	httpClient  *http.Client
	limiter     *RateLimiter
	cacheRepo   *clientdata.Repository
	log         zerolog.Logger
}

// NewClient creates a new EDGAR client. userAgent must identify the
// application and a contact address (the SEC rejects anonymous clients).
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(userAgent string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		dataBaseURL: defaultDataBaseURL,
		filesURL:    defaultFilesURL,
		userAgent:   userAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:   NewRateLimiter(maxRequestsPerWindow, windowDuration),
		cacheRepo: cacheRepo,
		log:       log.With().Str("component", "secedgar").Logger(),
	}
}

// NormalizeCIK strips whitespace and leading zeros, then pads the CIK back
// to the ten digits EDGAR URLs require.
func NormalizeCIK(cik string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if trimmed == "" {
		trimmed = "0"
	}
	for len(trimmed) < 10 {
		trimmed = "0" + trimmed
	}
	return trimmed
}

// GetSubmissions fetches the filing index for a CIK.
// If the API fails, returns stale cached data if available.
func (c *Client) GetSubmissions(ctx context.Context, cik string) (*Submissions, error) {
	normalized := NormalizeCIK(cik)

	if c.cacheRepo != nil {
		var cached Submissions
		found, err := c.cacheRepo.GetIfFresh("sec_submissions", normalized, &cached)
		if err != nil {
			c.log.Warn().Err(err).Str("cik", normalized).Msg("Submissions cache read failed")
		} else if found {
			c.log.Debug().Str("cik", normalized).Msg("Submissions cache hit")
			return &cached, nil
		}
	}

	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.dataBaseURL, normalized)

	var result Submissions
	if err := c.getJSON(ctx, url, &result); err != nil {
		if c.cacheRepo != nil {
			var stale Submissions
			found, cacheErr := c.cacheRepo.Get("sec_submissions", normalized, &stale)
			if cacheErr == nil && found {
				c.log.Warn().Err(err).Str("cik", normalized).Msg("EDGAR failed, using stale submissions")
				return &stale, nil
			}
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("sec_submissions", normalized, &result, clientdata.TTLSECSubmissions); err != nil {
			c.log.Warn().Err(err).Str("cik", normalized).Msg("Failed to cache submissions")
		}
	}

	return &result, nil
}

// GetCompanyFacts fetches all XBRL facts for a CIK.
// If the API fails, returns stale cached data if available.
func (c *Client) GetCompanyFacts(ctx context.Context, cik string) (*CompanyFacts, error) {
	normalized := NormalizeCIK(cik)

	if c.cacheRepo != nil {
		var cached CompanyFacts
		found, err := c.cacheRepo.GetIfFresh("sec_company_facts", normalized, &cached)
		if err != nil {
			c.log.Warn().Err(err).Str("cik", normalized).Msg("Company facts cache read failed")
		} else if found {
			c.log.Debug().Str("cik", normalized).Msg("Company facts cache hit")
			return &cached, nil
		}
	}

	url := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%s.json", c.dataBaseURL, normalized)

	var result CompanyFacts
	if err := c.getJSON(ctx, url, &result); err != nil {
		if c.cacheRepo != nil {
			var stale CompanyFacts
			found, cacheErr := c.cacheRepo.Get("sec_company_facts", normalized, &stale)
			if cacheErr == nil && found {
				c.log.Warn().Err(err).Str("cik", normalized).Msg("EDGAR failed, using stale company facts")
				return &stale, nil
			}
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("sec_company_facts", normalized, &result, clientdata.TTLSECCompanyFacts); err != nil {
			c.log.Warn().Err(err).Str("cik", normalized).Msg("Failed to cache company facts")
		}
	}

	return &result, nil
}

// GetCompanyTickers fetches the SEC's full ticker-to-CIK index.
// The index is a map of arbitrary string positions to entries.
func (c *Client) GetCompanyTickers(ctx context.Context) ([]TickerEntry, error) {
	url := c.filesURL + "/company_tickers.json"

	var raw map[string]TickerEntry
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return nil, err
	}

	entries := make([]TickerEntry, 0, len(raw))
	for _, entry := range raw {
		entries = append(entries, entry)
	}

	return entries, nil
}

// FindCIKByTicker looks up a ticker in the SEC index. Returns ("", nil)
// when the ticker is unknown.
func (c *Client) FindCIKByTicker(ctx context.Context, ticker string) (string, error) {
	entries, err := c.GetCompanyTickers(ctx)
	if err != nil {
		return "", err
	}

	upper := strings.ToUpper(strings.TrimSpace(ticker))
	for _, entry := range entries {
		if strings.ToUpper(entry.Ticker) == upper {
			return NormalizeCIK(fmt.Sprintf("%d", entry.CIK)), nil
		}
	}

	return "", nil
}

// getJSON performs a rate-limited GET with retries and decodes the response.
func (c *Client) getJSON(ctx context.Context, url string, dest interface{}) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		body, err := c.doRequest(ctx, url)
		if err != nil {
			lastErr = err
			if attempt < maxRetries-1 {
				waitTime := time.Duration(1<<uint(attempt)) * time.Second // exponential backoff
				c.log.Warn().
					Err(err).
					Int("attempt", attempt+1).
					Dur("wait", waitTime).
					Str("url", url).
					Msg("EDGAR request failed, retrying")

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
			return fmt.Errorf("failed to decode EDGAR response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("EDGAR request failed after %d attempts: %w", maxRetries, lastErr)
}

// doRequest performs a single HTTP GET against EDGAR.
func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("EDGAR returned 404 for %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("EDGAR returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}
