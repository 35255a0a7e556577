// Package screener filters the scored universe by score, factor, and
// fundamental criteria.
package screener

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// SortFields lists the accepted sort_by values.
var SortFields = map[string]bool{
	"total_score": true,
	"ticker":      true,
	"market_cap":  true,
	"name":        true,
}

// Filters are the screening criteria. Nil and empty fields are inactive.
// Factor minimums apply to the latest score row; the foreign-revenue
// percentage applies to the latest fundamental snapshot.
type Filters struct {
	Sectors                []string         `json:"sectors,omitempty"`
	Industries             []string         `json:"industries,omitempty"`
	Countries              []string         `json:"countries,omitempty"`
	MinScore               *decimal.Decimal `json:"min_score,omitempty"`
	MaxScore               *decimal.Decimal `json:"max_score,omitempty"`
	MinMarketCap           *int64           `json:"min_market_cap,omitempty"`
	MaxMarketCap           *int64           `json:"max_market_cap,omitempty"`
	MinForeignRevenuePct   *decimal.Decimal `json:"min_foreign_revenue_pct,omitempty"`
	MinHardAssetsScore     *decimal.Decimal `json:"min_hard_assets_score,omitempty"`
	MinPreciousMetalsScore *decimal.Decimal `json:"min_precious_metals_score,omitempty"`
}

// Request is one screener invocation.
type Request struct {
	Filters   Filters `json:"filters"`
	SortBy    string  `json:"sort_by"`
	SortOrder string  `json:"sort_order"`
	Page      int     `json:"page"`
	Limit     int     `json:"limit"`
}

// Validate applies defaults and checks bounds. It mutates the request in
// place so handlers can decode, validate, and run it directly.
func (r *Request) Validate() error {
	if r.SortBy == "" {
		r.SortBy = "total_score"
	}
	if !SortFields[r.SortBy] {
		return fmt.Errorf("sort_by must be one of total_score, ticker, market_cap, name")
	}
	if r.SortOrder == "" {
		r.SortOrder = "desc"
	}
	if r.SortOrder != "asc" && r.SortOrder != "desc" {
		return fmt.Errorf("sort_order must be asc or desc")
	}
	if r.Page == 0 {
		r.Page = 1
	}
	if r.Page < 1 {
		return fmt.Errorf("page must be a positive integer")
	}
	if r.Limit == 0 {
		r.Limit = defaultLimit
	}
	if r.Limit < 1 || r.Limit > maxLimit {
		return fmt.Errorf("limit must be between 1 and %d", maxLimit)
	}
	return r.Filters.validate()
}

func (f *Filters) validate() error {
	bounded := []struct {
		name  string
		value *decimal.Decimal
	}{
		{"min_score", f.MinScore},
		{"max_score", f.MaxScore},
		{"min_foreign_revenue_pct", f.MinForeignRevenuePct},
		{"min_hard_assets_score", f.MinHardAssetsScore},
		{"min_precious_metals_score", f.MinPreciousMetalsScore},
	}
	for _, b := range bounded {
		if b.value != nil && (b.value.IsNegative() || b.value.GreaterThan(decimal.NewFromInt(100))) {
			return fmt.Errorf("%s must be between 0 and 100", b.name)
		}
	}
	if f.MinMarketCap != nil && *f.MinMarketCap < 0 {
		return fmt.Errorf("min_market_cap must be zero or positive")
	}
	if f.MaxMarketCap != nil && *f.MaxMarketCap < 0 {
		return fmt.Errorf("max_market_cap must be zero or positive")
	}
	return nil
}

// Row is one matched company with the values it was screened on.
type Row struct {
	ID                string                     `json:"id"`
	Ticker            string                     `json:"ticker"`
	Name              string                     `json:"name"`
	Sector            string                     `json:"sector,omitempty"`
	Industry          string                     `json:"industry,omitempty"`
	Country           string                     `json:"country"`
	MarketCap         *int64                     `json:"market_cap"`
	Score             decimal.Decimal            `json:"score"`
	Tier              string                     `json:"tier"`
	Confidence        decimal.Decimal            `json:"confidence"`
	Factors           map[string]decimal.Decimal `json:"factors"`
	ForeignRevenuePct *decimal.Decimal           `json:"foreign_revenue_pct"`
}

// Result is one screening outcome page.
type Result struct {
	Rows          []Row
	Page          int
	Limit         int
	Matched       int
	TotalUniverse int
}

// CompanySource supplies the screening universe. The companies repository
// implements it.
type CompanySource interface {
	ListActive() ([]domain.Company, error)
	LatestFundamentals() (map[string]*domain.Fundamental, error)
}

// ScoreSource supplies the latest scores. The scoring repository implements it.
type ScoreSource interface {
	LatestScores() (map[string]*domain.SurvivalScore, error)
}

// Service runs screens over the scored universe.
type Service struct {
	companies CompanySource
	scores    ScoreSource
	log       zerolog.Logger
}

// NewService creates a screener service.
func NewService(companies CompanySource, scores ScoreSource, log zerolog.Logger) *Service {
	return &Service{
		companies: companies,
		scores:    scores,
		log:       log.With().Str("component", "screener").Logger(),
	}
}

// Run screens the active universe and returns one result page. Only scored
// companies participate; the joins happen in memory because companies,
// scores, and fundamentals live in separate databases.
func (s *Service) Run(req Request) (*Result, error) {
	companies, err := s.companies.ListActive()
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	scores, err := s.scores.LatestScores()
	if err != nil {
		return nil, fmt.Errorf("failed to load latest scores: %w", err)
	}
	fundamentals, err := s.companies.LatestFundamentals()
	if err != nil {
		return nil, fmt.Errorf("failed to load latest fundamentals: %w", err)
	}

	rows := make([]Row, 0, len(companies))
	for _, c := range companies {
		score := scores[c.ID]
		if score == nil {
			continue
		}
		fundamental := fundamentals[c.ID]
		if !req.Filters.match(c, score, fundamental) {
			continue
		}

		row := Row{
			ID:         c.ID,
			Ticker:     c.Ticker,
			Name:       c.Name,
			Sector:     c.Sector,
			Industry:   c.Industry,
			Country:    c.Country,
			MarketCap:  c.MarketCap,
			Score:      score.TotalScore,
			Tier:       score.Tier,
			Confidence: score.Confidence,
			Factors:    score.FactorMap(),
		}
		if fundamental != nil {
			row.ForeignRevenuePct = fundamental.ForeignRevenuePct
		}
		rows = append(rows, row)
	}

	sortRows(rows, req.SortBy, req.SortOrder == "desc")

	matched := len(rows)
	start := (req.Page - 1) * req.Limit
	if start > matched {
		start = matched
	}
	end := start + req.Limit
	if end > matched {
		end = matched
	}

	s.log.Debug().
		Int("matched", matched).
		Int("universe", len(companies)).
		Str("sort_by", req.SortBy).
		Msg("Screen completed")

	return &Result{
		Rows:          rows[start:end],
		Page:          req.Page,
		Limit:         req.Limit,
		Matched:       matched,
		TotalUniverse: len(companies),
	}, nil
}

// match applies every active filter. A company missing the data a filter
// needs does not match that filter.
func (f *Filters) match(c domain.Company, s *domain.SurvivalScore, fund *domain.Fundamental) bool {
	if len(f.Sectors) > 0 && !containsString(f.Sectors, c.Sector) {
		return false
	}
	if len(f.Industries) > 0 && !containsString(f.Industries, c.Industry) {
		return false
	}
	if len(f.Countries) > 0 && !containsString(f.Countries, c.Country) {
		return false
	}
	if f.MinMarketCap != nil && (c.MarketCap == nil || *c.MarketCap < *f.MinMarketCap) {
		return false
	}
	if f.MaxMarketCap != nil && (c.MarketCap == nil || *c.MarketCap > *f.MaxMarketCap) {
		return false
	}
	if f.MinScore != nil && s.TotalScore.LessThan(*f.MinScore) {
		return false
	}
	if f.MaxScore != nil && s.TotalScore.GreaterThan(*f.MaxScore) {
		return false
	}
	if f.MinHardAssetsScore != nil && !meetsMin(s.HardAssetsScore, *f.MinHardAssetsScore) {
		return false
	}
	if f.MinPreciousMetalsScore != nil && !meetsMin(s.PreciousMetalsScore, *f.MinPreciousMetalsScore) {
		return false
	}
	if f.MinForeignRevenuePct != nil {
		if fund == nil || !meetsMin(fund.ForeignRevenuePct, *f.MinForeignRevenuePct) {
			return false
		}
	}
	return true
}

func meetsMin(v *decimal.Decimal, min decimal.Decimal) bool {
	return v != nil && v.GreaterThanOrEqual(min)
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// sortRows orders matches. Missing market caps sort as smallest, matching
// SQLite NULL ordering elsewhere in the API.
func sortRows(rows []Row, sortBy string, desc bool) {
	less := func(i, j int) bool {
		switch sortBy {
		case "ticker":
			return rows[i].Ticker < rows[j].Ticker
		case "name":
			return strings.ToLower(rows[i].Name) < strings.ToLower(rows[j].Name)
		case "market_cap":
			return ltInt64Ptr(rows[i].MarketCap, rows[j].MarketCap)
		default: // total_score
			return rows[i].Score.LessThan(rows[j].Score)
		}
	}
	if desc {
		sort.SliceStable(rows, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.SliceStable(rows, less)
}

func ltInt64Ptr(a, b *int64) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return *a < *b
}
