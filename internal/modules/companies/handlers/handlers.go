// Package handlers provides HTTP handlers for the companies API.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/modules/companies"
	"github.com/aristath/hedge/internal/modules/scoring"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultListLimit   = 50
	maxListLimit       = 100
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	defaultScoresLimit = 30
	maxScoresLimit     = 365
	defaultYears       = 5
	maxYears           = 10
	peerLimit          = 10

	dateFormat = "2006-01-02"
)

// ScoreReader provides the latest-score lookups the companies API joins
// against. *scoring.Repository satisfies it.
type ScoreReader interface {
	LatestScores() (map[string]*domain.SurvivalScore, error)
	GetLatest(companyID string) (*domain.SurvivalScore, error)
	History(companyID, startDate, endDate string, limit int) ([]domain.SurvivalScore, error)
}

// Handlers contains HTTP handlers for the companies API.
type Handlers struct {
	companies *companies.Repository
	scores    ScoreReader
	log       zerolog.Logger
}

// NewHandlers creates a new companies handlers instance.
func NewHandlers(companyRepo *companies.Repository, scores ScoreReader, log zerolog.Logger) *Handlers {
	return &Handlers{
		companies: companyRepo,
		scores:    scores,
		log:       log.With().Str("module", "companies_handlers").Logger(),
	}
}

var sortFields = map[string]bool{
	"score":      true,
	"ticker":     true,
	"market_cap": true,
	"name":       true,
}

// companyRow is one list entry: company fields plus the latest score.
type companyRow struct {
	ID         string           `json:"id"`
	Ticker     string           `json:"ticker"`
	Name       string           `json:"name"`
	Sector     string           `json:"sector,omitempty"`
	Industry   string           `json:"industry,omitempty"`
	MarketCap  *int64           `json:"market_cap"`
	Score      *decimal.Decimal `json:"score"`
	Tier       *string          `json:"tier"`
	Confidence *decimal.Decimal `json:"confidence"`
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type listResponse struct {
	Data       []companyRow `json:"data"`
	Pagination pagination   `json:"pagination"`
}

// HandleList returns the paginated company list with latest scores joined in.
// GET /api/v1/companies
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		h.writeError(w, "page must be a positive integer", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit < 1 || limit > maxListLimit {
		h.writeError(w, fmt.Sprintf("limit must be between 1 and %d", maxListLimit), http.StatusBadRequest)
		return
	}
	minScore, err := queryScore(r, "min_score")
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	maxScore, err := queryScore(r, "max_score")
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	tier := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("tier")))
	if tier != "" && !scoring.ValidTier(tier) {
		h.writeError(w, fmt.Sprintf("unknown tier: %s", tier), http.StatusBadRequest)
		return
	}
	sortBy := r.URL.Query().Get("sort_by")
	if sortBy == "" {
		sortBy = "score"
	}
	if !sortFields[sortBy] {
		h.writeError(w, "sort_by must be one of score, ticker, market_cap, name", http.StatusBadRequest)
		return
	}
	sortOrder := r.URL.Query().Get("sort_order")
	if sortOrder == "" {
		sortOrder = "desc"
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		h.writeError(w, "sort_order must be asc or desc", http.StatusBadRequest)
		return
	}

	var list []domain.Company
	sector := strings.TrimSpace(r.URL.Query().Get("sector"))
	if sector != "" {
		list, err = h.companies.ListBySector(sector)
	} else {
		list, err = h.companies.ListActive()
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list companies")
		h.writeError(w, "Failed to list companies", http.StatusInternalServerError)
		return
	}

	latest, err := h.scores.LatestScores()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest scores")
		h.writeError(w, "Failed to load scores", http.StatusInternalServerError)
		return
	}

	search := strings.TrimSpace(r.URL.Query().Get("search"))
	rows := make([]companyRow, 0, len(list))
	for _, c := range list {
		if search != "" && !matchesSearch(c, search) {
			continue
		}
		row := newCompanyRow(c, latest[c.ID])
		if !passesScoreFilters(row, minScore, maxScore, tier) {
			continue
		}
		rows = append(rows, row)
	}

	sortRows(rows, sortBy, sortOrder == "desc")

	total := len(rows)
	pages := 0
	if total > 0 {
		pages = (total + limit - 1) / limit
	}
	offset := (page - 1) * limit
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	h.writeJSON(w, http.StatusOK, listResponse{
		Data:       rows[offset:end],
		Pagination: pagination{Page: page, Limit: limit, Total: total, Pages: pages},
	})
}

type searchRow struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
	Sector string `json:"sector,omitempty"`
}

// HandleSearch returns a quick ticker/name lookup, exact ticker matches first.
// GET /api/v1/companies/search
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.writeError(w, "q is required", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultSearchLimit)
	if err != nil || limit < 1 || limit > maxSearchLimit {
		h.writeError(w, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit), http.StatusBadRequest)
		return
	}

	matches, err := h.companies.Search(q, limit)
	if err != nil {
		h.log.Error().Err(err).Str("q", q).Msg("Company search failed")
		h.writeError(w, "Search failed", http.StatusInternalServerError)
		return
	}

	rows := make([]searchRow, 0, len(matches))
	for _, c := range matches {
		rows = append(rows, searchRow{Ticker: c.Ticker, Name: c.Name, Sector: c.Sector})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": rows})
}

type detailResponse struct {
	ID           string             `json:"id"`
	Ticker       string             `json:"ticker"`
	Name         string             `json:"name"`
	Sector       string             `json:"sector,omitempty"`
	Industry     string             `json:"industry,omitempty"`
	MarketCap    *int64             `json:"market_cap"`
	Country      string             `json:"country,omitempty"`
	Exchange     string             `json:"exchange,omitempty"`
	Description  string             `json:"description,omitempty"`
	Website      string             `json:"website,omitempty"`
	LogoURL      string             `json:"logo_url,omitempty"`
	Score        *scoreBlock        `json:"score"`
	Fundamentals *fundamentalsBrief `json:"fundamentals"`
}

type scoreBlock struct {
	Total      decimal.Decimal `json:"total"`
	Tier       string          `json:"tier"`
	Confidence decimal.Decimal `json:"confidence"`
	Date       string          `json:"date"`
	Factors    factorBlock     `json:"factors"`
	Scenarios  scenarioBlock   `json:"scenarios"`
}

type factorBlock struct {
	HardAssets        *decimal.Decimal `json:"hard_assets"`
	PreciousMetals    *decimal.Decimal `json:"precious_metals"`
	Commodities       *decimal.Decimal `json:"commodities"`
	ForeignRevenue    *decimal.Decimal `json:"foreign_revenue"`
	PricingPower      *decimal.Decimal `json:"pricing_power"`
	DebtStructure     *decimal.Decimal `json:"debt_structure"`
	EssentialServices *decimal.Decimal `json:"essential_services"`
}

type scenarioBlock struct {
	Gradual *decimal.Decimal `json:"gradual"`
	Rapid   *decimal.Decimal `json:"rapid"`
	Hyper   *decimal.Decimal `json:"hyper"`
}

type fundamentalsBrief struct {
	FiscalYear        int              `json:"fiscal_year"`
	TotalAssets       *int64           `json:"total_assets"`
	TotalRevenue      *int64           `json:"total_revenue"`
	TotalDebt         *int64           `json:"total_debt"`
	GrossMargin       *decimal.Decimal `json:"gross_margin"`
	ForeignRevenuePct *decimal.Decimal `json:"foreign_revenue_pct"`
}

// HandleDetail returns full company info with the latest score breakdown and
// the most recent fundamentals snapshot.
// GET /api/v1/companies/{ticker}
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	company := h.getCompany(w, r)
	if company == nil {
		return
	}

	// Secondary fetches degrade to null sections rather than failing the
	// whole request.
	score, err := h.scores.GetLatest(company.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("ticker", company.Ticker).Msg("Failed to fetch latest score")
		score = nil
	}
	fundamental, err := h.companies.LatestFundamental(company.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("ticker", company.Ticker).Msg("Failed to fetch fundamentals")
		fundamental = nil
	}

	resp := detailResponse{
		ID:          company.ID,
		Ticker:      company.Ticker,
		Name:        company.Name,
		Sector:      company.Sector,
		Industry:    company.Industry,
		MarketCap:   company.MarketCap,
		Country:     company.Country,
		Exchange:    company.Exchange,
		Description: company.Description,
		Website:     company.Website,
		LogoURL:     company.LogoURL,
	}
	if score != nil {
		resp.Score = &scoreBlock{
			Total:      score.TotalScore,
			Tier:       score.Tier,
			Confidence: score.Confidence,
			Date:       score.ScoreDate.Format(dateFormat),
			Factors:    factorsOf(score),
			Scenarios:  scenariosOf(score),
		}
	}
	if fundamental != nil {
		resp.Fundamentals = &fundamentalsBrief{
			FiscalYear:        fundamental.FiscalYear,
			TotalAssets:       fundamental.TotalAssets,
			TotalRevenue:      fundamental.TotalRevenue,
			TotalDebt:         fundamental.TotalDebt,
			GrossMargin:       fundamental.GrossMargin,
			ForeignRevenuePct: fundamental.ForeignRevenuePct,
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type scoreHistoryRow struct {
	Date       string          `json:"date"`
	TotalScore decimal.Decimal `json:"total_score"`
	Tier       string          `json:"tier"`
	Confidence decimal.Decimal `json:"confidence"`
	Factors    factorBlock     `json:"factors"`
	Scenarios  scenarioBlock   `json:"scenarios"`
}

// HandleScores returns score history, newest first.
// GET /api/v1/companies/{ticker}/scores
func (h *Handlers) HandleScores(w http.ResponseWriter, r *http.Request) {
	company := h.getCompany(w, r)
	if company == nil {
		return
	}
	startDate, err := queryDate(r, "start_date")
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	endDate, err := queryDate(r, "end_date")
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultScoresLimit)
	if err != nil || limit < 1 || limit > maxScoresLimit {
		h.writeError(w, fmt.Sprintf("limit must be between 1 and %d", maxScoresLimit), http.StatusBadRequest)
		return
	}

	history, err := h.scores.History(company.ID, startDate, endDate, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", company.Ticker).Msg("Failed to fetch score history")
		h.writeError(w, "Failed to fetch score history", http.StatusInternalServerError)
		return
	}

	rows := make([]scoreHistoryRow, 0, len(history))
	for i := range history {
		s := &history[i]
		rows = append(rows, scoreHistoryRow{
			Date:       s.ScoreDate.Format(dateFormat),
			TotalScore: s.TotalScore,
			Tier:       s.Tier,
			Confidence: s.Confidence,
			Factors:    factorsOf(s),
			Scenarios:  scenariosOf(s),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": rows})
}

type fundamentalRow struct {
	FiscalYear          int              `json:"fiscal_year"`
	FiscalQuarter       *int             `json:"fiscal_quarter,omitempty"`
	TotalAssets         *int64           `json:"total_assets"`
	TangibleAssets      *int64           `json:"tangible_assets"`
	TotalRevenue        *int64           `json:"total_revenue"`
	TotalDebt           *int64           `json:"total_debt"`
	GrossMargin         *decimal.Decimal `json:"gross_margin"`
	ForeignRevenuePct   *decimal.Decimal `json:"foreign_revenue_pct"`
	CommodityRevenuePct *decimal.Decimal `json:"commodity_revenue_pct"`
}

// HandleFundamentals returns fundamentals history, newest fiscal period first.
// GET /api/v1/companies/{ticker}/fundamentals
func (h *Handlers) HandleFundamentals(w http.ResponseWriter, r *http.Request) {
	company := h.getCompany(w, r)
	if company == nil {
		return
	}
	years, err := queryInt(r, "years", defaultYears)
	if err != nil || years < 1 || years > maxYears {
		h.writeError(w, fmt.Sprintf("years must be between 1 and %d", maxYears), http.StatusBadRequest)
		return
	}

	history, err := h.companies.FundamentalsHistory(company.ID, years)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", company.Ticker).Msg("Failed to fetch fundamentals")
		h.writeError(w, "Failed to fetch fundamentals", http.StatusInternalServerError)
		return
	}

	rows := make([]fundamentalRow, 0, len(history))
	for _, f := range history {
		rows = append(rows, fundamentalRow{
			FiscalYear:          f.FiscalYear,
			FiscalQuarter:       f.FiscalQuarter,
			TotalAssets:         f.TotalAssets,
			TangibleAssets:      f.TangibleAssets,
			TotalRevenue:        f.TotalRevenue,
			TotalDebt:           f.TotalDebt,
			GrossMargin:         f.GrossMargin,
			ForeignRevenuePct:   f.ForeignRevenuePct,
			CommodityRevenuePct: f.CommodityRevenuePct,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": rows})
}

type peerRow struct {
	Ticker   string           `json:"ticker"`
	Name     string           `json:"name"`
	Sector   string           `json:"sector,omitempty"`
	Industry string           `json:"industry,omitempty"`
	Score    *decimal.Decimal `json:"score"`
	Tier     *string          `json:"tier"`
}

// HandlePeers returns up to ten same-sector companies ranked by latest score.
// GET /api/v1/companies/{ticker}/peers
func (h *Handlers) HandlePeers(w http.ResponseWriter, r *http.Request) {
	company := h.getCompany(w, r)
	if company == nil {
		return
	}
	if company.Sector == "" {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": []peerRow{}})
		return
	}

	sectorMates, err := h.companies.ListBySector(company.Sector)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", company.Ticker).Msg("Failed to list sector peers")
		h.writeError(w, "Failed to fetch peers", http.StatusInternalServerError)
		return
	}
	latest, err := h.scores.LatestScores()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest scores")
		h.writeError(w, "Failed to fetch peers", http.StatusInternalServerError)
		return
	}

	rows := make([]companyRow, 0, len(sectorMates))
	for _, peer := range sectorMates {
		if peer.Ticker == company.Ticker {
			continue
		}
		rows = append(rows, newCompanyRow(peer, latest[peer.ID]))
	}
	sortRows(rows, "score", true)
	if len(rows) > peerLimit {
		rows = rows[:peerLimit]
	}

	peers := make([]peerRow, 0, len(rows))
	for _, row := range rows {
		peers = append(peers, peerRow{
			Ticker:   row.Ticker,
			Name:     row.Name,
			Sector:   row.Sector,
			Industry: row.Industry,
			Score:    row.Score,
			Tier:     row.Tier,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": peers})
}

// getCompany resolves the {ticker} URL param to a company, writing the
// 404/500 response itself when resolution fails.
func (h *Handlers) getCompany(w http.ResponseWriter, r *http.Request) *domain.Company {
	ticker := strings.TrimSpace(strings.ToUpper(chi.URLParam(r, "ticker")))
	company, err := h.companies.GetByTicker(ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to fetch company")
		h.writeError(w, "Failed to fetch company", http.StatusInternalServerError)
		return nil
	}
	if company == nil {
		h.writeError(w, fmt.Sprintf("Company %s not found", ticker), http.StatusNotFound)
		return nil
	}
	return company
}

func newCompanyRow(c domain.Company, s *domain.SurvivalScore) companyRow {
	row := companyRow{
		ID:        c.ID,
		Ticker:    c.Ticker,
		Name:      c.Name,
		Sector:    c.Sector,
		Industry:  c.Industry,
		MarketCap: c.MarketCap,
	}
	if s != nil {
		total := s.TotalScore
		conf := s.Confidence
		tier := s.Tier
		row.Score = &total
		row.Confidence = &conf
		row.Tier = &tier
	}
	return row
}

func factorsOf(s *domain.SurvivalScore) factorBlock {
	return factorBlock{
		HardAssets:        s.HardAssetsScore,
		PreciousMetals:    s.PreciousMetalsScore,
		Commodities:       s.CommodityScore,
		ForeignRevenue:    s.ForeignRevenueScore,
		PricingPower:      s.PricingPowerScore,
		DebtStructure:     s.DebtStructureScore,
		EssentialServices: s.EssentialServicesScore,
	}
}

func scenariosOf(s *domain.SurvivalScore) scenarioBlock {
	return scenarioBlock{
		Gradual: s.ScenarioGradual,
		Rapid:   s.ScenarioRapid,
		Hyper:   s.ScenarioHyper,
	}
}

func matchesSearch(c domain.Company, q string) bool {
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(c.Ticker), q) ||
		strings.Contains(strings.ToLower(c.Name), q)
}

// passesScoreFilters applies the score-based list filters. Companies without
// a score are excluded whenever such a filter is present, mirroring an inner
// join on the scores table.
func passesScoreFilters(row companyRow, minScore, maxScore *decimal.Decimal, tier string) bool {
	if minScore == nil && maxScore == nil && tier == "" {
		return true
	}
	if row.Score == nil {
		return false
	}
	if minScore != nil && row.Score.LessThan(*minScore) {
		return false
	}
	if maxScore != nil && row.Score.GreaterThan(*maxScore) {
		return false
	}
	if tier != "" && (row.Tier == nil || *row.Tier != tier) {
		return false
	}
	return true
}

// sortRows orders joined rows. Missing scores and market caps sort as
// smallest, matching SQLite NULL ordering.
func sortRows(rows []companyRow, sortBy string, desc bool) {
	less := func(i, j int) bool {
		switch sortBy {
		case "ticker":
			return rows[i].Ticker < rows[j].Ticker
		case "name":
			return strings.ToLower(rows[i].Name) < strings.ToLower(rows[j].Name)
		case "market_cap":
			return ltInt64Ptr(rows[i].MarketCap, rows[j].MarketCap)
		default: // score
			return ltDecimalPtr(rows[i].Score, rows[j].Score)
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

func ltDecimalPtr(a, b *decimal.Decimal) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.LessThan(*b)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

// queryScore parses an optional 0-100 score bound.
func queryScore(r *http.Request, name string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("%s must be between 0 and 100", name)
	}
	return &v, nil
}

// queryDate validates an optional YYYY-MM-DD parameter and returns it verbatim.
func queryDate(r *http.Request, name string) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse(dateFormat, raw); err != nil {
		return "", fmt.Errorf("invalid %s: expected YYYY-MM-DD", name)
	}
	return raw, nil
}

// writeJSON writes a JSON response with status code.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response.
func (h *Handlers) writeError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
