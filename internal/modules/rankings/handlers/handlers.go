// Package handlers provides HTTP handlers for the rankings API.
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
	"github.com/aristath/hedge/internal/modules/rankings"
	"github.com/aristath/hedge/internal/modules/scoring"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultRankLimit   = 100
	maxRankLimit       = 500
	defaultMoversLimit = 10
	maxMoversLimit     = 50

	dateFormat = "2006-01-02"
)

// CompanyLister provides the active-company lookup every ranking joins
// against. *companies.Repository satisfies it.
type CompanyLister interface {
	ListActive() ([]domain.Company, error)
}

// Handlers contains HTTP handlers for the rankings API.
type Handlers struct {
	ranks     *rankings.Repository
	companies CompanyLister
	log       zerolog.Logger
}

// NewHandlers creates a new rankings handlers instance.
func NewHandlers(rankRepo *rankings.Repository, companies CompanyLister, log zerolog.Logger) *Handlers {
	return &Handlers{
		ranks:     rankRepo,
		companies: companies,
		log:       log.With().Str("module", "rankings_handlers").Logger(),
	}
}

var periodDays = map[string]int{"1d": 1, "7d": 7, "30d": 30}

// tierBands are the inclusive score bands the API reports per tier. The
// engine's ranges are exclusive at the top; display uses two-decimal ceilings.
var tierBands = map[string]struct{ Min, Max float64 }{
	scoring.TierFortress:   {Min: 80, Max: 100},
	scoring.TierResilient:  {Min: 65, Max: 79.99},
	scoring.TierModerate:   {Min: 50, Max: 64.99},
	scoring.TierVulnerable: {Min: 35, Max: 49.99},
	scoring.TierExposed:    {Min: 0, Max: 34.99},
}

// rankingRow is one ranked entry: company identity plus its latest score
// under the requested scenario.
type rankingRow struct {
	Rank       int             `json:"rank"`
	Ticker     string          `json:"ticker"`
	Name       string          `json:"name"`
	Sector     string          `json:"sector,omitempty"`
	Industry   string          `json:"industry,omitempty"`
	Score      decimal.Decimal `json:"score"`
	Tier       string          `json:"tier"`
	Confidence decimal.Decimal `json:"confidence"`
	Factors    factorBlock     `json:"factors"`
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

type rankingsResponse struct {
	Data        []rankingRow `json:"data"`
	Total       int          `json:"total"`
	GeneratedAt string       `json:"generated_at"`
}

type sectorRow struct {
	Sector   string          `json:"sector"`
	Count    int             `json:"count"`
	AvgScore decimal.Decimal `json:"avg_score"`
	MinScore decimal.Decimal `json:"min_score"`
	MaxScore decimal.Decimal `json:"max_score"`
}

type moverRow struct {
	Ticker        string          `json:"ticker"`
	Name          string          `json:"name"`
	Sector        string          `json:"sector,omitempty"`
	CurrentScore  decimal.Decimal `json:"current_score"`
	PreviousScore decimal.Decimal `json:"previous_score"`
	Change        decimal.Decimal `json:"change"`
	ChangePct     decimal.Decimal `json:"change_pct"`
}

type moversResponse struct {
	Period  string     `json:"period"`
	Gainers []moverRow `json:"gainers"`
	Losers  []moverRow `json:"losers"`
}

type tierBucket struct {
	Min      float64          `json:"min"`
	Max      float64          `json:"max"`
	Count    int              `json:"count"`
	AvgScore *decimal.Decimal `json:"avg_score"`
}

// tierDistribution keeps the tiers in rank order in the response body.
type tierDistribution struct {
	Fortress   tierBucket `json:"FORTRESS"`
	Resilient  tierBucket `json:"RESILIENT"`
	Moderate   tierBucket `json:"MODERATE"`
	Vulnerable tierBucket `json:"VULNERABLE"`
	Exposed    tierBucket `json:"EXPOSED"`
}

// rankedEntry pairs an active company with its latest score.
type rankedEntry struct {
	company domain.Company
	score   domain.SurvivalScore
}

// HandleRankings returns companies ranked by their latest score under the
// requested scenario.
// GET /api/v1/rankings
func (h *Handlers) HandleRankings(w http.ResponseWriter, r *http.Request) {
	scenario := strings.TrimSpace(r.URL.Query().Get("scenario"))
	if scenario == "" {
		scenario = string(domain.ScenarioCurrent)
	}
	if !domain.ValidScenario(scenario) {
		h.writeError(w, "scenario must be one of current, gradual, rapid, hyper", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultRankLimit)
	if err != nil || limit < 1 || limit > maxRankLimit {
		h.writeError(w, fmt.Sprintf("limit must be between 1 and %d", maxRankLimit), http.StatusBadRequest)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.writeError(w, "offset must be zero or positive", http.StatusBadRequest)
		return
	}
	tier := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("tier")))
	if tier != "" && !scoring.ValidTier(tier) {
		h.writeError(w, fmt.Sprintf("unknown tier: %s", tier), http.StatusBadRequest)
		return
	}
	sector := strings.TrimSpace(r.URL.Query().Get("sector"))

	entries, err := h.rankedEntries(domain.Scenario(scenario))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load rankings")
		h.writeError(w, "Failed to load rankings", http.StatusInternalServerError)
		return
	}

	matched := make([]rankedEntry, 0, len(entries))
	for _, e := range entries {
		if sector != "" && e.company.Sector != sector {
			continue
		}
		if tier != "" && e.score.Tier != tier {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	rows := make([]rankingRow, 0, end-start)
	for i, e := range matched[start:end] {
		s := e.score
		rows = append(rows, rankingRow{
			Rank:       offset + i + 1,
			Ticker:     e.company.Ticker,
			Name:       e.company.Name,
			Sector:     e.company.Sector,
			Industry:   e.company.Industry,
			Score:      s.ScenarioScore(domain.Scenario(scenario)),
			Tier:       s.Tier,
			Confidence: s.Confidence,
			Factors:    factorsOf(&s),
		})
	}

	h.writeJSON(w, http.StatusOK, rankingsResponse{
		Data:        rows,
		Total:       total,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleSectors returns per-sector score aggregates over the latest scores,
// best average first. Companies without a sector are skipped.
// GET /api/v1/rankings/sectors
func (h *Handlers) HandleSectors(w http.ResponseWriter, r *http.Request) {
	entries, err := h.rankedEntries(domain.ScenarioCurrent)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load sector rankings")
		h.writeError(w, "Failed to load sector rankings", http.StatusInternalServerError)
		return
	}

	type agg struct {
		count         int
		sum, min, max decimal.Decimal
	}
	aggs := make(map[string]*agg)
	for _, e := range entries {
		sector := e.company.Sector
		if sector == "" {
			continue
		}
		total := e.score.TotalScore
		a, ok := aggs[sector]
		if !ok {
			aggs[sector] = &agg{count: 1, sum: total, min: total, max: total}
			continue
		}
		a.count++
		a.sum = a.sum.Add(total)
		if total.LessThan(a.min) {
			a.min = total
		}
		if total.GreaterThan(a.max) {
			a.max = total
		}
	}

	rows := make([]sectorRow, 0, len(aggs))
	for sector, a := range aggs {
		rows = append(rows, sectorRow{
			Sector:   sector,
			Count:    a.count,
			AvgScore: a.sum.Div(decimal.NewFromInt(int64(a.count))).Round(2),
			MinScore: a.min.Round(2),
			MaxScore: a.max.Round(2),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].AvgScore.Equal(rows[j].AvgScore) {
			return rows[i].AvgScore.GreaterThan(rows[j].AvgScore)
		}
		return rows[i].Sector < rows[j].Sector
	})

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": rows})
}

// HandleMovers returns the companies whose total score moved the most since
// the period cutoff. Companies first scored inside the window have no
// baseline and are skipped.
// GET /api/v1/rankings/movers
func (h *Handlers) HandleMovers(w http.ResponseWriter, r *http.Request) {
	period := strings.TrimSpace(r.URL.Query().Get("period"))
	if period == "" {
		period = "1d"
	}
	days, ok := periodDays[period]
	if !ok {
		h.writeError(w, "period must be one of 1d, 7d, 30d", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultMoversLimit)
	if err != nil || limit < 1 || limit > maxMoversLimit {
		h.writeError(w, fmt.Sprintf("limit must be between 1 and %d", maxMoversLimit), http.StatusBadRequest)
		return
	}

	entries, err := h.rankedEntries(domain.ScenarioCurrent)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load movers")
		h.writeError(w, "Failed to load movers", http.StatusInternalServerError)
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(dateFormat)
	previous, err := h.ranks.PreviousTotals(cutoff)
	if err != nil {
		h.log.Error().Err(err).Str("cutoff", cutoff).Msg("Failed to load previous totals")
		h.writeError(w, "Failed to load movers", http.StatusInternalServerError)
		return
	}

	movers := make([]moverRow, 0, len(entries))
	for _, e := range entries {
		old, ok := previous[e.score.CompanyID]
		if !ok {
			continue
		}
		change := e.score.TotalScore.Sub(old)
		changePct := decimal.Zero
		if !old.IsZero() {
			changePct = change.Div(old).Mul(decimal.NewFromInt(100)).Round(2)
		}
		movers = append(movers, moverRow{
			Ticker:        e.company.Ticker,
			Name:          e.company.Name,
			Sector:        e.company.Sector,
			CurrentScore:  e.score.TotalScore.Round(2),
			PreviousScore: old.Round(2),
			Change:        change.Round(2),
			ChangePct:     changePct,
		})
	}

	sort.Slice(movers, func(i, j int) bool {
		if !movers[i].Change.Equal(movers[j].Change) {
			return movers[i].Change.GreaterThan(movers[j].Change)
		}
		return movers[i].Ticker < movers[j].Ticker
	})

	gainers := make([]moverRow, 0, limit)
	for _, m := range movers {
		if len(gainers) == limit || !m.Change.IsPositive() {
			break
		}
		gainers = append(gainers, m)
	}
	losers := make([]moverRow, 0, limit)
	for i := len(movers) - 1; i >= 0; i-- {
		if len(losers) == limit || !movers[i].Change.IsNegative() {
			break
		}
		losers = append(losers, movers[i])
	}

	h.writeJSON(w, http.StatusOK, moversResponse{Period: period, Gainers: gainers, Losers: losers})
}

// HandleTiers returns how the latest scores distribute across the five tiers.
// GET /api/v1/rankings/tiers
func (h *Handlers) HandleTiers(w http.ResponseWriter, r *http.Request) {
	entries, err := h.rankedEntries(domain.ScenarioCurrent)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load tier distribution")
		h.writeError(w, "Failed to load tier distribution", http.StatusInternalServerError)
		return
	}

	counts := make(map[string]int)
	sums := make(map[string]decimal.Decimal)
	for _, e := range entries {
		counts[e.score.Tier]++
		sums[e.score.Tier] = sums[e.score.Tier].Add(e.score.TotalScore)
	}

	bucket := func(name string) tierBucket {
		band := tierBands[name]
		b := tierBucket{Min: band.Min, Max: band.Max, Count: counts[name]}
		if n := counts[name]; n > 0 {
			avg := sums[name].Div(decimal.NewFromInt(int64(n))).Round(2)
			b.AvgScore = &avg
		}
		return b
	}

	h.writeJSON(w, http.StatusOK, tierDistribution{
		Fortress:   bucket(scoring.TierFortress),
		Resilient:  bucket(scoring.TierResilient),
		Moderate:   bucket(scoring.TierModerate),
		Vulnerable: bucket(scoring.TierVulnerable),
		Exposed:    bucket(scoring.TierExposed),
	})
}

// rankedEntries joins the latest ranked scores against active companies.
// Scores for deactivated or deleted companies drop out of every ranking.
func (h *Handlers) rankedEntries(scenario domain.Scenario) ([]rankedEntry, error) {
	scores, err := h.ranks.LatestRanked(scenario)
	if err != nil {
		return nil, err
	}
	active, err := h.companies.ListActive()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Company, len(active))
	for _, c := range active {
		byID[c.ID] = c
	}

	entries := make([]rankedEntry, 0, len(scores))
	for _, s := range scores {
		c, ok := byID[s.CompanyID]
		if !ok {
			continue
		}
		entries = append(entries, rankedEntry{company: c, score: s})
	}
	return entries, nil
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
