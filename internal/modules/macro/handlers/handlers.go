// Package handlers provides HTTP handlers for the macro API.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/modules/macro"
)

const (
	dateFormat     = "2006-01-02"
	defaultDays    = 90
	defaultLimit   = 90
	maxLimit       = 365
	defaultMetrics = "dxy,gold,m2"
	// trendLookback rows comfortably cover the 30-day average plus its
	// previous point even with a few null gaps.
	trendLookback = 45
)

// Handlers contains HTTP handlers for the macro API.
type Handlers struct {
	repo *macro.Repository
	log  zerolog.Logger
}

// NewHandlers creates a new macro handlers instance.
func NewHandlers(repo *macro.Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo: repo,
		log:  log.With().Str("module", "macro_handlers").Logger(),
	}
}

// snapshotView is the full indicator row as the API exposes it. Nulls are
// explicit so chart clients can distinguish missing from zero.
type snapshotView struct {
	Date          string           `json:"date"`
	DXYIndex      *decimal.Decimal `json:"dxy_index"`
	GoldPrice     *decimal.Decimal `json:"gold_price"`
	SilverPrice   *decimal.Decimal `json:"silver_price"`
	OilPrice      *decimal.Decimal `json:"oil_price"`
	M2MoneySupply *decimal.Decimal `json:"m2_money_supply"`
	FedFundsRate  *decimal.Decimal `json:"fed_funds_rate"`
	CPIYoY        *decimal.Decimal `json:"cpi_yoy"`
	PCEYoY        *decimal.Decimal `json:"pce_yoy"`
	TenYearYield  *decimal.Decimal `json:"ten_year_yield"`
	RealRates     *decimal.Decimal `json:"real_rates"`
	USDEUR        *decimal.Decimal `json:"usd_eur"`
	USDJPY        *decimal.Decimal `json:"usd_jpy"`
	USDCNY        *decimal.Decimal `json:"usd_cny"`
}

func viewOf(s *domain.MacroSnapshot) snapshotView {
	return snapshotView{
		Date:          s.DataDate.Format(dateFormat),
		DXYIndex:      s.DXYIndex,
		GoldPrice:     s.GoldPrice,
		SilverPrice:   s.SilverPrice,
		OilPrice:      s.OilPrice,
		M2MoneySupply: s.M2MoneySupply,
		FedFundsRate:  s.FedFundsRate,
		CPIYoY:        s.CPIYoY,
		PCEYoY:        s.PCEYoY,
		TenYearYield:  s.TenYearYield,
		RealRates:     s.RealRates,
		USDEUR:        s.USDEUR,
		USDJPY:        s.USDJPY,
		USDCNY:        s.USDCNY,
	}
}

// HandleCurrent returns the latest indicator row, or a null payload before
// the first ingestion.
// GET /api/v1/macro/current
func (h *Handlers) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	latest, err := h.repo.Latest()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest macro data")
		h.writeError(w, "Failed to load macro data", http.StatusInternalServerError)
		return
	}

	if latest == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"data":       nil,
			"updated_at": time.Now().UTC(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       viewOf(latest),
		"updated_at": latest.UpdatedAt,
	})
}

// HandleHistory returns indicator time series for charting. The metrics CSV
// picks columns (rates and inflation expand to their pairs); unknown names
// are ignored. Defaults to the last 90 days ascending.
// GET /api/v1/macro/history?metrics=dxy,gold&start_date&end_date&limit
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	now := time.Now().UTC()
	start := now.AddDate(0, 0, -defaultDays)
	if raw := q.Get("start_date"); raw != "" {
		parsed, err := time.Parse(dateFormat, raw)
		if err != nil {
			h.writeError(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		start = parsed
	}

	end := now
	if raw := q.Get("end_date"); raw != "" {
		parsed, err := time.Parse(dateFormat, raw)
		if err != nil {
			h.writeError(w, "end_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		end = parsed
	}

	limit := defaultLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxLimit {
			h.writeError(w, "limit must be between 1 and 365", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	metricsCSV := q.Get("metrics")
	if metricsCSV == "" {
		metricsCSV = defaultMetrics
	}
	metrics := make(map[string]bool)
	for _, m := range strings.Split(metricsCSV, ",") {
		metrics[strings.ToLower(strings.TrimSpace(m))] = true
	}

	snapshots, err := h.repo.Range(start, end, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load macro history")
		h.writeError(w, "Failed to load macro history", http.StatusInternalServerError)
		return
	}

	data := make([]map[string]interface{}, 0, len(snapshots))
	for i := range snapshots {
		s := &snapshots[i]
		point := map[string]interface{}{"date": s.DataDate.Format(dateFormat)}

		if metrics["dxy"] {
			point["dxy"] = s.DXYIndex
		}
		if metrics["gold"] {
			point["gold"] = s.GoldPrice
		}
		if metrics["silver"] {
			point["silver"] = s.SilverPrice
		}
		if metrics["m2"] {
			point["m2"] = s.M2MoneySupply
		}
		if metrics["oil"] {
			point["oil"] = s.OilPrice
		}
		if metrics["rates"] {
			point["fed_funds"] = s.FedFundsRate
			point["ten_year"] = s.TenYearYield
		}
		if metrics["inflation"] {
			point["cpi"] = s.CPIYoY
			point["pce"] = s.PCEYoY
		}

		data = append(data, point)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

// changeBlock is one indicator with its short- and year-to-date moves.
type changeBlock struct {
	Current   *decimal.Decimal `json:"current"`
	Change1D  *decimal.Decimal `json:"change_1d"`
	ChangeYTD *decimal.Decimal `json:"change_ytd"`
}

// HandleDashboard returns the latest row with derived moves and trends.
// GET /api/v1/macro/dashboard
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	latest, err := h.repo.Latest()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest macro data")
		h.writeError(w, "Failed to load macro data", http.StatusInternalServerError)
		return
	}

	if latest == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"dollar":       changeBlock{},
			"metals":       map[string]changeBlock{"gold": {}, "silver": {}},
			"energy":       map[string]changeBlock{"oil": {}},
			"money_supply": map[string]*decimal.Decimal{"m2": nil, "yoy_change": nil},
			"rates":        map[string]*decimal.Decimal{"fed_funds": nil, "ten_year": nil, "real_rates": nil},
			"inflation":    map[string]*decimal.Decimal{"cpi_yoy": nil, "pce_yoy": nil},
			"currencies":   map[string]*decimal.Decimal{"usd_eur": nil, "usd_jpy": nil, "usd_cny": nil},
			"trends":       map[string]*macro.Trend{"dxy": nil, "gold": nil},
			"updated_at":   time.Now().UTC(),
		})
		return
	}

	// Baselines are relative to the latest row's own date, so a stale series
	// still compares against its previous row instead of itself.
	previous, err := h.repo.LatestBefore(latest.DataDate)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load previous macro row")
		h.writeError(w, "Failed to load macro data", http.StatusInternalServerError)
		return
	}
	ytdStart, err := h.repo.FirstSince(time.Date(latest.DataDate.Year(), 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load year-start macro row")
		h.writeError(w, "Failed to load macro data", http.StatusInternalServerError)
		return
	}
	yearAgo, err := h.repo.LatestThrough(latest.DataDate.AddDate(-1, 0, 0))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load year-ago macro row")
		h.writeError(w, "Failed to load macro data", http.StatusInternalServerError)
		return
	}

	block := func(pick func(*domain.MacroSnapshot) *decimal.Decimal) changeBlock {
		current := pick(latest)
		b := changeBlock{Current: current}
		if previous != nil {
			b.Change1D = calcChange(current, pick(previous))
		}
		if ytdStart != nil {
			b.ChangeYTD = calcChange(current, pick(ytdStart))
		}
		return b
	}

	var m2YoY *decimal.Decimal
	if yearAgo != nil {
		m2YoY = calcChange(latest.M2MoneySupply, yearAgo.M2MoneySupply)
	}

	recent, err := h.repo.Recent(trendLookback)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load macro trend window")
		h.writeError(w, "Failed to load macro data", http.StatusInternalServerError)
		return
	}
	dxyTrend := macro.TrendOf(seriesOf(recent, func(s *domain.MacroSnapshot) *decimal.Decimal { return s.DXYIndex }))
	goldTrend := macro.TrendOf(seriesOf(recent, func(s *domain.MacroSnapshot) *decimal.Decimal { return s.GoldPrice }))

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"dollar": block(func(s *domain.MacroSnapshot) *decimal.Decimal { return s.DXYIndex }),
		"metals": map[string]changeBlock{
			"gold":   block(func(s *domain.MacroSnapshot) *decimal.Decimal { return s.GoldPrice }),
			"silver": block(func(s *domain.MacroSnapshot) *decimal.Decimal { return s.SilverPrice }),
		},
		"energy": map[string]changeBlock{
			"oil": block(func(s *domain.MacroSnapshot) *decimal.Decimal { return s.OilPrice }),
		},
		"money_supply": map[string]*decimal.Decimal{
			"m2":         latest.M2MoneySupply,
			"yoy_change": m2YoY,
		},
		"rates": map[string]*decimal.Decimal{
			"fed_funds":  latest.FedFundsRate,
			"ten_year":   latest.TenYearYield,
			"real_rates": latest.RealRates,
		},
		"inflation": map[string]*decimal.Decimal{
			"cpi_yoy": latest.CPIYoY,
			"pce_yoy": latest.PCEYoY,
		},
		"currencies": map[string]*decimal.Decimal{
			"usd_eur": latest.USDEUR,
			"usd_jpy": latest.USDJPY,
			"usd_cny": latest.USDCNY,
		},
		"trends": map[string]*macro.Trend{
			"dxy":  dxyTrend,
			"gold": goldTrend,
		},
		"updated_at": latest.UpdatedAt,
	})
}

// calcChange is the percentage move from previous to current, 2dp. Nil when
// either side is missing or the base is zero.
func calcChange(current, previous *decimal.Decimal) *decimal.Decimal {
	if current == nil || previous == nil || previous.IsZero() {
		return nil
	}
	change := current.Sub(*previous).Div(*previous).Mul(decimal.NewFromInt(100)).Round(2)
	return &change
}

// seriesOf extracts one indicator's non-null values in date order.
func seriesOf(snapshots []domain.MacroSnapshot, pick func(*domain.MacroSnapshot) *decimal.Decimal) []float64 {
	values := make([]float64, 0, len(snapshots))
	for i := range snapshots {
		if v := pick(&snapshots[i]); v != nil {
			values = append(values, v.InexactFloat64())
		}
	}
	return values
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (h *Handlers) writeError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
