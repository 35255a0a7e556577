// Package handlers provides HTTP handlers for the watchlist API.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/modules/watchlist"
)

// CompanySource resolves tickers against the universe. *companies.Repository
// satisfies it.
type CompanySource interface {
	GetByTicker(ticker string) (*domain.Company, error)
	GetByID(id string) (*domain.Company, error)
}

// ScoreReader provides the latest-score lookups watchlist rows join against.
// *scoring.Repository satisfies it.
type ScoreReader interface {
	LatestScores() (map[string]*domain.SurvivalScore, error)
	GetLatest(companyID string) (*domain.SurvivalScore, error)
}

// Handlers contains HTTP handlers for the watchlist API.
type Handlers struct {
	watchlist *watchlist.Repository
	companies CompanySource
	scores    ScoreReader
	log       zerolog.Logger
}

// NewHandlers creates a new watchlist handlers instance.
func NewHandlers(repo *watchlist.Repository, companies CompanySource, scores ScoreReader, log zerolog.Logger) *Handlers {
	return &Handlers{
		watchlist: repo,
		companies: companies,
		scores:    scores,
		log:       log.With().Str("module", "watchlist_handlers").Logger(),
	}
}

// watchlistRow is one watchlist entry decorated with company identity and the
// latest score.
type watchlistRow struct {
	ID          string           `json:"id"`
	Ticker      string           `json:"ticker"`
	Name        string           `json:"name"`
	Sector      string           `json:"sector,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	TargetScore *decimal.Decimal `json:"target_score,omitempty"`
	Score       *decimal.Decimal `json:"score"`
	Tier        *string          `json:"tier"`
	AddedAt     time.Time        `json:"added_at"`
}

type addRequest struct {
	Ticker      string           `json:"ticker"`
	Notes       string           `json:"notes"`
	TargetScore *decimal.Decimal `json:"target_score"`
}

// HandleList returns the user's watchlist, newest first, with latest scores.
// GET /api/v1/watchlist
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.watchlist.List(domain.DefaultUserID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list watchlist")
		h.writeError(w, "Failed to list watchlist", http.StatusInternalServerError)
		return
	}

	latest, err := h.scores.LatestScores()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest scores")
		h.writeError(w, "Failed to load latest scores", http.StatusInternalServerError)
		return
	}

	rows := make([]watchlistRow, 0, len(items))
	for _, item := range items {
		company, err := h.companies.GetByID(item.CompanyID)
		if err != nil {
			h.log.Error().Err(err).Str("company_id", item.CompanyID).Msg("Failed to load company")
			h.writeError(w, "Failed to load company", http.StatusInternalServerError)
			return
		}
		if company == nil {
			// The company row is gone; the orphaned entry has nothing to show.
			h.log.Warn().Str("company_id", item.CompanyID).Msg("Watchlist entry references unknown company")
			continue
		}
		rows = append(rows, buildRow(item, company, latest[company.ID]))
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": rows})
}

// HandleAdd puts a company on the watchlist.
// POST /api/v1/watchlist
func (h *Handlers) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		h.writeError(w, "ticker is required", http.StatusBadRequest)
		return
	}
	if req.TargetScore != nil &&
		(req.TargetScore.IsNegative() || req.TargetScore.GreaterThan(decimal.NewFromInt(100))) {
		h.writeError(w, "target_score must be between 0 and 100", http.StatusBadRequest)
		return
	}

	company, err := h.companies.GetByTicker(ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to look up company")
		h.writeError(w, "Failed to look up company", http.StatusInternalServerError)
		return
	}
	if company == nil {
		h.writeError(w, fmt.Sprintf("Company not found: %s", ticker), http.StatusNotFound)
		return
	}

	existing, err := h.watchlist.Get(domain.DefaultUserID, company.ID)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to check watchlist")
		h.writeError(w, "Failed to check watchlist", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		h.writeError(w, fmt.Sprintf("%s is already on the watchlist", ticker), http.StatusConflict)
		return
	}

	item := &domain.WatchlistItem{
		UserID:      domain.DefaultUserID,
		CompanyID:   company.ID,
		Notes:       strings.TrimSpace(req.Notes),
		TargetScore: req.TargetScore,
	}
	if err := h.watchlist.Add(item); err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to add watchlist item")
		h.writeError(w, "Failed to add watchlist item", http.StatusInternalServerError)
		return
	}

	score, err := h.scores.GetLatest(company.ID)
	if err != nil {
		// The entry is saved; respond without the score decoration.
		h.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to load latest score")
	}

	h.writeJSON(w, http.StatusCreated, buildRow(*item, company, score))
}

// HandleRemove takes a company off the watchlist.
// DELETE /api/v1/watchlist/{ticker}
func (h *Handlers) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ticker")))

	company, err := h.companies.GetByTicker(ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to look up company")
		h.writeError(w, "Failed to look up company", http.StatusInternalServerError)
		return
	}
	if company == nil {
		h.writeError(w, fmt.Sprintf("Company not found: %s", ticker), http.StatusNotFound)
		return
	}

	removed, err := h.watchlist.Remove(domain.DefaultUserID, company.ID)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to remove watchlist item")
		h.writeError(w, "Failed to remove watchlist item", http.StatusInternalServerError)
		return
	}
	if !removed {
		h.writeError(w, fmt.Sprintf("%s is not on the watchlist", ticker), http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func buildRow(item domain.WatchlistItem, company *domain.Company, score *domain.SurvivalScore) watchlistRow {
	row := watchlistRow{
		ID:          item.ID,
		Ticker:      company.Ticker,
		Name:        company.Name,
		Sector:      company.Sector,
		Notes:       item.Notes,
		TargetScore: item.TargetScore,
		AddedAt:     item.CreatedAt,
	}
	if score != nil {
		total := score.TotalScore
		tier := score.Tier
		row.Score = &total
		row.Tier = &tier
	}
	return row
}

// writeJSON writes a JSON response with the given status code
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
