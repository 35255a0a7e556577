// Package handlers provides HTTP handlers for the portfolio API.
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
	"github.com/aristath/hedge/internal/modules/portfolio"
)

// CompanySource resolves tickers and holding companies against the universe.
// *companies.Repository satisfies it.
type CompanySource interface {
	GetByTicker(ticker string) (*domain.Company, error)
	GetByID(id string) (*domain.Company, error)
}

// ScoreReader provides the latest-score lookups holding rows join against.
// *scoring.Repository satisfies it.
type ScoreReader interface {
	LatestScores() (map[string]*domain.SurvivalScore, error)
}

// Handlers contains HTTP handlers for the portfolio API.
type Handlers struct {
	portfolios    *portfolio.Repository
	service       *portfolio.Service
	companies     CompanySource
	scores        ScoreReader
	maxPortfolios int
	log           zerolog.Logger
}

// NewHandlers creates a new portfolio handlers instance. maxPortfolios is the
// per-user cap; creation beyond it is forbidden.
func NewHandlers(
	repo *portfolio.Repository,
	service *portfolio.Service,
	companies CompanySource,
	scores ScoreReader,
	maxPortfolios int,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		portfolios:    repo,
		service:       service,
		companies:     companies,
		scores:        scores,
		maxPortfolios: maxPortfolios,
		log:           log.With().Str("module", "portfolio_handlers").Logger(),
	}
}

// portfolioRow is one list entry with holding aggregates joined in.
type portfolioRow struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	IsPrimary     bool            `json:"is_primary"`
	HoldingsCount int             `json:"holdings_count"`
	TotalValue    decimal.Decimal `json:"total_value"`
	CreatedAt     time.Time       `json:"created_at"`
}

// portfolioSummary is the create/update response shape.
type portfolioSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsPrimary   bool      `json:"is_primary"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// holdingRow is one holding in the detail view, decorated with company
// identity, derived gain/loss, and the latest score.
type holdingRow struct {
	ID           string           `json:"id"`
	Ticker       string           `json:"ticker"`
	Name         string           `json:"name"`
	Shares       *decimal.Decimal `json:"shares"`
	CostBasis    *decimal.Decimal `json:"cost_basis"`
	CurrentValue *decimal.Decimal `json:"current_value"`
	GainLoss     *decimal.Decimal `json:"gain_loss"`
	GainLossPct  *decimal.Decimal `json:"gain_loss_pct"`
	Score        *decimal.Decimal `json:"score"`
	Tier         *string          `json:"tier"`
}

type portfolioDetail struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	IsPrimary   bool            `json:"is_primary"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Holdings    []holdingRow    `json:"holdings"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// holdingResponse is the add/update holding response shape.
type holdingResponse struct {
	ID           string           `json:"id"`
	Ticker       string           `json:"ticker,omitempty"`
	Shares       *decimal.Decimal `json:"shares"`
	CostBasis    *decimal.Decimal `json:"cost_basis"`
	CurrentValue *decimal.Decimal `json:"current_value"`
}

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type holdingCreateRequest struct {
	Ticker       string           `json:"ticker"`
	Shares       *decimal.Decimal `json:"shares"`
	CostBasis    *decimal.Decimal `json:"cost_basis"`
	CurrentValue *decimal.Decimal `json:"current_value"`
}

type holdingUpdateRequest struct {
	Shares       *decimal.Decimal `json:"shares"`
	CostBasis    *decimal.Decimal `json:"cost_basis"`
	CurrentValue *decimal.Decimal `json:"current_value"`
}

// HandleList returns the user's portfolios, primary first.
// GET /api/v1/portfolio
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.portfolios.List(domain.DefaultUserID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list portfolios")
		h.writeError(w, "Failed to list portfolios", http.StatusInternalServerError)
		return
	}

	aggregates, err := h.portfolios.HoldingAggregates(domain.DefaultUserID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load holding aggregates")
		h.writeError(w, "Failed to load holding aggregates", http.StatusInternalServerError)
		return
	}

	rows := make([]portfolioRow, 0, len(portfolios))
	for _, p := range portfolios {
		agg := aggregates[p.ID]
		rows = append(rows, portfolioRow{
			ID:            p.ID,
			Name:          p.Name,
			Description:   p.Description,
			IsPrimary:     p.IsPrimary,
			HoldingsCount: agg.Count,
			TotalValue:    agg.TotalValue,
			CreatedAt:     p.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": rows})
}

// HandleCreate creates a portfolio. The user's first portfolio becomes
// primary; creating past the cap is forbidden.
// POST /api/v1/portfolio
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		h.writeError(w, "name is required", http.StatusBadRequest)
		return
	}

	count, err := h.portfolios.CountForUser(domain.DefaultUserID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count portfolios")
		h.writeError(w, "Failed to count portfolios", http.StatusInternalServerError)
		return
	}
	if count >= h.maxPortfolios {
		h.writeError(w, fmt.Sprintf("Portfolio limit reached (%d)", h.maxPortfolios), http.StatusForbidden)
		return
	}

	p := &domain.Portfolio{
		UserID:      domain.DefaultUserID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		IsPrimary:   count == 0,
	}
	if err := h.portfolios.Create(p); err != nil {
		h.log.Error().Err(err).Msg("Failed to create portfolio")
		h.writeError(w, "Failed to create portfolio", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, summaryOf(p))
}

// HandleDetail returns a portfolio with holdings and their latest scores.
// GET /api/v1/portfolio/{portfolioID}
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	p := h.loadPortfolio(w, r)
	if p == nil {
		return
	}

	holdings, err := h.portfolios.Holdings(p.ID)
	if err != nil {
		h.log.Error().Err(err).Str("portfolio_id", p.ID).Msg("Failed to load holdings")
		h.writeError(w, "Failed to load holdings", http.StatusInternalServerError)
		return
	}

	latest, err := h.scores.LatestScores()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest scores")
		h.writeError(w, "Failed to load latest scores", http.StatusInternalServerError)
		return
	}

	totalValue := decimal.Zero
	rows := make([]holdingRow, 0, len(holdings))
	for _, holding := range holdings {
		if holding.CurrentValue != nil {
			totalValue = totalValue.Add(*holding.CurrentValue)
		}

		row := holdingRow{
			ID:           holding.ID,
			Shares:       holding.Shares,
			CostBasis:    holding.CostBasis,
			CurrentValue: holding.CurrentValue,
		}

		company, err := h.companies.GetByID(holding.CompanyID)
		if err != nil {
			h.log.Error().Err(err).Str("company_id", holding.CompanyID).Msg("Failed to load company")
			h.writeError(w, "Failed to load company", http.StatusInternalServerError)
			return
		}
		if company != nil {
			row.Ticker = company.Ticker
			row.Name = company.Name
		}

		if holding.CurrentValue != nil && holding.CostBasis != nil {
			gain := holding.CurrentValue.Sub(*holding.CostBasis)
			row.GainLoss = &gain
			if holding.CostBasis.IsPositive() {
				pct := holding.CurrentValue.Div(*holding.CostBasis).
					Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).Round(2)
				row.GainLossPct = &pct
			}
		}

		if score := latest[holding.CompanyID]; score != nil {
			total := score.TotalScore
			tier := score.Tier
			row.Score = &total
			row.Tier = &tier
		}

		rows = append(rows, row)
	}

	h.writeJSON(w, http.StatusOK, portfolioDetail{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		IsPrimary:   p.IsPrimary,
		TotalValue:  totalValue,
		Holdings:    rows,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	})
}

// HandleUpdate renames or redescribes a portfolio. Absent fields keep their
// values.
// PUT /api/v1/portfolio/{portfolioID}
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	p := h.loadPortfolio(w, r)
	if p == nil {
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			h.writeError(w, "name must not be empty", http.StatusBadRequest)
			return
		}
		p.Name = name
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}

	if err := h.portfolios.Update(p); err != nil {
		h.log.Error().Err(err).Str("portfolio_id", p.ID).Msg("Failed to update portfolio")
		h.writeError(w, "Failed to update portfolio", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, summaryOf(p))
}

// HandleDelete removes a portfolio together with its holdings.
// DELETE /api/v1/portfolio/{portfolioID}
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	deleted, err := h.portfolios.Delete(domain.DefaultUserID, portfolioID)
	if err != nil {
		h.log.Error().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to delete portfolio")
		h.writeError(w, "Failed to delete portfolio", http.StatusInternalServerError)
		return
	}
	if !deleted {
		h.writeError(w, "Portfolio not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleAddHolding adds a position, or restates shares and costs when the
// company is already held.
// POST /api/v1/portfolio/{portfolioID}/holdings
func (h *Handlers) HandleAddHolding(w http.ResponseWriter, r *http.Request) {
	p := h.loadPortfolio(w, r)
	if p == nil {
		return
	}

	var req holdingCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		h.writeError(w, "ticker is required", http.StatusBadRequest)
		return
	}
	if req.Shares == nil {
		h.writeError(w, "shares is required", http.StatusBadRequest)
		return
	}
	if !req.Shares.IsPositive() {
		h.writeError(w, "shares must be positive", http.StatusBadRequest)
		return
	}
	if msg := negativeField(req.CostBasis, "cost_basis"); msg != "" {
		h.writeError(w, msg, http.StatusBadRequest)
		return
	}
	if msg := negativeField(req.CurrentValue, "current_value"); msg != "" {
		h.writeError(w, msg, http.StatusBadRequest)
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

	existing, err := h.portfolios.GetHoldingByCompany(p.ID, company.ID)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to check holdings")
		h.writeError(w, "Failed to check holdings", http.StatusInternalServerError)
		return
	}

	if existing != nil {
		existing.Shares = req.Shares
		if req.CostBasis != nil {
			existing.CostBasis = req.CostBasis
		}
		if req.CurrentValue != nil {
			existing.CurrentValue = req.CurrentValue
		}
		if err := h.portfolios.UpdateHolding(existing); err != nil {
			h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to update holding")
			h.writeError(w, "Failed to update holding", http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, http.StatusOK, holdingResponseOf(existing, company.Ticker))
		return
	}

	holding := &domain.Holding{
		PortfolioID:  p.ID,
		CompanyID:    company.ID,
		Shares:       req.Shares,
		CostBasis:    req.CostBasis,
		CurrentValue: req.CurrentValue,
	}
	if err := h.portfolios.AddHolding(holding); err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to add holding")
		h.writeError(w, "Failed to add holding", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, holdingResponseOf(holding, company.Ticker))
}

// HandleUpdateHolding updates a position's shares, cost basis, or value.
// PUT /api/v1/portfolio/{portfolioID}/holdings/{holdingID}
func (h *Handlers) HandleUpdateHolding(w http.ResponseWriter, r *http.Request) {
	p := h.loadPortfolio(w, r)
	if p == nil {
		return
	}

	var req holdingUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Shares != nil && !req.Shares.IsPositive() {
		h.writeError(w, "shares must be positive", http.StatusBadRequest)
		return
	}
	if msg := negativeField(req.CostBasis, "cost_basis"); msg != "" {
		h.writeError(w, msg, http.StatusBadRequest)
		return
	}
	if msg := negativeField(req.CurrentValue, "current_value"); msg != "" {
		h.writeError(w, msg, http.StatusBadRequest)
		return
	}

	holding, err := h.portfolios.GetHolding(p.ID, chi.URLParam(r, "holdingID"))
	if err != nil {
		h.log.Error().Err(err).Str("portfolio_id", p.ID).Msg("Failed to load holding")
		h.writeError(w, "Failed to load holding", http.StatusInternalServerError)
		return
	}
	if holding == nil {
		h.writeError(w, "Holding not found", http.StatusNotFound)
		return
	}

	if req.Shares != nil {
		holding.Shares = req.Shares
	}
	if req.CostBasis != nil {
		holding.CostBasis = req.CostBasis
	}
	if req.CurrentValue != nil {
		holding.CurrentValue = req.CurrentValue
	}

	if err := h.portfolios.UpdateHolding(holding); err != nil {
		h.log.Error().Err(err).Str("holding_id", holding.ID).Msg("Failed to update holding")
		h.writeError(w, "Failed to update holding", http.StatusInternalServerError)
		return
	}

	ticker := ""
	if company, err := h.companies.GetByID(holding.CompanyID); err == nil && company != nil {
		ticker = company.Ticker
	}

	h.writeJSON(w, http.StatusOK, holdingResponseOf(holding, ticker))
}

// HandleRemoveHolding removes a position.
// DELETE /api/v1/portfolio/{portfolioID}/holdings/{holdingID}
func (h *Handlers) HandleRemoveHolding(w http.ResponseWriter, r *http.Request) {
	p := h.loadPortfolio(w, r)
	if p == nil {
		return
	}

	removed, err := h.portfolios.RemoveHolding(p.ID, chi.URLParam(r, "holdingID"))
	if err != nil {
		h.log.Error().Err(err).Str("portfolio_id", p.ID).Msg("Failed to remove holding")
		h.writeError(w, "Failed to remove holding", http.StatusInternalServerError)
		return
	}
	if !removed {
		h.writeError(w, "Holding not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleAnalyze returns value-weighted survival metrics for a portfolio.
// GET /api/v1/portfolio/{portfolioID}/analyze
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Analyze(domain.DefaultUserID, chi.URLParam(r, "portfolioID"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to analyze portfolio")
		h.writeError(w, "Failed to analyze portfolio", http.StatusInternalServerError)
		return
	}
	if result == nil {
		h.writeError(w, "Portfolio not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleScenario projects a portfolio's value under a devaluation scenario.
// POST /api/v1/portfolio/{portfolioID}/scenario
func (h *Handlers) HandleScenario(w http.ResponseWriter, r *http.Request) {
	var req portfolio.ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Project(domain.DefaultUserID, chi.URLParam(r, "portfolioID"), &req)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to project scenario")
		h.writeError(w, "Failed to project scenario", http.StatusInternalServerError)
		return
	}
	if result == nil {
		h.writeError(w, "Portfolio not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// loadPortfolio resolves the {portfolioID} route param for the user, writing
// a 404 or 500 and returning nil when the portfolio is unavailable.
func (h *Handlers) loadPortfolio(w http.ResponseWriter, r *http.Request) *domain.Portfolio {
	portfolioID := chi.URLParam(r, "portfolioID")

	p, err := h.portfolios.Get(domain.DefaultUserID, portfolioID)
	if err != nil {
		h.log.Error().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to load portfolio")
		h.writeError(w, "Failed to load portfolio", http.StatusInternalServerError)
		return nil
	}
	if p == nil {
		h.writeError(w, "Portfolio not found", http.StatusNotFound)
		return nil
	}

	return p
}

func summaryOf(p *domain.Portfolio) portfolioSummary {
	return portfolioSummary{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		IsPrimary:   p.IsPrimary,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func holdingResponseOf(h *domain.Holding, ticker string) holdingResponse {
	return holdingResponse{
		ID:           h.ID,
		Ticker:       ticker,
		Shares:       h.Shares,
		CostBasis:    h.CostBasis,
		CurrentValue: h.CurrentValue,
	}
}

// negativeField returns a validation message when the value is present and
// negative.
func negativeField(d *decimal.Decimal, name string) string {
	if d != nil && d.IsNegative() {
		return name + " must not be negative"
	}
	return ""
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
