// Package handlers provides HTTP handlers for the alerts API.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/modules/alerts"
)

// CompanySource resolves tickers and alert companies against the universe.
// *companies.Repository satisfies it.
type CompanySource interface {
	GetByTicker(ticker string) (*domain.Company, error)
	GetByID(id string) (*domain.Company, error)
}

// PortfolioSource checks portfolio ownership for portfolio-scoped alerts.
// *portfolio.Repository satisfies it.
type PortfolioSource interface {
	Get(userID, id string) (*domain.Portfolio, error)
}

// Handlers contains HTTP handlers for the alerts API.
type Handlers struct {
	alerts     *alerts.Repository
	companies  CompanySource
	portfolios PortfolioSource
	log        zerolog.Logger
}

// NewHandlers creates a new alerts handlers instance.
func NewHandlers(repo *alerts.Repository, companies CompanySource, portfolios PortfolioSource, log zerolog.Logger) *Handlers {
	return &Handlers{
		alerts:     repo,
		companies:  companies,
		portfolios: portfolios,
		log:        log.With().Str("module", "alerts_handlers").Logger(),
	}
}

// alertRow is one alert in API responses, with the company id resolved back
// to its ticker.
type alertRow struct {
	ID                 string           `json:"id"`
	Ticker             string           `json:"ticker,omitempty"`
	PortfolioID        *string          `json:"portfolio_id,omitempty"`
	AlertType          string           `json:"alert_type"`
	ThresholdValue     *decimal.Decimal `json:"threshold_value,omitempty"`
	ThresholdDirection string           `json:"threshold_direction,omitempty"`
	ChangePercent      *decimal.Decimal `json:"change_percent,omitempty"`
	NotifyEmail        bool             `json:"notify_email"`
	NotifyPush         bool             `json:"notify_push"`
	IsActive           bool             `json:"is_active"`
	LastTriggeredAt    *time.Time       `json:"last_triggered_at,omitempty"`
	TriggerCount       int              `json:"trigger_count"`
	CreatedAt          time.Time        `json:"created_at"`
}

type createRequest struct {
	Ticker             string           `json:"ticker"`
	PortfolioID        string           `json:"portfolio_id"`
	AlertType          string           `json:"alert_type"`
	ThresholdValue     *decimal.Decimal `json:"threshold_value"`
	ThresholdDirection string           `json:"threshold_direction"`
	ChangePercent      *decimal.Decimal `json:"change_percent"`
	NotifyEmail        *bool            `json:"notify_email"`
	NotifyPush         *bool            `json:"notify_push"`
}

type updateRequest struct {
	ThresholdValue     *decimal.Decimal `json:"threshold_value"`
	ThresholdDirection *string          `json:"threshold_direction"`
	ChangePercent      *decimal.Decimal `json:"change_percent"`
	NotifyEmail        *bool            `json:"notify_email"`
	NotifyPush         *bool            `json:"notify_push"`
	IsActive           *bool            `json:"is_active"`
}

// HandleList returns the user's alerts, newest first. ?is_active=true|false
// narrows the list.
// GET /api/v1/alerts
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	var isActive *bool
	if raw := r.URL.Query().Get("is_active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, "is_active must be true or false", http.StatusBadRequest)
			return
		}
		isActive = &v
	}

	list, err := h.alerts.List(domain.DefaultUserID, isActive)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list alerts")
		h.writeError(w, "Failed to list alerts", http.StatusInternalServerError)
		return
	}

	rows := make([]alertRow, 0, len(list))
	for i := range list {
		rows = append(rows, h.rowOf(&list[i]))
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": rows})
}

// HandleCreate creates an alert after validating the type-specific
// requirements.
// POST /api/v1/alerts
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if !domain.ValidAlertType(req.AlertType) {
		h.writeError(w, "alert_type must be one of threshold, score_drop, score_rise", http.StatusBadRequest)
		return
	}

	a := &domain.Alert{
		UserID:      domain.DefaultUserID,
		AlertType:   req.AlertType,
		NotifyEmail: true,
		IsActive:    true,
	}
	if req.NotifyEmail != nil {
		a.NotifyEmail = *req.NotifyEmail
	}
	if req.NotifyPush != nil {
		a.NotifyPush = *req.NotifyPush
	}

	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		h.writeError(w, "ticker is required", http.StatusBadRequest)
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
	a.CompanyID = &company.ID

	if req.PortfolioID != "" {
		p, err := h.portfolios.Get(domain.DefaultUserID, req.PortfolioID)
		if err != nil {
			h.log.Error().Err(err).Str("portfolio_id", req.PortfolioID).Msg("Failed to look up portfolio")
			h.writeError(w, "Failed to look up portfolio", http.StatusInternalServerError)
			return
		}
		if p == nil {
			h.writeError(w, "Portfolio not found", http.StatusNotFound)
			return
		}
		a.PortfolioID = &p.ID
	}

	switch req.AlertType {
	case domain.AlertTypeThreshold:
		if req.ThresholdValue == nil {
			h.writeError(w, "threshold_value is required for threshold alerts", http.StatusBadRequest)
			return
		}
		direction := req.ThresholdDirection
		if direction == "" {
			direction = domain.DirectionBelow
		}
		if direction != domain.DirectionBelow && direction != domain.DirectionAbove {
			h.writeError(w, "threshold_direction must be below or above", http.StatusBadRequest)
			return
		}
		a.ThresholdValue = req.ThresholdValue
		a.ThresholdDirection = direction
	case domain.AlertTypeScoreDrop, domain.AlertTypeScoreRise:
		if req.ChangePercent == nil || !req.ChangePercent.IsPositive() {
			h.writeError(w, "change_percent must be a positive number", http.StatusBadRequest)
			return
		}
		a.ChangePercent = req.ChangePercent
	}

	if err := h.alerts.Create(a); err != nil {
		h.log.Error().Err(err).Msg("Failed to create alert")
		h.writeError(w, "Failed to create alert", http.StatusInternalServerError)
		return
	}

	row := h.rowOf(a)
	h.writeJSON(w, http.StatusCreated, row)
}

// HandleUpdate adjusts thresholds, notification channels, or activation.
// PUT /api/v1/alerts/{alertID}
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	a, err := h.alerts.Get(domain.DefaultUserID, alertID)
	if err != nil {
		h.log.Error().Err(err).Str("alert_id", alertID).Msg("Failed to load alert")
		h.writeError(w, "Failed to load alert", http.StatusInternalServerError)
		return
	}
	if a == nil {
		h.writeError(w, "Alert not found", http.StatusNotFound)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.ThresholdValue != nil {
		a.ThresholdValue = req.ThresholdValue
	}
	if req.ThresholdDirection != nil {
		if *req.ThresholdDirection != domain.DirectionBelow && *req.ThresholdDirection != domain.DirectionAbove {
			h.writeError(w, "threshold_direction must be below or above", http.StatusBadRequest)
			return
		}
		a.ThresholdDirection = *req.ThresholdDirection
	}
	if req.ChangePercent != nil {
		if !req.ChangePercent.IsPositive() {
			h.writeError(w, "change_percent must be a positive number", http.StatusBadRequest)
			return
		}
		a.ChangePercent = req.ChangePercent
	}
	if req.NotifyEmail != nil {
		a.NotifyEmail = *req.NotifyEmail
	}
	if req.NotifyPush != nil {
		a.NotifyPush = *req.NotifyPush
	}
	if req.IsActive != nil {
		a.IsActive = *req.IsActive
	}

	if err := h.alerts.Update(a); err != nil {
		h.log.Error().Err(err).Str("alert_id", a.ID).Msg("Failed to update alert")
		h.writeError(w, "Failed to update alert", http.StatusInternalServerError)
		return
	}

	row := h.rowOf(a)
	h.writeJSON(w, http.StatusOK, row)
}

// HandleDelete removes an alert.
// DELETE /api/v1/alerts/{alertID}
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	deleted, err := h.alerts.Delete(domain.DefaultUserID, alertID)
	if err != nil {
		h.log.Error().Err(err).Str("alert_id", alertID).Msg("Failed to delete alert")
		h.writeError(w, "Failed to delete alert", http.StatusInternalServerError)
		return
	}
	if !deleted {
		h.writeError(w, "Alert not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// rowOf builds the response row, resolving the company id to a ticker.
func (h *Handlers) rowOf(a *domain.Alert) alertRow {
	row := alertRow{
		ID:                 a.ID,
		PortfolioID:        a.PortfolioID,
		AlertType:          a.AlertType,
		ThresholdValue:     a.ThresholdValue,
		ThresholdDirection: a.ThresholdDirection,
		ChangePercent:      a.ChangePercent,
		NotifyEmail:        a.NotifyEmail,
		NotifyPush:         a.NotifyPush,
		IsActive:           a.IsActive,
		LastTriggeredAt:    a.LastTriggeredAt,
		TriggerCount:       a.TriggerCount,
		CreatedAt:          a.CreatedAt,
	}
	if a.CompanyID != nil {
		company, err := h.companies.GetByID(*a.CompanyID)
		if err != nil {
			h.log.Error().Err(err).Str("company_id", *a.CompanyID).Msg("Failed to load company")
		}
		if company != nil {
			row.Ticker = company.Ticker
		}
	}
	return row
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
