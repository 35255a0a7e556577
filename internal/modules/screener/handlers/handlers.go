// Package handlers provides HTTP handlers for the screener API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/modules/screener"
)

// Handlers contains HTTP handlers for the screener API.
type Handlers struct {
	screener *screener.Service
	log      zerolog.Logger
}

// NewHandlers creates a new screener handlers instance.
func NewHandlers(svc *screener.Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		screener: svc,
		log:      log.With().Str("module", "screener_handlers").Logger(),
	}
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type filterSummary struct {
	Matched       int `json:"matched"`
	TotalUniverse int `json:"total_universe"`
}

type runResponse struct {
	Data          []screener.Row `json:"data"`
	Pagination    pagination     `json:"pagination"`
	FilterSummary filterSummary  `json:"filter_summary"`
}

// HandleRun executes a screen over the scored universe.
// POST /api/v1/screener/run
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req screener.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.screener.Run(req)
	if err != nil {
		h.log.Error().Err(err).Msg("Screener run failed")
		h.writeError(w, "Failed to run screener", http.StatusInternalServerError)
		return
	}

	pages := 0
	if result.Matched > 0 {
		pages = (result.Matched + result.Limit - 1) / result.Limit
	}

	h.writeJSON(w, http.StatusOK, runResponse{
		Data: result.Rows,
		Pagination: pagination{
			Page:  result.Page,
			Limit: result.Limit,
			Total: result.Matched,
			Pages: pages,
		},
		FilterSummary: filterSummary{
			Matched:       result.Matched,
			TotalUniverse: result.TotalUniverse,
		},
	})
}

// HandlePresets lists the built-in filter presets.
// GET /api/v1/screener/presets
func (h *Handlers) HandlePresets(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": screener.Presets()})
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
