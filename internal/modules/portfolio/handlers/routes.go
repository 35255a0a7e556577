package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleList)    // Portfolios with holdings counts
		r.Post("/", h.HandleCreate) // Create (first becomes primary)

		r.Route("/{portfolioID}", func(r chi.Router) {
			r.Get("/", h.HandleDetail)    // Detail with holdings and scores
			r.Put("/", h.HandleUpdate)    // Rename / redescribe
			r.Delete("/", h.HandleDelete) // Delete with holdings

			r.Post("/holdings", h.HandleAddHolding)                  // Add or restate a position
			r.Put("/holdings/{holdingID}", h.HandleUpdateHolding)    // Update a position
			r.Delete("/holdings/{holdingID}", h.HandleRemoveHolding) // Remove a position

			r.Get("/analyze", h.HandleAnalyze)    // Value-weighted survival analysis
			r.Post("/scenario", h.HandleScenario) // Devaluation projection
		})
	})
}
