package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all alert routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.HandleList)               // Alerts with resolved tickers
		r.Post("/", h.HandleCreate)            // Create with type validation
		r.Put("/{alertID}", h.HandleUpdate)    // Adjust thresholds / channels
		r.Delete("/{alertID}", h.HandleDelete) // Delete
	})
}
