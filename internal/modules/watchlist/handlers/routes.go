package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all watchlist routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/watchlist", func(r chi.Router) {
		r.Get("/", h.HandleList)              // Watchlist with latest scores
		r.Post("/", h.HandleAdd)              // Track a company
		r.Delete("/{ticker}", h.HandleRemove) // Stop tracking
	})
}
