package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all companies routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/companies", func(r chi.Router) {
		r.Get("/", h.HandleList)         // Paginated list with filters
		r.Get("/search", h.HandleSearch) // Quick ticker/name lookup

		r.Route("/{ticker}", func(r chi.Router) {
			r.Get("/", h.HandleDetail)                   // Detail with latest score
			r.Get("/scores", h.HandleScores)             // Score history
			r.Get("/fundamentals", h.HandleFundamentals) // Fundamentals history
			r.Get("/peers", h.HandlePeers)               // Same-sector peers by score
		})
	})
}
