package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all rankings routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/rankings", func(r chi.Router) {
		r.Get("/", h.HandleRankings)       // Ranked list under a scenario
		r.Get("/sectors", h.HandleSectors) // Per-sector aggregates
		r.Get("/movers", h.HandleMovers)   // Biggest score changes
		r.Get("/tiers", h.HandleTiers)     // Tier distribution
	})
}
