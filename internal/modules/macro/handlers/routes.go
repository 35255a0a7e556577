package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all macro routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/macro", func(r chi.Router) {
		r.Get("/current", h.HandleCurrent)     // Latest indicator row
		r.Get("/history", h.HandleHistory)     // Time series for charts
		r.Get("/dashboard", h.HandleDashboard) // Derived moves and trends
	})
}
