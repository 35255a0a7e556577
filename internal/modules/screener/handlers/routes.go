package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all screener routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/screener", func(r chi.Router) {
		r.Post("/run", h.HandleRun)        // Execute a screen
		r.Get("/presets", h.HandlePresets) // Built-in filter presets
	})
}
