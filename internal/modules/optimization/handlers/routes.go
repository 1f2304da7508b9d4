package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers optimization and market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Post("/optimize", h.HandleOptimize)
		r.Post("/frontier.csv", h.HandleFrontierCSV)
	})

	r.Post("/stocks/analyze", h.HandleAnalyze)

	r.Route("/stock/{symbol}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetQuote(w, r, chi.URLParam(r, "symbol"))
		})
		r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetHistory(w, r, chi.URLParam(r, "symbol"))
		})
	})

	r.Get("/search", h.HandleSearch)
}
