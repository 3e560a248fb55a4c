package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/funddocs/funds-tracker/internal/api/middleware"
)

// NewRouter builds the Chi router with the middleware stack and all routes.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS)

	r.Get("/healthz", h.Healthz)

	r.Route("/api/v1/funds", func(r chi.Router) {
		r.Post("/uploads", h.InitiateUpload)
		r.Post("/{fundID}/uploads/complete", h.CompleteUpload)
		r.Get("/export", h.ExportFunds)
		r.Get("/{fundID}", h.GetFund)
		r.Get("/", h.ListFunds)
	})

	return r
}
