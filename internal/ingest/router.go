package ingest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/blockedby/carfeed/internal/metrics"
)

// NewRouter creates a new chi router with all import endpoints
func NewRouter(handler *Handler) http.Handler {
	metrics.Init()

	r := chi.NewRouter()

	// middleware
	r.Use(middleware.Logger)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// basic cors
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS", "DELETE"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", handler.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/imports", handler.StartImport)
		r.Get("/imports/status", handler.Status)
		r.Delete("/imports/{channel}", handler.StopImport)

		r.Get("/runs", handler.ListRuns)
		r.Get("/checkpoints/{channel}", handler.GetCheckpoint)
		r.Get("/stats", handler.Stats)
		r.Get("/listings/{id}", handler.GetListing)
	})

	return r
}
