package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"meeting-protocol-service/internal/app"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{
		app:       application,
		jobs:      application.Jobs,
		maxUpload: application.Cfg.Service.MaxUploadBytes,
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestMetrics(application.Metrics))
	r.Use(middleware.Recoverer)

	if origins := application.Cfg.Service.AllowedOrigins; len(origins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", apiKeyHeader},
			MaxAge:         300,
		}).Handler)
	}

	// Health endpoints
	r.Get("/health", h.health)
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", h.readiness)

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(requireAPIKey(application.Cfg.Service.APIKey))

		r.Post("/process", h.process)
		r.Get("/status/{jobId}", h.status)
		r.Get("/results/{jobId}", h.results)
		r.Get("/results/{jobId}/export", h.export)
		r.Post("/summarize/{jobId}", h.summarize)
	})

	return r
}
