package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/cloo-solutions/datalens/internal/api"
	"github.com/cloo-solutions/datalens/internal/api/handlers"
	"github.com/cloo-solutions/datalens/internal/api/middleware"
)

type RouterConfig struct {
	AuthValidator  middleware.AuthValidator
	QueryHandler   *handlers.QueryHandler
	IngestHandler  *handlers.IngestHandler
	CatalogHandler *handlers.CatalogHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		// Queries fan out to a model provider, so they get a tighter rate
		// limit than the rest of the surface.
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(30, time.Minute))
			r.Post("/query", cfg.QueryHandler.Ask)
		})

		r.Post("/ingest", cfg.IngestHandler.Ingest)

		r.Route("/catalog", func(r chi.Router) {
			r.Post("/sync", cfg.CatalogHandler.Sync)
			r.Get("/discover", cfg.CatalogHandler.Discover)
		})
	})

	return r
}
