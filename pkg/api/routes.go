package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints.
		r.Get("/health", s.handleHealth)

		// Read endpoints: anonymous when configured, otherwise token.
		r.Group(func(r chi.Router) {
			if s.cfg.Auth.Enabled && !s.cfg.Auth.AnonymousRead {
				r.Use(s.requireToken)
			}

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Public,
				))
			}

			r.Get("/repositories", s.handleListRepositories)
			r.Get("/runs", s.handleListRuns)

			r.Get("/overview", s.handleOverview)
			r.Get("/trends", s.handleTrends)
			r.Get("/flaky", s.handleFlaky)

			r.Get("/kpis", s.handleKPICatalog)
			r.Get("/analysis", s.handleListAnalysisJobs)
			r.Get("/analysis/{id}", s.handleGetAnalysisJob)
		})

		// Mutating endpoints always require a token when auth is on.
		r.Group(func(r chi.Router) {
			if s.cfg.Auth.Enabled {
				r.Use(s.requireToken)
			}

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Authenticated,
				))
			}

			r.Post("/repositories", s.handleCreateRepository)
			r.Post("/runs", s.handleIngestRun)
			r.Post("/aggregate", s.handleAggregate)
			r.Post("/analysis", s.handleCreateAnalysisJob)
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
