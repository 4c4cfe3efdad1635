// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shelfrank/shelfrank/internal/config"
)

// NewRouter wires the full HTTP surface. Rate limiting and CORS come
// from APIConfig; metrics and health endpoints bypass both.
func NewRouter(handler *Handler, cfg config.APIConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogging)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		}

		r.Get("/recommendations/user/{userID}", handler.UserRecommendations)
		r.Get("/recommendations/similar/{itemID}", handler.SimilarItems)
		r.Get("/trending", handler.Trending)
		r.Put("/users/{userID}/preferences", handler.SetPreferences)
		r.Get("/cache/stats", handler.CacheStats)
	})

	r.Get("/healthz", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
