// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/shelfrank/shelfrank/internal/logging"
	"github.com/shelfrank/shelfrank/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// RequestID echoes the caller's request ID or assigns a fresh one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// RequestLogging logs each completed request and records API metrics.
// The route pattern, not the raw path, is used as the metric label to
// keep cardinality bounded.
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordAPIRequest(r.Method, endpoint, ww.Status(), duration)

		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", ww.Header().Get(requestIDHeader)).
			Int("status", ww.Status()).
			Dur("duration", duration).
			Msg("Request completed")
	})
}
