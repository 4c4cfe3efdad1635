// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

// Package api provides the HTTP surface: routing, request validation,
// and translation between transport errors and engine errors. All
// recommendation logic lives in internal/recommend; handlers only
// parse, delegate, and encode.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/shelfrank/shelfrank/internal/cache"
	"github.com/shelfrank/shelfrank/internal/config"
	"github.com/shelfrank/shelfrank/internal/database"
	"github.com/shelfrank/shelfrank/internal/metrics"
	"github.com/shelfrank/shelfrank/internal/models"
	"github.com/shelfrank/shelfrank/internal/recommend"
)

// Engine is the recommendation surface the handlers delegate to.
type Engine interface {
	PersonalRecommendations(ctx context.Context, req recommend.PersonalRequest) (*recommend.ResultPage, error)
	SimilarItems(ctx context.Context, req recommend.SimilarRequest) ([]recommend.ScoredItem, error)
	Trending(ctx context.Context, req recommend.TrendingRequest) (*recommend.ResultPage, error)
	SetPreferences(ctx context.Context, userID int64, genreIDs []int64, categoryPrefs []recommend.CategoryPreference) ([]models.Preference, error)
}

// Handler holds the handler dependencies.
type Handler struct {
	engine    Engine
	cache     *cache.Store
	cfg       config.APIConfig
	validate  *validator.Validate
	startTime time.Time
}

// NewHandler creates the API handler.
func NewHandler(engine Engine, cacheStore *cache.Store, cfg config.APIConfig) *Handler {
	return &Handler{
		engine:    engine,
		cache:     cacheStore,
		cfg:       cfg,
		validate:  validator.New(),
		startTime: time.Now(),
	}
}

// preferencesRequest is the PUT body for preference replacement. Both
// lists may be empty; that clears all preferences.
type preferencesRequest struct {
	GenreIDs            []int64                        `json:"genre_ids" validate:"dive,gt=0"`
	CategoryPreferences []recommend.CategoryPreference `json:"category_preferences" validate:"dive"`
}

// UserRecommendations handles GET /recommendations/user/{userID}.
func (h *Handler) UserRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	category, ok := queryCategory(w, r)
	if !ok {
		return
	}
	page, pageSize, ok := h.pagination(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.engine.PersonalRecommendations(r.Context(), recommend.PersonalRequest{
		UserID:       userID,
		Category:     category,
		IncludeRated: queryBool(r, "include_rated"),
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	metrics.RecordRecommendation("personal", time.Since(start))

	respondData(w, http.StatusOK, result, time.Since(start))
}

// SimilarItems handles GET /recommendations/similar/{itemID}.
func (h *Handler) SimilarItems(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}

	limit := queryInt(r, "limit", h.cfg.DefaultPageSize)
	if limit < 1 || limit > h.cfg.MaxPageSize {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit out of range")
		return
	}

	// user_id is optional; anonymous requests skip rating exclusion.
	userID := queryInt64(r, "user_id", 0)

	start := time.Now()
	items, err := h.engine.SimilarItems(r.Context(), recommend.SimilarRequest{
		UserID: userID,
		ItemID: itemID,
		Limit:  limit,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	metrics.RecordRecommendation("similar", time.Since(start))

	respondData(w, http.StatusOK, items, time.Since(start))
}

// Trending handles GET /trending. No authentication or user context
// is needed.
func (h *Handler) Trending(w http.ResponseWriter, r *http.Request) {
	category, ok := queryCategory(w, r)
	if !ok {
		return
	}
	page, pageSize, ok := h.pagination(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.engine.Trending(r.Context(), recommend.TrendingRequest{
		Category: category,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	metrics.RecordRecommendation("trending", time.Since(start))

	respondData(w, http.StatusOK, result, time.Since(start))
}

// SetPreferences handles PUT /users/{userID}/preferences.
func (h *Handler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	for _, cp := range req.CategoryPreferences {
		if !cp.Category.Valid() {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown category "+string(cp.Category))
			return
		}
	}

	start := time.Now()
	prefs, err := h.engine.SetPreferences(r.Context(), userID, req.GenreIDs, req.CategoryPreferences)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondData(w, http.StatusOK, prefs, time.Since(start))
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startTime).String(),
	}, 0)
}

// CacheStats handles GET /cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "CACHE_ERROR", "failed to read cache stats")
		return
	}
	metrics.SetCacheEntries(stats.Keys)

	respondData(w, http.StatusOK, stats, 0)
}

func (h *Handler) pagination(w http.ResponseWriter, r *http.Request) (page, pageSize int, ok bool) {
	page = queryInt(r, "page", 1)
	pageSize = queryInt(r, "page_size", h.cfg.DefaultPageSize)

	if page < 1 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "page must be at least 1")
		return 0, 0, false
	}
	if pageSize < 1 || pageSize > h.cfg.MaxPageSize {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "page_size out of range")
		return 0, 0, false
	}
	return page, pageSize, true
}

// pathID parses a positive int64 chi URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id := parseInt64(chi.URLParam(r, name), 0)
	if id <= 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// queryCategory parses the optional category filter.
func queryCategory(w http.ResponseWriter, r *http.Request) (*models.Category, bool) {
	raw := r.URL.Query().Get("category")
	if raw == "" {
		return nil, true
	}

	category, err := models.ParseCategory(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown category "+raw)
		return nil, false
	}
	return &category, true
}

// respondEngineError maps engine errors onto HTTP statuses: missing
// user or item is the caller's mistake, anything else is a store
// failure the caller cannot fix.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "user not found")
	case errors.Is(err, database.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "item not found")
	default:
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "internal error")
	}
}
