// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/shelfrank/shelfrank/internal/cache"
	"github.com/shelfrank/shelfrank/internal/database"
	"github.com/shelfrank/shelfrank/internal/models"
)

// Engine computes recommendations. It is stateless and safe for
// concurrent use; all mutable state lives in the store and the cache.
type Engine struct {
	config *Config
	store  Store
	cache  *cache.Store
	logger zerolog.Logger
}

// NewEngine creates an engine. The cache may be nil, in which case
// every call computes from the store.
func NewEngine(cfg *Config, store Store, cacheStore *cache.Store, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("engine requires a store")
	}

	return &Engine{
		config: cfg,
		store:  store,
		cache:  cacheStore,
		logger: logger.With().Str("component", "recommend").Logger(),
	}, nil
}

// PersonalRecommendations returns one ranked page for a user. When
// the request matches the shape the refresh job precomputes (first
// page, default size, rated items excluded, single category) the
// cached set is served; anything else is computed live.
func (e *Engine) PersonalRecommendations(ctx context.Context, req PersonalRequest) (*ResultPage, error) {
	req = e.normalizePersonal(req)

	if _, err := e.store.GetUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	key, cacheable := e.personalCacheKey(req)
	if cacheable {
		if page, ok := e.cachedPage(ctx, key); ok {
			return page, nil
		}
	}

	page, err := e.computePersonal(ctx, req)
	if err != nil {
		return nil, err
	}

	if cacheable {
		e.storeValue(ctx, key, page, e.config.RecommendationTTL)
	}
	return page, nil
}

// Precompute runs the personal scoring for the batch refresh path. It
// never consults the cache; the scheduler decides what to store.
func (e *Engine) Precompute(ctx context.Context, userID int64, category models.Category) (*ResultPage, error) {
	return e.computePersonal(ctx, PersonalRequest{
		UserID:   userID,
		Category: &category,
		Page:     1,
		PageSize: e.config.DefaultPageSize,
	})
}

func (e *Engine) computePersonal(ctx context.Context, req PersonalRequest) (*ResultPage, error) {
	ratings, err := e.store.GetUserRatings(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	prefs, err := e.store.GetUserPreferences(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	genreScores, categoryPrefs := e.buildProfile(ratings, prefs)

	// Already-rated items are excluded outright, not penalized.
	var exclude []int64
	if !req.IncludeRated {
		exclude = make([]int64, 0, len(ratings))
		for _, r := range ratings {
			exclude = append(exclude, r.ItemID)
		}
	}

	// The store pages candidates by popularity then average rating.
	// That order only bounds what gets pulled; the final rank within
	// the page comes from the weighted score below.
	items, total, err := e.store.FindItems(ctx, database.ItemFilter{
		Category:   req.Category,
		ExcludeIDs: exclude,
		Page:       req.Page,
		PageSize:   req.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	scored := make([]ScoredItem, 0, len(items))
	for _, item := range items {
		scored = append(scored, ScoredItem{
			Item:  item,
			Score: e.scoreItem(item, genreScores, categoryPrefs),
		})
	}
	sortScored(scored)

	return &ResultPage{
		Items:      scored,
		TotalCount: total,
		Page:       req.Page,
		PageSize:   req.PageSize,
	}, nil
}

// buildProfile folds a user's history and explicit preferences into
// the two maps scoring reads from. Each rated item contributes
// rating/10 per genre; each explicit genre preference contributes
// strength*ExplicitGenreBoost.
func (e *Engine) buildProfile(ratings []models.RatedItem, prefs []models.Preference) (map[int64]float64, map[models.Category]float64) {
	genreScores := make(map[int64]float64)
	categoryPrefs := make(map[models.Category]float64)

	for _, r := range ratings {
		inferred := float64(r.Score) / 10.0
		for _, g := range r.Genres {
			genreScores[g.ID] += inferred
		}
	}

	for _, p := range prefs {
		if p.IsGenre() {
			genreScores[*p.GenreID] += p.Strength * e.config.ExplicitGenreBoost
		} else if p.Category != nil {
			categoryPrefs[*p.Category] = p.Strength
		}
	}

	return genreScores, categoryPrefs
}

// scoreItem applies the weighted formula. Missing map entries
// contribute zero.
func (e *Engine) scoreItem(item models.CatalogItem, genreScores map[int64]float64, categoryPrefs map[models.Category]float64) float64 {
	var genreSum float64
	for _, g := range item.Genres {
		genreSum += genreScores[g.ID]
	}

	return e.config.PopularityWeight*item.Popularity +
		e.config.RatingWeight*item.AverageRating +
		e.config.GenreWeight*genreSum +
		e.config.CategoryWeight*categoryPrefs[item.Category]
}

// SimilarItems ranks items sharing the seed's category and at least
// one genre by Jaccard similarity over genre ID sets. Anonymous
// requests are cached; personalized ones are not, since the exclusion
// set differs per user.
func (e *Engine) SimilarItems(ctx context.Context, req SimilarRequest) ([]ScoredItem, error) {
	if req.Limit <= 0 {
		req.Limit = e.config.DefaultPageSize
	}

	cacheable := e.cache != nil && req.UserID == 0
	key := cache.SimilarKey(req.ItemID, req.Limit)
	if cacheable {
		if raw, ok, err := e.cache.Get(ctx, key); err == nil && ok {
			var items []ScoredItem
			if err := json.Unmarshal(raw, &items); err == nil {
				return items, nil
			}
		}
	}

	seed, err := e.store.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	seedGenres := seed.GenreIDs()
	if len(seedGenres) == 0 {
		return []ScoredItem{}, nil
	}
	genreIDs := make([]int64, 0, len(seedGenres))
	for g := range seedGenres {
		genreIDs = append(genreIDs, g)
	}

	exclude := []int64{seed.ID}
	if req.UserID != 0 {
		ratings, err := e.store.GetUserRatings(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("load ratings: %w", err)
		}
		for _, r := range ratings {
			exclude = append(exclude, r.ItemID)
		}
	}

	candidates, _, err := e.store.FindItems(ctx, database.ItemFilter{
		Category:   &seed.Category,
		AnyGenreID: genreIDs,
		ExcludeIDs: exclude,
		Page:       1,
		PageSize:   e.config.MaxCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	scored := make([]ScoredItem, 0, len(candidates))
	for _, item := range candidates {
		scored = append(scored, ScoredItem{
			Item:  item,
			Score: jaccard(seedGenres, item.GenreIDs()),
		})
	}
	sortScored(scored)
	if len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}

	if cacheable {
		e.storeValue(ctx, key, scored, e.config.RecommendationTTL)
	}
	return scored, nil
}

// Trending returns the non-personalized feed, ordered by popularity
// then average rating. Pages are served read-through from the cache.
func (e *Engine) Trending(ctx context.Context, req TrendingRequest) (*ResultPage, error) {
	req = e.normalizeTrending(req)

	var category models.Category
	if req.Category != nil {
		category = *req.Category
	}

	compute := func(ctx context.Context) (ResultPage, error) {
		items, total, err := e.store.FindItems(ctx, database.ItemFilter{
			Category: req.Category,
			Page:     req.Page,
			PageSize: req.PageSize,
		})
		if err != nil {
			return ResultPage{}, fmt.Errorf("load trending: %w", err)
		}

		scored := make([]ScoredItem, 0, len(items))
		for _, item := range items {
			scored = append(scored, ScoredItem{Item: item, Score: item.Popularity})
		}
		return ResultPage{
			Items:      scored,
			TotalCount: total,
			Page:       req.Page,
			PageSize:   req.PageSize,
		}, nil
	}

	if e.cache == nil {
		page, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return &page, nil
	}

	key := cache.TrendingKey(category, req.Page, req.PageSize)
	page, err := cache.ReadThrough(ctx, e.cache, key, e.config.TrendingTTL, compute)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// SetPreferences atomically replaces all of a user's preference rows
// and returns the fresh set. Empty inputs clear everything. The
// user's cached recommendation sets are invalidated so the next read
// reflects the new preferences.
func (e *Engine) SetPreferences(ctx context.Context, userID int64, genreIDs []int64, categoryPrefs []CategoryPreference) ([]models.Preference, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	rows := make([]models.Preference, 0, len(genreIDs)+len(categoryPrefs))
	for _, gid := range genreIDs {
		g := gid
		rows = append(rows, models.Preference{UserID: userID, GenreID: &g, Strength: 1.0})
	}
	for _, cp := range categoryPrefs {
		c := cp.Category
		rows = append(rows, models.Preference{UserID: userID, Category: &c, Strength: cp.Strength})
	}

	if err := e.store.ReplacePreferences(ctx, userID, rows); err != nil {
		return nil, fmt.Errorf("replace preferences: %w", err)
	}

	if e.cache != nil {
		if _, err := e.cache.InvalidatePattern(ctx, cache.UserPattern(userID)); err != nil {
			e.logger.Warn().Err(err).Int64("user_id", userID).Msg("Preference cache invalidation failed")
		}
	}

	prefs, err := e.store.GetUserPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload preferences: %w", err)
	}
	return prefs, nil
}

func (e *Engine) normalizePersonal(req PersonalRequest) PersonalRequest {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = e.config.DefaultPageSize
	}
	if req.PageSize > e.config.MaxCandidates {
		req.PageSize = e.config.MaxCandidates
	}
	return req
}

func (e *Engine) normalizeTrending(req TrendingRequest) TrendingRequest {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = e.config.DefaultPageSize
	}
	if req.PageSize > e.config.MaxCandidates {
		req.PageSize = e.config.MaxCandidates
	}
	return req
}

// personalCacheKey reports whether the request matches the shape the
// refresh job precomputes, and the key it would be stored under.
func (e *Engine) personalCacheKey(req PersonalRequest) (string, bool) {
	if e.cache == nil || req.Category == nil || req.IncludeRated {
		return "", false
	}
	if req.Page != 1 || req.PageSize != e.config.DefaultPageSize {
		return "", false
	}
	return cache.RecommendationsKey(req.UserID, *req.Category), true
}

func (e *Engine) cachedPage(ctx context.Context, key string) (*ResultPage, bool) {
	raw, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var page ResultPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, false
	}
	return &page, true
}

// storeValue best-effort writes a computed value to the cache. Write
// failures are logged and never surfaced; the caller already has the
// fresh value.
func (e *Engine) storeValue(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("Cache encode failed")
		return
	}
	if err := e.cache.Set(ctx, key, data, ttl); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// jaccard computes |a∩b| / |a∪b| over genre ID sets. Empty sets never
// match anything.
func jaccard(a, b map[int64]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for g := range a {
		if _, ok := b[g]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// sortScored orders by score descending with item ID ascending as the
// deterministic tie-break.
func sortScored(items []ScoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Item.ID < items[j].Item.ID
	})
}
