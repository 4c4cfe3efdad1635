// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/shelfrank/shelfrank/internal/cache"
	"github.com/shelfrank/shelfrank/internal/config"
	"github.com/shelfrank/shelfrank/internal/metrics"
	"github.com/shelfrank/shelfrank/internal/models"
	"github.com/shelfrank/shelfrank/internal/notify"
	"github.com/shelfrank/shelfrank/internal/recommend"
)

// Activity weights for the popularity recompute. Reviews signal the
// strongest engagement, list additions the weakest.
const (
	ratingActivityWeight  = 1.0
	reviewActivityWeight  = 2.0
	listAddActivityWeight = 0.5
)

// Store is the query contract the jobs consume.
type Store interface {
	ListActiveUsers(ctx context.Context) ([]models.User, error)
	GetUserPreferences(ctx context.Context, userID int64) ([]models.Preference, error)
	GetActivityCounts(ctx context.Context, since time.Time) ([]models.ActivityCounts, error)
	ListItemIDs(ctx context.Context) ([]int64, error)
	UpdateItemPopularity(ctx context.Context, itemID int64, value float64) error
}

// Engine is the slice of the recommendation engine the jobs drive.
type Engine interface {
	Precompute(ctx context.Context, userID int64, category models.Category) (*recommend.ResultPage, error)
	Trending(ctx context.Context, req recommend.TrendingRequest) (*recommend.ResultPage, error)
}

// Jobs binds the background tasks to their dependencies.
type Jobs struct {
	store      Store
	engine     Engine
	cache      *cache.Store
	dispatcher notify.Dispatcher
	cfg        config.SchedulerConfig
	recTTL     time.Duration
	logger     zerolog.Logger
}

// NewJobs wires the job set. The dispatcher may be a NopDispatcher
// when notifications are disabled.
func NewJobs(store Store, engine Engine, cacheStore *cache.Store, dispatcher notify.Dispatcher, cfg *config.Config, logger zerolog.Logger) *Jobs {
	return &Jobs{
		store:      store,
		engine:     engine,
		cache:      cacheStore,
		dispatcher: dispatcher,
		cfg:        cfg.Scheduler,
		recTTL:     cfg.Cache.RecommendationTTL,
		logger:     logger.With().Str("component", "jobs").Logger(),
	}
}

// All returns the job set with configured intervals, ready for a
// Runner.
func (j *Jobs) All() []Job {
	return []Job{
		{Name: "refresh", Interval: j.cfg.RefreshInterval, Run: j.RefreshRecommendations},
		{Name: "popularity", Interval: j.cfg.PopularityInterval, Run: j.RecomputePopularity},
		{Name: "warm", Interval: j.cfg.WarmInterval, Run: j.WarmTrending},
		{Name: "expire", Interval: j.cfg.ExpireInterval, Run: j.ExpireTrending},
	}
}

// RefreshRecommendations recomputes every active user's per-category
// recommendation sets. Users are processed in fixed-size batches:
// batches run sequentially, users within a batch concurrently, so
// peak load on the store is bounded by the batch size. A failure for
// one user is logged and skipped; only failing to list users at all
// fails the run.
func (j *Jobs) RefreshRecommendations(ctx context.Context) error {
	users, err := j.store.ListActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}

	batchSize := j.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	var processed, failed int
	for start := 0; start < len(users); start += batchSize {
		end := start + batchSize
		if end > len(users) {
			end = len(users)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, user := range users[start:end] {
			wg.Add(1)
			go func(user models.User) {
				defer wg.Done()
				err := j.refreshUser(ctx, user)

				mu.Lock()
				defer mu.Unlock()
				processed++
				if err != nil {
					failed++
					j.logger.Error().
						Err(err).
						Int64("user_id", user.ID).
						Msg("User refresh failed")
					metrics.SchedulerUserFailures.Inc()
				}
			}(user)
		}
		wg.Wait()
	}

	metrics.SchedulerUsersProcessed.Add(float64(processed))
	j.logger.Info().
		Int("users", processed).
		Int("failed", failed).
		Msg("Recommendation refresh complete")
	return nil
}

// refreshUser computes and caches one user's sets. A user who opted
// into specific categories gets no computation for the others; a user
// with only genre preferences has no category rows and still gets all
// categories. At most one notification fires per user per run no
// matter how many categories produced results.
func (j *Jobs) refreshUser(ctx context.Context, user models.User) error {
	prefs, err := j.store.GetUserPreferences(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}

	optedIn := make(map[models.Category]bool)
	for _, p := range prefs {
		if p.Category != nil {
			optedIn[*p.Category] = true
		}
	}

	entries := make(map[string][]byte)
	for _, category := range models.AllCategories() {
		if len(optedIn) > 0 && !optedIn[category] {
			continue
		}

		page, err := j.engine.Precompute(ctx, user.ID, category)
		if err != nil {
			return fmt.Errorf("precompute %s: %w", category, err)
		}
		if len(page.Items) == 0 {
			continue
		}

		data, err := json.Marshal(page)
		if err != nil {
			return fmt.Errorf("encode %s results: %w", category, err)
		}
		entries[cache.RecommendationsKey(user.ID, category)] = data
	}

	if len(entries) == 0 {
		return nil
	}

	if err := j.cache.SetBatch(ctx, entries, j.recTTL); err != nil {
		// Cache failures never fail a user; the on-demand path
		// recomputes on miss.
		j.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("Cache write failed")
	}

	if err := j.dispatcher.NotifyNewRecommendations(ctx, user.ID); err != nil {
		j.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("Notification dispatch failed")
	}
	return nil
}

// RecomputePopularity rescores every catalog item from activity in
// the trailing window. There is no incremental path; every run
// rewrites every item.
func (j *Jobs) RecomputePopularity(ctx context.Context) error {
	since := time.Now().UTC().Add(-j.cfg.PopularityWindow)

	counts, err := j.store.GetActivityCounts(ctx, since)
	if err != nil {
		return fmt.Errorf("load activity counts: %w", err)
	}
	byItem := make(map[int64]models.ActivityCounts, len(counts))
	for _, c := range counts {
		byItem[c.ItemID] = c
	}

	ids, err := j.store.ListItemIDs(ctx)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	var updated, failed int
	for _, id := range ids {
		c := byItem[id]
		score := float64(c.Ratings)*ratingActivityWeight +
			float64(c.Reviews)*reviewActivityWeight +
			float64(c.ListAdds)*listAddActivityWeight

		if err := j.store.UpdateItemPopularity(ctx, id, score); err != nil {
			failed++
			j.logger.Error().Err(err).Int64("item_id", id).Msg("Popularity update failed")
			continue
		}
		updated++
	}

	metrics.SchedulerItemsRecomputed.Add(float64(updated))
	j.logger.Info().
		Int("updated", updated).
		Int("failed", failed).
		Time("window_start", since).
		Msg("Popularity recompute complete")
	return nil
}

// WarmTrending pre-computes the first trending page per category so
// the common reads never pay the store round trip.
func (j *Jobs) WarmTrending(ctx context.Context) error {
	for _, category := range models.AllCategories() {
		c := category
		if _, err := j.engine.Trending(ctx, recommend.TrendingRequest{Category: &c}); err != nil {
			return fmt.Errorf("warm trending %s: %w", category, err)
		}
	}
	// Cross-category page.
	if _, err := j.engine.Trending(ctx, recommend.TrendingRequest{}); err != nil {
		return fmt.Errorf("warm trending all: %w", err)
	}

	j.logger.Debug().Msg("Trending cache warmed")
	return nil
}

// ExpireTrending drops all trending pages so popularity changes
// surface even before their TTL would lapse.
func (j *Jobs) ExpireTrending(ctx context.Context) error {
	n, err := j.cache.InvalidatePattern(ctx, cache.TrendingPattern(""))
	if err != nil {
		return fmt.Errorf("invalidate trending: %w", err)
	}

	j.logger.Info().Int("keys", n).Msg("Trending cache invalidated")
	return nil
}
