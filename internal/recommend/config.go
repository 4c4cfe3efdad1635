// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package recommend

import (
	"fmt"
	"time"

	appconfig "github.com/shelfrank/shelfrank/internal/config"
)

// Config holds the scoring constants and request bounds for the
// engine. The weights are hand-tuned, not learned; Validate rejects
// configurations that would zero out or invert a factor.
type Config struct {
	// PopularityWeight scales the item's recomputed popularity score.
	PopularityWeight float64 `json:"popularity_weight"`

	// RatingWeight scales the item's average rating.
	RatingWeight float64 `json:"rating_weight"`

	// GenreWeight scales the summed genre affinity of the item.
	GenreWeight float64 `json:"genre_weight"`

	// CategoryWeight scales the explicit category preference.
	CategoryWeight float64 `json:"category_weight"`

	// ExplicitGenreBoost weights an explicit genre preference relative
	// to signal inferred from ratings.
	ExplicitGenreBoost float64 `json:"explicit_genre_boost"`

	// MaxCandidates bounds how many candidates one request scores.
	MaxCandidates int `json:"max_candidates"`

	// DefaultPageSize applies when a request leaves PageSize unset.
	DefaultPageSize int `json:"default_page_size"`

	// RecommendationTTL is the cache lifetime of personal results.
	RecommendationTTL time.Duration `json:"recommendation_ttl"`

	// TrendingTTL is the cache lifetime of trending pages.
	TrendingTTL time.Duration `json:"trending_ttl"`
}

// DefaultConfig returns the production scoring constants.
func DefaultConfig() *Config {
	return &Config{
		PopularityWeight:   0.3,
		RatingWeight:       0.3,
		GenreWeight:        0.3,
		CategoryWeight:     0.2,
		ExplicitGenreBoost: 2.0,
		MaxCandidates:      1000,
		DefaultPageSize:    20,
		RecommendationTTL:  6 * time.Hour,
		TrendingTTL:        time.Hour,
	}
}

// ConfigFromApp builds an engine config from the application config,
// falling back to defaults for anything left at zero.
func ConfigFromApp(cfg *appconfig.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}

	r := cfg.Recommend
	if r.PopularityWeight > 0 {
		c.PopularityWeight = r.PopularityWeight
	}
	if r.RatingWeight > 0 {
		c.RatingWeight = r.RatingWeight
	}
	if r.GenreWeight > 0 {
		c.GenreWeight = r.GenreWeight
	}
	if r.CategoryWeight > 0 {
		c.CategoryWeight = r.CategoryWeight
	}
	if r.ExplicitGenreBoost > 0 {
		c.ExplicitGenreBoost = r.ExplicitGenreBoost
	}
	if r.MaxCandidates > 0 {
		c.MaxCandidates = r.MaxCandidates
	}
	if cfg.API.DefaultPageSize > 0 {
		c.DefaultPageSize = cfg.API.DefaultPageSize
	}
	if cfg.Cache.RecommendationTTL > 0 {
		c.RecommendationTTL = cfg.Cache.RecommendationTTL
	}
	if cfg.Cache.TrendingTTL > 0 {
		c.TrendingTTL = cfg.Cache.TrendingTTL
	}
	return c
}

// Validate checks the config for values that would produce degenerate
// rankings.
func (c *Config) Validate() error {
	weights := map[string]float64{
		"popularity_weight": c.PopularityWeight,
		"rating_weight":     c.RatingWeight,
		"genre_weight":      c.GenreWeight,
		"category_weight":   c.CategoryWeight,
	}
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("%s must not be negative, got %f", name, w)
		}
	}
	if c.PopularityWeight+c.RatingWeight+c.GenreWeight+c.CategoryWeight == 0 {
		return fmt.Errorf("at least one scoring weight must be positive")
	}
	if c.ExplicitGenreBoost <= 0 {
		return fmt.Errorf("explicit_genre_boost must be positive, got %f", c.ExplicitGenreBoost)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be positive, got %d", c.MaxCandidates)
	}
	if c.DefaultPageSize <= 0 {
		return fmt.Errorf("default_page_size must be positive, got %d", c.DefaultPageSize)
	}
	return nil
}

// Clone returns a deep copy so a caller can tweak a config without
// affecting the engine it came from.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
