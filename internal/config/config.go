// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

// Package config loads and validates the ShelfRank configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML config
// file, then SHELFRANK_* environment variable overrides.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	Recommend RecommendConfig `koanf:"recommend"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	API       APIConfig       `koanf:"api"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds catalog store settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file. Empty string opens an in-memory
	// database (used by tests).
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 uses runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// CacheConfig holds cache layer settings.
type CacheConfig struct {
	// Path is the Badger directory. Empty string opens an in-memory store.
	Path string `koanf:"path"`

	// DefaultTTL applies when a caller does not pass an explicit TTL.
	DefaultTTL time.Duration `koanf:"default_ttl"`

	// RecommendationTTL applies to precomputed recommendation sets.
	RecommendationTTL time.Duration `koanf:"recommendation_ttl"`

	// TrendingTTL applies to trending pages.
	TrendingTTL time.Duration `koanf:"trending_ttl"`
}

// RecommendConfig holds scoring weights and engine limits.
// The weights are hand-tuned constants, not learned from data.
type RecommendConfig struct {
	PopularityWeight float64 `koanf:"popularity_weight"`
	RatingWeight     float64 `koanf:"rating_weight"`
	GenreWeight      float64 `koanf:"genre_weight"`
	CategoryWeight   float64 `koanf:"category_weight"`

	// ExplicitGenreBoost weights explicit genre preferences relative to
	// signal inferred from ratings.
	ExplicitGenreBoost float64 `koanf:"explicit_genre_boost"`

	// MaxCandidates bounds how many candidates one request scores.
	MaxCandidates int `koanf:"max_candidates"`
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Enabled bool `koanf:"enabled"`

	// RefreshInterval is how often per-user recommendations are recomputed.
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	// BatchSize is the number of users processed concurrently per batch.
	BatchSize int `koanf:"batch_size"`

	// PopularityInterval is how often item popularity is recomputed.
	PopularityInterval time.Duration `koanf:"popularity_interval"`

	// PopularityWindow is the trailing activity window for popularity.
	PopularityWindow time.Duration `koanf:"popularity_window"`

	// WarmInterval is how often trending pages are pre-warmed.
	WarmInterval time.Duration `koanf:"warm_interval"`

	// ExpireInterval is how often trending cache keys are invalidated.
	ExpireInterval time.Duration `koanf:"expire_interval"`
}

// APIConfig holds request handling limits.
type APIConfig struct {
	DefaultPageSize int           `koanf:"default_page_size"`
	MaxPageSize     int           `koanf:"max_page_size"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Default returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8460,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/shelfrank.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Cache: CacheConfig{
			Path:              "/data/cache",
			DefaultTTL:        5 * time.Minute,
			RecommendationTTL: 6 * time.Hour,
			TrendingTTL:       1 * time.Hour,
		},
		Recommend: RecommendConfig{
			PopularityWeight:   0.3,
			RatingWeight:       0.3,
			GenreWeight:        0.3,
			CategoryWeight:     0.2,
			ExplicitGenreBoost: 2.0,
			MaxCandidates:      1000,
		},
		Scheduler: SchedulerConfig{
			Enabled:            true,
			RefreshInterval:    4 * time.Hour,
			BatchSize:          50,
			PopularityInterval: 12 * time.Hour,
			PopularityWindow:   30 * 24 * time.Hour,
			WarmInterval:       1 * time.Hour,
			ExpireInterval:     6 * time.Hour,
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler.batch_size must be positive, got %d", c.Scheduler.BatchSize)
	}
	if c.Scheduler.RefreshInterval <= 0 {
		return fmt.Errorf("scheduler.refresh_interval must be positive, got %s", c.Scheduler.RefreshInterval)
	}
	if c.Scheduler.PopularityWindow <= 0 {
		return fmt.Errorf("scheduler.popularity_window must be positive, got %s", c.Scheduler.PopularityWindow)
	}
	if c.API.DefaultPageSize <= 0 || c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("api.default_page_size must be in 1..%d, got %d", c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	if err := validateWeights(&c.Recommend); err != nil {
		return err
	}
	return nil
}

// validateWeights rejects negative scoring weights. Weights are not
// required to sum to one; the formula is a fixed linear combination.
func validateWeights(rc *RecommendConfig) error {
	weights := map[string]float64{
		"recommend.popularity_weight":    rc.PopularityWeight,
		"recommend.rating_weight":        rc.RatingWeight,
		"recommend.genre_weight":         rc.GenreWeight,
		"recommend.category_weight":      rc.CategoryWeight,
		"recommend.explicit_genre_boost": rc.ExplicitGenreBoost,
	}
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, w)
		}
	}
	if rc.MaxCandidates <= 0 {
		return fmt.Errorf("recommend.max_candidates must be positive, got %d", rc.MaxCandidates)
	}
	return nil
}
