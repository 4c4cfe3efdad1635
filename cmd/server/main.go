// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

// Package main is the entry point for the ShelfRank server.
//
// ShelfRank computes and serves catalog recommendations: personalized
// item rankings, genre-overlap similar items, and a popularity-driven
// trending feed. Results are cached in Badger and refreshed in the
// background by a batch scheduler.
//
// The server initializes components in the following order:
//
//  1. Configuration: koanf v2 with defaults, optional config file, and
//     SHELFRANK_ environment variables
//  2. Database: DuckDB catalog, rating, and preference store
//  3. Cache: Badger TTL cache for computed recommendation pages
//  4. Notifications: in-process watermill bus for refresh events
//  5. Engine: the weighted scoring engine
//  6. Scheduler: recurring refresh, popularity, warm, and expire jobs
//  7. HTTP server: chi REST API plus Prometheus /metrics
//
// Components 6 and 7 run under a suture supervisor tree and shut down
// gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shelfrank/shelfrank/internal/api"
	"github.com/shelfrank/shelfrank/internal/cache"
	"github.com/shelfrank/shelfrank/internal/config"
	"github.com/shelfrank/shelfrank/internal/database"
	"github.com/shelfrank/shelfrank/internal/logging"
	"github.com/shelfrank/shelfrank/internal/notify"
	"github.com/shelfrank/shelfrank/internal/recommend"
	"github.com/shelfrank/shelfrank/internal/scheduler"
	"github.com/shelfrank/shelfrank/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("cache_path", cfg.Cache.Path).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Configuration loaded")

	db, err := database.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	cacheStore, err := cache.New(cfg.Cache, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize cache")
	}
	defer func() {
		if err := cacheStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache")
		}
	}()

	dispatcher := notify.NewBusDispatcher(logger)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing notification bus")
		}
	}()

	engine, err := recommend.NewEngine(recommend.ConfigFromApp(cfg), db, cacheStore, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build recommendation engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	if cfg.Scheduler.Enabled {
		jobs := scheduler.NewJobs(db, engine, cacheStore, dispatcher, cfg, logger)
		runner, err := scheduler.NewRunner(logger, jobs.All()...)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to build scheduler")
		}
		tree.AddJobService(supervisor.NewSchedulerService(runner))
		logging.Info().
			Dur("refresh_interval", cfg.Scheduler.RefreshInterval).
			Int("batch_size", cfg.Scheduler.BatchSize).
			Msg("Scheduler added to supervisor tree")
	} else {
		logging.Info().Msg("Scheduler disabled, recommendations computed on demand only")
	}

	handler := api.NewHandler(engine, cacheStore, cfg.API)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.API),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped")
}
