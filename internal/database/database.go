// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

// Package database implements the catalog and preference store on DuckDB.
//
// The recommendation engine and the batch scheduler consume this package
// through narrow interfaces declared on their side; *DB satisfies both.
// Query results are always converted to the typed shapes in
// internal/models before leaving this package.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/shelfrank/shelfrank/internal/config"
	"github.com/shelfrank/shelfrank/internal/logging"
)

// DB wraps the DuckDB connection for the catalog store.
type DB struct {
	conn *sql.DB
	cfg  config.DatabaseConfig
}

// New opens the store and initializes the schema.
func New(cfg config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "2GB"
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	} else {
		// 0750 per gosec G301
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
	}

	// Disable extension auto-install to avoid network access on open.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}

	db.configureConnectionPool(numThreads)

	if err := db.createTables(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logging.Info().Str("path", path).Msg("catalog store opened")
	return db, nil
}

// configureConnectionPool applies pool limits.
func (db *DB) configureConnectionPool(numThreads int) {
	db.conn.SetMaxOpenConns(numThreads)
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// createTables creates the core store tables if they do not exist.
func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id BIGINT PRIMARY KEY,
			title VARCHAR NOT NULL,
			category VARCHAR NOT NULL,
			popularity DOUBLE NOT NULL DEFAULT 0,
			average_rating DOUBLE NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS genres (
			id BIGINT PRIMARY KEY,
			name VARCHAR NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS item_genres (
			item_id BIGINT NOT NULL,
			genre_id BIGINT NOT NULL,
			PRIMARY KEY (item_id, genre_id)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			display_name VARCHAR NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS ratings (
			user_id BIGINT NOT NULL,
			item_id BIGINT NOT NULL,
			score INTEGER NOT NULL,
			rated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			item_id BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS list_items (
			user_id BIGINT NOT NULL,
			item_id BIGINT NOT NULL,
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS preferences (
			user_id BIGINT NOT NULL,
			genre_id BIGINT,
			category VARCHAR,
			strength DOUBLE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_category ON items (category)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_item ON ratings (item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_preferences_user ON preferences (user_id)`,
	}

	for _, q := range queries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}

	return nil
}

// closeQuietly closes a resource and explicitly ignores any error.
// Cleanup in error paths is best-effort.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
