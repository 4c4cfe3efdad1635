// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfrank/shelfrank/internal/models"
)

// CreateItem inserts a catalog item. Genres are linked separately.
func (db *DB) CreateItem(ctx context.Context, item *models.CatalogItem) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO items (id, title, category, popularity, average_rating) VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.Title, string(item.Category), item.Popularity, item.AverageRating)
	if err != nil {
		return fmt.Errorf("insert item %d: %w", item.ID, err)
	}
	return nil
}

// CreateGenre inserts a genre.
func (db *DB) CreateGenre(ctx context.Context, genre *models.Genre) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO genres (id, name) VALUES (?, ?)`, genre.ID, genre.Name)
	if err != nil {
		return fmt.Errorf("insert genre %d: %w", genre.ID, err)
	}
	return nil
}

// LinkItemGenre attaches a genre to an item.
func (db *DB) LinkItemGenre(ctx context.Context, itemID, genreID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO item_genres (item_id, genre_id) VALUES (?, ?)`, itemID, genreID)
	if err != nil {
		return fmt.Errorf("link item %d genre %d: %w", itemID, genreID, err)
	}
	return nil
}

// CreateUser inserts a user.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, display_name) VALUES (?, ?)`, user.ID, user.DisplayName)
	if err != nil {
		return fmt.Errorf("insert user %d: %w", user.ID, err)
	}
	return nil
}

// UpsertRating records a user's score for an item, replacing any prior
// score for the same pair.
func (db *DB) UpsertRating(ctx context.Context, rating *models.Rating) error {
	ratedAt := rating.RatedAt
	if ratedAt.IsZero() {
		ratedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO ratings (user_id, item_id, score, rated_at) VALUES (?, ?, ?, ?)`,
		rating.UserID, rating.ItemID, rating.Score, ratedAt)
	if err != nil {
		return fmt.Errorf("upsert rating (%d,%d): %w", rating.UserID, rating.ItemID, err)
	}
	return nil
}

// AddReview records a review event for popularity accounting.
func (db *DB) AddReview(ctx context.Context, reviewID, userID, itemID int64, createdAt time.Time) error {
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO reviews (id, user_id, item_id, created_at) VALUES (?, ?, ?, ?)`,
		reviewID, userID, itemID, createdAt)
	if err != nil {
		return fmt.Errorf("insert review %d: %w", reviewID, err)
	}
	return nil
}

// AddListItem records a list addition for popularity accounting.
func (db *DB) AddListItem(ctx context.Context, userID, itemID int64, addedAt time.Time) error {
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO list_items (user_id, item_id, added_at) VALUES (?, ?, ?)`,
		userID, itemID, addedAt)
	if err != nil {
		return fmt.Errorf("insert list item (%d,%d): %w", userID, itemID, err)
	}
	return nil
}
