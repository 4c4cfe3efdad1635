// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shelfrank/shelfrank/internal/models"
)

// ListActiveUsers returns id and display name for every active user.
func (db *DB) ListActiveUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, display_name FROM users WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer closeQuietly(rows)

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.DisplayName); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// GetUser returns a single user, or ErrUserNotFound.
func (db *DB) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var u models.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, display_name FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user %d: %w", userID, err)
	}
	return &u, nil
}

// GetUserRatings returns the user's full rating history, each row joined
// with the rated item's category and genres.
func (db *DB) GetUserRatings(ctx context.Context, userID int64) ([]models.RatedItem, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT r.user_id, r.item_id, r.score, r.rated_at, i.category
		 FROM ratings r JOIN items i ON i.id = r.item_id
		 WHERE r.user_id = ?
		 ORDER BY r.item_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query ratings for user %d: %w", userID, err)
	}
	defer closeQuietly(rows)

	var rated []models.RatedItem
	index := make(map[int64]int)
	for rows.Next() {
		var r models.RatedItem
		if err := rows.Scan(&r.UserID, &r.ItemID, &r.Score, &r.RatedAt, &r.Category); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		index[r.ItemID] = len(rated)
		rated = append(rated, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}

	if len(rated) == 0 {
		return nil, nil
	}

	ids := make([]any, 0, len(rated))
	for _, r := range rated {
		ids = append(ids, r.ItemID)
	}

	grows, err := db.conn.QueryContext(ctx,
		`SELECT ig.item_id, g.id, g.name
		 FROM item_genres ig JOIN genres g ON g.id = ig.genre_id
		 WHERE ig.item_id IN (`+placeholders(len(ids))+`)
		 ORDER BY ig.item_id, g.id`, ids...)
	if err != nil {
		return nil, fmt.Errorf("query rated item genres: %w", err)
	}
	defer closeQuietly(grows)

	for grows.Next() {
		var itemID int64
		var g models.Genre
		if err := grows.Scan(&itemID, &g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("scan rated item genre: %w", err)
		}
		if i, ok := index[itemID]; ok {
			rated[i].Genres = append(rated[i].Genres, g)
		}
	}
	if err := grows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rated item genres: %w", err)
	}

	return rated, nil
}

// GetUserPreferences returns the user's explicit preference rows.
func (db *DB) GetUserPreferences(ctx context.Context, userID int64) ([]models.Preference, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, genre_id, category, strength
		 FROM preferences WHERE user_id = ?
		 ORDER BY genre_id NULLS LAST, category`, userID)
	if err != nil {
		return nil, fmt.Errorf("query preferences for user %d: %w", userID, err)
	}
	defer closeQuietly(rows)

	var prefs []models.Preference
	for rows.Next() {
		var p models.Preference
		var genreID sql.NullInt64
		var category sql.NullString
		if err := rows.Scan(&p.UserID, &genreID, &category, &p.Strength); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		if genreID.Valid {
			p.GenreID = &genreID.Int64
		}
		if category.Valid {
			c := models.Category(category.String)
			p.Category = &c
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return prefs, nil
}

// ReplacePreferences atomically replaces the user's preference rows with
// the given set. A reader never observes a partially updated set: delete
// and insert happen in one transaction. Empty input clears all rows.
func (db *DB) ReplacePreferences(ctx context.Context, userID int64, rows []models.Preference) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin preference replacement: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM preferences WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete preferences for user %d: %w", userID, err)
	}

	for _, p := range rows {
		var genreID sql.NullInt64
		var category sql.NullString
		if p.GenreID != nil {
			genreID = sql.NullInt64{Int64: *p.GenreID, Valid: true}
		}
		if p.Category != nil {
			category = sql.NullString{String: string(*p.Category), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO preferences (user_id, genre_id, category, strength) VALUES (?, ?, ?, ?)`,
			userID, genreID, category, p.Strength); err != nil {
			return fmt.Errorf("insert preference for user %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit preference replacement: %w", err)
	}
	return nil
}
