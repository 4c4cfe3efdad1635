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
	"strings"
	"time"

	"github.com/shelfrank/shelfrank/internal/models"
)

// ItemFilter selects candidate catalog items.
//
// The zero value matches everything. Exclusions are hard filters, not
// scoring penalties: an excluded item never appears in the result.
type ItemFilter struct {
	// Category restricts results to a single category when set.
	Category *models.Category

	// ExcludeIDs removes specific items (typically the user's rated items).
	ExcludeIDs []int64

	// AnyGenreID keeps only items carrying at least one of these genres.
	AnyGenreID []int64

	// Page is 1-based. PageSize <= 0 disables the page bound.
	Page     int
	PageSize int
}

// FindItems returns a page of items ordered by popularity descending, then
// average rating descending, then id ascending, plus the total count of
// matching items computed independently of the page bound.
func (db *DB) FindItems(ctx context.Context, filter ItemFilter) ([]models.CatalogItem, int64, error) {
	where, args := buildItemFilter(filter)

	var total int64
	countQuery := "SELECT COUNT(*) FROM items i" + where
	if err := db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	query := `SELECT i.id, i.title, i.category, i.popularity, i.average_rating, i.created_at, i.updated_at
		FROM items i` + where + `
		ORDER BY i.popularity DESC, i.average_rating DESC, i.id ASC`

	pageArgs := args
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += " LIMIT ? OFFSET ?"
		pageArgs = append(append([]any{}, args...), filter.PageSize, (page-1)*filter.PageSize)
	}

	rows, err := db.conn.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query items: %w", err)
	}
	defer closeQuietly(rows)

	var items []models.CatalogItem
	for rows.Next() {
		var it models.CatalogItem
		if err := rows.Scan(&it.ID, &it.Title, &it.Category, &it.Popularity, &it.AverageRating, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate items: %w", err)
	}

	if err := db.attachGenres(ctx, items); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

// buildItemFilter renders the WHERE clause for an ItemFilter.
func buildItemFilter(filter ItemFilter) (string, []any) {
	var clauses []string
	var args []any

	if filter.Category != nil {
		clauses = append(clauses, "i.category = ?")
		args = append(args, string(*filter.Category))
	}
	if len(filter.ExcludeIDs) > 0 {
		clauses = append(clauses, "i.id NOT IN ("+placeholders(len(filter.ExcludeIDs))+")")
		for _, id := range filter.ExcludeIDs {
			args = append(args, id)
		}
	}
	if len(filter.AnyGenreID) > 0 {
		clauses = append(clauses, "i.id IN (SELECT ig.item_id FROM item_genres ig WHERE ig.genre_id IN ("+placeholders(len(filter.AnyGenreID))+"))")
		for _, id := range filter.AnyGenreID {
			args = append(args, id)
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// GetItem returns a single item with its genres, or ErrItemNotFound.
func (db *DB) GetItem(ctx context.Context, itemID int64) (*models.CatalogItem, error) {
	var it models.CatalogItem
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, title, category, popularity, average_rating, created_at, updated_at
		 FROM items WHERE id = ?`, itemID).
		Scan(&it.ID, &it.Title, &it.Category, &it.Popularity, &it.AverageRating, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query item %d: %w", itemID, err)
	}

	items := []models.CatalogItem{it}
	if err := db.attachGenres(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// UpdateItemPopularity writes a recomputed popularity score.
func (db *DB) UpdateItemPopularity(ctx context.Context, itemID int64, value float64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE items SET popularity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		value, itemID)
	if err != nil {
		return fmt.Errorf("update popularity for item %d: %w", itemID, err)
	}
	return nil
}

// ListItemIDs returns every item id. The popularity job recomputes the
// full catalog from scratch on each run, so there is no incremental path.
func (db *DB) ListItemIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list item ids: %w", err)
	}
	defer closeQuietly(rows)

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item ids: %w", err)
	}
	return ids, nil
}

// GetActivityCounts returns per-item counts of ratings, reviews, and list
// additions since the given time. Items with no activity are included with
// zero counts.
func (db *DB) GetActivityCounts(ctx context.Context, since time.Time) ([]models.ActivityCounts, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT i.id,
			(SELECT COUNT(*) FROM ratings r WHERE r.item_id = i.id AND r.rated_at >= ?),
			(SELECT COUNT(*) FROM reviews v WHERE v.item_id = i.id AND v.created_at >= ?),
			(SELECT COUNT(*) FROM list_items l WHERE l.item_id = i.id AND l.added_at >= ?)
		FROM items i
		ORDER BY i.id`, since, since, since)
	if err != nil {
		return nil, fmt.Errorf("query activity counts: %w", err)
	}
	defer closeQuietly(rows)

	var counts []models.ActivityCounts
	for rows.Next() {
		var c models.ActivityCounts
		if err := rows.Scan(&c.ItemID, &c.Ratings, &c.Reviews, &c.ListAdds); err != nil {
			return nil, fmt.Errorf("scan activity counts: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity counts: %w", err)
	}
	return counts, nil
}

// attachGenres loads and attaches genres for the given items in one query.
func (db *DB) attachGenres(ctx context.Context, items []models.CatalogItem) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]any, len(items))
	index := make(map[int64]*models.CatalogItem, len(items))
	for i := range items {
		ids[i] = items[i].ID
		index[items[i].ID] = &items[i]
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT ig.item_id, g.id, g.name
		 FROM item_genres ig JOIN genres g ON g.id = ig.genre_id
		 WHERE ig.item_id IN (`+placeholders(len(ids))+`)
		 ORDER BY ig.item_id, g.id`, ids...)
	if err != nil {
		return fmt.Errorf("query item genres: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var itemID int64
		var g models.Genre
		if err := rows.Scan(&itemID, &g.ID, &g.Name); err != nil {
			return fmt.Errorf("scan item genre: %w", err)
		}
		if it, ok := index[itemID]; ok {
			it.Genres = append(it.Genres, g)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate item genres: %w", err)
	}
	return nil
}

// placeholders renders n comma-separated SQL placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
