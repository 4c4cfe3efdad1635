// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

// Package models defines the typed result shapes shared between the store,
// the recommendation engine, and the API layer. Store-native rows never
// cross a package boundary; these structs do.
package models

import "time"

// Genre is a fine-grained tag attached to catalog items, many-to-many.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CatalogItem is a single entry in the catalog.
//
// Popularity is recomputed periodically from recent activity and is distinct
// from AverageRating, which the rating subsystem maintains.
type CatalogItem struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Category      Category  `json:"category"`
	Genres        []Genre   `json:"genres"`
	Popularity    float64   `json:"popularity"`
	AverageRating float64   `json:"average_rating"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GenreIDs returns the item's genre IDs as a set.
func (i *CatalogItem) GenreIDs() map[int64]struct{} {
	set := make(map[int64]struct{}, len(i.Genres))
	for _, g := range i.Genres {
		set[g.ID] = struct{}{}
	}
	return set
}

// Rating is a user's score for an item, unique per (user, item) pair.
type Rating struct {
	UserID  int64     `json:"user_id"`
	ItemID  int64     `json:"item_id"`
	Score   int       `json:"score"` // 1..10
	RatedAt time.Time `json:"rated_at"`
}

// RatedItem is a rating joined with the rated item's genres and category.
// The engine builds taste profiles from these rows.
type RatedItem struct {
	Rating
	Category Category `json:"category"`
	Genres   []Genre  `json:"genres"`
}

// Preference is an explicit user-declared weight toward a genre or a
// category. Exactly one of GenreID and Category is set.
type Preference struct {
	UserID   int64     `json:"user_id"`
	GenreID  *int64    `json:"genre_id,omitempty"`
	Category *Category `json:"category,omitempty"`
	Strength float64   `json:"strength"` // [0,1]
}

// IsGenre reports whether this is a genre-kind preference row.
func (p *Preference) IsGenre() bool {
	return p.GenreID != nil
}

// User is the minimal user shape the batch scheduler works with.
type User struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

// ActivityCounts aggregates an item's recent activity over a trailing
// window, the inputs to the popularity recompute.
type ActivityCounts struct {
	ItemID   int64 `json:"item_id"`
	Ratings  int64 `json:"ratings"`
	Reviews  int64 `json:"reviews"`
	ListAdds int64 `json:"list_adds"`
}
