// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package recommend

import (
	"context"

	"github.com/shelfrank/shelfrank/internal/database"
	"github.com/shelfrank/shelfrank/internal/models"
)

// Store is the narrow query contract the engine consumes from the
// catalog and preference store. Defined here so the engine can be
// tested against a fake without a live database.
type Store interface {
	// GetUser returns the user or database.ErrUserNotFound.
	GetUser(ctx context.Context, userID int64) (*models.User, error)

	// GetUserRatings returns the user's full rating history with each
	// rated item's category and genres attached.
	GetUserRatings(ctx context.Context, userID int64) ([]models.RatedItem, error)

	// GetUserPreferences returns the user's explicit preference rows.
	GetUserPreferences(ctx context.Context, userID int64) ([]models.Preference, error)

	// ReplacePreferences atomically replaces all of a user's rows.
	ReplacePreferences(ctx context.Context, userID int64, rows []models.Preference) error

	// FindItems returns one page of candidates plus the total count of
	// items matching the filter regardless of the page bound.
	FindItems(ctx context.Context, filter database.ItemFilter) ([]models.CatalogItem, int64, error)

	// GetItem returns the item with genres or database.ErrItemNotFound.
	GetItem(ctx context.Context, itemID int64) (*models.CatalogItem, error)
}

// PersonalRequest asks for one page of personalized recommendations.
type PersonalRequest struct {
	UserID int64

	// Category restricts results to one category; nil means all.
	Category *models.Category

	// IncludeRated keeps already-rated items in the results. The
	// default excludes them as a hard filter, not a score penalty.
	IncludeRated bool

	Page     int
	PageSize int
}

// SimilarRequest asks for items similar to a seed item.
type SimilarRequest struct {
	// UserID excludes that user's rated items when set; zero means an
	// anonymous request with no personal exclusions.
	UserID int64

	ItemID int64
	Limit  int
}

// TrendingRequest asks for one page of the non-personalized feed.
type TrendingRequest struct {
	Category *models.Category
	Page     int
	PageSize int
}

// CategoryPreference is one explicit category weight in a preference
// update.
type CategoryPreference struct {
	Category models.Category `json:"category" validate:"required"`
	Strength float64         `json:"strength" validate:"gte=0,lte=1"`
}

// ScoredItem is a catalog item with its computed score. For personal
// recommendations the score is the weighted formula; for similar items
// it is the Jaccard similarity; for trending it is the popularity.
type ScoredItem struct {
	Item  models.CatalogItem `json:"item"`
	Score float64            `json:"score"`
}

// ResultPage is one page of ranked items. TotalCount covers the whole
// candidate set, not just this page.
type ResultPage struct {
	Items      []ScoredItem `json:"items"`
	TotalCount int64        `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}
