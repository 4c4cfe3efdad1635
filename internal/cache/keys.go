// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package cache

import (
	"fmt"

	"github.com/shelfrank/shelfrank/internal/models"
)

// Key conventions. Every segment a key is derived from appears in the
// key itself so that InvalidatePattern can target it by substring:
//
//	recs:{userID}:{category}            precomputed recommendations
//	similar:item:{itemID}:{limit}       similar-item lists
//	trending:{category}:{page}:{size}   trending pages
//
// Similar keys embed an "item:{id}:" marker so catalog changes to one
// item can clear its derived entries; recommendation keys are cleared
// per user instead.

// RecommendationsKey addresses one user's precomputed set for one
// category. Category "" means the cross-category set.
func RecommendationsKey(userID int64, category models.Category) string {
	return fmt.Sprintf("recs:%d:%s", userID, category)
}

// UserPattern matches every recommendation entry for one user.
func UserPattern(userID int64) string {
	return fmt.Sprintf("recs:%d:", userID)
}

// SimilarKey addresses the similar-items list for one source item.
func SimilarKey(itemID int64, limit int) string {
	return fmt.Sprintf("similar:item:%d:%d", itemID, limit)
}

// TrendingKey addresses one page of the trending feed.
func TrendingKey(category models.Category, page, pageSize int) string {
	return fmt.Sprintf("trending:%s:%d:%d", category, page, pageSize)
}

// TrendingPattern matches every trending page for one category, or
// every trending page when category is empty.
func TrendingPattern(category models.Category) string {
	if category == "" {
		return "trending:"
	}
	return fmt.Sprintf("trending:%s:", category)
}

// ItemPattern matches every key derived from one catalog item. The
// trailing colon keeps item 4 from matching item 42.
func ItemPattern(itemID int64) string {
	return fmt.Sprintf("item:%d:", itemID)
}
