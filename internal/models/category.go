// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package models

import "fmt"

// Category is the top-level kind of a catalog item.
type Category string

const (
	// CategoryFilm covers movies and series.
	CategoryFilm Category = "film"
	// CategoryGame covers video games.
	CategoryGame Category = "game"
	// CategoryBook covers books and comics.
	CategoryBook Category = "book"
)

// AllCategories returns every known category in a stable order.
func AllCategories() []Category {
	return []Category{CategoryFilm, CategoryGame, CategoryBook}
}

// Valid reports whether the category is one of the known values.
func (c Category) Valid() bool {
	switch c {
	case CategoryFilm, CategoryGame, CategoryBook:
		return true
	default:
		return false
	}
}

// String returns the category name.
func (c Category) String() string {
	return string(c)
}

// ParseCategory converts a string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}
