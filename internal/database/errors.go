// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package database

import "errors"

// Sentinel errors for referenced entities that do not exist. Callers map
// these to client-visible NotFound outcomes; every other store error is a
// server-side failure and propagates unchanged.
var (
	// ErrItemNotFound indicates the referenced catalog item does not exist.
	ErrItemNotFound = errors.New("catalog item not found")

	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
)
