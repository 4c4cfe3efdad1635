// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

/*
Package recommend implements the recommendation engine.

The engine is stateless: every call re-derives its inputs (ratings,
preferences, popularity) from the catalog store, so identical inputs
always produce identical rankings. Scores are never persisted; they
live only in responses and in cache entries with a TTL.

Scoring is a fixed weighted formula over four factors:

	score = 0.3*popularity + 0.3*averageRating +
	        0.3*sum(genreScore[g] for g in item.genres) +
	        0.2*categoryPreference[item.category]

The genre score map blends inferred signal (each rated item adds
rating/10 to each of its genres) with explicit signal (each genre
preference adds strength*2, twice the inferred weight). Similar-item
ranking uses Jaccard similarity over genre ID sets instead.

The same engine code serves both the on-demand HTTP path and the batch
refresh path, so precomputed and live results never diverge.
*/
package recommend
