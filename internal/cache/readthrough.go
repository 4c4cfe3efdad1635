// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// ReadThrough returns the cached value under key, or computes it,
// stores it, and returns it. Cache failures on either side are logged
// and swallowed; the computed value always reaches the caller.
func ReadThrough[T any](ctx context.Context, s *Store, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var zero T

	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	}
	if ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		// Undecodable entries are stale schema; drop and recompute.
		if err := s.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Cache evict failed")
		}
	}

	value, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache encode failed")
		return value, nil
	}
	if err := s.Set(ctx, key, data, ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}

	return value, nil
}
