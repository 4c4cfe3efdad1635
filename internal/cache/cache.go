// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

// Package cache provides a Badger-backed key-value cache with TTL
// expiration and substring pattern invalidation.
//
// Recommendation sets and trending pages are expensive to compute, so
// they are stored here under structured keys (see keys.go) and served
// until their TTL lapses or a catalog change invalidates them. Cache
// failures are never fatal to callers; a broken cache degrades to
// recomputation, not to an error.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/shelfrank/shelfrank/internal/config"
	"github.com/shelfrank/shelfrank/internal/metrics"
)

// Store is a TTL cache on top of BadgerDB. An empty path runs fully
// in memory; a non-empty path persists across restarts, which keeps
// precomputed recommendations warm through a deploy.
type Store struct {
	db         *badger.DB
	defaultTTL time.Duration
	logger     zerolog.Logger

	hits        atomic.Int64
	misses      atomic.Int64
	invalidated atomic.Int64

	stopGC chan struct{}
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Invalidated int64 `json:"invalidated"`
	Keys        int64 `json:"keys"`
}

// HitRate returns the hit percentage, 0 when the cache is untouched.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// New opens the cache store. The Badger event logger is silenced and
// replaced with our own; Badger's default logger writes unstructured
// lines that break JSON log streams.
func New(cfg config.CacheConfig, logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithLogger(nil).
		WithInMemory(cfg.Path == "")

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}

	s := &Store{
		db:         db,
		defaultTTL: cfg.DefaultTTL,
		logger:     logger.With().Str("component", "cache").Logger(),
		stopGC:     make(chan struct{}),
	}

	if cfg.Path != "" {
		go s.gcLoop()
	}

	return s, nil
}

// Get returns the raw value for key. The second return is false on a
// miss, whether the key was never set or has expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		s.misses.Add(1)
		metrics.CacheMisses.Inc()
		return nil, false, nil
	}
	if err != nil {
		s.misses.Add(1)
		metrics.CacheMisses.Inc()
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}

	s.hits.Add(1)
	metrics.CacheHits.Inc()
	return value, true, nil
}

// Set stores value under key with the given TTL. A non-positive TTL
// falls back to the store default.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// GetBatch returns the subset of keys currently cached. Missing keys
// are simply absent from the result.
func (s *Store) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
	found := make(map[string][]byte, len(keys))

	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				s.misses.Add(1)
				metrics.CacheMisses.Inc()
				continue
			}
			if err != nil {
				return fmt.Errorf("get %q: %w", key, err)
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy %q: %w", key, err)
			}
			found[key] = value
			s.hits.Add(1)
			metrics.CacheHits.Inc()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache get batch: %w", err)
	}

	return found, nil
}

// SetBatch stores all entries with a shared TTL in one write batch.
// Used by the refresh job, which produces one entry per user per
// category and should not pay a transaction per key.
func (s *Store) SetBatch(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for key, value := range entries {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		if err := wb.SetEntry(entry); err != nil {
			return fmt.Errorf("cache batch set %q: %w", key, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("cache batch flush: %w", err)
	}
	return nil
}

// Delete removes a single key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}

// InvalidatePattern removes every key whose name contains pattern as
// a substring and returns how many were dropped. Keys embed their
// constituent IDs (see keys.go), so "item:42:" clears every cached
// result that was derived from item 42.
func (s *Store) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	var matched []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if strings.Contains(key, pattern) {
				matched = append(matched, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cache scan %q: %w", pattern, err)
	}

	if len(matched) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range matched {
		if err := wb.Delete([]byte(key)); err != nil {
			return 0, fmt.Errorf("cache invalidate %q: %w", key, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("cache invalidate flush: %w", err)
	}

	s.invalidated.Add(int64(len(matched)))
	metrics.CacheKeysInvalidated.Add(float64(len(matched)))
	s.logger.Debug().
		Str("pattern", pattern).
		Int("keys", len(matched)).
		Msg("Invalidated cache keys")

	return len(matched), nil
}

// Stats returns a snapshot of the counters plus the live key count.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var keys int64

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys++
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}

	return Stats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Invalidated: s.invalidated.Load(),
		Keys:        keys,
	}, nil
}

// Close stops background GC and closes the underlying store.
func (s *Store) Close() error {
	close(s.stopGC)
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close cache store: %w", err)
	}
	return nil
}

// gcLoop reclaims value log space for on-disk stores. Badger requires
// the caller to drive GC; ErrNoRewrite just means nothing to reclaim.
func (s *Store) gcLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						s.logger.Warn().Err(err).Msg("Cache GC failed")
					}
					break
				}
			}
		}
	}
}
