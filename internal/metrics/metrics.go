// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

// Package metrics exposes Prometheus instrumentation for the API, the
// recommendation pipeline, and the cache. Metrics are served on the
// /metrics endpoint in Prometheus text format.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Recommendation metrics
	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Total number of recommendation computations",
		},
		[]string{"operation"}, // "personal", "similar", "trending"
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommendation_duration_seconds",
			Help:    "Duration of recommendation computations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Scheduler metrics
	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Total number of scheduled job runs",
		},
		[]string{"job", "status"}, // status: "success", "failure", "skipped"
	)

	SchedulerRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_run_duration_seconds",
			Help:    "Duration of scheduled job runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"job"},
	)

	SchedulerUsersProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_users_processed_total",
			Help: "Total number of users processed by refresh runs",
		},
	)

	SchedulerUserFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_user_failures_total",
			Help: "Total number of per-user refresh failures",
		},
	)

	SchedulerItemsRecomputed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_items_recomputed_total",
			Help: "Total number of item popularity recomputations",
		},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	CacheKeysInvalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_keys_invalidated_total",
			Help: "Total number of cache keys removed by pattern invalidation",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of live cache entries",
		},
	)

	// Notification metrics
	NotificationsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Total number of new-recommendation events published",
		},
	)

	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Total number of failed notification publishes",
		},
	)
)

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRecommendation records one engine computation.
func RecordRecommendation(operation string, duration time.Duration) {
	RecommendationRequests.WithLabelValues(operation).Inc()
	RecommendationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSchedulerRun records the outcome of one job run.
func RecordSchedulerRun(job string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	SchedulerRuns.WithLabelValues(job, status).Inc()
	SchedulerRunDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordSchedulerSkip records a run skipped by the single-flight guard.
func RecordSchedulerSkip(job string) {
	SchedulerRuns.WithLabelValues(job, "skipped").Inc()
}

// SetCacheEntries refreshes the live entry gauge from a stats snapshot.
func SetCacheEntries(entries int64) {
	CacheEntries.Set(float64(entries))
}
