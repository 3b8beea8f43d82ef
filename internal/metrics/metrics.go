// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

// Package metrics provides Prometheus instrumentation for the sync engine.
// Metrics are exposed at /metrics on the admin API in Prometheus text format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync Metrics
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of library sync passes in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	SyncGamesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_games_processed_total",
			Help: "Total number of games upserted by sync passes",
		},
	)

	SyncGamesDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_games_deleted_total",
			Help: "Total number of games deleted by sync passes",
		},
		[]string{"reason"}, // "orphan", "duplicate", "disc_sibling", "extension"
	)

	SyncPlatformsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_platforms_processed_total",
			Help: "Total number of platforms processed by sync passes",
		},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_errors_total",
			Help: "Total number of sync errors by category",
		},
		[]string{"category"}, // "auth", "network", "store", "other"
	)

	SyncRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_requests_rejected_total",
			Help: "Sync triggers rejected because a pass was already running",
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful sync pass",
		},
	)

	SyncPageSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_page_size",
			Help:    "Number of ROM entries per fetched page",
			Buckets: []float64{1, 10, 25, 50, 100, 250, 500},
		},
	)

	// Remote API Metrics
	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "romm_api_call_duration_seconds",
			Help:    "Duration of RomM API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APICallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "romm_api_call_errors_total",
			Help: "Total number of failed RomM API calls",
		},
		[]string{"endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	// Collection Sync Metrics
	CollectionSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collection_syncs_total",
			Help: "Total collection sync operations by kind",
		},
		[]string{"kind"}, // "favorites", "named"
	)

	FavoritesDebounceSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "favorites_debounce_skips_total",
			Help: "Favorites refreshes skipped by the 30s debounce window",
		},
	)

	// Store Metrics
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of catalog store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// RecordSyncPass records the outcome of a completed sync pass.
func RecordSyncPass(duration time.Duration, gamesProcessed int, errs int) {
	SyncDuration.Observe(duration.Seconds())
	SyncGamesProcessed.Add(float64(gamesProcessed))
	if errs == 0 {
		SyncLastSuccess.SetToCurrentTime()
	}
}

// ObserveStoreOp times a store operation from its start time.
func ObserveStoreOp(operation string, start time.Time) {
	StoreOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
