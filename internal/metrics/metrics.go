// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

// Package metrics provides Prometheus collectors for observability.
//
// Metrics are exposed at /metrics in Prometheus text format and cover
// the pokemon cache (hits, misses, corrupt rows), PokéAPI fetches,
// store writes, the dex-list scraper, the circuit breaker, and HTTP
// traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache Metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokemon_cache_hits_total",
			Help: "Total pokemon cache hits served from the store",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokemon_cache_misses_total",
			Help: "Total pokemon cache misses that triggered a remote fetch",
		},
	)

	CacheCorruptRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokemon_cache_corrupt_rows_total",
			Help: "Total cache rows whose stats/types columns failed to decode",
		},
	)

	CacheUnavailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokemon_cache_unavailable_total",
			Help: "Total cache lookups skipped because the store was unreachable",
		},
	)

	// Remote Fetch Metrics
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pokeapi_fetch_duration_seconds",
			Help:    "Duration of PokéAPI GraphQL fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokeapi_fetch_errors_total",
			Help: "Total failed PokéAPI fetches",
		},
		[]string{"error_type"}, // "transport", "decode", "graphql", "breaker"
	)

	FetchNotFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokeapi_fetch_not_found_total",
			Help: "Total PokéAPI fetches that returned no matching pokemon",
		},
	)

	// Store Write Metrics
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_writes_total",
			Help: "Total pokemon store write attempts by outcome",
		},
		[]string{"outcome"}, // "written", "already_present", "replaced", "error"
	)

	// Scraper Metrics
	ScrapeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dex_scrape_requests_total",
			Help: "Total dex list scrape attempts by outcome",
		},
		[]string{"outcome"}, // "ok", "error"
	)

	DexCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dex_cache_hits_total",
			Help: "Total user dex lists served from the store within TTL",
		},
	)

	DexCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dex_cache_misses_total",
			Help: "Total user dex lookups that required a fresh scrape",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)
