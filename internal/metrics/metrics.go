// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

// Package metrics exposes Prometheus instrumentation for:
// - Poll cycle outcomes and latency (sessions and history)
// - Upstream Tautulli API calls and circuit breaker state
// - Geolocation cache efficiency and lookup providers
// - Stream termination requests
// - WebSocket connections
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poll Cycle Metrics
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_cycles_total",
			Help: "Total number of poll cycles by poller and outcome",
		},
		[]string{"poller", "status"}, // poller: "sessions", "history"; status: "ok", "degraded"
	)

	PollCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poll_cycle_duration_seconds",
			Help:    "Duration of poll cycles in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"poller"},
	)

	PollLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poll_last_success_timestamp",
			Help: "Unix timestamp of the last successful poll cycle",
		},
		[]string{"poller"},
	)

	// Snapshot Gauges
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Current number of active playback sessions",
		},
	)

	HistoryUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "history_users",
			Help: "Number of users in the current history snapshot",
		},
	)

	HistoryRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "history_records",
			Help: "Number of history records behind the current snapshot",
		},
	)

	// Upstream API Metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of Tautulli API requests",
		},
		[]string{"cmd", "status"}, // status: "ok", "error"
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of Tautulli API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cmd"},
	)

	UpstreamRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upstream_rate_limited_total",
			Help: "Total number of HTTP 429 responses from Tautulli",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Geolocation Metrics
	GeoCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geolocation_cache_hits_total",
			Help: "Total number of geolocation cache hits",
		},
	)

	GeoCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geolocation_cache_misses_total",
			Help: "Total number of geolocation cache misses (lookup required)",
		},
	)

	GeoCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geolocation_cache_evictions_total",
			Help: "Total number of geolocation cache evictions (TTL expiry)",
		},
	)

	GeoCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geolocation_cache_entries",
			Help: "Current number of cached geolocation entries",
		},
	)

	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geolocation_lookups_total",
			Help: "Total number of geolocation lookups by provider and outcome",
		},
		[]string{"provider", "status"}, // status: "ok", "error", "throttled"
	)

	// Stream Termination Metrics
	TerminateRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "terminate_requests_total",
			Help: "Total number of stream termination requests",
		},
		[]string{"result"}, // "succeeded", "failed"
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Total number of WebSocket messages dropped due to full client buffers",
		},
	)

	// API Endpoint Metrics
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

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordPollCycle records the outcome and duration of a single poll cycle.
func RecordPollCycle(poller, status string, duration time.Duration) {
	PollCycles.WithLabelValues(poller, status).Inc()
	PollCycleDuration.WithLabelValues(poller).Observe(duration.Seconds())
	if status == "ok" {
		PollLastSuccess.WithLabelValues(poller).Set(float64(time.Now().Unix()))
	}
}

// RecordUpstreamRequest records a Tautulli API call.
func RecordUpstreamRequest(cmd string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	UpstreamRequests.WithLabelValues(cmd, status).Inc()
	UpstreamRequestDuration.WithLabelValues(cmd).Observe(duration.Seconds())
}

// RecordGeoLookup records a geolocation lookup attempt against a provider.
func RecordGeoLookup(provider, status string) {
	GeoLookups.WithLabelValues(provider, status).Inc()
}

// RecordTermination records the outcome of a stream termination request.
func RecordTermination(succeeded bool) {
	result := "succeeded"
	if !succeeded {
		result = "failed"
	}
	TerminateRequests.WithLabelValues(result).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
