// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

// Package poll implements the Tautulli polling pipeline.
//
// Two independent cycles run under supervision. The session poller
// fetches current activity every few seconds, applies derived timers
// through the Tracker, enriches public IPs through the GeoCache, and
// publishes a SessionsSnapshot. The history poller re-aggregates the
// rolling watch-history window every few minutes into per-user
// statistics and publishes a HistorySnapshot.
//
// Both pollers publish through the SnapshotStore, which holds the
// latest snapshot of each kind and pushes every update to the
// websocket hub. A failed cycle publishes a degraded snapshot rather
// than leaving consumers with no signal.
//
// Client is the upstream HTTP client; BreakerClient wraps its two
// polling fetches with a circuit breaker. Actions implements the
// stream termination operations.
package poll
