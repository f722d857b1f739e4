// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

// Package models defines the domain types Streamwatch publishes:
// enriched sessions, per-user statistics, and the snapshot envelopes
// the pollers hand to the API and WebSocket layers.
//
// Wire types for the upstream Tautulli API live in the tautulli
// subpackage; this package holds the normalized shapes after
// enrichment.
package models
