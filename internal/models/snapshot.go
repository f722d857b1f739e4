// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package models

import (
	"time"

	"github.com/streamwatch/streamwatch/internal/models/tautulli"
)

// Snapshot status values. A degraded snapshot is still published; the
// reason field says what failed upstream.
const (
	SnapshotOK       = "ok"
	SnapshotDegraded = "degraded"
)

// Diagnostics carries Tautulli's aggregate stream counters. Bandwidth
// figures arrive in kbps and are republished in Mbps.
type Diagnostics struct {
	StreamCount             int     `json:"stream_count"`
	StreamCountDirectPlay   int     `json:"stream_count_direct_play"`
	StreamCountDirectStream int     `json:"stream_count_direct_stream"`
	StreamCountTranscode    int     `json:"stream_count_transcode"`
	TotalBandwidthMbps      float64 `json:"total_bandwidth_mbps"`
	LANBandwidthMbps        float64 `json:"lan_bandwidth_mbps"`
	WANBandwidthMbps        float64 `json:"wan_bandwidth_mbps"`
}

// SessionsSnapshot is the published output of one sessions poll cycle.
type SessionsSnapshot struct {
	Status      string      `json:"status"` // ok, degraded
	Reason      string      `json:"reason,omitempty"`
	GeneratedAt time.Time   `json:"generated_at"`
	Diagnostics Diagnostics `json:"diagnostics"`
	Sessions    []Session   `json:"sessions"`
}

// HistorySnapshot is the published output of one history poll cycle.
// History carries the raw upstream records of the window; Users is the
// per-user aggregation over them, keyed by the upstream user name.
type HistorySnapshot struct {
	Status      string                           `json:"status"` // ok, degraded
	Reason      string                           `json:"reason,omitempty"`
	GeneratedAt time.Time                        `json:"generated_at"`
	Days        int                              `json:"days"`
	RecordCount int                              `json:"record_count"`
	History     []tautulli.TautulliHistoryRecord `json:"history"`
	Users       map[string]*UserStats            `json:"user_stats"`
}

// KillResult reports the outcome of a stream termination fan-out.
// Partial success is expected and is not an error.
type KillResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}
