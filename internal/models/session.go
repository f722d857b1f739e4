// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package models

import "time"

// Session is one active playback session, enriched with derived timer
// fields and optional geolocation. Upstream fields pass through from
// Tautulli's get_activity; the derived fields are owned by the tracker.
type Session struct {
	// Session identification
	SessionKey string `json:"session_key"`
	SessionID  string `json:"session_id"`

	// Media metadata (passthrough)
	MediaType        string `json:"media_type"`
	RatingKey        string `json:"rating_key"`
	Title            string `json:"title"`
	ParentTitle      string `json:"parent_title,omitempty"`
	GrandparentTitle string `json:"grandparent_title,omitempty"`
	FullTitle        string `json:"full_title"`
	MediaIndex       string `json:"media_index,omitempty"`
	ParentMediaIndex string `json:"parent_media_index,omitempty"`
	Year             int    `json:"year,omitempty"`
	Thumb            string `json:"thumb,omitempty"`
	Art              string `json:"art,omitempty"`
	LibraryName      string `json:"library_name,omitempty"`

	// User
	User         string `json:"user"`
	UserID       int    `json:"user_id"`
	FriendlyName string `json:"friendly_name"`

	// Client
	IPAddress       string `json:"ip_address"`
	IPAddressPublic string `json:"ip_address_public,omitempty"`
	Player          string `json:"player"`
	Platform        string `json:"platform"`
	Product         string `json:"product,omitempty"`
	Device          string `json:"device,omitempty"`
	MachineID       string `json:"machine_id,omitempty"`
	Location        string `json:"location,omitempty"` // lan, wan
	Local           bool   `json:"local"`
	Secure          bool   `json:"secure"`
	Relayed         bool   `json:"relayed"`
	QualityProfile  string `json:"quality_profile,omitempty"`

	// Playback state
	State           string `json:"state"` // playing, paused, buffering
	ViewOffset      int    `json:"view_offset"`
	Duration        int    `json:"duration"`
	ProgressPercent int    `json:"progress_percent"`

	// Quality
	TranscodeDecision     string `json:"transcode_decision"`
	VideoDecision         string `json:"video_decision,omitempty"`
	AudioDecision         string `json:"audio_decision,omitempty"`
	VideoResolution       string `json:"video_resolution,omitempty"`
	StreamVideoResolution string `json:"stream_video_resolution,omitempty"`
	VideoCodec            string `json:"video_codec,omitempty"`
	AudioCodec            string `json:"audio_codec,omitempty"`
	Container             string `json:"container,omitempty"`
	Bitrate               int    `json:"bitrate,omitempty"`
	Bandwidth             int    `json:"bandwidth,omitempty"`

	// Derived fields (owned by the session timer tracker)
	StartTimeRaw      int64  `json:"start_time_raw"`      // first-seen, epoch seconds
	StartTime         string `json:"start_time"`          // 12-hour clock, e.g. "3:04 PM"
	PausedDurationSec int64  `json:"paused_duration_sec"` // 0 unless currently paused
	PausedDuration    string `json:"paused_duration"`     // "{m}m {s}s"

	// Geolocation enrichment, nil when disabled or unknown
	Geo *Geolocation `json:"geo,omitempty"`
}

// Geolocation represents geographic data for an IP address
type Geolocation struct {
	IPAddress   string    `json:"ip_address"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	City        *string   `json:"city,omitempty"`
	Region      *string   `json:"region,omitempty"`
	Country     string    `json:"country"`
	PostalCode  *string   `json:"postal_code,omitempty"`
	Timezone    *string   `json:"timezone,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}
