// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package models

// UserStats holds per-user rolling statistics computed from the history
// window. Every record is rebuilt wholesale on each aggregation pass;
// nothing here is updated incrementally.
//
// All percentage fields are computed over max(total_plays, 1) and
// rounded to 1 decimal. Formatted durations use "{H}h {M}m".
type UserStats struct {
	User         string `json:"user"`
	FriendlyName string `json:"friendly_name,omitempty"`
	UserID       *int   `json:"user_id,omitempty"`

	// Play counters
	TotalPlays int `json:"total_plays"`
	MoviePlays int `json:"movie_plays"`
	TVPlays    int `json:"tv_plays"`

	// Durations and completion
	TotalPlayDurationSec int64   `json:"total_play_duration_sec"`
	TotalPlayDuration    string  `json:"total_play_duration"` // "{H}h {M}m"
	TotalCompletionRate  float64 `json:"total_completion_rate"`
	LongestPlaySec       int64   `json:"longest_play_sec"`
	LongestPlay          string  `json:"longest_play"`      // "{H}h {M}m"
	AveragePlayGap       string  `json:"average_play_gap"`  // "{H}h {M}m" or "N/A"
	PausedCount          int     `json:"paused_count"`
	TotalPausedSec       int64   `json:"total_paused_duration_sec"`
	TotalPausedDuration  string  `json:"total_paused_duration"` // "{H}h {M}m"

	// Title popularity
	MostPopularShow  string `json:"most_popular_show,omitempty"`
	MostPopularMovie string `json:"most_popular_movie,omitempty"`

	// Temporal distribution
	PreferredWatchTime string `json:"preferred_watch_time,omitempty"` // morning, midday, afternoon, evening
	WeekdayPlays       [7]int `json:"weekday_plays"`                  // Mon=0 .. Sun=6
	WatchedMorning     int    `json:"watched_morning"`                // [0,6)
	WatchedMidday      int    `json:"watched_midday"`                 // [6,12)
	WatchedAfternoon   int    `json:"watched_afternoon"`              // [12,18)
	WatchedEvening     int    `json:"watched_evening"`                // [18,24)

	// Playback type split
	TranscodeCount      int     `json:"transcode_count"`
	DirectPlayCount     int     `json:"direct_play_count"`
	DirectStreamCount   int     `json:"direct_stream_count"`
	TranscodePercentage float64 `json:"transcode_percentage"`

	// Devices
	MostUsedDevice         string   `json:"most_used_device,omitempty"`
	CommonTranscodeDevices []string `json:"common_transcode_devices,omitempty"`
	LastTranscodeDate      string   `json:"last_transcode_date,omitempty"`

	// Language
	CommonAudioLanguage string `json:"common_audio_language,omitempty"`

	// Network
	LANPlays int          `json:"lan_plays"`
	WANPlays int          `json:"wan_plays"`
	LastIP   string       `json:"last_ip,omitempty"`
	Geo      *Geolocation `json:"geo,omitempty"`

	// Recency, nil when the user has no stopped record in the window
	DaysSinceLastWatch *float64 `json:"days_since_last_watch,omitempty"`
}
