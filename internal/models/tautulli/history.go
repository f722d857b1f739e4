// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package tautulli

// TautulliHistory represents the API response from Tautulli's get_history endpoint
type TautulliHistory struct {
	Response TautulliHistoryResponse `json:"response"`
}

type TautulliHistoryResponse struct {
	Result  string              `json:"result"`
	Message *string             `json:"message,omitempty"`
	Data    TautulliHistoryData `json:"data"`
}

type TautulliHistoryData struct {
	RecordsFiltered int                     `json:"recordsFiltered"`
	RecordsTotal    int                     `json:"recordsTotal"`
	Data            []TautulliHistoryRecord `json:"data"`
}

// TautulliHistoryRecord represents a single playback history record from
// Tautulli's get_history endpoint. Only the fields the aggregator consumes
// are mapped.
//
// Note: Duration is in SECONDS (unlike get_activity which returns milliseconds)
type TautulliHistoryRecord struct {
	// Session identification
	// Pointer type allows distinguishing null from zero value in Tautulli API responses
	SessionKey *string `json:"session_key"` // Nullable - null when session ended
	Date       int64   `json:"date"`
	Started    int64   `json:"started"`
	Stopped    int64   `json:"stopped"`

	// User information
	// Pointer type allows distinguishing null from zero value in Tautulli API responses
	UserID          *int   `json:"user_id"` // Nullable - may be null in edge cases
	User            string `json:"user"`
	FriendlyName    string `json:"friendly_name"`
	IPAddress       string `json:"ip_address"`
	IPAddressPublic string `json:"ip_address_public"` // Public IP for accurate geolocation

	// Media identification
	// Pointer type allows distinguishing null from zero value in Tautulli API responses
	MediaType        string  `json:"media_type"`
	Title            string  `json:"title"`
	ParentTitle      *string `json:"parent_title"`      // Nullable - null for movies
	GrandparentTitle *string `json:"grandparent_title"` // Nullable - null for movies
	FullTitle        string  `json:"full_title"`        // Formatted full title

	// Client/Player information
	Platform  string `json:"platform"`
	Player    string `json:"player"`
	Product   string `json:"product"`
	Device    string `json:"device"`
	MachineID string `json:"machine_id"` // Unique device identifier
	Location  string `json:"location"`   // lan, wan

	// Playback metrics
	// Pointer type allows distinguishing null from zero value in Tautulli API responses
	PercentComplete *int `json:"percent_complete"` // Nullable
	PausedCounter   *int `json:"paused_counter"`   // Nullable
	Duration        *int `json:"duration"`         // In SECONDS (NOT milliseconds like get_activity), nullable for live

	// Transcode decision
	TranscodeDecision string `json:"transcode_decision"`

	// Audio metadata
	AudioLanguage string `json:"audio_language"`

	// Watch status and record identity
	// Pointer type allows distinguishing null from zero value in Tautulli API responses
	WatchedStatus *float64 `json:"watched_status"` // Watch progress 0.0-1.0 (nullable)
	RowID         *int     `json:"row_id"`         // Tautulli database row ID (nullable)
}
