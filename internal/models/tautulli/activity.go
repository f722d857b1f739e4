// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package tautulli

// TautulliActivity represents the API response from Tautulli's get_activity endpoint
type TautulliActivity struct {
	Response TautulliActivityResponse `json:"response"`
}

type TautulliActivityResponse struct {
	Result  string               `json:"result"`
	Message *string              `json:"message,omitempty"`
	Data    TautulliActivityData `json:"data"`
}

type TautulliActivityData struct {
	LANBandwidth            int                       `json:"lan_bandwidth"`
	WANBandwidth            int                       `json:"wan_bandwidth"`
	TotalBandwidth          int                       `json:"total_bandwidth"`
	StreamCount             int                       `json:"stream_count"`
	StreamCountDirectPlay   int                       `json:"stream_count_direct_play"`
	StreamCountDirectStream int                       `json:"stream_count_direct_stream"`
	StreamCountTranscode    int                       `json:"stream_count_transcode"`
	Sessions                []TautulliActivitySession `json:"sessions"`
}

// TautulliActivitySession represents a single active streaming session from
// Tautulli's get_activity endpoint. Only the fields consumed downstream are
// mapped; unknown fields in the payload are ignored by the decoder.
//
// Note: Duration and ViewOffset are in MILLISECONDS (unlike get_history
// which returns duration in seconds)
type TautulliActivitySession struct {
	// Session identification
	SessionKey string `json:"session_key"`
	SessionID  string `json:"session_id"`

	// Media identification
	MediaType        string `json:"media_type"`
	RatingKey        string `json:"rating_key"`
	Title            string `json:"title"`
	ParentTitle      string `json:"parent_title"`
	GrandparentTitle string `json:"grandparent_title"`
	FullTitle        string `json:"full_title"`
	MediaIndex       string `json:"media_index"`        // Episode number
	ParentMediaIndex string `json:"parent_media_index"` // Season number
	Year             int    `json:"year"`

	// Thumbnails and art
	Thumb            string `json:"thumb"`
	ParentThumb      string `json:"parent_thumb"`
	GrandparentThumb string `json:"grandparent_thumb"`
	Art              string `json:"art"`

	// User information
	User         string `json:"user"`
	UserID       int    `json:"user_id"`
	FriendlyName string `json:"friendly_name"`
	UserThumb    string `json:"user_thumb"`

	// Client/Player information
	IPAddress       string `json:"ip_address"`
	IPAddressPublic string `json:"ip_address_public"` // Public IP for accurate geolocation
	Player          string `json:"player"`
	Platform        string `json:"platform"`
	Product         string `json:"product"`
	Device          string `json:"device"`
	MachineID       string `json:"machine_id"` // Unique device identifier
	Local           int    `json:"local"`      // 0 or 1
	QualityProfile  string `json:"quality_profile"`

	// Playback state
	State           string `json:"state"` // playing, paused, buffering
	ViewOffset      int    `json:"view_offset"`
	Duration        int    `json:"duration"`
	ProgressPercent int    `json:"progress_percent"`

	// Transcode decision fields
	TranscodeDecision string `json:"transcode_decision"`
	VideoDecision     string `json:"video_decision"`
	AudioDecision     string `json:"audio_decision"`

	// Quality metrics
	VideoResolution       string `json:"video_resolution"`
	StreamVideoResolution string `json:"stream_video_resolution"`
	VideoCodec            string `json:"video_codec"`
	AudioCodec            string `json:"audio_codec"`
	Container             string `json:"container"`
	Bitrate               int    `json:"bitrate"`
	Bandwidth             int    `json:"bandwidth"`
	Location              string `json:"location"` // lan, wan
	Secure                int    `json:"secure"`
	Relayed               int    `json:"relayed"`

	// Library metadata
	SectionID   string `json:"section_id"`
	LibraryName string `json:"library_name"`
}
