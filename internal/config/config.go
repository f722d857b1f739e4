// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

// Package config defines the Streamwatch configuration model and its
// layered loader (defaults, optional YAML file, environment variables).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Streamwatch service.
type Config struct {
	Tautulli    TautulliConfig    `koanf:"tautulli"`
	Poll        PollConfig        `koanf:"poll"`
	Geolocation GeolocationConfig `koanf:"geolocation"`
	Server      ServerConfig      `koanf:"server"`
	Security    SecurityConfig    `koanf:"security"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// TautulliConfig holds connection settings for the upstream Tautulli instance.
type TautulliConfig struct {
	// URL is the Tautulli base URL, e.g. http://tautulli:8181
	URL string `koanf:"url" validate:"required,url"`

	// APIKey authenticates every /api/v2 request.
	APIKey string `koanf:"api_key" validate:"required"`

	// VerifySSL controls TLS certificate verification. Many Tautulli
	// installs run with self-signed certificates, so this defaults to false.
	VerifySSL bool `koanf:"verify_ssl"`

	// Timeout bounds each upstream HTTP request.
	Timeout time.Duration `koanf:"timeout"`
}

// PollConfig holds the two polling cycles and the terminate defaults.
type PollConfig struct {
	// SessionInterval is how often active sessions are fetched.
	SessionInterval time.Duration `koanf:"session_interval"`

	// HistoryInterval is how often watch history is re-aggregated.
	HistoryInterval time.Duration `koanf:"history_interval"`

	// HistoryDays is the rolling history window in days.
	HistoryDays int `koanf:"history_days" validate:"min=1,max=365"`

	// HistoryPageSize is the page size for paginated history fetches.
	HistoryPageSize int `koanf:"history_page_size" validate:"min=1"`

	// TerminateMessage is shown to the viewer when a stream is killed
	// and no per-request message is given.
	TerminateMessage string `koanf:"terminate_message"`
}

// GeolocationConfig controls IP geolocation enrichment.
type GeolocationConfig struct {
	// Enabled toggles geolocation enrichment of sessions and user stats.
	Enabled bool `koanf:"enabled"`

	// CacheTTL is how long lookups (including failed ones) are cached.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// LookupsPerMinute bounds upstream lookup rate. The ip-api.com
	// fallback allows 45 requests per minute on the free tier.
	LookupsPerMinute int `koanf:"lookups_per_minute" validate:"min=1"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// SecurityConfig holds CORS and rate limiting settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// validate is the shared validator instance. validator.New is expensive,
// so it is created once and reused for every Validate call.
var validate = validator.New()

// Validate checks the configuration for structural and semantic errors.
// Structural checks come from validator struct tags; semantic checks cover
// relationships the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Poll.SessionInterval < time.Second {
		return fmt.Errorf("poll.session_interval must be at least 1s, got %s", c.Poll.SessionInterval)
	}
	if c.Poll.HistoryInterval < time.Minute {
		return fmt.Errorf("poll.history_interval must be at least 1m, got %s", c.Poll.HistoryInterval)
	}
	if c.Tautulli.Timeout <= 0 {
		return fmt.Errorf("tautulli.timeout must be positive, got %s", c.Tautulli.Timeout)
	}
	if c.Geolocation.Enabled && c.Geolocation.CacheTTL < time.Minute {
		return fmt.Errorf("geolocation.cache_ttl must be at least 1m, got %s", c.Geolocation.CacheTTL)
	}

	return nil
}
