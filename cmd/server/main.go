// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

// Package main is the entry point for the Streamwatch server.
//
// Streamwatch is a self-hosted monitoring service for Tautulli. It polls
// the Tautulli API on two cycles (active sessions and watch history),
// derives per-session timing and per-user statistics, enriches both with
// IP geolocation, and serves the results over a REST API and a WebSocket
// push channel.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from config file and environment (Koanf v2)
//  2. Tautulli client: Circuit-breaker protected API client, with a
//     startup connectivity check
//  3. Geolocation: Cached lookups via Tautulli's geoip endpoint with an
//     ip-api.com fallback (optional)
//  4. Snapshot store and WebSocket hub: Pollers publish, clients subscribe
//  5. Pollers: Session poller (seconds cadence) and history poller
//     (minutes cadence)
//  6. HTTP Server: REST API plus /metrics (Prometheus)
//
// All long-running components run under a Suture supervisor tree; a
// crashing poller is restarted without taking down the API.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (STREAMWATCH_ prefix)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// Required settings:
//   - TAUTULLI_URL: Tautulli server URL (e.g., http://localhost:8181)
//   - TAUTULLI_API_KEY: API key from Tautulli Settings > Web Interface
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Stops both pollers and disconnects WebSocket clients
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/streamwatch/streamwatch/internal/api"
	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/logging"
	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/poll"
	"github.com/streamwatch/streamwatch/internal/supervisor"
	ws "github.com/streamwatch/streamwatch/internal/websocket"
)

// version is overridden at build time:
//
//	go build -ldflags "-X main.version=v1.2.3" ./cmd/server
var version = "dev"

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("tautulli_url", cfg.Tautulli.URL).
		Bool("geolocation", cfg.Geolocation.Enabled).
		Msg("Starting Streamwatch")

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	// Watch the config file for changes. Most settings are wired at
	// construction and need a restart; the log level applies live.
	if path := config.ConfigFilePath(); path != "" {
		watchErr := config.WatchConfigFile(path, func() {
			reloaded, err := config.LoadWithKoanf()
			if err != nil {
				logging.Warn().Err(err).Msg("Config reload failed, keeping current settings")
				return
			}
			logging.SetLevelString(reloaded.Logging.Level)
			logging.Info().Str("level", reloaded.Logging.Level).Msg("Config file changed, log level applied")
		})
		if watchErr != nil {
			logging.Warn().Err(watchErr).Str("path", path).Msg("Config file watch unavailable")
		}
	}

	// Tautulli client with circuit breaker around the polling fetches.
	// Geolocation, termination, and the image relay use the unwrapped
	// client so an open circuit cannot reject an operator action.
	breaker := poll.NewBreakerClient(&cfg.Tautulli)

	// Connectivity check. A failure is logged but not fatal: the pollers
	// publish degraded snapshots until Tautulli becomes reachable.
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := breaker.Unwrap().Ping(pingCtx); err != nil {
		logging.Warn().Err(err).Msg("Tautulli unreachable at startup, continuing degraded")
	} else {
		logging.Info().Msg("Tautulli connection verified")
	}
	pingCancel()

	// Geolocation cache, nil when disabled. The Tautulli provider is
	// tried first; ip-api.com is the rate-limited fallback.
	var geo *poll.GeoCache
	if cfg.Geolocation.Enabled {
		geo = poll.NewGeoCache(cfg.Geolocation.CacheTTL,
			poll.NewTautulliProvider(breaker.Unwrap()),
			poll.NewIPAPIProvider(cfg.Geolocation.LookupsPerMinute),
		)
	}

	// Snapshot store publishes to the hub; the hub pushes to clients.
	hub := ws.NewHub()
	store := poll.NewSnapshotStore(hub)

	sessionsPoller := poll.NewSessionsPoller(breaker, poll.NewTracker(), geo, store, cfg.Poll.SessionInterval)
	historyPoller := poll.NewHistoryPoller(breaker, poll.NewAggregator(), geo, store,
		cfg.Poll.HistoryInterval, cfg.Poll.HistoryDays, cfg.Poll.HistoryPageSize)

	// Kill actions refresh the session snapshot so terminated streams
	// disappear without waiting for the next cycle.
	actions := poll.NewActions(breaker.Unwrap(), store, cfg.Poll.TerminateMessage, sessionsPoller.Refresh)

	handler := api.NewHandler(cfg, store, actions, breaker.Unwrap(), hub,
		sessionsPoller.Refresh, historyPoller.Refresh, version)

	mwConfig := api.DefaultChiMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwConfig.RateLimitRequests = cfg.Security.RateLimitReqs
	mwConfig.RateLimitWindow = cfg.Security.RateLimitWindow
	mwConfig.RateLimitDisabled = cfg.Security.RateLimitDisabled

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, mwConfig).Setup(),
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddPollService(hub)
	tree.AddPollService(sessionsPoller)
	tree.AddPollService(historyPoller)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.AppUptime.Set(time.Since(startTime).Seconds())
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Streamwatch stopped gracefully")
}
