// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires the handlers and middleware into a Chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router from the handler set and middleware config.
func NewRouter(handler *Handler, mwConfig *ChiMiddlewareConfig) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(mwConfig),
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight always works

	// Health, permissive limits for monitoring probes
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
		r.Use(APISecurityHeaders())
		r.Get("/", router.handler.Health)
	})

	// Snapshot reads and manual refresh
	r.Route("/api/v1/snapshots", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics())

		r.Get("/sessions", router.handler.Sessions)
		r.Get("/history", router.handler.History)
	})

	r.Route("/api/v1/refresh", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitRefresh))
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics())

		r.Post("/sessions", router.handler.RefreshSessions)
		r.Post("/history", router.handler.RefreshHistory)
	})

	// Stream terminations, strict limits
	r.Route("/api/v1/streams", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitActions))
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics())

		r.Post("/kill_all", router.handler.KillAll)
		r.Post("/kill_user", router.handler.KillUser)
		r.Post("/kill_session", router.handler.KillSession)
	})

	// Poster art relay
	r.Route("/api/v1/image", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitImage))
		r.Use(PrometheusMetrics())

		r.Get("/", router.handler.Image)
	})

	// WebSocket upgrade
	r.With(router.chiMiddleware.RateLimitCustom(RateLimitWebSocket)).
		Get("/api/v1/ws", router.handler.WebSocket)

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
