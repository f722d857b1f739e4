// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/logging"
	"github.com/streamwatch/streamwatch/internal/poll"
	"github.com/streamwatch/streamwatch/internal/websocket"
)

// ImageFetcher relays poster art through Tautulli's image proxy.
type ImageFetcher interface {
	ImageProxy(ctx context.Context, img string, width, height int, fallback string) ([]byte, string, error)
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	cfg     *config.Config
	store   *poll.SnapshotStore
	actions *poll.Actions
	images  ImageFetcher
	hub     *websocket.Hub

	refreshSessions func()
	refreshHistory  func()

	version   string
	startTime time.Time
}

// NewHandler creates the handler set. refreshSessions and refreshHistory
// trigger out-of-band polls and may be nil.
func NewHandler(cfg *config.Config, store *poll.SnapshotStore, actions *poll.Actions, images ImageFetcher, hub *websocket.Hub, refreshSessions, refreshHistory func(), version string) *Handler {
	return &Handler{
		cfg:             cfg,
		store:           store,
		actions:         actions,
		images:          images,
		hub:             hub,
		refreshSessions: refreshSessions,
		refreshHistory:  refreshHistory,
		version:         version,
		startTime:       time.Now(),
	}
}

// healthResponse is the payload for the health endpoint.
type healthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Sessions      healthAge `json:"sessions"`
	History       healthAge `json:"history"`
}

type healthAge struct {
	Status      string    `json:"status"`
	GeneratedAt time.Time `json:"generated_at"`
	AgeSeconds  int64     `json:"age_seconds"`
}

// Health reports service liveness plus the freshness of both snapshots.
// The endpoint itself always returns 200; upstream trouble shows up as
// degraded snapshot status, not as an unhealthy service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sessions := h.store.Sessions()
	history := h.store.History()
	now := time.Now()

	rw.Success(healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Sessions: healthAge{
			Status:      sessions.Status,
			GeneratedAt: sessions.GeneratedAt,
			AgeSeconds:  int64(now.Sub(sessions.GeneratedAt).Seconds()),
		},
		History: healthAge{
			Status:      history.Status,
			GeneratedAt: history.GeneratedAt,
			AgeSeconds:  int64(now.Sub(history.GeneratedAt).Seconds()),
		},
	})
}

// Sessions returns the latest sessions snapshot.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.store.Sessions())
}

// History returns the latest history snapshot.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.store.History())
}

// killRequest is the body for all three kill endpoints. Message is
// optional everywhere; user and session_id are required where relevant.
type killRequest struct {
	User      string `json:"user,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

func decodeKillRequest(r *http.Request) (killRequest, error) {
	var req killRequest
	if r.Body == nil || r.ContentLength == 0 {
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

// KillAll terminates every active stream.
func (h *Handler) KillAll(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req, err := decodeKillRequest(r)
	if err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}

	result := h.actions.KillAll(r.Context(), req.Message)
	logging.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("kill_all executed")
	rw.Success(result)
}

// KillUser terminates every stream belonging to the matched user.
func (h *Handler) KillUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req, err := decodeKillRequest(r)
	if err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if strings.TrimSpace(req.User) == "" {
		rw.BadRequest("user is required")
		return
	}

	result := h.actions.KillUser(r.Context(), req.User, req.Message)
	logging.Info().
		Str("user", sanitizeLogValue(req.User)).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("kill_user executed")
	rw.Success(result)
}

// KillSession terminates a single stream by session identity.
func (h *Handler) KillSession(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req, err := decodeKillRequest(r)
	if err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		rw.BadRequest("session_id is required")
		return
	}

	result := h.actions.KillSession(r.Context(), req.SessionID, req.Message)
	if result.Total == 0 {
		rw.NotFound("no active session matches " + sanitizeLogValue(req.SessionID))
		return
	}
	rw.Success(result)
}

// refreshResponse acknowledges a manual refresh trigger.
type refreshResponse struct {
	Triggered bool   `json:"triggered"`
	Target    string `json:"target"`
}

// RefreshSessions triggers an immediate sessions poll.
func (h *Handler) RefreshSessions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.refreshSessions != nil {
		h.refreshSessions()
	}
	rw.Success(refreshResponse{Triggered: h.refreshSessions != nil, Target: "sessions"})
}

// RefreshHistory triggers an immediate history poll.
func (h *Handler) RefreshHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.refreshHistory != nil {
		h.refreshHistory()
	}
	rw.Success(refreshResponse{Triggered: h.refreshHistory != nil, Target: "history"})
}

// Image relays poster art through Tautulli so the browser never needs
// direct access to the media server. Responses are cacheable; the art
// for a given rating key does not change.
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	img := r.URL.Query().Get("img")
	if img == "" {
		rw.BadRequest("img is required")
		return
	}

	width := queryInt(r, "width", 300)
	height := queryInt(r, "height", 450)
	fallback := r.URL.Query().Get("fallback")
	if fallback == "" {
		fallback = "poster"
	}

	body, contentType, err := h.images.ImageProxy(r.Context(), img, width, height, fallback)
	if err != nil {
		logging.Warn().Err(err).Str("img", sanitizeLogValue(img)).Msg("image relay failed")
		rw.UpstreamError("failed to fetch image")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// WebSocket upgrades the connection, registers the client with the hub,
// and backfills the latest snapshots so a new client renders immediately
// instead of waiting for the next poll cycle.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.getUpgrader()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()

	client.Send(websocket.Message{Type: websocket.MessageTypeSessions, Data: h.store.Sessions()})
	client.Send(websocket.Message{Type: websocket.MessageTypeHistory, Data: h.store.History()})
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow-client attacks.
func (h *Handler) getUpgrader() gorillaws.Upgrader {
	return gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins.
// Browser WebSockets always include Origin; an empty header means a
// non-browser client, which is allowed since the API has no auth wall
// between LAN consumers.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if h.cfg == nil {
		return true
	}

	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket connection rejected from unauthorized origin")
	return false
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// sanitizeLogValue strips newlines from user-supplied values before they
// reach a log line or response message.
func sanitizeLogValue(v string) string {
	v = strings.ReplaceAll(v, "\n", "")
	v = strings.ReplaceAll(v, "\r", "")
	if len(v) > 256 {
		v = v[:256]
	}
	return v
}
