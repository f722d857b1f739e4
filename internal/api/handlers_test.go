// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/poll"
	"github.com/streamwatch/streamwatch/internal/websocket"
)

type stubTerminator struct {
	calls []string
	err   error
}

func (s *stubTerminator) TerminateSession(_ context.Context, sessionKey, _ string) error {
	s.calls = append(s.calls, sessionKey)
	return s.err
}

type stubImageFetcher struct {
	body        []byte
	contentType string
	err         error
}

func (s *stubImageFetcher) ImageProxy(_ context.Context, _ string, _, _ int, _ string) ([]byte, string, error) {
	return s.body, s.contentType, s.err
}

type testEnv struct {
	router     http.Handler
	store      *poll.SnapshotStore
	terminator *stubTerminator
	images     *stubImageFetcher
	refreshed  map[string]int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := poll.NewSnapshotStore(nil)
	terminator := &stubTerminator{}
	images := &stubImageFetcher{body: []byte("img-bytes"), contentType: "image/jpeg"}
	refreshed := map[string]int{}

	cfg := &config.Config{}
	cfg.Security.CORSOrigins = []string{"https://dash.example"}
	cfg.Poll.TerminateMessage = "Stream ended by admin."

	actions := poll.NewActions(terminator, store, cfg.Poll.TerminateMessage, func() { refreshed["kill"]++ })
	handler := NewHandler(cfg, store, actions, images, websocket.NewHub(),
		func() { refreshed["sessions"]++ },
		func() { refreshed["history"]++ },
		"test")

	mwConfig := DefaultChiMiddlewareConfig()
	mwConfig.RateLimitDisabled = true
	router := NewRouter(handler, mwConfig).Setup()

	return &testEnv{
		router:     router,
		store:      store,
		terminator: terminator,
		images:     images,
		refreshed:  refreshed,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "test", data["version"])

	// Before the first poll both snapshots report degraded
	sessions := data["sessions"].(map[string]interface{})
	assert.Equal(t, models.SnapshotDegraded, sessions["status"])
}

func TestSessionsSnapshotEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetSessions(models.SessionsSnapshot{
		Status:      models.SnapshotOK,
		GeneratedAt: time.Now().UTC(),
		Sessions:    []models.Session{{SessionKey: "57", User: "alice", State: "playing"}},
	})

	rec := env.do(t, http.MethodGet, "/api/v1/snapshots/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, models.SnapshotOK, data["status"])
	assert.Len(t, data["sessions"], 1)
}

func TestHistorySnapshotEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetHistory(models.HistorySnapshot{
		Status:      models.SnapshotOK,
		GeneratedAt: time.Now().UTC(),
		Days:        30,
		RecordCount: 2,
		Users:       map[string]*models.UserStats{"alice": {User: "alice", TotalPlays: 2}},
	})

	rec := env.do(t, http.MethodGet, "/api/v1/snapshots/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(30), data["days"])
	users := data["user_stats"].(map[string]interface{})
	assert.Contains(t, users, "alice")
}

func TestKillAllEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetSessions(models.SessionsSnapshot{
		Status:      models.SnapshotOK,
		GeneratedAt: time.Now().UTC(),
		Sessions: []models.Session{
			{SessionKey: "1", User: "alice"},
			{SessionKey: "2", User: "bob"},
		},
	})

	rec := env.do(t, http.MethodPost, "/api/v1/streams/kill_all", map[string]string{"message": "maintenance"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["succeeded"])
	assert.Equal(t, float64(0), data["failed"])
	assert.Len(t, env.terminator.calls, 2)
	assert.Equal(t, 1, env.refreshed["kill"], "successful kill triggers a sessions refresh")
}

func TestKillUserRequiresUser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/streams/kill_user", map[string]string{"message": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeBadRequest, resp.Error.Code)
}

func TestKillSessionNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/streams/kill_session", map[string]string{"session_id": "missing"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, env.terminator.calls)
}

func TestRefreshEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/refresh/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.refreshed["sessions"])

	rec = env.do(t, http.MethodPost, "/api/v1/refresh/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.refreshed["history"])
}

func TestImageRelay(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/image/?img=/library/metadata/1/thumb", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "img-bytes", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age")
}

func TestImageRelayRequiresImg(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/image/", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImageRelayUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.images.err = errors.New("tautulli unreachable")

	rec := env.do(t, http.MethodGet, "/api/v1/image/?img=/x", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, ErrCodeExternalServiceFail, resp.Error.Code)
}

func TestSecurityHeadersPresent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/snapshots/sessions", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRequestIDHeaderAssigned(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health/", nil)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Meta)
	assert.NotEmpty(t, resp.Meta.RequestID)
}

func TestMetricsEndpointExposed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "active_sessions")
}
