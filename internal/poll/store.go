// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package poll

import (
	"sync"
	"time"

	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/models/tautulli"
)

// Broadcaster pushes a typed payload to connected websocket clients.
// The hub satisfies this; a nil broadcaster disables push entirely.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// SnapshotStore holds the latest published snapshot of each poll cycle.
// Readers (HTTP handlers, websocket backfill) always get the most recent
// complete snapshot; pollers replace it atomically under the lock.
type SnapshotStore struct {
	mu       sync.RWMutex
	sessions models.SessionsSnapshot
	history  models.HistorySnapshot

	broadcaster Broadcaster
}

// NewSnapshotStore creates a store with empty placeholder snapshots so
// early API reads never see nil payloads.
func NewSnapshotStore(broadcaster Broadcaster) *SnapshotStore {
	return &SnapshotStore{
		sessions: models.SessionsSnapshot{
			Status:      models.SnapshotDegraded,
			Reason:      "no poll cycle completed yet",
			GeneratedAt: time.Now().UTC(),
			Sessions:    []models.Session{},
		},
		history: models.HistorySnapshot{
			Status:      models.SnapshotDegraded,
			Reason:      "no poll cycle completed yet",
			GeneratedAt: time.Now().UTC(),
			History:     []tautulli.TautulliHistoryRecord{},
			Users:       map[string]*models.UserStats{},
		},
		broadcaster: broadcaster,
	}
}

// SetSessions publishes a new sessions snapshot, updates the exported
// gauges, and pushes it to websocket clients.
func (s *SnapshotStore) SetSessions(snap models.SessionsSnapshot) {
	if snap.Sessions == nil {
		snap.Sessions = []models.Session{}
	}

	s.mu.Lock()
	s.sessions = snap
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(len(snap.Sessions)))

	if s.broadcaster != nil {
		s.broadcaster.BroadcastJSON("sessions", snap)
	}
}

// SetHistory publishes a new history snapshot, updates the exported
// gauges, and pushes it to websocket clients.
func (s *SnapshotStore) SetHistory(snap models.HistorySnapshot) {
	if snap.History == nil {
		snap.History = []tautulli.TautulliHistoryRecord{}
	}
	if snap.Users == nil {
		snap.Users = map[string]*models.UserStats{}
	}

	s.mu.Lock()
	s.history = snap
	s.mu.Unlock()

	metrics.HistoryUsers.Set(float64(len(snap.Users)))
	metrics.HistoryRecords.Set(float64(snap.RecordCount))

	if s.broadcaster != nil {
		s.broadcaster.BroadcastJSON("history", snap)
	}
}

// Sessions returns the latest sessions snapshot.
func (s *SnapshotStore) Sessions() models.SessionsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions
}

// History returns the latest history snapshot.
func (s *SnapshotStore) History() models.HistorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history
}
