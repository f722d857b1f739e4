// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package poll

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/streamwatch/streamwatch/internal/models"
)

// Tracker maintains per-session timer state across polls: when each
// session was first observed, and since when it has been paused.
//
// State is keyed by session identity. A session absent from the current
// snapshot has its timer state evicted on that poll; nothing leaks past
// the poll after a stream ends.
//
// Thread Safety: the sessions and history cycles run as separate
// goroutines, so the internal maps are mutex protected.
type Tracker struct {
	mu          sync.Mutex
	firstSeen   map[string]time.Time
	pausedSince map[string]time.Time

	// now is injected for tests; defaults to time.Now
	now func() time.Time
}

// NewTracker creates an empty session timer tracker.
func NewTracker() *Tracker {
	return &Tracker{
		firstSeen:   make(map[string]time.Time),
		pausedSince: make(map[string]time.Time),
		now:         time.Now,
	}
}

// sessionIdentity returns the key used for timer state. Tautulli's
// session_id is stable for the lifetime of one playback; session_key is
// the fallback for servers that omit it.
func sessionIdentity(s *models.Session) string {
	if s.SessionID != "" {
		return s.SessionID
	}
	return s.SessionKey
}

// Apply enriches the given snapshot with derived timer fields and
// reconciles internal state against it:
//
//  1. Sessions seen for the first time get first_seen = now.
//  2. Timer state for sessions absent from the snapshot is evicted.
//  3. Every session gets start_time_raw/start_time from its first_seen.
//  4. Paused sessions accrue paused_duration from the moment they
//     entered the paused state; any other state resets it to zero.
//
// A session that toggles paused -> playing -> paused gets a fresh
// paused_since each time it re-enters paused: the duration resets per
// pause episode, it does not accumulate.
//
// The slice is modified in place and returned for convenience.
func (t *Tracker) Apply(sessions []models.Session) []models.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	// Pass 1: record first-seen for new sessions and collect the
	// current identity set for eviction.
	current := make(map[string]struct{}, len(sessions))
	for i := range sessions {
		id := sessionIdentity(&sessions[i])
		if id == "" {
			continue
		}
		current[id] = struct{}{}
		if _, ok := t.firstSeen[id]; !ok {
			t.firstSeen[id] = now
		}
	}

	// Evict state for sessions no longer present.
	for id := range t.firstSeen {
		if _, ok := current[id]; !ok {
			delete(t.firstSeen, id)
			delete(t.pausedSince, id)
		}
	}

	// Pass 2: attach derived fields.
	for i := range sessions {
		s := &sessions[i]
		id := sessionIdentity(s)
		if id == "" {
			continue
		}

		first := t.firstSeen[id]
		s.StartTimeRaw = first.Unix()
		s.StartTime = first.Format("3:04 PM")

		// Only the literal state "paused" triggers the pause branch;
		// every other upstream state string passes through untouched.
		if strings.EqualFold(s.State, "paused") {
			since, ok := t.pausedSince[id]
			if !ok {
				since = now
				t.pausedSince[id] = since
			}
			secs := int64(now.Sub(since).Seconds())
			if secs < 0 {
				secs = 0
			}
			s.PausedDurationSec = secs
			s.PausedDuration = formatPausedDuration(secs)
		} else {
			delete(t.pausedSince, id)
			s.PausedDurationSec = 0
			s.PausedDuration = "0m 0s"
		}
	}

	return sessions
}

// TrackedCount returns the number of sessions with live timer state.
func (t *Tracker) TrackedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.firstSeen)
}

// formatPausedDuration renders seconds as "{m}m {s}s".
func formatPausedDuration(secs int64) string {
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
