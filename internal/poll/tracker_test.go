// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package poll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamwatch/streamwatch/internal/models"
)

func newTestTracker(start time.Time) (*Tracker, *time.Time) {
	clock := start
	tr := NewTracker()
	tr.now = func() time.Time { return clock }
	return tr, &clock
}

func sessionWithState(id, state string) models.Session {
	return models.Session{SessionID: id, State: state}
}

func TestTrackerFirstSeenStableAcrossPolls(t *testing.T) {
	base := time.Date(2026, 3, 1, 15, 4, 0, 0, time.Local)
	tr, clock := newTestTracker(base)

	out := tr.Apply([]models.Session{sessionWithState("abc", "playing")})
	require.Len(t, out, 1)
	assert.Equal(t, base.Unix(), out[0].StartTimeRaw)
	assert.Equal(t, "3:04 PM", out[0].StartTime)

	*clock = base.Add(10 * time.Second)
	out = tr.Apply([]models.Session{sessionWithState("abc", "playing")})
	assert.Equal(t, base.Unix(), out[0].StartTimeRaw, "first seen must not move on later polls")
}

func TestTrackerPausedDurationScenario(t *testing.T) {
	// Poll 1: playing. Poll 2 (+1s): paused. Poll 3 (+4s): still paused.
	// Expect ~3s of pause at poll 3 and an unchanged start_time_raw.
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.Local)
	tr, clock := newTestTracker(base)

	out := tr.Apply([]models.Session{sessionWithState("abc", "playing")})
	assert.Equal(t, int64(0), out[0].PausedDurationSec)
	assert.Equal(t, "0m 0s", out[0].PausedDuration)

	*clock = base.Add(1 * time.Second)
	out = tr.Apply([]models.Session{sessionWithState("abc", "paused")})
	assert.Equal(t, int64(0), out[0].PausedDurationSec)

	*clock = base.Add(4 * time.Second)
	out = tr.Apply([]models.Session{sessionWithState("abc", "paused")})
	assert.Equal(t, int64(3), out[0].PausedDurationSec)
	assert.Equal(t, "0m 3s", out[0].PausedDuration)
	assert.Equal(t, base.Unix(), out[0].StartTimeRaw)
}

func TestTrackerPauseResetsPerEpisode(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.Local)
	tr, clock := newTestTracker(base)

	tr.Apply([]models.Session{sessionWithState("abc", "paused")})

	*clock = base.Add(30 * time.Second)
	out := tr.Apply([]models.Session{sessionWithState("abc", "paused")})
	assert.Equal(t, int64(30), out[0].PausedDurationSec)

	// Resume clears the pause timer immediately
	*clock = base.Add(31 * time.Second)
	out = tr.Apply([]models.Session{sessionWithState("abc", "playing")})
	assert.Equal(t, int64(0), out[0].PausedDurationSec)
	assert.Equal(t, "0m 0s", out[0].PausedDuration)

	// Re-entering paused starts a fresh episode, not a continuation
	*clock = base.Add(40 * time.Second)
	tr.Apply([]models.Session{sessionWithState("abc", "paused")})
	*clock = base.Add(45 * time.Second)
	out = tr.Apply([]models.Session{sessionWithState("abc", "paused")})
	assert.Equal(t, int64(5), out[0].PausedDurationSec)
}

func TestTrackerEvictsAbsentSessions(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.Local)
	tr, clock := newTestTracker(base)

	tr.Apply([]models.Session{
		sessionWithState("abc", "paused"),
		sessionWithState("def", "playing"),
	})
	assert.Equal(t, 2, tr.TrackedCount())

	// "abc" disappears; its timer state must be fully evicted
	*clock = base.Add(4 * time.Second)
	tr.Apply([]models.Session{sessionWithState("def", "playing")})
	assert.Equal(t, 1, tr.TrackedCount())

	// If "abc" comes back it is a brand new session
	*clock = base.Add(8 * time.Second)
	out := tr.Apply([]models.Session{sessionWithState("abc", "paused"), sessionWithState("def", "playing")})
	for i := range out {
		if out[i].SessionID == "abc" {
			assert.Equal(t, base.Add(8*time.Second).Unix(), out[i].StartTimeRaw)
			assert.Equal(t, int64(0), out[i].PausedDurationSec)
		}
	}
}

func TestTrackerCaseInsensitivePaused(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.Local)
	tr, clock := newTestTracker(base)

	tr.Apply([]models.Session{sessionWithState("abc", "Paused")})
	*clock = base.Add(2 * time.Second)
	out := tr.Apply([]models.Session{sessionWithState("abc", "PAUSED")})
	assert.Equal(t, int64(2), out[0].PausedDurationSec)
}

func TestTrackerUnknownStatesPassThrough(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.Local)
	tr, _ := newTestTracker(base)

	out := tr.Apply([]models.Session{sessionWithState("abc", "buffering")})
	assert.Equal(t, "buffering", out[0].State)
	assert.Equal(t, int64(0), out[0].PausedDurationSec)
}

func TestTrackerFallsBackToSessionKey(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.Local)
	tr, clock := newTestTracker(base)

	s := models.Session{SessionKey: "57", State: "playing"}
	tr.Apply([]models.Session{s})

	*clock = base.Add(5 * time.Second)
	out := tr.Apply([]models.Session{s})
	assert.Equal(t, base.Unix(), out[0].StartTimeRaw)
	assert.Equal(t, 1, tr.TrackedCount())
}

func TestFormatPausedDuration(t *testing.T) {
	assert.Equal(t, "0m 0s", formatPausedDuration(0))
	assert.Equal(t, "0m 59s", formatPausedDuration(59))
	assert.Equal(t, "1m 0s", formatPausedDuration(60))
	assert.Equal(t, "12m 34s", formatPausedDuration(754))
}
