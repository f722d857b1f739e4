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

	"github.com/streamwatch/streamwatch/internal/models/tautulli"
)

func strPtr(s string) *string     { return &s }
func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func record(user, mediaType string, started int64, durationSec int, decision string) tautulli.TautulliHistoryRecord {
	return tautulli.TautulliHistoryRecord{
		User:              user,
		MediaType:         mediaType,
		Started:           started,
		Stopped:           started + int64(durationSec),
		Duration:          intPtr(durationSec),
		TranscodeDecision: decision,
	}
}

func TestAggregateAliceScenario(t *testing.T) {
	// 2 movies (3600s, 1800s), 1 episode (1200s), one transcode
	base := time.Date(2026, 2, 1, 20, 0, 0, 0, time.Local).Unix()
	records := []tautulli.TautulliHistoryRecord{
		record("alice", "movie", base, 3600, "direct play"),
		record("alice", "movie", base+86400, 1800, "transcode"),
		record("alice", "episode", base+2*86400, 1200, "direct play"),
	}

	agg := NewAggregator()
	stats := agg.Aggregate(records)

	require.Contains(t, stats, "alice")
	alice := stats["alice"]
	assert.Equal(t, 3, alice.TotalPlays)
	assert.Equal(t, 2, alice.MoviePlays)
	assert.Equal(t, 1, alice.TVPlays)
	assert.Equal(t, 1, alice.TranscodeCount)
	assert.Equal(t, 2, alice.DirectPlayCount)
	assert.Equal(t, 33.3, alice.TranscodePercentage)
	assert.Equal(t, int64(6600), alice.TotalPlayDurationSec)
	assert.Equal(t, "1h 50m", alice.TotalPlayDuration)
	assert.Equal(t, int64(3600), alice.LongestPlaySec)
	assert.Equal(t, "1h 0m", alice.LongestPlay)
}

func TestAggregateIdempotent(t *testing.T) {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.Local).Unix()
	records := []tautulli.TautulliHistoryRecord{
		record("alice", "movie", base, 3600, "transcode"),
		record("bob", "episode", base+100, 1200, "direct stream"),
	}

	agg := NewAggregator()
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return fixed }

	first := agg.Aggregate(records)
	second := agg.Aggregate(records)
	assert.Equal(t, first, second, "no hidden incremental state")
}

func TestAggregatePercentageBounds(t *testing.T) {
	agg := NewAggregator()

	// Empty window: nothing to divide, nothing to emit
	stats := agg.Aggregate(nil)
	assert.Empty(t, stats)

	// Single user, every play a transcode
	base := time.Now().Add(-24 * time.Hour).Unix()
	records := []tautulli.TautulliHistoryRecord{
		record("carol", "movie", base, 100, "transcode"),
		record("carol", "movie", base+200, 100, "transcode (throttled)"),
	}
	stats = agg.Aggregate(records)
	carol := stats["carol"]
	assert.Equal(t, 100.0, carol.TranscodePercentage)
	assert.Equal(t, 2, carol.TranscodeCount)
	assert.GreaterOrEqual(t, carol.TranscodePercentage, 0.0)
	assert.LessOrEqual(t, carol.TranscodePercentage, 100.0)
}

func TestAggregateLastIPFollowsLatestStart(t *testing.T) {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.Local).Unix()

	newest := record("alice", "movie", base+5000, 100, "direct play")
	newest.IPAddress = "203.0.113.50"
	oldest := record("alice", "movie", base, 100, "direct play")
	oldest.IPAddress = "203.0.113.10"

	// Input deliberately unsorted: newest first
	stats := NewAggregator().Aggregate([]tautulli.TautulliHistoryRecord{newest, oldest})
	assert.Equal(t, "203.0.113.50", stats["alice"].LastIP)

	// Public IP wins over the LAN address when reported
	withPublic := record("bob", "movie", base, 100, "direct play")
	withPublic.IPAddress = "192.168.1.10"
	withPublic.IPAddressPublic = "198.51.100.7"
	stats = NewAggregator().Aggregate([]tautulli.TautulliHistoryRecord{withPublic})
	assert.Equal(t, "198.51.100.7", stats["bob"].LastIP)
}

func TestAggregateTemporalBuckets(t *testing.T) {
	day := time.Date(2026, 2, 2, 0, 0, 0, 0, time.Local) // a Monday

	records := []tautulli.TautulliHistoryRecord{
		record("alice", "movie", day.Add(3*time.Hour).Unix(), 100, ""),  // morning
		record("alice", "movie", day.Add(8*time.Hour).Unix(), 100, ""),  // midday
		record("alice", "movie", day.Add(14*time.Hour).Unix(), 100, ""), // afternoon
		record("alice", "movie", day.Add(20*time.Hour).Unix(), 100, ""), // evening
		record("alice", "movie", day.Add(21*time.Hour).Unix(), 100, ""), // evening
	}

	stats := NewAggregator().Aggregate(records)
	alice := stats["alice"]
	assert.Equal(t, 1, alice.WatchedMorning)
	assert.Equal(t, 1, alice.WatchedMidday)
	assert.Equal(t, 1, alice.WatchedAfternoon)
	assert.Equal(t, 2, alice.WatchedEvening)
	assert.Equal(t, "evening", alice.PreferredWatchTime)
	assert.Equal(t, 5, alice.WeekdayPlays[0], "all plays on Monday, slot 0")
}

func TestAggregateShowAndMovieTallies(t *testing.T) {
	base := time.Now().Add(-48 * time.Hour).Unix()

	ep1 := record("alice", "episode", base, 100, "")
	ep1.GrandparentTitle = strPtr("Severance")
	ep2 := record("alice", "episode", base+100, 100, "")
	ep2.GrandparentTitle = strPtr("Severance")
	ep3 := record("alice", "episode", base+200, 100, "")
	ep3.GrandparentTitle = strPtr("Andor")
	mv := record("alice", "movie", base+300, 100, "")
	mv.Title = "Heat"

	stats := NewAggregator().Aggregate([]tautulli.TautulliHistoryRecord{ep1, ep2, ep3, mv})
	alice := stats["alice"]
	assert.Equal(t, "Severance", alice.MostPopularShow)
	assert.Equal(t, "Heat", alice.MostPopularMovie)
	assert.Equal(t, 3, alice.TVPlays)
	assert.Equal(t, 1, alice.MoviePlays)
}

func TestAggregateMostCommonTieBreaksByFirstSeen(t *testing.T) {
	base := time.Now().Add(-48 * time.Hour).Unix()

	r1 := record("alice", "movie", base, 100, "")
	r1.Player = "Roku"
	r2 := record("alice", "movie", base+100, 100, "")
	r2.Player = "Shield"

	stats := NewAggregator().Aggregate([]tautulli.TautulliHistoryRecord{r1, r2})
	assert.Equal(t, "Roku", stats["alice"].MostUsedDevice)
}

func TestAggregateAveragePlayGap(t *testing.T) {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.Local).Unix()

	// Gaps of 2h and 4h -> mean 3h
	records := []tautulli.TautulliHistoryRecord{
		record("alice", "movie", base, 100, ""),
		record("alice", "movie", base+2*3600, 100, ""),
		record("alice", "movie", base+6*3600, 100, ""),
	}
	stats := NewAggregator().Aggregate(records)
	assert.Equal(t, "3h 0m", stats["alice"].AveragePlayGap)

	// Single play: N/A
	stats = NewAggregator().Aggregate(records[:1])
	assert.Equal(t, "N/A", stats["alice"].AveragePlayGap)

	// Identical timestamps: no positive gap, N/A
	dup := []tautulli.TautulliHistoryRecord{
		record("bob", "movie", base, 100, ""),
		record("bob", "movie", base, 100, ""),
	}
	stats = NewAggregator().Aggregate(dup)
	assert.Equal(t, "N/A", stats["bob"].AveragePlayGap)
}

func TestAggregateNullableFieldsFoldAsZero(t *testing.T) {
	rec := tautulli.TautulliHistoryRecord{
		User:      "dave",
		MediaType: "movie",
		Started:   time.Now().Add(-time.Hour).Unix(),
		// Duration, PausedCounter, WatchedStatus all nil
	}

	stats := NewAggregator().Aggregate([]tautulli.TautulliHistoryRecord{rec})
	dave := stats["dave"]
	assert.Equal(t, 1, dave.TotalPlays)
	assert.Equal(t, int64(0), dave.TotalPlayDurationSec)
	assert.Equal(t, 0, dave.PausedCount)
	assert.Equal(t, 0.0, dave.TotalCompletionRate)
}

func TestAggregatePausedAndCompletion(t *testing.T) {
	base := time.Now().Add(-24 * time.Hour).Unix()

	r1 := record("alice", "movie", base, 3600, "")
	r1.PausedCounter = intPtr(300)
	r1.WatchedStatus = floatPtr(1.0)
	r2 := record("alice", "movie", base+4000, 1800, "")
	r2.WatchedStatus = floatPtr(0.5)

	stats := NewAggregator().Aggregate([]tautulli.TautulliHistoryRecord{r1, r2})
	alice := stats["alice"]
	assert.Equal(t, 1, alice.PausedCount)
	assert.Equal(t, int64(300), alice.TotalPausedSec)
	assert.Equal(t, "0h 5m", alice.TotalPausedDuration)
	assert.Equal(t, 75.0, alice.TotalCompletionRate)
}

func TestAggregateLANWANSplit(t *testing.T) {
	base := time.Now().Add(-24 * time.Hour).Unix()

	wan := record("alice", "movie", base, 100, "")
	wan.Location = "wan"
	lan := record("alice", "movie", base+100, 100, "")
	lan.Location = "lan"
	blank := record("alice", "movie", base+200, 100, "")

	stats := NewAggregator().Aggregate([]tautulli.TautulliHistoryRecord{wan, lan, blank})
	alice := stats["alice"]
	assert.Equal(t, 1, alice.WANPlays)
	assert.Equal(t, 2, alice.LANPlays)
}

func TestAggregateDaysSinceLastWatch(t *testing.T) {
	agg := NewAggregator()
	fixed := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return fixed }

	rec := record("alice", "movie", fixed.Add(-36*time.Hour).Unix(), 3600, "")
	rec.Stopped = fixed.Add(-36 * time.Hour).Unix()
	stats := agg.Aggregate([]tautulli.TautulliHistoryRecord{rec})

	require.NotNil(t, stats["alice"].DaysSinceLastWatch)
	assert.Equal(t, 1.5, *stats["alice"].DaysSinceLastWatch)

	// Never stopped -> nil
	never := record("bob", "movie", fixed.Add(-time.Hour).Unix(), 3600, "")
	never.Stopped = 0
	stats = agg.Aggregate([]tautulli.TautulliHistoryRecord{never})
	assert.Nil(t, stats["bob"].DaysSinceLastWatch)
}

func TestAggregateTranscodeDevices(t *testing.T) {
	base := time.Now().Add(-24 * time.Hour).Unix()

	r1 := record("alice", "movie", base, 100, "transcode")
	r1.Player = "Chrome"
	r2 := record("alice", "movie", base+100, 100, "transcode")
	r2.Player = "Chrome"
	r3 := record("alice", "movie", base+200, 100, "direct play")
	r3.Player = "Shield"

	stats := NewAggregator().Aggregate([]tautulli.TautulliHistoryRecord{r1, r2, r3})
	alice := stats["alice"]
	assert.Equal(t, []string{"Chrome"}, alice.CommonTranscodeDevices)
	assert.NotEmpty(t, alice.LastTranscodeDate)
}
