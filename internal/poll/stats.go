// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package poll

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/models/tautulli"
)

// Aggregator computes per-user rolling statistics from a history window.
//
// Every call to Aggregate rebuilds the full user map from scratch. That
// costs O(window size) per history cycle, which is deliberate: it keeps
// the output consistent with the configured lookback window and avoids
// incremental-update bugs. The caller diffs against the previous user
// set to detect users that dropped out of the window.
type Aggregator struct {
	// now is injected for tests; defaults to time.Now
	now func() time.Time
}

// NewAggregator creates a stateless history aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// orderedCounter is a frequency map that remembers first-seen insertion
// order. Ties on count are broken by whichever key was seen first,
// keeping "most common" picks stable for identical input.
type orderedCounter struct {
	keys   []string
	counts map[string]int
}

func newOrderedCounter() *orderedCounter {
	return &orderedCounter{counts: make(map[string]int)}
}

func (oc *orderedCounter) Add(key string) {
	if key == "" {
		return
	}
	if _, ok := oc.counts[key]; !ok {
		oc.keys = append(oc.keys, key)
	}
	oc.counts[key]++
}

// Top returns the most frequent key, or "" when the counter is empty.
func (oc *orderedCounter) Top() string {
	best := ""
	bestCount := 0
	for _, k := range oc.keys {
		if oc.counts[k] > bestCount {
			best = k
			bestCount = oc.counts[k]
		}
	}
	return best
}

// TopN returns up to n keys ordered by descending count, first-seen
// order breaking ties.
func (oc *orderedCounter) TopN(n int) []string {
	keys := make([]string, len(oc.keys))
	copy(keys, oc.keys)
	sort.SliceStable(keys, func(i, j int) bool {
		return oc.counts[keys[i]] > oc.counts[keys[j]]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// userAccum is the fold state for one user while walking the window.
type userAccum struct {
	user         string
	friendlyName string
	userID       *int

	totalPlays int
	moviePlays int
	tvPlays    int

	totalDurationSec int64
	longestPlaySec   int64
	completionSum    float64
	pausedCount      int
	totalPausedSec   int64

	transcodeCount    int
	directPlayCount   int
	directStreamCount int

	lanPlays int
	wanPlays int

	lastStartedTS   int64
	lastIP          string
	lastStoppedTS   int64
	lastTranscodeTS int64

	hourBuckets  [4]int // morning, midday, afternoon, evening
	weekdayPlays [7]int // Mon=0 .. Sun=6

	devices          *orderedCounter
	transcodeDevices *orderedCounter
	languages        *orderedCounter
	shows            *orderedCounter
	movies           *orderedCounter

	startedTimes []int64
}

func newUserAccum(user string) *userAccum {
	return &userAccum{
		user:             user,
		devices:          newOrderedCounter(),
		transcodeDevices: newOrderedCounter(),
		languages:        newOrderedCounter(),
		shows:            newOrderedCounter(),
		movies:           newOrderedCounter(),
	}
}

// Aggregate folds the history window into per-user statistics, keyed by
// the upstream user name. Records with an empty user are skipped.
// Missing numeric fields (nullable in the Tautulli payload) are treated
// as zero; no record can fail the pass.
func (a *Aggregator) Aggregate(records []tautulli.TautulliHistoryRecord) map[string]*models.UserStats {
	accums := make(map[string]*userAccum)
	order := make([]string, 0)

	for i := range records {
		rec := &records[i]
		user := rec.User
		if user == "" {
			continue
		}

		acc, ok := accums[user]
		if !ok {
			acc = newUserAccum(user)
			accums[user] = acc
			order = append(order, user)
		}

		a.fold(acc, rec)
	}

	stats := make(map[string]*models.UserStats, len(accums))
	for _, user := range order {
		stats[user] = a.finalize(accums[user])
	}
	return stats
}

// fold merges one history record into the user's accumulator.
func (a *Aggregator) fold(acc *userAccum, rec *tautulli.TautulliHistoryRecord) {
	acc.totalPlays++

	if acc.friendlyName == "" {
		acc.friendlyName = rec.FriendlyName
	}
	if acc.userID == nil && rec.UserID != nil {
		acc.userID = rec.UserID
	}

	// Durations and completion; nullable fields fold as zero
	duration := int64(intOrZero(rec.Duration))
	acc.totalDurationSec += duration
	if duration > acc.longestPlaySec {
		acc.longestPlaySec = duration
	}
	if rec.WatchedStatus != nil {
		acc.completionSum += *rec.WatchedStatus
	}
	if paused := intOrZero(rec.PausedCounter); paused > 0 {
		acc.pausedCount++
		acc.totalPausedSec += int64(paused)
	}

	// Last IP follows the most recent started timestamp, not input order
	if rec.Started > acc.lastStartedTS {
		acc.lastStartedTS = rec.Started
		if ip := preferredIP(rec); ip != "" {
			acc.lastIP = ip
		}
	}
	if rec.Stopped > acc.lastStoppedTS {
		acc.lastStoppedTS = rec.Stopped
	}

	// Media type split and title tallies
	switch strings.ToLower(rec.MediaType) {
	case "movie":
		acc.moviePlays++
		acc.movies.Add(rec.Title)
	case "episode":
		acc.tvPlays++
		acc.shows.Add(showTitle(rec))
	}

	// Devices, with a transcode-specific tally
	acc.devices.Add(rec.Player)
	decision := strings.ToLower(rec.TranscodeDecision)
	if strings.Contains(decision, "transcode") {
		acc.transcodeDevices.Add(rec.Player)
		if rec.Started > acc.lastTranscodeTS {
			acc.lastTranscodeTS = rec.Started
		}
	}

	// Playback type classification, mutually exclusive, checked in order
	switch {
	case strings.Contains(decision, "transcode"):
		acc.transcodeCount++
	case strings.Contains(decision, "direct play"):
		acc.directPlayCount++
	case strings.Contains(decision, "direct stream"):
		acc.directStreamCount++
	}

	// Temporal bucketing on the local start time
	if rec.Started > 0 {
		started := time.Unix(rec.Started, 0)
		switch hour := started.Hour(); {
		case hour < 6:
			acc.hourBuckets[0]++ // morning [0,6)
		case hour < 12:
			acc.hourBuckets[1]++ // midday [6,12)
		case hour < 18:
			acc.hourBuckets[2]++ // afternoon [12,18)
		default:
			acc.hourBuckets[3]++ // evening [18,24)
		}
		// Go weekday is Sun=0; shift to Mon=0
		acc.weekdayPlays[(int(started.Weekday())+6)%7]++

		acc.startedTimes = append(acc.startedTimes, rec.Started)
	}

	// LAN/WAN split
	if strings.EqualFold(rec.Location, "wan") {
		acc.wanPlays++
	} else {
		acc.lanPlays++
	}

	acc.languages.Add(rec.AudioLanguage)
}

// watchTimeLabels indexes hourBuckets for the preferred-watch-time pick.
var watchTimeLabels = [4]string{"morning", "midday", "afternoon", "evening"}

// finalize computes the derived summary fields from a completed fold.
func (a *Aggregator) finalize(acc *userAccum) *models.UserStats {
	// All ratios use max(total,1) so an empty window cannot divide by zero
	denom := float64(acc.totalPlays)
	if denom < 1 {
		denom = 1
	}

	us := &models.UserStats{
		User:         acc.user,
		FriendlyName: acc.friendlyName,
		UserID:       acc.userID,

		TotalPlays: acc.totalPlays,
		MoviePlays: acc.moviePlays,
		TVPlays:    acc.tvPlays,

		TotalPlayDurationSec: acc.totalDurationSec,
		TotalPlayDuration:    formatHoursMinutes(acc.totalDurationSec),
		TotalCompletionRate:  round1(acc.completionSum / denom * 100),
		LongestPlaySec:       acc.longestPlaySec,
		LongestPlay:          formatHoursMinutes(acc.longestPlaySec),
		AveragePlayGap:       averagePlayGap(acc.startedTimes),
		PausedCount:          acc.pausedCount,
		TotalPausedSec:       acc.totalPausedSec,
		TotalPausedDuration:  formatHoursMinutes(acc.totalPausedSec),

		MostPopularShow:  acc.shows.Top(),
		MostPopularMovie: acc.movies.Top(),

		WeekdayPlays:     acc.weekdayPlays,
		WatchedMorning:   acc.hourBuckets[0],
		WatchedMidday:    acc.hourBuckets[1],
		WatchedAfternoon: acc.hourBuckets[2],
		WatchedEvening:   acc.hourBuckets[3],

		TranscodeCount:      acc.transcodeCount,
		DirectPlayCount:     acc.directPlayCount,
		DirectStreamCount:   acc.directStreamCount,
		TranscodePercentage: round1(float64(acc.transcodeCount) / denom * 100),

		MostUsedDevice:         acc.devices.Top(),
		CommonTranscodeDevices: acc.transcodeDevices.TopN(3),
		CommonAudioLanguage:    acc.languages.Top(),

		LANPlays: acc.lanPlays,
		WANPlays: acc.wanPlays,
		LastIP:   acc.lastIP,
	}

	// Preferred watch time: highest bucket wins, first bucket on ties
	best := 0
	for i, count := range acc.hourBuckets {
		if count > acc.hourBuckets[best] {
			best = i
		}
	}
	if acc.hourBuckets[best] > 0 {
		us.PreferredWatchTime = watchTimeLabels[best]
	}

	if acc.lastTranscodeTS > 0 {
		us.LastTranscodeDate = time.Unix(acc.lastTranscodeTS, 0).Format("Jan 2, 2006")
	}

	if acc.lastStoppedTS > 0 {
		days := round1(a.now().Sub(time.Unix(acc.lastStoppedTS, 0)).Hours() / 24)
		us.DaysSinceLastWatch = &days
	}

	return us
}

// averagePlayGap returns the mean of consecutive positive gaps between
// sorted start timestamps, formatted as "{H}h {M}m". Fewer than 2 plays
// or no positive gaps yields "N/A".
func averagePlayGap(startedTimes []int64) string {
	if len(startedTimes) < 2 {
		return "N/A"
	}

	sorted := make([]int64, len(startedTimes))
	copy(sorted, startedTimes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	var count int64
	for i := 1; i < len(sorted); i++ {
		if gap := sorted[i] - sorted[i-1]; gap > 0 {
			sum += gap
			count++
		}
	}
	if count == 0 {
		return "N/A"
	}

	return formatHoursMinutes(sum / count)
}

// showTitle picks the show name for an episode record. grandparent_title
// is the series; parent_title (season) and the episode title are the
// fallbacks for oddly shaped records.
func showTitle(rec *tautulli.TautulliHistoryRecord) string {
	if rec.GrandparentTitle != nil && *rec.GrandparentTitle != "" {
		return *rec.GrandparentTitle
	}
	if rec.ParentTitle != nil && *rec.ParentTitle != "" {
		return *rec.ParentTitle
	}
	return rec.Title
}

// preferredIP favors the public IP when Tautulli reports one.
func preferredIP(rec *tautulli.TautulliHistoryRecord) string {
	if rec.IPAddressPublic != "" {
		return rec.IPAddressPublic
	}
	return rec.IPAddress
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// formatHoursMinutes renders seconds as "{H}h {M}m".
func formatHoursMinutes(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
