// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package poll

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/streamwatch/streamwatch/internal/logging"
	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/models"
)

// Actions executes operator stream terminations against the latest
// sessions snapshot. Terminations run concurrently per target session;
// partial failure is reported in the result, not as an error.
type Actions struct {
	terminator     Terminator
	store          *SnapshotStore
	defaultMessage string
	refresh        func() // triggers a sessions refresh after a kill, may be nil
}

// NewActions creates the termination executor. defaultMessage is shown
// to the viewer when a request carries no message of its own.
func NewActions(terminator Terminator, store *SnapshotStore, defaultMessage string, refresh func()) *Actions {
	return &Actions{
		terminator:     terminator,
		store:          store,
		defaultMessage: defaultMessage,
		refresh:        refresh,
	}
}

// KillAll terminates every session in the latest snapshot.
func (a *Actions) KillAll(ctx context.Context, message string) models.KillResult {
	snap := a.store.Sessions()
	return a.terminate(ctx, snap.Sessions, message)
}

// KillUser terminates every session whose user matches the given name.
// Matching is a case-insensitive substring check against both the
// account name and the friendly name, so "ali" kills alice's streams.
func (a *Actions) KillUser(ctx context.Context, user, message string) models.KillResult {
	needle := strings.ToLower(user)

	snap := a.store.Sessions()
	var targets []models.Session
	for _, s := range snap.Sessions {
		if strings.Contains(strings.ToLower(s.User), needle) ||
			strings.Contains(strings.ToLower(s.FriendlyName), needle) {
			targets = append(targets, s)
		}
	}

	return a.terminate(ctx, targets, message)
}

// KillSession terminates the single session with the given identity.
// Both session_id and session_key are accepted.
func (a *Actions) KillSession(ctx context.Context, sessionID, message string) models.KillResult {
	snap := a.store.Sessions()
	var targets []models.Session
	for _, s := range snap.Sessions {
		if s.SessionID == sessionID || s.SessionKey == sessionID {
			targets = append(targets, s)
			break
		}
	}

	return a.terminate(ctx, targets, message)
}

// terminate fans out one termination call per target and collects the
// tally. Tautulli keys terminations by session_key.
func (a *Actions) terminate(ctx context.Context, targets []models.Session, message string) models.KillResult {
	if message == "" {
		message = a.defaultMessage
	}

	var succeeded, failed atomic.Int64
	var wg sync.WaitGroup

	for _, target := range targets {
		wg.Add(1)
		go func(s models.Session) {
			defer wg.Done()

			err := a.terminator.TerminateSession(ctx, s.SessionKey, message)
			metrics.RecordTermination(err == nil)
			if err != nil {
				failed.Add(1)
				logging.Warn().
					Err(err).
					Str("session_key", s.SessionKey).
					Str("user", s.User).
					Msg("Stream termination failed")
				return
			}

			succeeded.Add(1)
			logging.Info().
				Str("session_key", s.SessionKey).
				Str("user", s.User).
				Msg("Stream terminated")
		}(target)
	}

	wg.Wait()

	result := models.KillResult{
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Total:     len(targets),
	}

	// Kick the sessions poller so the snapshot reflects the kill quickly
	if result.Succeeded > 0 && a.refresh != nil {
		a.refresh()
	}

	return result
}
