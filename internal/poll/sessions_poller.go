// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package poll

import (
	"context"
	"sync"
	"time"

	"github.com/streamwatch/streamwatch/internal/logging"
	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/models/tautulli"
)

// SessionsPoller periodically fetches active sessions from Tautulli,
// enriches them with derived timers and geolocation, and publishes the
// resulting snapshot through the store.
//
// A fetch failure never removes the endpoint: the poller publishes a
// degraded snapshot with an empty session list instead, so consumers can
// always distinguish "nothing playing" from "upstream unreachable".
type SessionsPoller struct {
	fetcher  Fetcher
	tracker  *Tracker
	geo      *GeoCache // nil disables enrichment
	store    *SnapshotStore
	interval time.Duration

	// Runtime state
	mu        sync.RWMutex
	running   bool
	stopChan  chan struct{}
	refreshCh chan struct{}
	wg        sync.WaitGroup
}

// NewSessionsPoller creates a sessions poller. Pass a nil geo cache to
// disable geolocation enrichment.
func NewSessionsPoller(fetcher Fetcher, tracker *Tracker, geo *GeoCache, store *SnapshotStore, interval time.Duration) *SessionsPoller {
	return &SessionsPoller{
		fetcher:   fetcher,
		tracker:   tracker,
		geo:       geo,
		store:     store,
		interval:  interval,
		stopChan:  make(chan struct{}),
		refreshCh: make(chan struct{}, 1),
	}
}

// Start begins the polling loop.
func (p *SessionsPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	logging.Info().Dur("interval", p.interval).Msg("Starting sessions poller")

	p.wg.Add(1)
	go p.pollLoop(ctx)

	return nil
}

// Serve implements suture.Service for supervisor integration.
func (p *SessionsPoller) Serve(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	p.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer; suture uses it in log messages.
func (p *SessionsPoller) String() string {
	return "sessions-poller"
}

// Stop gracefully stops the polling loop.
func (p *SessionsPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	logging.Info().Msg("[sessions-poller] Stopped")
}

// IsRunning returns whether the poller is active.
func (p *SessionsPoller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Refresh requests an immediate out-of-band poll. The signal is dropped
// if a refresh is already pending.
func (p *SessionsPoller) Refresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

func (p *SessionsPoller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	// Initial poll so the snapshot is populated before the first tick
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("[sessions-poller] Context canceled, stopping")
			return
		case <-p.stopChan:
			logging.Info().Msg("[sessions-poller] Stop signal received")
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.refreshCh:
			p.poll(ctx)
			// Restart the cadence so the manual poll counts as a tick
			ticker.Reset(p.interval)
		}
	}
}

// poll runs one sessions cycle: fetch, convert, enrich, publish.
func (p *SessionsPoller) poll(ctx context.Context) {
	start := time.Now()

	activity, err := p.fetcher.GetActivity(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("[sessions-poller] Activity fetch failed, publishing degraded snapshot")
		p.store.SetSessions(models.SessionsSnapshot{
			Status:      models.SnapshotDegraded,
			Reason:      err.Error(),
			GeneratedAt: time.Now().UTC(),
			Sessions:    []models.Session{},
		})
		metrics.RecordPollCycle("sessions", "error", time.Since(start))
		return
	}

	data := activity.Response.Data

	sessions := make([]models.Session, 0, len(data.Sessions))
	for i := range data.Sessions {
		sessions = append(sessions, convertActivitySession(&data.Sessions[i]))
	}

	p.tracker.Apply(sessions)

	if p.geo != nil {
		for i := range sessions {
			s := &sessions[i]
			ip := s.IPAddressPublic
			if ip == "" {
				ip = s.IPAddress
			}
			if ip == "" {
				continue
			}
			// Lookup never errors; a failed lookup leaves Geo nil
			s.Geo = p.geo.Lookup(ctx, ip)
		}
	}

	p.store.SetSessions(models.SessionsSnapshot{
		Status:      models.SnapshotOK,
		GeneratedAt: time.Now().UTC(),
		Diagnostics: models.Diagnostics{
			StreamCount:             data.StreamCount,
			StreamCountDirectPlay:   data.StreamCountDirectPlay,
			StreamCountDirectStream: data.StreamCountDirectStream,
			StreamCountTranscode:    data.StreamCountTranscode,
			TotalBandwidthMbps:      kbpsToMbps(data.TotalBandwidth),
			LANBandwidthMbps:        kbpsToMbps(data.LANBandwidth),
			WANBandwidthMbps:        kbpsToMbps(data.WANBandwidth),
		},
		Sessions: sessions,
	})

	logging.Debug().
		Int("sessions", len(sessions)).
		Dur("elapsed", time.Since(start)).
		Msg("[sessions-poller] Cycle complete")
	metrics.RecordPollCycle("sessions", "ok", time.Since(start))
}

// convertActivitySession maps one upstream activity session onto the
// published session model. Tautulli reports local/secure/relayed as 0/1.
func convertActivitySession(ts *tautulli.TautulliActivitySession) models.Session {
	return models.Session{
		SessionKey: ts.SessionKey,
		SessionID:  ts.SessionID,

		MediaType:        ts.MediaType,
		RatingKey:        ts.RatingKey,
		Title:            ts.Title,
		ParentTitle:      ts.ParentTitle,
		GrandparentTitle: ts.GrandparentTitle,
		FullTitle:        ts.FullTitle,
		MediaIndex:       ts.MediaIndex,
		ParentMediaIndex: ts.ParentMediaIndex,
		Year:             ts.Year,
		Thumb:            ts.Thumb,
		Art:              ts.Art,
		LibraryName:      ts.LibraryName,

		User:         ts.User,
		UserID:       ts.UserID,
		FriendlyName: ts.FriendlyName,

		IPAddress:       ts.IPAddress,
		IPAddressPublic: ts.IPAddressPublic,
		Player:          ts.Player,
		Platform:        ts.Platform,
		Product:         ts.Product,
		Device:          ts.Device,
		MachineID:       ts.MachineID,
		Location:        ts.Location,
		Local:           ts.Local == 1,
		Secure:          ts.Secure == 1,
		Relayed:         ts.Relayed == 1,
		QualityProfile:  ts.QualityProfile,

		State:           ts.State,
		ViewOffset:      ts.ViewOffset,
		Duration:        ts.Duration,
		ProgressPercent: ts.ProgressPercent,

		TranscodeDecision:     ts.TranscodeDecision,
		VideoDecision:         ts.VideoDecision,
		AudioDecision:         ts.AudioDecision,
		VideoResolution:       ts.VideoResolution,
		StreamVideoResolution: ts.StreamVideoResolution,
		VideoCodec:            ts.VideoCodec,
		AudioCodec:            ts.AudioCodec,
		Container:             ts.Container,
		Bitrate:               ts.Bitrate,
		Bandwidth:             ts.Bandwidth,
	}
}

// kbpsToMbps converts Tautulli's kbps bandwidth figures to Mbps.
func kbpsToMbps(kbps int) float64 {
	return float64(kbps) / 1000.0
}
