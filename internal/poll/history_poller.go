// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streamwatch/streamwatch/internal/logging"
	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/models/tautulli"
)

// maxHistoryPages bounds a single cycle's pagination. At the default
// page size of 1000 this allows 100k records per window, far above any
// realistic home server history.
const maxHistoryPages = 100

// HistoryPoller periodically fetches the rolling watch-history window
// from Tautulli, aggregates it into per-user statistics, and publishes
// the snapshot through the store.
//
// On a fetch failure the previous user statistics are republished with
// degraded status rather than replaced by an empty map. Statistics age
// well; an upstream blip should not blank out a dashboard.
type HistoryPoller struct {
	fetcher  Fetcher
	agg      *Aggregator
	geo      *GeoCache // nil disables enrichment
	store    *SnapshotStore
	interval time.Duration
	days     int
	pageSize int

	// Runtime state
	mu        sync.RWMutex
	running   bool
	stopChan  chan struct{}
	refreshCh chan struct{}
	wg        sync.WaitGroup
}

// NewHistoryPoller creates a history poller. Pass a nil geo cache to
// disable geolocation enrichment of user statistics.
func NewHistoryPoller(fetcher Fetcher, agg *Aggregator, geo *GeoCache, store *SnapshotStore, interval time.Duration, days, pageSize int) *HistoryPoller {
	return &HistoryPoller{
		fetcher:   fetcher,
		agg:       agg,
		geo:       geo,
		store:     store,
		interval:  interval,
		days:      days,
		pageSize:  pageSize,
		stopChan:  make(chan struct{}),
		refreshCh: make(chan struct{}, 1),
	}
}

// Start begins the polling loop.
func (p *HistoryPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	logging.Info().
		Dur("interval", p.interval).
		Int("days", p.days).
		Msg("Starting history poller")

	p.wg.Add(1)
	go p.pollLoop(ctx)

	return nil
}

// Serve implements suture.Service for supervisor integration.
func (p *HistoryPoller) Serve(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	p.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer; suture uses it in log messages.
func (p *HistoryPoller) String() string {
	return "history-poller"
}

// Stop gracefully stops the polling loop.
func (p *HistoryPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	logging.Info().Msg("[history-poller] Stopped")
}

// IsRunning returns whether the poller is active.
func (p *HistoryPoller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Refresh requests an immediate out-of-band poll. The signal is dropped
// if a refresh is already pending.
func (p *HistoryPoller) Refresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

func (p *HistoryPoller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	// Initial poll so statistics are available shortly after startup
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("[history-poller] Context canceled, stopping")
			return
		case <-p.stopChan:
			logging.Info().Msg("[history-poller] Stop signal received")
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.refreshCh:
			p.poll(ctx)
			ticker.Reset(p.interval)
		}
	}
}

// poll runs one history cycle: paginate the window, aggregate, enrich,
// publish.
func (p *HistoryPoller) poll(ctx context.Context) {
	start := time.Now()

	records, err := p.fetchWindow(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("[history-poller] History fetch failed, keeping previous statistics")
		prev := p.store.History()
		prev.Status = models.SnapshotDegraded
		prev.Reason = err.Error()
		p.store.SetHistory(prev)
		metrics.RecordPollCycle("history", "error", time.Since(start))
		return
	}

	users := p.agg.Aggregate(records)

	if p.geo != nil {
		for _, us := range users {
			if us.LastIP == "" {
				continue
			}
			us.Geo = p.geo.Lookup(ctx, us.LastIP)
		}
	}

	p.store.SetHistory(models.HistorySnapshot{
		Status:      models.SnapshotOK,
		GeneratedAt: time.Now().UTC(),
		Days:        p.days,
		RecordCount: len(records),
		History:     records,
		Users:       users,
	})

	logging.Debug().
		Int("records", len(records)).
		Int("users", len(users)).
		Dur("elapsed", time.Since(start)).
		Msg("[history-poller] Cycle complete")
	metrics.RecordPollCycle("history", "ok", time.Since(start))
}

// fetchWindow paginates the full rolling window. A failure on any page
// aborts the cycle; aggregating a partial window would skew every ratio.
func (p *HistoryPoller) fetchWindow(ctx context.Context) ([]tautulli.TautulliHistoryRecord, error) {
	since := time.Now().AddDate(0, 0, -p.days)

	var records []tautulli.TautulliHistoryRecord
	offset := 0

	for page := 0; page < maxHistoryPages; page++ {
		resp, err := p.fetcher.GetHistorySince(ctx, since, offset, p.pageSize)
		if err != nil {
			return nil, fmt.Errorf("history page at offset %d: %w", offset, err)
		}

		data := resp.Response.Data
		records = append(records, data.Data...)

		if len(data.Data) == 0 || len(records) >= data.RecordsFiltered {
			return records, nil
		}
		offset += len(data.Data)
	}

	return nil, fmt.Errorf("history window exceeded %d pages, raise the page size", maxHistoryPages)
}
