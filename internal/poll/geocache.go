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
)

// GeoCache memoizes IP geolocation lookups with a time-based expiry.
//
// Failed lookups are cached too: a broken upstream should not be hit
// again for every poll cycle, so an empty result is "valid" for the
// full TTL. This is a deliberate policy.
//
// There is no eviction goroutine. Stale entries are cleaned lazily on
// the next access to the same key, which bounds the map size at the
// number of distinct IPs seen within one TTL window.
type GeoCache struct {
	mu        sync.Mutex
	entries   map[string]geoCacheEntry
	providers []GeoIPProvider
	ttl       time.Duration

	// now is injected for tests; defaults to time.Now
	now func() time.Time
}

type geoCacheEntry struct {
	geo       *models.Geolocation // nil when the lookup failed
	expiresAt time.Time
}

// NewGeoCache creates a cache over the given providers, tried in order
// until one succeeds. TTL defaults to 1 hour when zero.
func NewGeoCache(ttl time.Duration, providers ...GeoIPProvider) *GeoCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &GeoCache{
		entries:   make(map[string]geoCacheEntry),
		providers: providers,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Lookup returns geolocation data for the IP, consulting the cache
// first. Returns nil when the IP cannot be resolved; it never returns
// an error because enrichment must not abort a poll cycle.
func (gc *GeoCache) Lookup(ctx context.Context, ipAddress string) *models.Geolocation {
	ipAddress = normalizeIPAddress(ipAddress)
	if ipAddress == "" {
		return nil
	}

	if IsPrivateIP(ipAddress) {
		return CreateLocalGeolocation(ipAddress)
	}

	now := gc.now()

	gc.mu.Lock()
	if entry, ok := gc.entries[ipAddress]; ok {
		if now.Before(entry.expiresAt) {
			gc.mu.Unlock()
			metrics.GeoCacheHits.Inc()
			return entry.geo
		}
		// Expired, treat as absent and refetch
		delete(gc.entries, ipAddress)
		metrics.GeoCacheEvictions.Inc()
	}
	gc.mu.Unlock()

	metrics.GeoCacheMisses.Inc()
	geo := gc.resolve(ctx, ipAddress)

	gc.mu.Lock()
	gc.entries[ipAddress] = geoCacheEntry{
		geo:       geo,
		expiresAt: now.Add(gc.ttl),
	}
	metrics.GeoCacheSize.Set(float64(len(gc.entries)))
	gc.mu.Unlock()

	return geo
}

// resolve tries each provider in order. A nil return means every
// provider failed; the caller caches that outcome.
func (gc *GeoCache) resolve(ctx context.Context, ipAddress string) *models.Geolocation {
	for _, provider := range gc.providers {
		if !provider.IsAvailable() {
			continue
		}

		geo, err := provider.Lookup(ctx, ipAddress)
		if err != nil {
			metrics.RecordGeoLookup(provider.Name(), "error")
			logging.Debug().Err(err).Str("provider", provider.Name()).Str("ip", ipAddress).Msg("GeoIP provider failed")
			continue
		}

		metrics.RecordGeoLookup(provider.Name(), "ok")
		return geo
	}

	logging.Warn().Str("ip", ipAddress).Msg("All GeoIP providers failed, caching empty result")
	return nil
}

// Len returns the current number of cached entries, expired or not.
func (gc *GeoCache) Len() int {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return len(gc.entries)
}
