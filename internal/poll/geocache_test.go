// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamwatch/streamwatch/internal/models"
)

// fakeGeoProvider counts lookups and returns a canned result or error.
type fakeGeoProvider struct {
	calls int
	geo   *models.Geolocation
	err   error
}

func (f *fakeGeoProvider) Lookup(_ context.Context, ip string) (*models.Geolocation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.geo != nil {
		return f.geo, nil
	}
	return &models.Geolocation{IPAddress: ip, Country: "Testland"}, nil
}

func (f *fakeGeoProvider) Name() string      { return "fake" }
func (f *fakeGeoProvider) IsAvailable() bool { return true }

func TestGeoCacheHitWithinTTL(t *testing.T) {
	provider := &fakeGeoProvider{}
	gc := NewGeoCache(time.Hour, provider)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gc.now = func() time.Time { return base }

	first := gc.Lookup(context.Background(), "203.0.113.9")
	require.NotNil(t, first)
	assert.Equal(t, "Testland", first.Country)

	// Second lookup within the TTL must not hit the provider
	gc.now = func() time.Time { return base.Add(30 * time.Minute) }
	second := gc.Lookup(context.Background(), "203.0.113.9")
	require.NotNil(t, second)

	assert.Equal(t, 1, provider.calls)
}

func TestGeoCacheExpiryRefetches(t *testing.T) {
	provider := &fakeGeoProvider{}
	gc := NewGeoCache(time.Hour, provider)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gc.now = func() time.Time { return base }
	gc.Lookup(context.Background(), "203.0.113.9")

	gc.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	gc.Lookup(context.Background(), "203.0.113.9")

	assert.Equal(t, 2, provider.calls)
	assert.Equal(t, 1, gc.Len())
}

func TestGeoCacheCachesFailedLookups(t *testing.T) {
	provider := &fakeGeoProvider{err: errors.New("upstream down")}
	gc := NewGeoCache(time.Hour, provider)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gc.now = func() time.Time { return base }

	assert.Nil(t, gc.Lookup(context.Background(), "203.0.113.9"))
	assert.Nil(t, gc.Lookup(context.Background(), "203.0.113.9"))

	// The failure was cached, so only one upstream call happened
	assert.Equal(t, 1, provider.calls)
}

func TestGeoCachePrivateIPSkipsProviders(t *testing.T) {
	provider := &fakeGeoProvider{}
	gc := NewGeoCache(time.Hour, provider)

	geo := gc.Lookup(context.Background(), "192.168.1.50")
	require.NotNil(t, geo)
	assert.Equal(t, "Local", geo.Country)
	require.NotNil(t, geo.City)
	assert.Equal(t, "Local Network", *geo.City)
	assert.Zero(t, provider.calls)
}

func TestGeoCacheProviderFallback(t *testing.T) {
	failing := &fakeGeoProvider{err: errors.New("boom")}
	backup := &fakeGeoProvider{geo: &models.Geolocation{IPAddress: "203.0.113.9", Country: "Backupland"}}
	gc := NewGeoCache(time.Hour, failing, backup)

	geo := gc.Lookup(context.Background(), "203.0.113.9")
	require.NotNil(t, geo)
	assert.Equal(t, "Backupland", geo.Country)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, backup.calls)
}

func TestGeoCacheStripsPort(t *testing.T) {
	provider := &fakeGeoProvider{}
	gc := NewGeoCache(time.Hour, provider)

	first := gc.Lookup(context.Background(), "203.0.113.9:32400")
	require.NotNil(t, first)
	assert.Equal(t, "203.0.113.9", first.IPAddress)

	// Same IP without port hits the cache
	gc.Lookup(context.Background(), "203.0.113.9")
	assert.Equal(t, 1, provider.calls)
}

func TestNormalizeIPAddress(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"192.168.1.1", "192.168.1.1"},
		{"192.168.1.1:8096", "192.168.1.1"},
		{"[::1]:8096", "::1"},
		{"[2001:db8::1]", "2001:db8::1"},
		{"2001:db8::1", "2001:db8::1"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeIPAddress(tt.input), "input %q", tt.input)
	}
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, IsPrivateIP("10.1.2.3"))
	assert.True(t, IsPrivateIP("172.16.0.1"))
	assert.True(t, IsPrivateIP("192.168.0.1"))
	assert.True(t, IsPrivateIP("127.0.0.1"))
	assert.True(t, IsPrivateIP("fe80::1"))
	assert.False(t, IsPrivateIP("8.8.8.8"))
	assert.False(t, IsPrivateIP("not-an-ip"))
}
