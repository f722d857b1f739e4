// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package poll

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/models/tautulli"
)

// GeoIPProvider defines the interface for geolocation lookup services.
type GeoIPProvider interface {
	// Lookup returns geolocation data for the given IP address.
	// Returns nil and an error if the lookup fails or the IP is invalid.
	Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error)

	// Name returns the provider name for logging and metrics.
	Name() string

	// IsAvailable checks if the provider is properly configured and available.
	IsAvailable() bool
}

// ========================================
// Tautulli Provider (get_geoip_lookup)
// ========================================

// TautulliProvider implements GeoIPProvider via Tautulli's own
// get_geoip_lookup command. Tautulli resolves against its bundled
// GeoLite2 database, so lookups stay on the local network.
type TautulliProvider struct {
	client *Client
}

// NewTautulliProvider creates a provider backed by the Tautulli client.
func NewTautulliProvider(client *Client) *TautulliProvider {
	return &TautulliProvider{client: client}
}

// Name returns the provider name.
func (p *TautulliProvider) Name() string {
	return "tautulli"
}

// IsAvailable returns true when a client is configured.
func (p *TautulliProvider) IsAvailable() bool {
	return p.client != nil
}

// Lookup queries Tautulli's get_geoip_lookup for geolocation data.
func (p *TautulliProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if ip := net.ParseIP(ipAddress); ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	geoIP, err := p.client.GetGeoIPLookup(ctx, ipAddress)
	if err != nil {
		return nil, err
	}

	return convertTautulliGeoIP(&geoIP.Response.Data, ipAddress), nil
}

func convertTautulliGeoIP(data *tautulli.TautulliGeoIPData, ipAddress string) *models.Geolocation {
	geo := &models.Geolocation{
		IPAddress:   ipAddress,
		Latitude:    data.Latitude,
		Longitude:   data.Longitude,
		Country:     data.Country,
		LastUpdated: time.Now(),
	}

	if data.City != "" {
		geo.City = &data.City
	}
	if data.Region != "" {
		geo.Region = &data.Region
	}
	if data.PostalCode != "" {
		geo.PostalCode = &data.PostalCode
	}
	if data.Timezone != "" {
		geo.Timezone = &data.Timezone
	}

	return geo
}

// ========================================
// ip-api.com Provider (Free, No API Key)
// ========================================

// IPAPIProvider implements GeoIPProvider using the free ip-api.com service.
// Rate limit: 45 requests per minute (free tier, no API key required).
// For higher limits, commercial endpoints are available at pro.ip-api.com.
type IPAPIProvider struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// ipAPIResponse represents the JSON response from ip-api.com
type ipAPIResponse struct {
	Status      string  `json:"status"`      // "success" or "fail"
	Message     string  `json:"message"`     // Error message if status is "fail"
	Country     string  `json:"country"`     // Country name
	CountryCode string  `json:"countryCode"` // ISO 3166-1 alpha-2 country code
	Region      string  `json:"region"`      // Region/state code
	RegionName  string  `json:"regionName"`  // Region/state name
	City        string  `json:"city"`        // City name
	Zip         string  `json:"zip"`         // Postal code
	Lat         float64 `json:"lat"`         // Latitude
	Lon         float64 `json:"lon"`         // Longitude
	Timezone    string  `json:"timezone"`    // Timezone (e.g., "America/New_York")
	Query       string  `json:"query"`       // IP address queried
}

// NewIPAPIProvider creates a new ip-api.com provider.
// lookupsPerMinute should stay at or below 45 on the free tier.
func NewIPAPIProvider(lookupsPerMinute int) *IPAPIProvider {
	if lookupsPerMinute <= 0 {
		lookupsPerMinute = 45
	}
	return &IPAPIProvider{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(lookupsPerMinute)), lookupsPerMinute),
		baseURL: "http://ip-api.com/json",
	}
}

// Name returns the provider name.
func (p *IPAPIProvider) Name() string {
	return "ip-api.com"
}

// IsAvailable returns true (ip-api.com doesn't require an API key).
func (p *IPAPIProvider) IsAvailable() bool {
	return true
}

// Lookup queries ip-api.com for geolocation data. Requests beyond the
// rate limit fail immediately rather than queueing; a failed lookup is
// cached upstream so the next poll does not retry instantly.
func (p *IPAPIProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if !p.limiter.Allow() {
		return nil, fmt.Errorf("rate limit exceeded for ip-api.com")
	}

	if ip := net.ParseIP(ipAddress); ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	result, err := p.queryIPAPI(ctx, ipAddress)
	if err != nil {
		return nil, err
	}

	return convertIPAPIResponse(result, ipAddress), nil
}

func (p *IPAPIProvider) queryIPAPI(ctx context.Context, ipAddress string) (*ipAPIResponse, error) {
	// fields parameter keeps the response small while covering everything needed
	url := fmt.Sprintf("%s/%s?fields=status,message,country,countryCode,region,regionName,city,zip,lat,lon,timezone,query",
		p.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip-api.com: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip-api.com returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ip-api.com response: %w", err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("ip-api.com lookup failed: %s", result.Message)
	}

	return &result, nil
}

func convertIPAPIResponse(result *ipAPIResponse, ipAddress string) *models.Geolocation {
	geo := &models.Geolocation{
		IPAddress:   ipAddress,
		Latitude:    result.Lat,
		Longitude:   result.Lon,
		Country:     result.Country,
		LastUpdated: time.Now(),
	}

	if result.City != "" {
		geo.City = &result.City
	}
	if result.RegionName != "" {
		geo.Region = &result.RegionName
	}
	if result.Zip != "" {
		geo.PostalCode = &result.Zip
	}
	if result.Timezone != "" {
		geo.Timezone = &result.Timezone
	}

	return geo
}

// IsPrivateIP checks if the IP address is in a private/local range.
// Private IPs cannot be geolocated and should be handled specially.
func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	return isInPrivateRanges(ip)
}

func isInPrivateRanges(ip net.IP) bool {
	// RFC 1918: 10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16
	// Loopback: 127.0.0.0/8
	// Link-local: 169.254.0.0/16
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"::1/128",   // IPv6 loopback
		"fc00::/7",  // IPv6 unique local
		"fe80::/10", // IPv6 link-local
	}

	for _, cidr := range privateRanges {
		if isInCIDR(ip, cidr) {
			return true
		}
	}

	return false
}

func isInCIDR(ip net.IP, cidr string) bool {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	return network.Contains(ip)
}

// IsValidPublicIP checks if the IP address is a valid public (routable) IP.
func IsValidPublicIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	if ip.IsUnspecified() {
		return false
	}

	if IsPrivateIP(ipStr) {
		return false
	}

	return true
}

// CreateLocalGeolocation creates a geolocation entry for private/LAN IPs.
// These are marked with "Local Network" as the city for filtering purposes.
func CreateLocalGeolocation(ipAddress string) *models.Geolocation {
	local := "Local Network"
	return &models.Geolocation{
		IPAddress:   ipAddress,
		Latitude:    0,
		Longitude:   0,
		Country:     "Local",
		City:        &local,
		LastUpdated: time.Now(),
	}
}

// normalizeIPAddress strips port from IP address if present
func normalizeIPAddress(ipAddr string) string {
	if strings.HasPrefix(ipAddr, "[") {
		return normalizeIPv6Address(ipAddr)
	}
	return normalizeIPv4Address(ipAddr)
}

func normalizeIPv6Address(ipAddr string) string {
	// Handle IPv6 with port: [::1]:8096 -> ::1
	if idx := strings.LastIndex(ipAddr, "]:"); idx != -1 {
		return ipAddr[1:idx]
	}
	// Remove brackets if no port
	return strings.Trim(ipAddr, "[]")
}

func normalizeIPv4Address(ipAddr string) string {
	// Handle IPv4 with port: 192.168.1.1:8096 -> 192.168.1.1
	// Only strip if it looks like host:port (single colon)
	if strings.Count(ipAddr, ":") != 1 {
		return ipAddr
	}

	if idx := strings.LastIndex(ipAddr, ":"); idx != -1 {
		return ipAddr[:idx]
	}

	return ipAddr
}
