// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

/*
client.go - Core Tautulli API Client

This file provides the Client struct and HTTP communication layer for
Tautulli's /api/v2 endpoint.

Client Features:
  - HTTP client with configurable timeout (default 10s)
  - API key authentication
  - Optional TLS verification skip for self-signed installs
  - Automatic HTTP 429 rate limit handling with exponential backoff
  - JSON response parsing with envelope validation
  - Context support for cancellation and timeouts

Resilience Mechanisms:
  - Rate Limiting: Exponential backoff (1s, 2s, 4s, 8s, 16s) on HTTP 429,
    honoring Retry-After when present
  - Retries: Max 5 attempts for rate-limited requests
  - Context: All methods accept context for cancellation

NOTE: History responses are decoded with encoding/json instead of go-json
because go-json issue #340 causes "expected comma after object element"
parsing errors with large Tautulli API responses (500+ records).

Related Files:
  - breaker.go: Circuit breaker wrapper for the polling fetches
  - geoip_provider.go: Geolocation lookup providers
*/
package poll

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/models/tautulli"
)

// maxErrorBodySize limits the maximum amount of response body read for error reporting
// This prevents unbounded memory allocation when reading large error responses
const maxErrorBodySize = 64 * 1024 // 64KB

// readBodyForError reads the response body for error reporting (max 64KB)
// Returns the body content or a placeholder message if reading fails.
// Reads one byte past the limit so a body of exactly 64KB is not
// mislabeled as truncated.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize+1))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) > maxErrorBodySize {
		return append(body[:maxErrorBodySize], []byte("\n... (truncated)")...)
	}
	return body
}

// Fetcher is the subset of the client the pollers depend on. Satisfied
// by Client and BreakerClient; tests substitute fakes.
type Fetcher interface {
	GetActivity(ctx context.Context) (*tautulli.TautulliActivity, error)
	GetHistorySince(ctx context.Context, since time.Time, start, length int) (*tautulli.TautulliHistory, error)
}

// Terminator issues stream termination commands. Satisfied by Client;
// tests substitute fakes.
type Terminator interface {
	TerminateSession(ctx context.Context, sessionKey, message string) error
}

// Client handles communication with the Tautulli HTTP API.
//
// It includes built-in rate limit handling with exponential backoff for
// HTTP 429 responses. Thread Safety: safe for concurrent use; each
// request creates its own HTTP request.
type Client struct {
	baseURL        string
	apiKey         string
	client         *http.Client
	maxRetries     int           // Maximum retries for rate limiting
	retryBaseDelay time.Duration // Base delay for exponential backoff
}

// NewClient creates a new Tautulli API client with the provided configuration.
// verify_ssl=false disables certificate verification on the transport, which
// many self-hosted Tautulli installs need.
func NewClient(cfg *config.TautulliConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in via verify_ssl
	}

	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		maxRetries:     5,               // Allow up to 5 retries for rate limiting
		retryBaseDelay: 1 * time.Second, // Start with 1 second, doubles each retry
	}
}

// doRequestWithRateLimit performs an HTTP request with automatic rate limit handling.
// Implements exponential backoff for HTTP 429 responses (1s, 2s, 4s, 8s, 16s).
// The context is used for cancellation during backoff waits.
func (c *Client) doRequestWithRateLimit(ctx context.Context, reqURL string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		// Check context before attempting request
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}

		// Success - return response
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		// Rate limited (HTTP 429) - close body and retry with backoff
		_ = resp.Body.Close()
		metrics.UpstreamRateLimited.Inc()

		// Last attempt - return error
		if attempt == c.maxRetries {
			lastErr = fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			break
		}

		// Calculate exponential backoff delay: 1s, 2s, 4s, 8s, 16s
		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))

		// Check for Retry-After header (RFC 6585)
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			// Try parsing as seconds (integer)
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				delay = seconds
			}
		}

		// Use cancellable wait instead of time.Sleep
		select {
		case <-time.After(delay):
			// Continue to next attempt
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// makeRequest is a generic helper that handles common Tautulli API request boilerplate.
// It builds the URL with API key and command, makes the request, checks HTTP status,
// decodes the JSON response, and validates the Tautulli response wrapper.
func (c *Client) makeRequest(ctx context.Context, cmd string, params url.Values, result interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	params.Set("cmd", cmd)

	reqURL := fmt.Sprintf("%s/api/v2?%s", c.baseURL, params.Encode())

	start := time.Now()
	err := c.doMakeRequest(ctx, cmd, reqURL, result)
	metrics.RecordUpstreamRequest(cmd, time.Since(start), err)
	return err
}

func (c *Client) doMakeRequest(ctx context.Context, cmd, reqURL string, result interface{}) error {
	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return fmt.Errorf("failed to make %s request: %w", cmd, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return fmt.Errorf("%s request failed with status %d: %s", cmd, resp.StatusCode, string(body))
	}

	if err := gojson.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", cmd, err)
	}

	// Validate Tautulli response wrapper
	return validateResponse(result, cmd)
}

// validateResponse checks if the Tautulli API returned success.
// All Tautulli responses have a common wrapper with response.result field.
// This uses reflection to access the Response field since all Tautulli types follow the same pattern.
func validateResponse(result interface{}, cmd string) error {
	v := reflect.ValueOf(result)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return nil // Skip validation for non-struct types
	}

	responseField := v.FieldByName("Response")
	if !responseField.IsValid() {
		return nil // No Response field, skip validation
	}

	resultField := responseField.FieldByName("Result")
	if !resultField.IsValid() || resultField.Kind() != reflect.String {
		return nil // No Result field or not a string
	}

	if resultField.String() != "success" {
		msg := "unknown error"
		messageField := responseField.FieldByName("Message")
		if messageField.IsValid() && messageField.Kind() == reflect.Ptr && !messageField.IsNil() {
			if messageField.Elem().Kind() == reflect.String {
				msg = messageField.Elem().String()
			}
		}
		return fmt.Errorf("%s request failed: %s", cmd, msg)
	}

	return nil
}

// Ping verifies connectivity to the Tautulli API.
func (c *Client) Ping(ctx context.Context) error {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("cmd", "arnold")

	reqURL := fmt.Sprintf("%s/api/v2?%s", c.baseURL, params.Encode())

	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return fmt.Errorf("failed to ping Tautulli: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Tautulli ping failed with status: %d", resp.StatusCode)
	}

	return nil
}

// GetActivity retrieves current streaming activity from Tautulli.
func (c *Client) GetActivity(ctx context.Context) (*tautulli.TautulliActivity, error) {
	var activity tautulli.TautulliActivity
	if err := c.makeRequest(ctx, "get_activity", nil, &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// GetServerInfo retrieves Plex server information from Tautulli.
func (c *Client) GetServerInfo(ctx context.Context) (*tautulli.TautulliServerInfo, error) {
	var info tautulli.TautulliServerInfo
	if err := c.makeRequest(ctx, "get_server_info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetGeoIPLookup retrieves geolocation information for an IP address.
func (c *Client) GetGeoIPLookup(ctx context.Context, ipAddress string) (*tautulli.TautulliGeoIP, error) {
	params := url.Values{}
	params.Set("ip_address", ipAddress)

	var geoIP tautulli.TautulliGeoIP
	if err := c.makeRequest(ctx, "get_geoip_lookup", params, &geoIP); err != nil {
		return nil, err
	}
	return &geoIP, nil
}

// TerminateSession terminates an active playback session. Tautulli
// returns a success envelope even when the session key does not match
// an active stream, so a nil error means the command was accepted, not
// that a stream necessarily ended.
func (c *Client) TerminateSession(ctx context.Context, sessionKey, message string) error {
	params := url.Values{}
	params.Set("session_key", sessionKey)
	if message != "" {
		params.Set("message", message)
	}

	var result tautulli.TautulliTerminate
	return c.makeRequest(ctx, "terminate_session", params, &result)
}

// GetHistorySince retrieves playback history since a specific date.
// Pagination is driven by the caller via start/length.
func (c *Client) GetHistorySince(ctx context.Context, since time.Time, start, length int) (*tautulli.TautulliHistory, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("cmd", "get_history")
	params.Set("start", fmt.Sprintf("%d", start))
	params.Set("length", fmt.Sprintf("%d", length))
	params.Set("order_column", "started")
	params.Set("order_dir", "desc")
	// Tautulli API expects date in "YYYY-MM-DD" format, not Unix timestamp
	params.Set("after", since.Format("2006-01-02"))
	// Disable session grouping to get individual playback records
	// Without this, Tautulli groups consecutive plays of the same content by the same user
	params.Set("grouping", "0")

	startTime := time.Now()
	hist, err := c.doHistoryRequest(ctx, params)
	metrics.RecordUpstreamRequest("get_history", time.Since(startTime), err)
	return hist, err
}

// doHistoryRequest performs a history API request with common error handling.
// History responses can be large (500+ records = several MB), so the body is
// read in full and decoded with encoding/json rather than go-json; see the
// file comment.
func (c *Client) doHistoryRequest(ctx context.Context, params url.Values) (*tautulli.TautulliHistory, error) {
	reqURL := fmt.Sprintf("%s/api/v2?%s", c.baseURL, params.Encode())

	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to make history request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return nil, fmt.Errorf("history request failed with status %d: %s", resp.StatusCode, string(body))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read history response body: %w", err)
	}

	var history tautulli.TautulliHistory
	if err := json.Unmarshal(bodyBytes, &history); err != nil {
		// Show the first 2000 characters of the payload for diagnostics
		maxLen := 2000
		if len(bodyBytes) < maxLen {
			maxLen = len(bodyBytes)
		}
		return nil, fmt.Errorf("failed to decode history response (showing first %d chars): %w\nJSON: %s", maxLen, err, string(bodyBytes[:maxLen]))
	}

	if history.Response.Result != "success" {
		msg := "unknown error"
		if history.Response.Message != nil {
			msg = *history.Response.Message
		}
		return nil, fmt.Errorf("history request failed: %s", msg)
	}

	return &history, nil
}

// ImageProxy fetches an image through Tautulli's pms_image_proxy command
// and returns the raw bytes plus the upstream content type. Used by the
// same-origin image relay endpoint.
func (c *Client) ImageProxy(ctx context.Context, img string, width, height int, fallback string) ([]byte, string, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("cmd", "pms_image_proxy")
	params.Set("img", img)
	params.Set("width", fmt.Sprintf("%d", width))
	params.Set("height", fmt.Sprintf("%d", height))
	if fallback != "" {
		params.Set("fallback", fallback)
	}
	params.Set("refresh", "true")

	reqURL := fmt.Sprintf("%s/api/v2?%s", c.baseURL, params.Encode())

	start := time.Now()
	body, contentType, err := c.doImageRequest(ctx, reqURL)
	metrics.RecordUpstreamRequest("pms_image_proxy", time.Since(start), err)
	return body, contentType, err
}

func (c *Client) doImageRequest(ctx context.Context, reqURL string) ([]byte, string, error) {
	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to make image request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return nil, "", fmt.Errorf("image request failed with status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image response body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	return body, contentType, nil
}
