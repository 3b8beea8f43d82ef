// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

// Package romm provides the typed HTTP client for the RomM REST API and the
// connection manager that owns its lifecycle.
//
// All client methods accept a context, convert transport and decode failures
// into wrapped errors, and are safe for concurrent use. Every call passes
// through a shared circuit breaker and an optional client-side rate limiter.
package romm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/halcyonforge/romshelf/internal/metrics"
	"github.com/halcyonforge/romshelf/internal/models/romm"
)

// maxErrorBodySize limits the response body read for error reporting,
// preventing unbounded allocation on large error responses.
const maxErrorBodySize = 64 * 1024 // 64KB

// RomQuery holds parameters for the paged ROM listing.
type RomQuery struct {
	PlatformID int64
	// PluralPlatformParam selects the platform_ids query parameter used by
	// newer servers instead of platform_id.
	PluralPlatformParam bool
	SearchTerm          string
	OrderBy             string
	OrderDir            string
	Limit               int
	Offset              int
}

// ClientInterface defines the RomM API operations consumed by the sync
// engine. Implemented by Client for production and by fakes in tests.
type ClientInterface interface {
	Heartbeat(ctx context.Context) (*romm.Heartbeat, error)
	Login(ctx context.Context, username, password, scope string) (*romm.TokenResponse, error)
	GetCurrentUser(ctx context.Context) (*romm.User, error)

	GetPlatforms(ctx context.Context) ([]romm.Platform, error)
	GetPlatform(ctx context.Context, id int64) (*romm.Platform, error)

	GetRoms(ctx context.Context, q RomQuery) (*romm.RomPage, error)
	GetRom(ctx context.Context, id int64) (*romm.Rom, error)
	DownloadRom(ctx context.Context, id int64, fileName, destPath string, offset int64) (*DownloadResult, error)

	GetCollections(ctx context.Context) ([]romm.Collection, error)
	CreateCollection(ctx context.Context, c romm.CollectionCreate) (*romm.Collection, error)
	UpdateCollectionRoms(ctx context.Context, id int64, romIDs []int64) error
	DeleteCollection(ctx context.Context, id int64) error

	UpdateRomUser(ctx context.Context, romID int64, u romm.RomUserUpdate) error
	RefreshRetroAchievements(ctx context.Context) error

	RegisterDevice(ctx context.Context, d romm.Device) (*romm.Device, error)
	UpdateDevice(ctx context.Context, d romm.Device) (*romm.Device, error)

	BaseURL() string
}

// Client is the production RomM API client.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	breaker *breaker
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Timeout time.Duration
	// RequestsPerSecond caps outbound calls; 0 disables the limiter.
	RequestsPerSecond float64
	// Token is the bearer token attached to every request when non-empty.
	Token string
}

// NewClient creates a RomM API client for the given base URL.
// The base URL must carry a scheme; trailing slashes are stripped.
func NewClient(baseURL string, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), int(opts.RequestsPerSecond)+1)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   opts.Token,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: limiter,
		breaker: newBreaker("romm-api"),
	}
}

// BaseURL returns the normalized base URL this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WithToken returns a copy of the client carrying a new bearer token.
// The circuit breaker is shared so failure history survives re-auth.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// readBodyForError reads up to maxErrorBodySize of the response body for
// error reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}

// StatusError is returned for non-2xx API responses so callers can
// distinguish authorization failures from other errors.
type StatusError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsAuthError reports whether err is a 401/403 API response.
func IsAuthError(err error) bool {
	var se *StatusError
	if !asStatusError(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
}

// do executes one HTTP request through the rate limiter and circuit
// breaker, returning the response body reader on 2xx.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body io.Reader, contentType string) (io.ReadCloser, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := time.Now()
	rc, err := c.breaker.execute(func() (io.ReadCloser, error) {
		return c.doOnce(ctx, method, endpoint, query, body, contentType)
	})
	metrics.APICallDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APICallErrors.WithLabelValues(endpoint).Inc()
	}
	return rc, err
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, query url.Values, body io.Reader, contentType string) (io.ReadCloser, error) {
	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Body:       string(readBodyForError(resp.Body)),
		}
	}

	return resp.Body, nil
}

// getJSON executes a GET request and decodes the JSON response into T.
func getJSON[T any](ctx context.Context, c *Client, endpoint string, query url.Values) (*T, error) {
	body, err := c.do(ctx, http.MethodGet, endpoint, query, http.NoBody, "")
	if err != nil {
		return nil, err
	}
	return decodeJSON[T](body)
}

// postJSON executes a request with a JSON body and decodes the response into T.
func postJSON[T any](ctx context.Context, c *Client, method, endpoint string, payload any) (*T, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	body, err := c.do(ctx, method, endpoint, nil, strings.NewReader(string(data)), "application/json")
	if err != nil {
		return nil, err
	}
	return decodeJSON[T](body)
}

// decodeJSON decodes and closes a response body.
func decodeJSON[T any](body io.ReadCloser) (*T, error) {
	defer body.Close()
	var result T
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// discard drains and closes a response body whose content is irrelevant.
func discard(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBodySize))
	_ = body.Close()
}

// Heartbeat checks server liveness and returns the negotiated version.
func (c *Client) Heartbeat(ctx context.Context) (*romm.Heartbeat, error) {
	return getJSON[romm.Heartbeat](ctx, c, "/api/heartbeat", nil)
}

// Login exchanges credentials for a bearer token using the form-encoded
// token endpoint.
func (c *Client) Login(ctx context.Context, username, password, scope string) (*romm.TokenResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("scope", scope)
	form.Set("grant_type", "password")

	body, err := c.do(ctx, http.MethodPost, "/api/token", nil,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	return decodeJSON[romm.TokenResponse](body)
}

// GetCurrentUser fetches the authenticated user, including RA progression.
func (c *Client) GetCurrentUser(ctx context.Context) (*romm.User, error) {
	return getJSON[romm.User](ctx, c, "/api/users/me", nil)
}

// GetPlatforms lists every platform on the server.
func (c *Client) GetPlatforms(ctx context.Context) ([]romm.Platform, error) {
	platforms, err := getJSON[[]romm.Platform](ctx, c, "/api/platforms", nil)
	if err != nil {
		return nil, err
	}
	return *platforms, nil
}

// GetPlatform fetches a single platform.
func (c *Client) GetPlatform(ctx context.Context, id int64) (*romm.Platform, error) {
	return getJSON[romm.Platform](ctx, c, "/api/platforms/"+strconv.FormatInt(id, 10), nil)
}

// GetRoms fetches one page of the ROM listing.
func (c *Client) GetRoms(ctx context.Context, q RomQuery) (*romm.RomPage, error) {
	query := url.Values{}
	if q.PlatformID > 0 {
		if q.PluralPlatformParam {
			query.Set("platform_ids", strconv.FormatInt(q.PlatformID, 10))
		} else {
			query.Set("platform_id", strconv.FormatInt(q.PlatformID, 10))
		}
	}
	if q.SearchTerm != "" {
		query.Set("search_term", q.SearchTerm)
	}
	if q.OrderBy != "" {
		query.Set("order_by", q.OrderBy)
	}
	if q.OrderDir != "" {
		query.Set("order_dir", q.OrderDir)
	}
	query.Set("limit", strconv.Itoa(q.Limit))
	query.Set("offset", strconv.Itoa(q.Offset))

	return getJSON[romm.RomPage](ctx, c, "/api/roms", query)
}

// GetRom fetches a single ROM entry.
func (c *Client) GetRom(ctx context.Context, id int64) (*romm.Rom, error) {
	return getJSON[romm.Rom](ctx, c, "/api/roms/"+strconv.FormatInt(id, 10), nil)
}

// GetCollections lists every collection visible to the user.
func (c *Client) GetCollections(ctx context.Context) ([]romm.Collection, error) {
	collections, err := getJSON[[]romm.Collection](ctx, c, "/api/collections", nil)
	if err != nil {
		return nil, err
	}
	return *collections, nil
}

// CreateCollection creates a collection and returns the server's row.
func (c *Client) CreateCollection(ctx context.Context, payload romm.CollectionCreate) (*romm.Collection, error) {
	return postJSON[romm.Collection](ctx, c, http.MethodPost, "/api/collections", payload)
}

// UpdateCollectionRoms replaces a collection's membership with the given
// remote ROM ids, sent as a raw JSON id-array rom_ids payload.
func (c *Client) UpdateCollectionRoms(ctx context.Context, id int64, romIDs []int64) error {
	if romIDs == nil {
		romIDs = []int64{}
	}
	payload := map[string][]int64{"rom_ids": romIDs}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rom_ids: %w", err)
	}

	endpoint := "/api/collections/" + strconv.FormatInt(id, 10)
	body, err := c.do(ctx, http.MethodPut, endpoint, nil, strings.NewReader(string(data)), "application/json")
	if err != nil {
		return err
	}
	discard(body)
	return nil
}

// DeleteCollection removes a collection on the server.
func (c *Client) DeleteCollection(ctx context.Context, id int64) error {
	endpoint := "/api/collections/" + strconv.FormatInt(id, 10)
	body, err := c.do(ctx, http.MethodDelete, endpoint, nil, http.NoBody, "")
	if err != nil {
		return err
	}
	discard(body)
	return nil
}

// UpdateRomUser pushes per-user property changes for one ROM.
func (c *Client) UpdateRomUser(ctx context.Context, romID int64, u romm.RomUserUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal rom user update: %w", err)
	}

	endpoint := "/api/roms/" + strconv.FormatInt(romID, 10) + "/props"
	body, err := c.do(ctx, http.MethodPut, endpoint, nil, strings.NewReader(string(data)), "application/json")
	if err != nil {
		return err
	}
	discard(body)
	return nil
}

// RefreshRetroAchievements triggers the server's incremental RA refresh for
// the current user.
func (c *Client) RefreshRetroAchievements(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodPost, "/api/users/me/ra/refresh", nil, http.NoBody, "")
	if err != nil {
		return err
	}
	discard(body)
	return nil
}

// RegisterDevice registers this client as a device on the server.
func (c *Client) RegisterDevice(ctx context.Context, d romm.Device) (*romm.Device, error) {
	return postJSON[romm.Device](ctx, c, http.MethodPost, "/api/devices", d)
}

// UpdateDevice updates an existing device registration by id.
func (c *Client) UpdateDevice(ctx context.Context, d romm.Device) (*romm.Device, error) {
	return postJSON[romm.Device](ctx, c, http.MethodPut, "/api/devices/"+d.ID, d)
}
