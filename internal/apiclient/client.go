// Package apiclient talks to the signage REST API on behalf of the operator
// console.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"signage-control-backend/internal/model"
	"signage-control-backend/internal/parse"
	"signage-control-backend/internal/telemetry"
)

const maxBodySize = 1 << 20

// Error is a non-2xx reply from the API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// TokenStore holds the operator's bearer token.
type TokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewTokenStore(token string) *TokenStore {
	return &TokenStore{token: token}
}

func (t *TokenStore) Get() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

func (t *TokenStore) Set(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

// Clear drops the token and reports whether one was present.
func (t *TokenStore) Clear() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	had := t.token != ""
	t.token = ""
	return had
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *TokenStore
	timeout time.Duration
	now     func() time.Time

	// OnUnauthorized runs after a 401/403 cleared a token that was present.
	OnUnauthorized func()
}

// New creates a client for the API rooted at baseURL. Each request is bounded
// by timeout.
func New(baseURL string, tokens *TokenStore, timeout time.Duration) *Client {
	if tokens == nil {
		tokens = NewTokenStore("")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		tokens:  tokens,
		timeout: timeout,
		now:     time.Now,
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to %s: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Get(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if c.tokens.Clear() && c.OnUnauthorized != nil {
			c.OnUnauthorized()
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			StatusCode: resp.StatusCode,
			Message:    parse.ErrorBody(resp.StatusCode, resp.Header.Get("Content-Type"), raw),
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if parse.LooksLikeHTML(resp.Header.Get("Content-Type"), raw) {
		return &Error{StatusCode: resp.StatusCode, Message: parse.HTMLBodyMessage}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to %s: decode response: %w", op, err)
	}
	return nil
}

// Dispatch issues a command. A delivery failure comes back as an *Error with
// status 502; the command row still exists on the server.
func (c *Client) Dispatch(ctx context.Context, deviceID string, payload model.CommandPayload) (*model.Command, error) {
	var cmd model.Command
	if err := c.do(ctx, "send command", http.MethodPost, "/api/device/"+url.PathEscape(deviceID)+"/command", payload, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// FetchCommandHistory returns the device's commands, newest first.
func (c *Client) FetchCommandHistory(ctx context.Context, deviceID string) ([]model.Command, error) {
	var commands []model.Command
	if err := c.do(ctx, "load command history", http.MethodGet, "/api/device/"+url.PathEscape(deviceID)+"/commands/history", nil, &commands); err != nil {
		return nil, err
	}
	return commands, nil
}

func (c *Client) FetchDeviceDetails(ctx context.Context, deviceID string) (*model.Device, error) {
	var device model.Device
	if err := c.do(ctx, "load device details", http.MethodGet, "/api/devices/"+url.PathEscape(deviceID)+"/details", nil, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// DeviceQuery filters ListDevices. Zero values are omitted.
type DeviceQuery struct {
	Status  string
	Online  *bool
	GroupID *int64
	Search  string
}

func (q DeviceQuery) values() url.Values {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Online != nil {
		v.Set("online", fmt.Sprint(*q.Online))
	}
	if q.GroupID != nil {
		v.Set("groupId", fmt.Sprint(*q.GroupID))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	return v
}

func (c *Client) ListDevices(ctx context.Context, q DeviceQuery) ([]model.Device, error) {
	path := "/api/devices"
	if enc := q.values().Encode(); enc != "" {
		path += "?" + enc
	}
	var devices []model.Device
	if err := c.do(ctx, "load devices", http.MethodGet, path, nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Settings is the desired brightness/volume; nil fields are left unchanged.
type Settings struct {
	Brightness *int `json:"brightness,omitempty"`
	Volume     *int `json:"volume,omitempty"`
}

func (c *Client) UpdateSettings(ctx context.Context, deviceID string, s Settings) (*model.DeviceSettings, error) {
	var saved model.DeviceSettings
	if err := c.do(ctx, "save settings", http.MethodPost, "/api/devices/"+url.PathEscape(deviceID)+"/settings", s, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// UsageQuery selects the data-usage window. A named Period replaces
// StartDate. Timezone is an IANA name; empty means the local zone.
type UsageQuery struct {
	StartDate string
	EndDate   string
	Period    string
	Timezone  string
}

// DataUsage resolves a named period into an absolute startDate in the
// viewer's zone before asking the API, so "today" means the operator's day.
func (c *Client) DataUsage(ctx context.Context, deviceID string, q UsageQuery) (*telemetry.DataUsage, error) {
	loc := time.Local
	if q.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(q.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", q.Timezone, err)
		}
	}
	startDate := q.StartDate
	if q.Period != "" {
		start, err := telemetry.PeriodStart(q.Period, c.now(), loc)
		if err != nil {
			return nil, err
		}
		startDate = ""
		if start != nil {
			startDate = start.Format(time.RFC3339)
		}
	}

	v := url.Values{}
	for key, val := range map[string]string{"startDate": startDate, "endDate": q.EndDate, "tz": q.Timezone} {
		if val != "" {
			v.Set(key, val)
		}
	}
	path := "/api/devices/" + url.PathEscape(deviceID) + "/data-usage"
	if enc := v.Encode(); enc != "" {
		path += "?" + enc
	}
	var usage telemetry.DataUsage
	if err := c.do(ctx, "load data usage", http.MethodGet, path, nil, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

type scheduleBody struct {
	Schedules []model.PowerSchedule `json:"schedules"`
}

func (c *Client) GetPowerSchedule(ctx context.Context, deviceID string) ([]model.PowerSchedule, error) {
	var body scheduleBody
	if err := c.do(ctx, "load power schedule", http.MethodGet, "/api/devices/"+url.PathEscape(deviceID)+"/power-schedule", nil, &body); err != nil {
		return nil, err
	}
	return body.Schedules, nil
}

// SetPowerSchedule replaces the device's schedule list.
func (c *Client) SetPowerSchedule(ctx context.Context, deviceID string, entries []model.PowerSchedule) ([]model.PowerSchedule, error) {
	if entries == nil {
		entries = []model.PowerSchedule{}
	}
	var body scheduleBody
	if err := c.do(ctx, "save power schedule", http.MethodPost, "/api/devices/"+url.PathEscape(deviceID)+"/power-schedule", scheduleBody{Schedules: entries}, &body); err != nil {
		return nil, err
	}
	return body.Schedules, nil
}

// PublishJobRequest is the body of POST /api/publish-jobs.
type PublishJobRequest struct {
	DeviceID    string `json:"deviceId"`
	DeviceName  string `json:"deviceName,omitempty"`
	ContentType string `json:"contentType"`
	ContentID   string `json:"contentId"`
	ContentName string `json:"contentName,omitempty"`
	TotalBytes  int64  `json:"totalBytes"`
}

func (c *Client) CreatePublishJob(ctx context.Context, req PublishJobRequest) (*model.PublishJob, error) {
	var job model.PublishJob
	if err := c.do(ctx, "create publish job", http.MethodPost, "/api/publish-jobs", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
