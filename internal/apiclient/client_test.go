package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signage-control-backend/internal/model"
	"signage-control-backend/internal/parse"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatchSendsBearerAndPayload(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/device/dev-1/command", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"type":"SET_BRIGHTNESS","value":70}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7,"deviceId":"dev-1","sent":true,"executed":false,"createdAt":"2026-01-01T00:00:00Z","payload":{"type":"SET_BRIGHTNESS","value":70},"state":"sent"}`))
	})

	c := New(srv.URL, NewTokenStore("tok"), time.Second)
	value := 70
	cmd, err := c.Dispatch(context.Background(), "dev-1", model.CommandPayload{Type: model.CommandSetBrightness, Value: &value})
	require.NoError(t, err)
	assert.Equal(t, int64(7), cmd.ID)
	assert.Equal(t, model.CommandSetBrightness, cmd.Type)
	require.NotNil(t, cmd.Value)
	assert.Equal(t, 70, *cmd.Value)
	assert.Equal(t, model.CommandSent, cmd.State())
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        string
	}{
		{"json error field", http.StatusBadGateway, "application/json", `{"error":"device unreachable"}`, "device unreachable"},
		{"json message field", http.StatusBadRequest, "application/json", `{"message":"bad value"}`, "bad value"},
		{"html page", http.StatusNotFound, "text/html", `<html><body>nginx</body></html>`, parse.HTMLBodyMessage},
		{"html without content type", http.StatusInternalServerError, "", "  <!DOCTYPE html><html></html>", parse.HTMLBodyMessage},
		{"empty body", http.StatusInternalServerError, "", "", "request failed with status 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := New(srv.URL, nil, time.Second).FetchDeviceDetails(context.Background(), "dev-1")
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr), "got %v", err)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.want, apiErr.Message)
		})
	}
}

func TestHTMLSuccessBodyIsRejected(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html>index</html>`))
	})

	_, err := New(srv.URL, nil, time.Second).FetchCommandHistory(context.Background(), "dev-1")
	require.Error(t, err)
	assert.Equal(t, parse.HTMLBodyMessage, err.Error())
}

func statusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func TestUnauthorized(t *testing.T) {
	status := http.StatusUnauthorized
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	})

	t.Run("clears token and fires once", func(t *testing.T) {
		tokens := NewTokenStore("tok")
		c := New(srv.URL, tokens, time.Second)
		calls := 0
		c.OnUnauthorized = func() { calls++ }

		_, err := c.FetchDeviceDetails(context.Background(), "dev-1")
		assert.Equal(t, http.StatusUnauthorized, statusOf(err))
		assert.Empty(t, tokens.Get())
		assert.Equal(t, 1, calls)

		_, err = c.FetchDeviceDetails(context.Background(), "dev-1")
		assert.Equal(t, http.StatusUnauthorized, statusOf(err))
		assert.Equal(t, 1, calls, "no redirect without a token")
	})

	t.Run("forbidden behaves the same", func(t *testing.T) {
		status = http.StatusForbidden
		defer func() { status = http.StatusUnauthorized }()
		c := New(srv.URL, NewTokenStore("tok"), time.Second)
		calls := 0
		c.OnUnauthorized = func() { calls++ }
		_, _ = c.ListDevices(context.Background(), DeviceQuery{})
		assert.Equal(t, 1, calls)
	})

	t.Run("server errors keep the session", func(t *testing.T) {
		status = http.StatusInternalServerError
		defer func() { status = http.StatusUnauthorized }()
		tokens := NewTokenStore("tok")
		c := New(srv.URL, tokens, time.Second)
		c.OnUnauthorized = func() { t.Fatal("5xx must not log out") }
		_, err := c.ListDevices(context.Background(), DeviceQuery{})
		assert.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, statusOf(err))
		assert.Equal(t, "tok", tokens.Get())
	})
}

func TestTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := New(srv.URL, nil, 50*time.Millisecond).FetchCommandHistory(context.Background(), "dev-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load command history")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestQueriesAndBodies(t *testing.T) {
	var lastQuery string
	var lastBody map[string]any
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		lastQuery = r.URL.RawQuery
		lastBody = nil
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&lastBody)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/devices":
			_, _ = w.Write([]byte(`[{"id":"dev-1","name":"Lobby","isOnline":true}]`))
		case "/api/devices/dev-1/data-usage":
			_, _ = w.Write([]byte(`{"totalDownloaded":300,"totalUploaded":50,"total":350,"recordCount":2,"dailyBreakdown":[]}`))
		case "/api/devices/dev-1/power-schedule":
			_, _ = w.Write([]byte(`{"schedules":[{"id":1,"deviceId":"dev-1","daysOfWeek":[1],"powerOnTime":"07:00","powerOffTime":"22:00","enabled":true}]}`))
		case "/api/devices/dev-1/settings":
			_, _ = w.Write([]byte(`{"deviceId":"dev-1","brightness":40,"volume":null}`))
		case "/api/publish-jobs":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":3,"deviceId":"dev-1","status":"pending"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := New(srv.URL, nil, time.Second)
	ctx := context.Background()

	online := true
	devices, err := c.ListDevices(ctx, DeviceQuery{Online: &online, Search: "lob"})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "online=true&search=lob", lastQuery)

	usage, err := c.DataUsage(ctx, "dev-1", UsageQuery{Period: "all"})
	require.NoError(t, err)
	assert.Equal(t, int64(350), usage.Total)
	assert.Empty(t, lastQuery, "all has no lower bound")

	entries, err := c.SetPowerSchedule(ctx, "dev-1", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"schedules": []any{}}, lastBody)
	require.Len(t, entries, 1)
	assert.Equal(t, "07:00", entries[0].PowerOnTime)

	brightness := 40
	settings, err := c.UpdateSettings(ctx, "dev-1", Settings{Brightness: &brightness})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"brightness": float64(40)}, lastBody)
	assert.Nil(t, settings.Volume)

	job, err := c.CreatePublishJob(ctx, PublishJobRequest{DeviceID: "dev-1", ContentType: "media", ContentID: "m-1", TotalBytes: 10})
	require.NoError(t, err)
	assert.Equal(t, model.PublishJobPending, job.Status)
}

func TestDataUsageResolvesPeriod(t *testing.T) {
	var query url.Values
	requests := 0
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"totalDownloaded":0,"totalUploaded":0,"total":0,"recordCount":0,"dailyBreakdown":[]}`))
	})
	c := New(srv.URL, nil, time.Second)
	// 23:30 UTC is already the next day in Berlin.
	c.now = func() time.Time { return time.Date(2026, 5, 10, 23, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	_, err := c.DataUsage(ctx, "dev-1", UsageQuery{Period: "today", Timezone: "Europe/Berlin"})
	require.NoError(t, err)
	assert.Equal(t, "2026-05-11T00:00:00+02:00", query.Get("startDate"))
	assert.Equal(t, "Europe/Berlin", query.Get("tz"))
	assert.Empty(t, query.Get("period"), "the period is resolved before the request")

	_, err = c.DataUsage(ctx, "dev-1", UsageQuery{Period: "week", Timezone: "UTC", EndDate: "2026-05-10"})
	require.NoError(t, err)
	assert.Equal(t, "2026-05-04T00:00:00Z", query.Get("startDate"))
	assert.Equal(t, "2026-05-10", query.Get("endDate"))

	_, err = c.DataUsage(ctx, "dev-1", UsageQuery{Period: "decade"})
	assert.Error(t, err)
	_, err = c.DataUsage(ctx, "dev-1", UsageQuery{Period: "today", Timezone: "Mars/Base"})
	assert.Error(t, err)
	assert.Equal(t, 2, requests, "invalid queries send nothing")
}
