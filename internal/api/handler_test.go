package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"signage-control-backend/config"
	"signage-control-backend/internal/command"
	"signage-control-backend/internal/db"
	"signage-control-backend/internal/gateway"
	"signage-control-backend/internal/ingest"
	"signage-control-backend/internal/model"
	"signage-control-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGateway struct {
	mu        sync.Mutex
	err       error
	delivered []model.CommandPayload
}

func (g *fakeGateway) Deliver(_ context.Context, _ string, p model.CommandPayload) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.delivered = append(g.delivered, p)
	return nil
}

type testEnv struct {
	t      *testing.T
	store  store.Store
	gw     *fakeGateway
	ingest *ingest.Service
	router *gin.Engine
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB))

	s := store.NewGormStore(gormDB)
	require.NoError(t, s.RegisterDevice(context.Background(), &model.Device{ID: "dev-1", Name: "Lobby"}))

	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	if mutate != nil {
		mutate(cfg)
	}
	cfg.ApplyDefaults()

	gw := &fakeGateway{}
	ingestSvc := ingest.NewService(s, nil, nil)
	router := NewRouter(Deps{
		Store:      s,
		Dispatcher: command.NewDispatcher(s, gw, nil, time.Second),
		Ingest:     ingestSvc,
		Config:     cfg,
	})
	return &testEnv{t: t, store: s, gw: gw, ingest: ingestSvc, router: router}
}

func (e *testEnv) request(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	return e.request(method, path, body, nil)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestDispatchCommand(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/device/dev-1/command", `{"type":"SET_BRIGHTNESS","value":70}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var cmd map[string]any
	decode(t, w, &cmd)
	assert.Equal(t, "sent", cmd["state"])
	assert.Equal(t, true, cmd["sent"])
	assert.Equal(t, map[string]any{"type": "SET_BRIGHTNESS", "value": float64(70)}, cmd["payload"])
	require.Len(t, env.gw.delivered, 1)

	t.Run("validation failure writes nothing", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/device/dev-1/command", `{"type":"SET_VOLUME","value":150}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		history, err := env.store.CommandHistory(context.Background(), "dev-1", 10)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("unknown device", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/device/ghost/command", `{"type":"PING"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/device/dev-1/command", `{"type":"SET_VOLUME","value":1.5}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("gateway failure keeps the pending command", func(t *testing.T) {
		env.gw.err = &gateway.StatusError{StatusCode: http.StatusServiceUnavailable, Message: "device unreachable"}
		defer func() { env.gw.err = nil }()

		w := env.do(http.MethodPost, "/api/device/dev-1/command", `{"type":"REBOOT"}`)
		require.Equal(t, http.StatusBadGateway, w.Code)
		var body map[string]any
		decode(t, w, &body)
		assert.Equal(t, "device unreachable", body["error"])
		assert.Equal(t, float64(http.StatusServiceUnavailable), body["statusCode"])
		assert.NotZero(t, body["commandId"])

		history, err := env.store.CommandHistory(context.Background(), "dev-1", 10)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, model.CommandPending, history[0].State())
	})
}

func TestCommandHistory(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Commands.HistoryLimit = 2
		cfg.Commands.StaleAfterSeconds = 60
	})
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		cmd := &model.Command{DeviceID: "dev-1", Type: model.CommandPing, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, env.store.CreateCommand(ctx, cmd))
		require.NoError(t, env.store.MarkCommandSent(ctx, cmd.ID, cmd.CreatedAt))
	}

	w := env.do(http.MethodGet, "/api/device/dev-1/commands/history?limit=50", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history []map[string]any
	decode(t, w, &history)
	require.Len(t, history, 2, "limit is capped by configuration")
	assert.Equal(t, true, history[0]["stale"])
	first, _ := time.Parse(time.RFC3339Nano, history[0]["createdAt"].(string))
	second, _ := time.Parse(time.RFC3339Nano, history[1]["createdAt"].(string))
	assert.True(t, first.After(second), "newest first")

	w = env.do(http.MethodGet, "/api/device/ghost/commands/history", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/device/dev-1/commands/history?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmExecuted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	early := &model.Command{DeviceID: "dev-1", Type: model.CommandPing}
	require.NoError(t, env.store.CreateCommand(ctx, early))
	w := env.do(http.MethodPost, fmt.Sprintf("/api/device/dev-1/commands/%d/executed", early.ID), "")
	require.Equal(t, http.StatusOK, w.Code, "a confirmation also proves delivery")
	var earlyCmd map[string]any
	decode(t, w, &earlyCmd)
	assert.Equal(t, "executed", earlyCmd["state"])
	assert.Equal(t, true, earlyCmd["sent"])

	pending := &model.Command{DeviceID: "dev-1", Type: model.CommandReboot}
	require.NoError(t, env.store.CreateCommand(ctx, pending))
	require.NoError(t, env.store.MarkCommandSent(ctx, pending.ID, time.Now()))
	w = env.do(http.MethodPost, fmt.Sprintf("/api/device/dev-1/commands/%d/executed", pending.ID), `{"executedAt":"2026-01-02T03:04:05Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cmd map[string]any
	decode(t, w, &cmd)
	assert.Equal(t, "executed", cmd["state"])
	assert.Equal(t, "2026-01-02T03:04:05Z", cmd["executedAt"])

	w = env.do(http.MethodPost, fmt.Sprintf("/api/device/dev-1/commands/%d/executed", pending.ID), "")
	assert.Equal(t, http.StatusOK, w.Code, "repeated confirmations are accepted")

	w = env.do(http.MethodPost, "/api/device/dev-1/commands/999/executed", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/device/dev-1/commands/abc/executed", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeviceTokenGuardsIngest(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Auth.DeviceToken = "device-secret"
	})

	w := env.do(http.MethodPost, "/api/device/dev-1/status", `{"status":"idle"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.request(http.MethodPost, "/api/device/dev-1/status", `{"status":"idle"}`, map[string]string{"X-Device-Token": "device-secret"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestReportStatusAndDetails(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/device/dev-1/status", `{"status":"playing","brightness":80,"latitude":1.5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "coordinates are reported together")

	w = env.do(http.MethodPost, "/api/device/dev-1/status", `{"status":"playing","brightness":80,"currentContentName":"Menu"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/devices/dev-1/details", "")
	require.Equal(t, http.StatusOK, w.Code)
	var device model.Device
	decode(t, w, &device)
	assert.Equal(t, model.DeviceStatusPlaying, device.Status)
	assert.True(t, device.IsOnline)
	assert.Equal(t, 80, device.Brightness)
	require.NotNil(t, device.CurrentContentName)
	assert.Equal(t, "Menu", *device.CurrentContentName)

	w = env.do(http.MethodGet, "/api/devices/ghost/details", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDevicesRegistry(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/devices", `{"name":"Entrance"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Device
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.DeviceStatusOffline, created.Status)

	w = env.do(http.MethodPost, "/api/devices", `{"id":"dev-1","name":"Again"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodGet, "/api/devices?search=entr", "")
	require.Equal(t, http.StatusOK, w.Code)
	var devices []model.Device
	decode(t, w, &devices)
	require.Len(t, devices, 1)
	assert.Equal(t, created.ID, devices[0].ID)

	w = env.do(http.MethodGet, "/api/devices?status=broken", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/api/devices/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodDelete, "/api/devices/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/devices/dev-1/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deviceId":"dev-1","brightness":null,"volume":null,"updatedAt":"0001-01-01T00:00:00Z"}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/devices/dev-1/settings", `{"brightness":40}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.do(http.MethodPost, "/api/devices/dev-1/settings", `{"volume":10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var settings model.DeviceSettings
	decode(t, w, &settings)
	require.NotNil(t, settings.Brightness)
	require.NotNil(t, settings.Volume)
	assert.Equal(t, 40, *settings.Brightness, "omitted fields are kept")
	assert.Equal(t, 10, *settings.Volume)

	w = env.do(http.MethodPost, "/api/devices/dev-1/settings", `{"volume":101}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPowerSchedule(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/devices/dev-1/power-schedule", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"schedules":[]}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/devices/dev-1/power-schedule", `{"schedules":[{"daysOfWeek":[5,1,1],"powerOnTime":"7:00","powerOffTime":"22:30"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/devices/dev-1/power-schedule", "")
	var resp struct {
		Schedules []model.PowerSchedule `json:"schedules"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Schedules, 1)
	assert.Equal(t, "07:00", resp.Schedules[0].PowerOnTime)
	assert.Equal(t, []int{1, 5}, []int(resp.Schedules[0].DaysOfWeek))
	assert.True(t, resp.Schedules[0].Enabled)

	w = env.do(http.MethodPost, "/api/devices/dev-1/power-schedule", `{"schedules":[{"daysOfWeek":[9],"powerOnTime":"07:00","powerOffTime":"22:00"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(http.MethodPost, "/api/devices/dev-1/power-schedule", `{"schedules":[{"daysOfWeek":[1],"powerOnTime":"25:00","powerOffTime":"22:00"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(http.MethodPost, "/api/devices/dev-1/power-schedule", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(http.MethodPost, "/api/devices/ghost/power-schedule", `{"schedules":[]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDataUsage(t *testing.T) {
	env := newTestEnv(t, nil)

	for i := 0; i < 2; i++ {
		w := env.do(http.MethodPost, "/api/device/dev-1/status", `{"usage":{"downloaded":100,"uploaded":50}}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := env.do(http.MethodGet, "/api/devices/dev-1/data-usage?period=week", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	var usage struct {
		TotalDownloaded int64 `json:"totalDownloaded"`
		TotalUploaded   int64 `json:"totalUploaded"`
		Total           int64 `json:"total"`
		RecordCount     int   `json:"recordCount"`
		DailyBreakdown  []struct {
			Downloaded int64 `json:"downloaded"`
			Uploaded   int64 `json:"uploaded"`
		} `json:"dailyBreakdown"`
	}
	decode(t, w, &usage)
	assert.Equal(t, int64(200), usage.TotalDownloaded)
	assert.Equal(t, int64(100), usage.TotalUploaded)
	assert.Equal(t, int64(300), usage.Total)
	assert.Equal(t, 2, usage.RecordCount)
	var sumDown int64
	for _, d := range usage.DailyBreakdown {
		sumDown += d.Downloaded
	}
	assert.Equal(t, usage.TotalDownloaded, sumDown)

	w = env.do(http.MethodGet, "/api/devices/dev-1/data-usage?period=week", "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = env.do(http.MethodPost, "/api/device/dev-1/status", `{"usage":{"downloaded":1,"uploaded":1}}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, "/api/devices/dev-1/data-usage?period=week", "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"), "new samples invalidate cached rollups")

	w = env.do(http.MethodGet, "/api/devices/dev-1/data-usage?period=week", "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	require.NoError(t, env.ingest.HandleMessage(context.Background(), "signage/devices", "signage/devices/dev-1/status", []byte(`{"usage":{"downloaded":5,"uploaded":5}}`)))
	w = env.do(http.MethodGet, "/api/devices/dev-1/data-usage?period=week", "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"), "samples arriving over mqtt invalidate too")

	for _, path := range []string{
		"/api/devices/dev-1/data-usage?period=decade",
		"/api/devices/dev-1/data-usage?tz=Mars/Base",
		"/api/devices/dev-1/data-usage?startDate=2026-02-01&endDate=2026-01-01",
	} {
		w = env.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	w = env.do(http.MethodGet, "/api/devices/dev-1/data-usage?startDate=2000-01-01&endDate=2000-01-02", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"totalDownloaded":0,"totalUploaded":0,"total":0,"recordCount":0,"dailyBreakdown":[]}`, w.Body.String())
}

func TestPublishJobs(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/publish-jobs", `{"deviceId":"dev-1","contentType":"playlist","contentId":"pl-1","contentName":"Morning","totalBytes":1000}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var job model.PublishJob
	decode(t, w, &job)
	assert.Equal(t, model.PublishJobPending, job.Status)
	assert.Equal(t, "Lobby", job.DeviceName)

	w = env.do(http.MethodPost, "/api/publish-jobs", `{"deviceId":"dev-1","contentType":"video","contentId":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, fmt.Sprintf("/api/publish-jobs/%d/progress", job.ID), `{"downloadedBytes":500}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &job)
	assert.Equal(t, model.PublishJobInProgress, job.Status)
	assert.Equal(t, 50, job.Progress)

	w = env.do(http.MethodPost, fmt.Sprintf("/api/publish-jobs/%d/progress", job.ID), `{"status":"done"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "statuses outside the job lifecycle are rejected")

	w = env.do(http.MethodPost, fmt.Sprintf("/api/publish-jobs/%d/progress", job.ID), `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.do(http.MethodPost, fmt.Sprintf("/api/publish-jobs/%d/progress", job.ID), `{"progress":10}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodGet, "/api/publish-jobs?deviceId=dev-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var jobs []model.PublishJob
	decode(t, w, &jobs)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.PublishJobCompleted, jobs[0].Status)
}

func TestGroups(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/groups", `{"name":"Stores"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var group model.DeviceGroup
	decode(t, w, &group)

	w = env.do(http.MethodPost, "/api/groups", fmt.Sprintf(`{"name":"North","parentId":%d}`, group.ID))
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(http.MethodPost, "/api/groups", `{"name":"Orphan","parentId":999}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPut, fmt.Sprintf("/api/groups/%d/members", group.ID), `{"deviceIds":["dev-1"]}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodPut, fmt.Sprintf("/api/groups/%d/members", group.ID), `{"deviceIds":["ghost"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, fmt.Sprintf("/api/devices?groupId=%d", group.ID), "")
	var devices []model.Device
	decode(t, w, &devices)
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-1", devices[0].ID)

	w = env.do(http.MethodGet, "/api/groups", "")
	var groups []model.DeviceGroup
	decode(t, w, &groups)
	assert.Len(t, groups, 2)
}

func TestBearerAuthOnOperatorRoutes(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.JWTSecret = "secret"
	})

	w := env.do(http.MethodGet, "/api/devices", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRespondErrorFallback(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	respondError(c, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}
