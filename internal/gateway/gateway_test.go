package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signage-control-backend/config"
	"signage-control-backend/internal/model"
	"signage-control-backend/internal/mqtt"
	"signage-control-backend/internal/parse"
)

func intPtr(v int) *int { return &v }

func TestHTTPGateway_Deliver(t *testing.T) {
	var gotPath, gotAuth, gotHeader string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotHeader = r.Header.Get("X-Site")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	gw := NewHTTPGateway(config.GatewayConfig{
		BaseURL: server.URL + "/",
		Token:   "secret",
		Headers: map[string]string{"X-Site": "hq"},
		Timeout: time.Second,
	})

	err := gw.Deliver(context.Background(), "dev-1", model.CommandPayload{Type: model.CommandSetVolume, Value: intPtr(30)})
	require.NoError(t, err)
	assert.Equal(t, "/api/device/dev-1/command", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "hq", gotHeader)
	assert.Equal(t, map[string]any{"type": "SET_VOLUME", "value": float64(30)}, gotBody)
}

func TestHTTPGateway_ExtraFieldsAreFlattened(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
	}))
	defer server.Close()

	gw := NewHTTPGateway(config.GatewayConfig{BaseURL: server.URL})
	err := gw.Deliver(context.Background(), "dev-1", model.CommandPayload{
		Type:  model.CommandPlayContent,
		Extra: map[string]any{"contentId": "playlist-7"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "PLAY_CONTENT", "contentId": "playlist-7"}, gotBody)
}

func TestHTTPGateway_StatusErrors(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantMessage string
	}{
		{"json error", http.StatusNotFound, "application/json", `{"error":"device offline"}`, "device offline"},
		{"html page", http.StatusBadGateway, "text/html", "<html>bad gateway</html>", parse.HTMLBodyMessage},
		{"server error", http.StatusInternalServerError, "", "", "request failed with status 500"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			gw := NewHTTPGateway(config.GatewayConfig{BaseURL: server.URL})
			err := gw.Deliver(context.Background(), "dev-1", model.CommandPayload{Type: model.CommandPing})

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tc.status, statusErr.StatusCode)
			assert.Equal(t, tc.wantMessage, statusErr.Message)
		})
	}
}

func TestHTTPGateway_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	gw := NewHTTPGateway(config.GatewayConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	err := gw.Deliver(context.Background(), "dev-1", model.CommandPayload{Type: model.CommandPing})
	require.Error(t, err)

	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr), "a timeout is a transport error")
}

type fakeMQTT struct {
	mu        sync.Mutex
	published map[string][]byte
	err       error
	block     chan struct{}
}

func (f *fakeMQTT) Subscribe(topic string, cb mqtt.Handler) error { return nil }

func (f *fakeMQTT) Publish(topic string, payload []byte) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.published == nil {
		f.published = map[string][]byte{}
	}
	f.published[topic] = payload
	return nil
}

func (f *fakeMQTT) Close() {}

func TestMQTTGateway_Deliver(t *testing.T) {
	client := &fakeMQTT{}
	gw := NewMQTTGateway(client, "signage/devices")

	err := gw.Deliver(context.Background(), "dev-9", model.CommandPayload{Type: model.CommandSetBrightness, Value: intPtr(80)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"SET_BRIGHTNESS","value":80}`, string(client.published["signage/devices/dev-9/command"]))

	client.err = errors.New("not connected")
	err = gw.Deliver(context.Background(), "dev-9", model.CommandPayload{Type: model.CommandPing})
	assert.EqualError(t, err, "not connected")
}

func TestMQTTGateway_RespectsDeadline(t *testing.T) {
	client := &fakeMQTT{block: make(chan struct{})}
	defer close(client.block)
	gw := NewMQTTGateway(client, "signage/devices")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := gw.Deliver(ctx, "dev-1", model.CommandPayload{Type: model.CommandPing})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	_, err := New(cfg, nil)
	assert.Error(t, err, "http transport needs a base url")

	cfg.Gateway.BaseURL = "http://devices.local"
	gw, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPGateway{}, gw)

	cfg.Gateway.Transport = "mqtt"
	_, err = New(cfg, nil)
	assert.Error(t, err)

	gw, err = New(cfg, &fakeMQTT{})
	require.NoError(t, err)
	assert.IsType(t, &MQTTGateway{}, gw)

	cfg.Gateway.Transport = "carrier-pigeon"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestCommandIDTravelsWithDelivery(t *testing.T) {
	var gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get(CommandIDHeader)
	}))
	defer server.Close()

	ctx := WithCommandID(context.Background(), 42)
	require.NoError(t, NewHTTPGateway(config.GatewayConfig{BaseURL: server.URL}).Deliver(ctx, "dev-1", model.CommandPayload{Type: model.CommandPing}))
	assert.Equal(t, "42", gotID)

	client := &fakeMQTT{}
	require.NoError(t, NewMQTTGateway(client, "signage/devices").Deliver(ctx, "dev-1", model.CommandPayload{Type: model.CommandPing}))
	assert.JSONEq(t, `{"type":"PING","commandId":42}`, string(client.published["signage/devices/dev-1/command"]))

	_, ok := CommandID(context.Background())
	assert.False(t, ok)
}
