// Package gateway delivers command payloads to devices.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"signage-control-backend/config"
	"signage-control-backend/internal/model"
	"signage-control-backend/internal/mqtt"
)

// Gateway is the device-facing command channel. Deliver must respect the
// context deadline and must not retry.
type Gateway interface {
	Deliver(ctx context.Context, deviceID string, payload model.CommandPayload) error
}

// CommandIDHeader carries the queue id on HTTP deliveries. The device echoes
// it back when confirming execution.
const CommandIDHeader = "X-Command-Id"

type commandIDKey struct{}

// WithCommandID tags ctx with the id of the command being delivered.
func WithCommandID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, commandIDKey{}, id)
}

// CommandID returns the id set by WithCommandID.
func CommandID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(commandIDKey{}).(int64)
	return id, ok
}

// StatusError is a non-2xx answer from the device channel.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device gateway returned %d: %s", e.StatusCode, e.Message)
}

// New picks the transport configured in cfg.Gateway. client is only used for
// the mqtt transport.
func New(cfg *config.Config, client mqtt.ClientAPI) (Gateway, error) {
	switch strings.ToLower(cfg.Gateway.Transport) {
	case "", "http":
		if cfg.Gateway.BaseURL == "" {
			return nil, fmt.Errorf("gateway.base_url is required for the http transport")
		}
		return NewHTTPGateway(cfg.Gateway), nil
	case "mqtt":
		if client == nil {
			return nil, fmt.Errorf("mqtt transport selected but mqtt is not enabled")
		}
		return NewMQTTGateway(client, cfg.MQTT.TopicPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported gateway transport %q", cfg.Gateway.Transport)
	}
}
