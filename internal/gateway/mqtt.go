package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"signage-control-backend/internal/model"
	"signage-control-backend/internal/mqtt"
)

// MQTTGateway publishes commands to {prefix}/{deviceId}/command.
type MQTTGateway struct {
	client mqtt.ClientAPI
	prefix string
}

func NewMQTTGateway(client mqtt.ClientAPI, prefix string) *MQTTGateway {
	return &MQTTGateway{client: client, prefix: prefix}
}

// Deliver publishes the payload. A broker acknowledgement counts as delivery.
// The command id, when known, travels in the body as "commandId".
func (g *MQTTGateway) Deliver(ctx context.Context, deviceID string, payload model.CommandPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id, ok := CommandID(ctx); ok {
		extra := make(map[string]any, len(payload.Extra)+1)
		for k, v := range payload.Extra {
			extra[k] = v
		}
		extra["commandId"] = id
		payload.Extra = extra
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal command payload: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- g.client.Publish(mqtt.DeviceTopic(g.prefix, deviceID, mqtt.KindCommand), body)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish to device %s: %w", deviceID, ctx.Err())
	}
}
