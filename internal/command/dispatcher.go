// Package command turns operator intents into persisted, delivered commands.
package command

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"signage-control-backend/internal/gateway"
	"signage-control-backend/internal/model"
	"signage-control-backend/internal/realtime"
	"signage-control-backend/internal/store"
)

// DispatchError means the command row exists but delivery failed. The row
// stays Pending.
type DispatchError struct {
	CommandID  int64
	StatusCode int
	Message    string
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("command %d not delivered (status %d): %s", e.CommandID, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("command %d not delivered: %s", e.CommandID, e.Message)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatcher creates a command row and attempts delivery exactly once.
type Dispatcher struct {
	store   store.Store
	gateway gateway.Gateway
	events  realtime.Publisher
	timeout time.Duration
	now     func() time.Time
}

// NewDispatcher wires the dispatcher. events may be nil.
func NewDispatcher(s store.Store, gw gateway.Gateway, events realtime.Publisher, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		store:   s,
		gateway: gw,
		events:  events,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch validates the intent, appends a Pending command and delivers it.
// Validation and unknown-device failures write nothing. A delivery failure
// returns the Pending command together with a *DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID string, intent Intent) (*model.Command, error) {
	if err := Validate(intent); err != nil {
		dispatchTotal.WithLabelValues(typeLabel(intent.Type), resultRejected).Inc()
		return nil, err
	}
	if _, err := d.store.GetDevice(ctx, deviceID); err != nil {
		dispatchTotal.WithLabelValues(string(intent.Type), resultRejected).Inc()
		return nil, err
	}

	cmd := &model.Command{
		DeviceID:  deviceID,
		Type:      intent.Type,
		Value:     intent.Value,
		CreatedAt: d.now(),
	}
	if len(intent.Extra) > 0 {
		cmd.Extra = intent.Extra
	}
	if err := d.store.CreateCommand(ctx, cmd); err != nil {
		return nil, err
	}
	realtime.Publish(d.events, realtime.Event{Type: realtime.EventCommandCreated, DeviceID: deviceID, CommandID: cmd.ID, Data: cmd})

	deliverCtx, cancel := context.WithTimeout(gateway.WithCommandID(ctx, cmd.ID), d.timeout)
	defer cancel()
	start := time.Now()
	err := d.gateway.Deliver(deliverCtx, deviceID, cmd.Payload())
	deliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		dispatchTotal.WithLabelValues(string(cmd.Type), resultFailed).Inc()
		log.Printf("Failed to deliver command %d (%s) to device %s: %v", cmd.ID, cmd.Type, deviceID, err)
		return cmd, newDispatchError(cmd.ID, err)
	}

	sentAt := d.now()
	if err := d.store.MarkCommandSent(ctx, cmd.ID, sentAt); err != nil {
		// Delivered but not recorded; the row stays Pending until a
		// confirmation arrives.
		return cmd, fmt.Errorf("command %d delivered but could not be marked sent: %w", cmd.ID, err)
	}
	cmd.Sent = true
	cmd.SentAt = &sentAt
	dispatchTotal.WithLabelValues(string(cmd.Type), resultSent).Inc()
	realtime.Publish(d.events, realtime.Event{Type: realtime.EventCommandSent, DeviceID: deviceID, CommandID: cmd.ID, Data: cmd})
	return cmd, nil
}

// typeLabel keeps client supplied type strings out of metric labels.
func typeLabel(t model.CommandType) string {
	if !knownTypes[t] {
		return unknownType
	}
	return string(t)
}

func newDispatchError(id int64, err error) *DispatchError {
	de := &DispatchError{CommandID: id, Message: err.Error(), Err: err}
	var statusErr *gateway.StatusError
	if errors.As(err, &statusErr) {
		de.StatusCode = statusErr.StatusCode
		de.Message = statusErr.Message
	}
	return de
}

// MarkStale flags Sent commands whose confirmation is older than staleAfter.
// A non-positive staleAfter disables the flag.
func MarkStale(commands []model.Command, staleAfter time.Duration, now time.Time) {
	if staleAfter <= 0 {
		return
	}
	for i := range commands {
		c := &commands[i]
		c.Stale = c.State() == model.CommandSent && c.SentAt != nil && now.Sub(*c.SentAt) > staleAfter
	}
}
