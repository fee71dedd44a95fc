// Package ingest applies what devices report about themselves: status,
// command confirmations and publish progress.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"signage-control-backend/internal/model"
	"signage-control-backend/internal/mqtt"
	"signage-control-backend/internal/notification"
	"signage-control-backend/internal/realtime"
	"signage-control-backend/internal/store"
)

// Service is shared by the HTTP handlers and the MQTT subscriber.
type Service struct {
	store    store.Store
	events   realtime.Publisher
	notifier notification.Notifier
	now      func() time.Time

	mu      sync.RWMutex
	onUsage []func(deviceID string)
}

// NewService wires the ingest path. events and notifier may be nil.
func NewService(s store.Store, events realtime.Publisher, notifier notification.Notifier) *Service {
	return &Service{
		store:    s,
		events:   events,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OnUsage registers fn to run after a report carrying a usage sample was
// stored, whichever transport delivered it.
func (s *Service) OnUsage(fn func(deviceID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUsage = append(s.onUsage, fn)
}

// ReportStatus applies a status report. Reports older than the stored
// lastSeen are accepted but change nothing.
func (s *Service) ReportStatus(ctx context.Context, report store.StatusReport) (*model.Device, error) {
	if report.ReportedAt.IsZero() {
		report.ReportedAt = s.now()
	}
	device, applied, err := s.store.ApplyStatusReport(ctx, report)
	if err != nil {
		return nil, err
	}
	if applied {
		realtime.Publish(s.events, realtime.Event{Type: realtime.EventDeviceUpdated, DeviceID: device.ID, Data: device})
	}
	if report.Usage != nil {
		s.mu.RLock()
		hooks := s.onUsage
		s.mu.RUnlock()
		for _, fn := range hooks {
			fn(device.ID)
		}
	}
	return device, nil
}

// ConfirmExecuted records a device's execution confirmation. Subscribers are
// notified only on the first confirmation.
func (s *Service) ConfirmExecuted(ctx context.Context, deviceID string, commandID int64, at time.Time) (*model.Command, error) {
	if at.IsZero() {
		at = s.now()
	}
	cmd, transitioned, err := s.store.MarkCommandExecuted(ctx, deviceID, commandID, at)
	if err != nil {
		return nil, err
	}
	if transitioned {
		realtime.Publish(s.events, realtime.Event{Type: realtime.EventCommandExecuted, DeviceID: deviceID, CommandID: cmd.ID, Data: cmd})
		if s.notifier != nil {
			s.notifier.Dispatch(notification.Job{
				Kind:        notification.CommandExecuted,
				DeviceID:    deviceID,
				CommandID:   cmd.ID,
				CommandType: cmd.Type,
			})
		}
	}
	return cmd, nil
}

// ReportJobProgress applies a publish job progress report.
func (s *Service) ReportJobProgress(ctx context.Context, jobID int64, progress store.JobProgress) (*model.PublishJob, error) {
	job, err := s.store.UpdatePublishJob(ctx, jobID, progress)
	if err != nil {
		return nil, err
	}
	realtime.Publish(s.events, realtime.Event{Type: realtime.EventPublishProgress, DeviceID: job.DeviceID, Data: job})
	return job, nil
}

// Ack is the body of a confirmation published on {prefix}/{id}/ack.
type Ack struct {
	CommandID  int64     `json:"commandId"`
	ExecutedAt time.Time `json:"executedAt"`
}

// Subscribe feeds {prefix}/+/status and {prefix}/+/ack into the service.
func (s *Service) Subscribe(ctx context.Context, client mqtt.ClientAPI, prefix string) error {
	handler := func(topic string, payload []byte) {
		if err := s.HandleMessage(ctx, prefix, topic, payload); err != nil {
			log.Printf("Dropping mqtt message on %s: %v", topic, err)
		}
	}
	for _, kind := range []string{mqtt.KindStatus, mqtt.KindAck} {
		if err := client.Subscribe(mqtt.Wildcard(prefix, kind), handler); err != nil {
			return err
		}
	}
	return nil
}

// HandleMessage decodes and applies one inbound MQTT message.
func (s *Service) HandleMessage(ctx context.Context, prefix, topic string, payload []byte) error {
	deviceID, kind, ok := mqtt.SplitDeviceTopic(prefix, topic)
	if !ok {
		return fmt.Errorf("unexpected topic")
	}
	switch kind {
	case mqtt.KindStatus:
		var report store.StatusReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return fmt.Errorf("invalid status report: %w", err)
		}
		report.DeviceID = deviceID
		_, err := s.ReportStatus(ctx, report)
		return err
	case mqtt.KindAck:
		var ack Ack
		if err := json.Unmarshal(payload, &ack); err != nil {
			return fmt.Errorf("invalid ack: %w", err)
		}
		if ack.CommandID <= 0 {
			return fmt.Errorf("ack without commandId")
		}
		_, err := s.ConfirmExecuted(ctx, deviceID, ack.CommandID, ack.ExecutedAt)
		return err
	default:
		return fmt.Errorf("unsupported message kind %q", kind)
	}
}
