// Package presence flips silent devices offline.
package presence

import (
	"context"
	"log"
	"time"

	"signage-control-backend/config"
	"signage-control-backend/internal/notification"
	"signage-control-backend/internal/realtime"
	"signage-control-backend/internal/store"
)

// Sweeper periodically marks devices offline when they have not reported
// within the configured window.
type Sweeper struct {
	store        store.Store
	offlineAfter time.Duration
	interval     time.Duration
	events       realtime.Publisher
	notifier     notification.Notifier
	now          func() time.Time
}

// NewSweeper builds a sweeper. events and notifier may be nil.
func NewSweeper(cfg config.PresenceConfig, s store.Store, events realtime.Publisher, notifier notification.Notifier) *Sweeper {
	return &Sweeper{
		store:        s,
		offlineAfter: cfg.OfflineAfter,
		interval:     cfg.SweepInterval,
		events:       events,
		notifier:     notifier,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps until ctx is cancelled. A non-positive offline window disables it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.offlineAfter <= 0 {
		log.Println("Presence sweeper is disabled. Not starting.")
		return
	}
	if s.interval <= 0 {
		s.interval = 30 * time.Second
	}
	log.Printf("Starting presence sweeper (offline after %s)...", s.offlineAfter)

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Presence sweeper shutting down.")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// SweepOnce performs a single pass and returns the ids flipped offline.
func (s *Sweeper) SweepOnce(ctx context.Context) []string {
	cutoff := s.now().Add(-s.offlineAfter)
	ids, err := s.store.MarkStaleDevicesOffline(ctx, cutoff)
	if err != nil {
		log.Printf("Error sweeping stale devices: %v", err)
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	log.Printf("Marked %d devices offline", len(ids))
	for _, id := range ids {
		realtime.Publish(s.events, realtime.Event{Type: realtime.EventDeviceOffline, DeviceID: id})
		if s.notifier != nil {
			s.notifier.Dispatch(notification.Job{Kind: notification.DeviceOffline, DeviceID: id})
		}
	}
	return ids
}
