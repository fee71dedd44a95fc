// Package reconciler keeps a periodically refreshed snapshot of one device
// and its command history.
package reconciler

import (
	"context"
	"log"
	"sync"
	"time"

	"signage-control-backend/internal/model"
)

const (
	DeviceErrorMessage  = "Failed to load device details"
	HistoryErrorMessage = "Failed to load command history"
)

// Fetcher is the read side of the API client.
type Fetcher interface {
	FetchDeviceDetails(ctx context.Context, deviceID string) (*model.Device, error)
	FetchCommandHistory(ctx context.Context, deviceID string) ([]model.Command, error)
}

// Snapshot is the result of one tick. It is replaced wholesale on every tick;
// a half that failed keeps the previous value and sets its error message.
type Snapshot struct {
	Device     *model.Device
	Commands   []model.Command
	DeviceErr  string
	HistoryErr string
	FetchedAt  time.Time
	Tick       int

	// NewlyExecuted lists commands that became executed since the last
	// successful history fetch.
	NewlyExecuted []model.Command
}

// Reconciler polls on a fixed interval with no backoff.
type Reconciler struct {
	fetcher  Fetcher
	deviceID string
	interval time.Duration
	limit    int

	refresh chan struct{}

	mu          sync.Mutex
	current     *Snapshot
	tick        int
	subscribers []func(Snapshot)
}

// New creates a reconciler for deviceID. limit caps the displayed history.
func New(f Fetcher, deviceID string, interval time.Duration, limit int) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if limit <= 0 {
		limit = 20
	}
	return &Reconciler{
		fetcher:  f,
		deviceID: deviceID,
		interval: interval,
		limit:    limit,
		refresh:  make(chan struct{}, 1),
	}
}

// Subscribe registers fn to receive every new snapshot. fn runs on the
// polling goroutine.
func (r *Reconciler) Subscribe(fn func(Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Current returns the latest snapshot, if any tick has completed.
func (r *Reconciler) Current() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Snapshot{}, false
	}
	return *r.current, true
}

// Refresh asks Run for an extra tick. Requests made while one is pending
// are merged.
func (r *Reconciler) Refresh() {
	select {
	case r.refresh <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	log.Printf("Starting reconciler for device %s every %s", r.deviceID, r.interval)

	r.PollOnce(ctx)

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Reconciler for device %s shutting down.", r.deviceID)
			return
		case <-r.refresh:
			r.PollOnce(ctx)
		case <-timer.C:
			r.PollOnce(ctx)
			timer.Reset(r.interval)
		}
	}
}

// PollOnce fetches both halves concurrently and publishes the snapshot. It
// returns false when ctx was cancelled before the results arrived; such
// results are discarded.
func (r *Reconciler) PollOnce(ctx context.Context) (Snapshot, bool) {
	var (
		wg                    sync.WaitGroup
		device                *model.Device
		commands              []model.Command
		deviceErr, historyErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		device, deviceErr = r.fetcher.FetchDeviceDetails(ctx, r.deviceID)
	}()
	go func() {
		defer wg.Done()
		commands, historyErr = r.fetcher.FetchCommandHistory(ctx, r.deviceID)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		return Snapshot{}, false
	}

	r.mu.Lock()
	r.tick++
	snap := Snapshot{FetchedAt: time.Now().UTC(), Tick: r.tick}
	prev := r.current

	if deviceErr != nil {
		log.Printf("Reconciler tick %d: device %s: %v", r.tick, r.deviceID, deviceErr)
		snap.DeviceErr = DeviceErrorMessage
		if prev != nil {
			snap.Device = prev.Device
		}
	} else {
		snap.Device = device
	}

	if historyErr != nil {
		log.Printf("Reconciler tick %d: history for %s: %v", r.tick, r.deviceID, historyErr)
		snap.HistoryErr = HistoryErrorMessage
		if prev != nil {
			snap.Commands = prev.Commands
		}
	} else {
		if len(commands) > r.limit {
			commands = commands[:r.limit]
		}
		if commands == nil {
			commands = []model.Command{}
		}
		snap.Commands = commands
		if prev != nil {
			snap.NewlyExecuted = newlyExecuted(prev.Commands, commands)
		}
	}

	r.current = &snap
	subscribers := append([]func(Snapshot){}, r.subscribers...)
	r.mu.Unlock()

	for _, fn := range subscribers {
		fn(snap)
	}
	return snap, true
}

// newlyExecuted returns commands executed in next that were known and not
// executed in prev.
func newlyExecuted(prev, next []model.Command) []model.Command {
	pending := make(map[int64]bool, len(prev))
	for _, c := range prev {
		if !c.Executed {
			pending[c.ID] = true
		}
	}
	var out []model.Command
	for _, c := range next {
		if c.Executed && pending[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
