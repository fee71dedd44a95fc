// Package console holds the view model behind the operator's device page.
// A DeviceView belongs to exactly one view and is discarded with it.
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"signage-control-backend/internal/apiclient"
	"signage-control-backend/internal/command"
	"signage-control-backend/internal/model"
	"signage-control-backend/internal/reconciler"
)

// API is the part of the API client the view writes through.
type API interface {
	Dispatch(ctx context.Context, deviceID string, payload model.CommandPayload) (*model.Command, error)
	UpdateSettings(ctx context.Context, deviceID string, s apiclient.Settings) (*model.DeviceSettings, error)
}

// Refresher triggers an out-of-band reconciler tick.
type Refresher interface {
	Refresh()
}

// Field names a slider-backed device setting.
type Field string

const (
	FieldBrightness Field = "brightness"
	FieldVolume     Field = "volume"
)

func (f Field) commandType() model.CommandType {
	if f == FieldVolume {
		return model.CommandSetVolume
	}
	return model.CommandSetBrightness
}

type Options struct {
	RefreshDebounce time.Duration
	OverlayTTL      time.Duration
	RequestTimeout  time.Duration
}

// State is what the view renders.
type State struct {
	Device     *model.Device
	Online     bool
	Status     model.DeviceStatus
	Brightness int
	Volume     int
	Commands   []model.Command
	Errors     []string
	Toast      string
}

type overlay struct {
	value int
	at    time.Time
}

// DeviceView combines the latest snapshot with local edits that the
// snapshot has not caught up with yet.
type DeviceView struct {
	deviceID  string
	api       API
	refresher Refresher
	opts      Options
	now       func() time.Time

	mu           sync.Mutex
	snapshot     reconciler.Snapshot
	overlays     map[Field]overlay
	sliders      map[Field]*Slider
	toast        string
	refreshTimer *time.Timer
	closed       bool
	onChange     func(State)
}

func NewDeviceView(deviceID string, api API, refresher Refresher, opts Options) *DeviceView {
	if opts.RefreshDebounce <= 0 {
		opts.RefreshDebounce = 500 * time.Millisecond
	}
	if opts.OverlayTTL <= 0 {
		opts.OverlayTTL = 30 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	v := &DeviceView{
		deviceID:  deviceID,
		api:       api,
		refresher: refresher,
		opts:      opts,
		now:       time.Now,
		overlays:  map[Field]overlay{},
	}
	v.sliders = map[Field]*Slider{
		FieldBrightness: {view: v, field: FieldBrightness},
		FieldVolume:     {view: v, field: FieldVolume},
	}
	return v
}

// OnChange registers the render callback.
func (v *DeviceView) OnChange(fn func(State)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}

// Slider returns the slider bound to field.
func (v *DeviceView) Slider(field Field) *Slider {
	return v.sliders[field]
}

// Apply swaps in a new snapshot and drops overlays the snapshot confirmed or
// that outlived the overlay TTL.
func (v *DeviceView) Apply(s reconciler.Snapshot) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.snapshot = s
	now := v.now()
	for field, o := range v.overlays {
		if now.Sub(o.at) > v.opts.OverlayTTL {
			delete(v.overlays, field)
			continue
		}
		if s.Device != nil && deviceValue(s.Device, field) == o.value {
			delete(v.overlays, field)
		}
	}
	if n := len(s.NewlyExecuted); n > 0 {
		last := s.NewlyExecuted[n-1]
		v.toast = fmt.Sprintf("%s executed", last.Type)
	}
	v.mu.Unlock()
	v.notify()
}

// State renders the current view. Online status comes from the snapshot as
// reported; nothing local overrides it.
func (v *DeviceView) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *DeviceView) stateLocked() State {
	st := State{
		Device:   v.snapshot.Device,
		Commands: v.snapshot.Commands,
		Toast:    v.toast,
	}
	for _, msg := range []string{v.snapshot.DeviceErr, v.snapshot.HistoryErr} {
		if msg != "" {
			st.Errors = append(st.Errors, msg)
		}
	}
	if d := v.snapshot.Device; d != nil {
		st.Online = d.IsOnline
		st.Status = d.Status
		st.Brightness = d.Brightness
		st.Volume = d.Volume
	}
	if o, ok := v.overlays[FieldBrightness]; ok {
		st.Brightness = o.value
	}
	if o, ok := v.overlays[FieldVolume]; ok {
		st.Volume = o.value
	}
	if value, ok := v.sliders[FieldBrightness].dragValue(); ok {
		st.Brightness = value
	}
	if value, ok := v.sliders[FieldVolume].dragValue(); ok {
		st.Volume = value
	}
	return st
}

// Send validates and dispatches a command. Validation failures never reach
// the network. Every attempted dispatch schedules one debounced refresh.
func (v *DeviceView) Send(ctx context.Context, payload model.CommandPayload) (*model.Command, error) {
	if err := command.Validate(payload); err != nil {
		v.setToast(err.Error())
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, v.opts.RequestTimeout)
	defer cancel()
	cmd, err := v.api.Dispatch(ctx, v.deviceID, payload)
	v.scheduleRefresh()
	if err != nil {
		v.setToast(failureMessage("send command", err))
		return nil, err
	}
	v.setToast(fmt.Sprintf("%s sent", payload.Type))
	return cmd, nil
}

// SaveSettings stores the desired values shown by the sliders.
func (v *DeviceView) SaveSettings(ctx context.Context) error {
	st := v.State()
	ctx, cancel := context.WithTimeout(ctx, v.opts.RequestTimeout)
	defer cancel()
	_, err := v.api.UpdateSettings(ctx, v.deviceID, apiclient.Settings{Brightness: &st.Brightness, Volume: &st.Volume})
	if err != nil {
		v.setToast(failureMessage("save settings", err))
		return err
	}
	v.setToast("Settings saved")
	return nil
}

// Close stops pending timers; later snapshots are ignored.
func (v *DeviceView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if v.refreshTimer != nil {
		v.refreshTimer.Stop()
	}
}

func (v *DeviceView) scheduleRefresh() {
	if v.refresher == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if v.refreshTimer != nil {
		v.refreshTimer.Stop()
	}
	v.refreshTimer = time.AfterFunc(v.opts.RefreshDebounce, v.refresher.Refresh)
}

func (v *DeviceView) setOverlay(field Field, value int) {
	v.mu.Lock()
	v.overlays[field] = overlay{value: value, at: v.now()}
	v.mu.Unlock()
}

func (v *DeviceView) clearOverlay(field Field) {
	v.mu.Lock()
	delete(v.overlays, field)
	v.mu.Unlock()
}

func (v *DeviceView) setToast(msg string) {
	v.mu.Lock()
	v.toast = msg
	v.mu.Unlock()
	v.notify()
}

func (v *DeviceView) notify() {
	v.mu.Lock()
	fn := v.onChange
	st := v.stateLocked()
	v.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// failureMessage shows backend messages verbatim and transport failures as
// "failed to <op>".
func failureMessage(op string, err error) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "failed to " + op
}

func deviceValue(d *model.Device, field Field) int {
	if field == FieldVolume {
		return d.Volume
	}
	return d.Brightness
}
