// Package schedule turns power schedule entries into SCREEN_ON/SCREEN_OFF
// commands.
package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"signage-control-backend/internal/command"
	"signage-control-backend/internal/model"
	"signage-control-backend/internal/parse"
	"signage-control-backend/internal/store"
)

// Dispatcher is the part of command.Dispatcher the runner needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, deviceID string, intent command.Intent) (*model.Command, error)
}

// Runner evaluates enabled entries once a minute.
type Runner struct {
	store      store.Store
	dispatcher Dispatcher
	loc        *time.Location
	cron       *cron.Cron
}

// NewRunner builds a runner that evaluates schedules in the given timezone.
func NewRunner(s store.Store, d Dispatcher, timezone string) (*Runner, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	return &Runner{
		store:      s,
		dispatcher: d,
		loc:        loc,
		cron:       cron.New(cron.WithLocation(loc)),
	}, nil
}

// Run starts the cron loop and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if _, err := r.cron.AddFunc("* * * * *", func() {
		r.Tick(ctx, time.Now())
	}); err != nil {
		return fmt.Errorf("failed to register schedule tick: %w", err)
	}
	log.Printf("Starting power schedule runner in %s...", r.loc)
	r.cron.Start()
	<-ctx.Done()
	stopped := r.cron.Stop()
	<-stopped.Done()
	log.Println("Power schedule runner shutting down.")
	return nil
}

// Action is one command due at a given minute.
type Action struct {
	DeviceID string
	Command  model.CommandType
}

// Tick dispatches every action due at now (minute resolution) and returns
// the ones that were delivered.
func (r *Runner) Tick(ctx context.Context, now time.Time) []Action {
	entries, err := r.store.EnabledPowerSchedules(ctx)
	if err != nil {
		log.Printf("Error loading power schedules: %v", err)
		return nil
	}

	due := DueActions(entries, now.In(r.loc))
	fired := make([]Action, 0, len(due))
	for _, a := range due {
		if _, err := r.dispatcher.Dispatch(ctx, a.DeviceID, command.Intent{Type: a.Command}); err != nil {
			log.Printf("Scheduled %s for device %s failed: %v", a.Command, a.DeviceID, err)
			continue
		}
		fired = append(fired, a)
	}
	return fired
}

// DueActions lists the commands due at local. Overlapping entries produce a
// single command per device and type. An off time earlier than the on time
// belongs to the following day.
func DueActions(entries []model.PowerSchedule, local time.Time) []Action {
	minute := local.Hour()*60 + local.Minute()
	today := local.Weekday()
	yesterday := (today + 6) % 7

	seen := make(map[Action]bool)
	var out []Action
	add := func(a Action) {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}

	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		on, err := parse.ParseClock(e.PowerOnTime)
		if err != nil {
			log.Printf("Skipping power schedule %d: %v", e.ID, err)
			continue
		}
		off, err := parse.ParseClock(e.PowerOffTime)
		if err != nil {
			log.Printf("Skipping power schedule %d: %v", e.ID, err)
			continue
		}

		if e.Covers(today) && on.Minutes() == minute {
			add(Action{DeviceID: e.DeviceID, Command: model.CommandScreenOn})
		}
		offDay := today
		if off.Minutes() < on.Minutes() {
			offDay = yesterday
		}
		if e.Covers(offDay) && off.Minutes() == minute {
			add(Action{DeviceID: e.DeviceID, Command: model.CommandScreenOff})
		}
	}
	return out
}

// Normalize validates entries and rewrites days and times into canonical form.
func Normalize(entries []model.PowerSchedule) ([]model.PowerSchedule, error) {
	out := make([]model.PowerSchedule, 0, len(entries))
	for i, e := range entries {
		days, err := parse.ParseDays(e.DaysOfWeek)
		if err != nil {
			return nil, fmt.Errorf("schedule %d: %w", i, err)
		}
		on, err := parse.ParseClock(e.PowerOnTime)
		if err != nil {
			return nil, fmt.Errorf("schedule %d: powerOnTime: %w", i, err)
		}
		off, err := parse.ParseClock(e.PowerOffTime)
		if err != nil {
			return nil, fmt.Errorf("schedule %d: powerOffTime: %w", i, err)
		}
		if on == off {
			return nil, fmt.Errorf("schedule %d: powerOnTime and powerOffTime must differ", i)
		}
		e.DaysOfWeek = days
		e.PowerOnTime = on.String()
		e.PowerOffTime = off.String()
		out = append(out, e)
	}
	return out, nil
}
