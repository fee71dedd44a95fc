package store

import (
	"fmt"
	"time"

	"signage-control-backend/internal/model"
)

// DeviceFilter narrows ListDevices. Zero values mean "no constraint".
type DeviceFilter struct {
	Status  model.DeviceStatus
	Online  *bool
	GroupID *int64
	Search  string
	Limit   int
	Offset  int
}

// SettingsPatch carries the desired values an operator saved.
type SettingsPatch struct {
	Brightness *int `json:"brightness"`
	Volume     *int `json:"volume"`
}

// Validate checks both values are within 0..100.
func (p SettingsPatch) Validate() error {
	if p.Brightness == nil && p.Volume == nil {
		return fmt.Errorf("%w: brightness or volume is required", ErrInvalidSettings)
	}
	if p.Brightness != nil && (*p.Brightness < 0 || *p.Brightness > 100) {
		return fmt.Errorf("%w: brightness must be between 0 and 100", ErrInvalidSettings)
	}
	if p.Volume != nil && (*p.Volume < 0 || *p.Volume > 100) {
		return fmt.Errorf("%w: volume must be between 0 and 100", ErrInvalidSettings)
	}
	return nil
}

// UsageSample is a traffic sample attached to a status report.
type UsageSample struct {
	Downloaded int64 `json:"downloaded"`
	Uploaded   int64 `json:"uploaded"`
}

// StatusReport is what a device sends about itself. Nil fields are left untouched.
type StatusReport struct {
	DeviceID           string              `json:"-"`
	ReportedAt         time.Time           `json:"reportedAt"`
	Heartbeat          bool                `json:"heartbeat"`
	Status             *model.DeviceStatus `json:"status"`
	IsOnline           *bool               `json:"isOnline"`
	CurrentContentID   *string             `json:"currentContentId"`
	CurrentContentName *string             `json:"currentContentName"`
	Brightness         *int                `json:"brightness"`
	Volume             *int                `json:"volume"`
	BatteryLevel       *int                `json:"batteryLevel"`
	SignalStrength     *int                `json:"signalStrength"`
	FreeStorage        *int64              `json:"freeStorage"`
	Temperature        *float64            `json:"temperature"`
	Latitude           *float64            `json:"latitude"`
	Longitude          *float64            `json:"longitude"`
	Errors             []string            `json:"errors"`
	Thumbnail          *string             `json:"thumbnail"`
	Usage              *UsageSample        `json:"usage"`
}

// Validate rejects reports that would break the device invariants.
func (r StatusReport) Validate() error {
	if r.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidReport)
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be reported together", ErrInvalidReport)
	}
	if r.Status != nil && !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidReport, *r.Status)
	}
	if r.Brightness != nil && (*r.Brightness < 0 || *r.Brightness > 100) {
		return fmt.Errorf("%w: brightness out of range", ErrInvalidReport)
	}
	if r.Volume != nil && (*r.Volume < 0 || *r.Volume > 100) {
		return fmt.Errorf("%w: volume out of range", ErrInvalidReport)
	}
	if r.Usage != nil && (r.Usage.Downloaded < 0 || r.Usage.Uploaded < 0) {
		return fmt.Errorf("%w: usage must not be negative", ErrInvalidReport)
	}
	return nil
}

// JobProgress is an out-of-band progress update for a publish job.
type JobProgress struct {
	Status          *model.PublishJobStatus `json:"status"`
	Progress        *int                    `json:"progress"`
	DownloadedBytes *int64                  `json:"downloadedBytes"`
	ErrorMessage    *string                 `json:"errorMessage"`
}

// Validate rejects statuses outside the job lifecycle and out of range counters.
func (p JobProgress) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidJobProgress, *p.Status)
	}
	if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
		return fmt.Errorf("%w: progress must be between 0 and 100", ErrInvalidJobProgress)
	}
	if p.DownloadedBytes != nil && *p.DownloadedBytes < 0 {
		return fmt.Errorf("%w: downloadedBytes must not be negative", ErrInvalidJobProgress)
	}
	return nil
}
