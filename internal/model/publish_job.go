package model

import "time"

// PublishJobStatus is the lifecycle of a content delivery.
type PublishJobStatus string

const (
	PublishJobPending    PublishJobStatus = "pending"
	PublishJobInProgress PublishJobStatus = "in_progress"
	PublishJobCompleted  PublishJobStatus = "completed"
	PublishJobFailed     PublishJobStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s PublishJobStatus) Valid() bool {
	switch s {
	case PublishJobPending, PublishJobInProgress, PublishJobCompleted, PublishJobFailed:
		return true
	}
	return false
}

// Terminal reports whether no further progress is accepted.
func (s PublishJobStatus) Terminal() bool {
	return s == PublishJobCompleted || s == PublishJobFailed
}

// PublishJob tracks pushing media, a playlist or a schedule to a device.
type PublishJob struct {
	ID              int64            `gorm:"primaryKey" json:"id"`
	DeviceID        string           `gorm:"size:64;not null;index" json:"deviceId"`
	DeviceName      string           `gorm:"size:256" json:"deviceName"`
	ContentType     string           `gorm:"size:32;not null" json:"contentType"`
	ContentID       string           `gorm:"size:128;not null" json:"contentId"`
	ContentName     string           `gorm:"size:256" json:"contentName"`
	Status          PublishJobStatus `gorm:"size:16;not null;default:pending" json:"status"`
	Progress        int              `gorm:"not null;default:0" json:"progress"`
	TotalBytes      int64            `json:"totalBytes"`
	DownloadedBytes int64            `json:"downloadedBytes"`
	ErrorMessage    *string          `json:"errorMessage"`
	StartedAt       *time.Time       `json:"startedAt"`
	CompletedAt     *time.Time       `json:"completedAt"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`

	Device Device `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
