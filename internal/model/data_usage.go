package model

import "time"

// DataUsageRecord is one raw traffic sample reported by a device.
type DataUsageRecord struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	DeviceID   string    `gorm:"size:64;not null;index:idx_usage_device_recorded,priority:1" json:"deviceId"`
	RecordedAt time.Time `gorm:"not null;index:idx_usage_device_recorded,priority:2" json:"recordedAt"`
	Downloaded int64     `gorm:"not null" json:"downloaded"`
	Uploaded   int64     `gorm:"not null" json:"uploaded"`

	Device Device `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
