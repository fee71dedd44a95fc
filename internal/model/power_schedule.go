package model

import (
	"time"

	"gorm.io/datatypes"
)

// PowerSchedule is one on/off window for a set of weekdays (0 = Sunday).
// Overlapping entries are allowed.
type PowerSchedule struct {
	ID           int64                    `gorm:"primaryKey" json:"id"`
	DeviceID     string                   `gorm:"size:64;not null;index" json:"deviceId"`
	DaysOfWeek   datatypes.JSONSlice[int] `json:"daysOfWeek"`
	PowerOnTime  string                   `gorm:"size:5;not null" json:"powerOnTime"`
	PowerOffTime string                   `gorm:"size:5;not null" json:"powerOffTime"`
	Enabled      bool                     `gorm:"not null;default:true" json:"enabled"`
	CreatedAt    time.Time                `json:"createdAt"`

	Device Device `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Covers reports whether the entry applies on the given weekday.
func (p PowerSchedule) Covers(day time.Weekday) bool {
	for _, d := range p.DaysOfWeek {
		if d == int(day) {
			return true
		}
	}
	return false
}
