package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DeviceStatus is the playback state last reported by a device.
type DeviceStatus string

const (
	DeviceStatusPlaying DeviceStatus = "playing"
	DeviceStatusIdle    DeviceStatus = "idle"
	DeviceStatusOffline DeviceStatus = "offline"
	DeviceStatusError   DeviceStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceStatusPlaying, DeviceStatusIdle, DeviceStatusOffline, DeviceStatusError:
		return true
	}
	return false
}

// Device represents a registered display/player and its last reported telemetry.
type Device struct {
	ID      string `gorm:"primaryKey;size:64" json:"id"`
	Name    string `gorm:"size:256" json:"name"`
	GroupID *int64 `gorm:"index" json:"groupId"`

	Status        DeviceStatus `gorm:"size:16;not null;default:offline" json:"status"`
	IsOnline      bool         `gorm:"not null;default:false" json:"isOnline"`
	LastSeen      *time.Time   `json:"lastSeen"`
	LastHeartbeat *time.Time   `json:"lastHeartbeat"`

	CurrentContentID   *string `gorm:"size:128" json:"currentContentId"`
	CurrentContentName *string `gorm:"size:256" json:"currentContentName"`

	Brightness     int                         `gorm:"not null;default:0" json:"brightness"`
	Volume         int                         `gorm:"not null;default:0" json:"volume"`
	BatteryLevel   *int                        `json:"batteryLevel"`
	SignalStrength *int                        `json:"signalStrength"` // dBm
	FreeStorage    *int64                      `json:"freeStorage"`    // bytes
	Temperature    *float64                    `json:"temperature"`
	Latitude       *float64                    `json:"latitude"`
	Longitude      *float64                    `json:"longitude"`
	Errors         datatypes.JSONSlice[string] `json:"errors"`
	Thumbnail      string                      `gorm:"size:1024" json:"thumbnail"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate assigns a generated id when the caller did not supply one.
func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DeviceStatusOffline
	}
	return nil
}

// DeviceSettings is the last desired brightness/volume an operator saved.
// It is independent of the command log.
type DeviceSettings struct {
	DeviceID   string    `gorm:"primaryKey;size:64" json:"deviceId"`
	Brightness *int      `json:"brightness"`
	Volume     *int      `json:"volume"`
	UpdatedAt  time.Time `json:"updatedAt"`

	Device Device `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
