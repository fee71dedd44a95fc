package model

import "time"

// DeviceGroup is a node in the group tree. Membership is only used for
// filtering and bulk operations.
type DeviceGroup struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	ParentID  *int64    `gorm:"index" json:"parentId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Members []Device `gorm:"many2many:device_group_members;" json:"-"`
}
