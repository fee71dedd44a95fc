package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"signage-control-backend/internal/model"
)

// ReplacePowerSchedules swaps the device's schedule list wholesale.
func (s *gormStore) ReplacePowerSchedules(ctx context.Context, deviceID string, entries []model.PowerSchedule) ([]model.PowerSchedule, error) {
	saved := make([]model.PowerSchedule, 0, len(entries))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.deviceExists(tx, deviceID); err != nil {
			return err
		}
		if err := tx.Where("device_id = ?", deviceID).Delete(&model.PowerSchedule{}).Error; err != nil {
			return fmt.Errorf("failed to clear power schedules for device %s: %w", deviceID, err)
		}
		for _, e := range entries {
			e.ID = 0
			e.DeviceID = deviceID
			if err := tx.Omit("Device").Create(&e).Error; err != nil {
				return fmt.Errorf("failed to save power schedule for device %s: %w", deviceID, err)
			}
			saved = append(saved, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// PowerSchedules lists a device's schedule entries in creation order.
func (s *gormStore) PowerSchedules(ctx context.Context, deviceID string) ([]model.PowerSchedule, error) {
	if err := s.deviceExists(s.db.WithContext(ctx), deviceID); err != nil {
		return nil, err
	}
	var entries []model.PowerSchedule
	if err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load power schedules for device %s: %w", deviceID, err)
	}
	return entries, nil
}

// EnabledPowerSchedules returns every enabled entry across all devices.
func (s *gormStore) EnabledPowerSchedules(ctx context.Context) ([]model.PowerSchedule, error) {
	var entries []model.PowerSchedule
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("device_id ASC").Order("id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load enabled power schedules: %w", err)
	}
	return entries, nil
}
