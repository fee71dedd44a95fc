package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signage-control-backend/internal/model"
)

// RegisterDevice stores a newly paired device. An empty ID is generated.
func (s *gormStore) RegisterDevice(ctx context.Context, device *model.Device) error {
	if device.ID != "" {
		if err := s.deviceExists(s.db.WithContext(ctx), device.ID); err == nil {
			return ErrDuplicateDevice
		} else if !errors.Is(err, ErrDeviceNotFound) {
			return err
		}
	}
	if device.Errors == nil {
		device.Errors = []string{}
	}
	if !device.IsOnline && device.Status != model.DeviceStatusError {
		device.Status = model.DeviceStatusOffline
	}
	if err := s.db.WithContext(ctx).Create(device).Error; err != nil {
		return fmt.Errorf("failed to register device %s: %w", device.ID, err)
	}
	return nil
}

// GetDevice loads a single device.
func (s *gormStore) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	var device model.Device
	err := s.db.WithContext(ctx).First(&device, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device %s: %w", id, err)
	}
	return &device, nil
}

// ListDevices returns devices matching the filter ordered by name.
func (s *gormStore) ListDevices(ctx context.Context, filter DeviceFilter) ([]model.Device, error) {
	q := s.db.WithContext(ctx).Model(&model.Device{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Online != nil {
		q = q.Where("is_online = ?", *filter.Online)
	}
	if filter.GroupID != nil {
		members := s.db.Table("device_group_members").Select("device_id").Where("device_group_id = ?", *filter.GroupID)
		q = q.Where("group_id = ? OR id IN (?)", *filter.GroupID, members)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(id) LIKE ?", like, like)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var devices []model.Device
	if err := q.Order("name ASC").Order("id ASC").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// DeleteDevice removes a device and everything that references it.
func (s *gormStore) DeleteDevice(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.deviceExists(tx, id); err != nil {
			return err
		}
		dependents := []any{
			&model.Command{},
			&model.PublishJob{},
			&model.PowerSchedule{},
			&model.DataUsageRecord{},
			&model.DeviceSettings{},
		}
		for _, m := range dependents {
			if err := tx.Where("device_id = ?", id).Delete(m).Error; err != nil {
				return fmt.Errorf("failed to delete %T rows for device %s: %w", m, id, err)
			}
		}
		for _, join := range []string{"device_group_members", "subscription_device_mapping"} {
			if err := tx.Exec("DELETE FROM "+join+" WHERE device_id = ?", id).Error; err != nil {
				return fmt.Errorf("failed to clear %s for device %s: %w", join, id, err)
			}
		}
		if err := tx.Delete(&model.Device{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete device %s: %w", id, err)
		}
		return nil
	})
}

// GetSettings returns the saved desired settings. A device without saved
// settings yields an empty record.
func (s *gormStore) GetSettings(ctx context.Context, deviceID string) (*model.DeviceSettings, error) {
	var settings model.DeviceSettings
	err := s.db.WithContext(ctx).First(&settings, "device_id = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.deviceExists(s.db.WithContext(ctx), deviceID); err != nil {
			return nil, err
		}
		return &model.DeviceSettings{DeviceID: deviceID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for device %s: %w", deviceID, err)
	}
	return &settings, nil
}

// UpdateSettings persists the provided fields and leaves the others as they were.
func (s *gormStore) UpdateSettings(ctx context.Context, deviceID string, patch SettingsPatch) (*model.DeviceSettings, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var saved model.DeviceSettings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.deviceExists(tx, deviceID); err != nil {
			return err
		}
		row := model.DeviceSettings{DeviceID: deviceID, Brightness: patch.Brightness, Volume: patch.Volume}
		columns := []string{"updated_at"}
		if patch.Brightness != nil {
			columns = append(columns, "brightness")
		}
		if patch.Volume != nil {
			columns = append(columns, "volume")
		}
		if err := tx.Omit("Device").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to save settings for device %s: %w", deviceID, err)
		}
		return tx.First(&saved, "device_id = ?", deviceID).Error
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// ApplyStatusReport writes an inbound report. The write only happens when the
// report is not older than the stored lastSeen; the boolean reports whether
// it was applied.
func (s *gormStore) ApplyStatusReport(ctx context.Context, report StatusReport) (*model.Device, bool, error) {
	if err := report.Validate(); err != nil {
		return nil, false, err
	}
	// Device clocks are not trusted beyond ours: a report from the future
	// would otherwise pin lastSeen ahead and hide every later report.
	now := s.now()
	at := report.ReportedAt
	if at.IsZero() || at.After(now) {
		at = now
	}
	at = at.UTC()

	updates := statusUpdates(report, at)

	var device model.Device
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Device{}).
			Where("id = ? AND (last_seen IS NULL OR last_seen <= ?)", report.DeviceID, at).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to apply status report for device %s: %w", report.DeviceID, res.Error)
		}
		applied = res.RowsAffected > 0
		if !applied {
			if err := s.deviceExists(tx, report.DeviceID); err != nil {
				return err
			}
			log.Printf("Ignoring out-of-order status report for device %s at %s", report.DeviceID, at.Format(time.RFC3339))
		}
		if report.Usage != nil {
			record := model.DataUsageRecord{
				DeviceID:   report.DeviceID,
				RecordedAt: at,
				Downloaded: report.Usage.Downloaded,
				Uploaded:   report.Usage.Uploaded,
			}
			if err := tx.Omit("Device").Create(&record).Error; err != nil {
				return fmt.Errorf("failed to record data usage for device %s: %w", report.DeviceID, err)
			}
		}
		return tx.First(&device, "id = ?", report.DeviceID).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &device, applied, nil
}

// statusUpdates maps a report onto column updates and enforces that a device
// reported as not online is shown as offline or error.
func statusUpdates(report StatusReport, at time.Time) map[string]any {
	online := true
	if report.IsOnline != nil {
		online = *report.IsOnline
	}

	updates := map[string]any{
		"last_seen":  at,
		"is_online":  online,
		"updated_at": at,
	}
	if report.Heartbeat {
		updates["last_heartbeat"] = at
	}

	switch {
	case report.Status != nil && (online || *report.Status == model.DeviceStatusError || *report.Status == model.DeviceStatusOffline):
		updates["status"] = *report.Status
	case !online:
		updates["status"] = gorm.Expr("CASE WHEN status = ? THEN status ELSE ? END", model.DeviceStatusError, model.DeviceStatusOffline)
	}

	if report.CurrentContentID != nil {
		updates["current_content_id"] = *report.CurrentContentID
	}
	if report.CurrentContentName != nil {
		updates["current_content_name"] = *report.CurrentContentName
	}
	if report.Brightness != nil {
		updates["brightness"] = *report.Brightness
	}
	if report.Volume != nil {
		updates["volume"] = *report.Volume
	}
	if report.BatteryLevel != nil {
		updates["battery_level"] = *report.BatteryLevel
	}
	if report.SignalStrength != nil {
		updates["signal_strength"] = *report.SignalStrength
	}
	if report.FreeStorage != nil {
		updates["free_storage"] = *report.FreeStorage
	}
	if report.Temperature != nil {
		updates["temperature"] = *report.Temperature
	}
	if report.Latitude != nil && report.Longitude != nil {
		updates["latitude"] = *report.Latitude
		updates["longitude"] = *report.Longitude
	}
	if report.Errors != nil {
		updates["errors"] = datatypes.JSONSlice[string](report.Errors)
	}
	if report.Thumbnail != nil {
		updates["thumbnail"] = *report.Thumbnail
	}
	return updates
}

// MarkStaleDevicesOffline flips devices that have not reported since cutoff
// to offline and returns their ids. A device that reports between the lookup
// and its update is left online and not returned.
func (s *gormStore) MarkStaleDevicesOffline(ctx context.Context, cutoff time.Time) ([]string, error) {
	cutoff = cutoff.UTC()
	var flipped []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []string
		if err := staleDevices(tx, cutoff).Pluck("id", &candidates).Error; err != nil {
			return fmt.Errorf("failed to find stale devices: %w", err)
		}
		for _, id := range candidates {
			res := staleDevices(tx, cutoff).Where("id = ?", id).Updates(map[string]any{
				"is_online":  false,
				"status":     gorm.Expr("CASE WHEN status = ? THEN status ELSE ? END", model.DeviceStatusError, model.DeviceStatusOffline),
				"updated_at": s.now(),
			})
			if res.Error != nil {
				return fmt.Errorf("failed to mark device %s offline: %w", id, res.Error)
			}
			if res.RowsAffected > 0 {
				flipped = append(flipped, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flipped, nil
}

func staleDevices(tx *gorm.DB, cutoff time.Time) *gorm.DB {
	return tx.Model(&model.Device{}).
		Where("is_online = ?", true).
		Where("last_seen IS NULL OR last_seen < ?", cutoff)
}
