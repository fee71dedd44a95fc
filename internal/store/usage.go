package store

import (
	"context"
	"fmt"
	"time"

	"signage-control-backend/internal/model"
)

// RecordDataUsage stores one traffic sample.
func (s *gormStore) RecordDataUsage(ctx context.Context, record *model.DataUsageRecord) error {
	if record.RecordedAt.IsZero() {
		record.RecordedAt = s.now()
	}
	if err := s.db.WithContext(ctx).Omit("Device").Create(record).Error; err != nil {
		return fmt.Errorf("failed to record data usage for device %s: %w", record.DeviceID, err)
	}
	return nil
}

// DataUsageRecords returns samples in [start, end), oldest first. Nil bounds are open.
func (s *gormStore) DataUsageRecords(ctx context.Context, deviceID string, start, end *time.Time) ([]model.DataUsageRecord, error) {
	if err := s.deviceExists(s.db.WithContext(ctx), deviceID); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("device_id = ?", deviceID)
	if start != nil {
		q = q.Where("recorded_at >= ?", start.UTC())
	}
	if end != nil {
		q = q.Where("recorded_at < ?", end.UTC())
	}
	var records []model.DataUsageRecord
	if err := q.Order("recorded_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load data usage for device %s: %w", deviceID, err)
	}
	return records, nil
}
