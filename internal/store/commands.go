package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"signage-control-backend/internal/model"
)

// CreateCommand appends a command in the Pending state.
func (s *gormStore) CreateCommand(ctx context.Context, cmd *model.Command) error {
	cmd.ID = 0
	cmd.Sent, cmd.SentAt = false, nil
	cmd.Executed, cmd.ExecutedAt = false, nil
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = s.now()
	}
	if err := s.db.WithContext(ctx).Omit("Device").Create(cmd).Error; err != nil {
		return fmt.Errorf("failed to create command for device %s: %w", cmd.DeviceID, err)
	}
	return nil
}

// MarkCommandSent flips a Pending command to Sent. Already sent commands are left alone.
func (s *gormStore) MarkCommandSent(ctx context.Context, id int64, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Command{}).
		Where("id = ? AND sent = ?", id, false).
		Updates(map[string]any{"sent": true, "sent_at": at.UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to mark command %d sent: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.Command{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up command %d: %w", id, err)
		}
		if count == 0 {
			return ErrCommandNotFound
		}
	}
	return nil
}

// MarkCommandExecuted records the device's confirmation and is a no-op for
// commands already executed. A confirmation proves delivery, so a command the
// dispatcher has not marked sent yet is moved to sent and executed together.
// The boolean is true when this call performed the transition.
func (s *gormStore) MarkCommandExecuted(ctx context.Context, deviceID string, id int64, at time.Time) (*model.Command, bool, error) {
	var cmd model.Command
	transitioned := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND device_id = ?", id, deviceID).First(&cmd).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCommandNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load command %d: %w", id, err)
		}
		if cmd.Executed {
			return nil
		}

		executedAt := at.UTC()
		updates := map[string]any{
			"sent":        true,
			"sent_at":     gorm.Expr("COALESCE(sent_at, ?)", executedAt),
			"executed":    true,
			"executed_at": executedAt,
		}
		res := tx.Model(&model.Command{}).
			Where("id = ? AND executed = ?", id, false).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to mark command %d executed: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		transitioned = true
		if !cmd.Sent {
			log.Printf("Command %d on device %s confirmed before it was marked sent", id, deviceID)
			cmd.Sent = true
			cmd.SentAt = &executedAt
		}
		cmd.Executed = true
		cmd.ExecutedAt = &executedAt
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &cmd, transitioned, nil
}

// CommandHistory returns up to limit commands for a device, newest first.
func (s *gormStore) CommandHistory(ctx context.Context, deviceID string, limit int) ([]model.Command, error) {
	q := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var commands []model.Command
	if err := q.Find(&commands).Error; err != nil {
		return nil, fmt.Errorf("failed to load command history for device %s: %w", deviceID, err)
	}
	return commands, nil
}
