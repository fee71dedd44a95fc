package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"signage-control-backend/internal/model"
)

// CreateGroup adds a group, optionally under an existing parent.
func (s *gormStore) CreateGroup(ctx context.Context, group *model.DeviceGroup) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if group.ParentID != nil {
			var parent model.DeviceGroup
			err := tx.First(&parent, *group.ParentID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGroupNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to load parent group %d: %w", *group.ParentID, err)
			}
		}
		group.ID = 0
		if err := tx.Omit("Members").Create(group).Error; err != nil {
			return fmt.Errorf("failed to create group %q: %w", group.Name, err)
		}
		return nil
	})
}

// ListGroups returns all groups; callers rebuild the tree from ParentID.
func (s *gormStore) ListGroups(ctx context.Context) ([]model.DeviceGroup, error) {
	var groups []model.DeviceGroup
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// SetGroupMembers replaces the membership list of a group.
func (s *gormStore) SetGroupMembers(ctx context.Context, groupID int64, deviceIDs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group model.DeviceGroup
		err := tx.First(&group, groupID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGroupNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load group %d: %w", groupID, err)
		}

		devices := []model.Device{}
		if len(deviceIDs) > 0 {
			if err := tx.Where("id IN ?", deviceIDs).Find(&devices).Error; err != nil {
				return err
			}
			if len(devices) != len(uniqueStrings(deviceIDs)) {
				return ErrDeviceNotFound
			}
		}
		if err := tx.Model(&group).Association("Members").Replace(devices); err != nil {
			return fmt.Errorf("failed to replace members of group %d: %w", groupID, err)
		}
		return nil
	})
}

func uniqueStrings(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, v := range in {
		out[v] = struct{}{}
	}
	return out
}
