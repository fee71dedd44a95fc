package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"signage-control-backend/internal/model"
)

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrCommandNotFound    = errors.New("command not found")
	ErrJobNotFound        = errors.New("publish job not found")
	ErrJobTerminal        = errors.New("publish job already finished")
	ErrInvalidReport      = errors.New("invalid status report")
	ErrInvalidSettings    = errors.New("invalid settings")
	ErrInvalidJobProgress = errors.New("invalid job progress")
	ErrDuplicateDevice    = errors.New("device already registered")
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	// Device registry
	RegisterDevice(ctx context.Context, device *model.Device) error
	GetDevice(ctx context.Context, id string) (*model.Device, error)
	ListDevices(ctx context.Context, filter DeviceFilter) ([]model.Device, error)
	DeleteDevice(ctx context.Context, id string) error
	GetSettings(ctx context.Context, deviceID string) (*model.DeviceSettings, error)
	UpdateSettings(ctx context.Context, deviceID string, patch SettingsPatch) (*model.DeviceSettings, error)
	ApplyStatusReport(ctx context.Context, report StatusReport) (*model.Device, bool, error)
	MarkStaleDevicesOffline(ctx context.Context, cutoff time.Time) ([]string, error)

	// Groups
	CreateGroup(ctx context.Context, group *model.DeviceGroup) error
	ListGroups(ctx context.Context) ([]model.DeviceGroup, error)
	SetGroupMembers(ctx context.Context, groupID int64, deviceIDs []string) error

	// Command queue
	CreateCommand(ctx context.Context, cmd *model.Command) error
	MarkCommandSent(ctx context.Context, id int64, at time.Time) error
	MarkCommandExecuted(ctx context.Context, deviceID string, id int64, at time.Time) (*model.Command, bool, error)
	CommandHistory(ctx context.Context, deviceID string, limit int) ([]model.Command, error)

	// Publish jobs
	CreatePublishJob(ctx context.Context, job *model.PublishJob) error
	UpdatePublishJob(ctx context.Context, id int64, progress JobProgress) (*model.PublishJob, error)
	ListPublishJobs(ctx context.Context, deviceID string) ([]model.PublishJob, error)

	// Power schedules
	ReplacePowerSchedules(ctx context.Context, deviceID string, entries []model.PowerSchedule) ([]model.PowerSchedule, error)
	PowerSchedules(ctx context.Context, deviceID string) ([]model.PowerSchedule, error)
	EnabledPowerSchedules(ctx context.Context) ([]model.PowerSchedule, error)

	// Data usage
	RecordDataUsage(ctx context.Context, record *model.DataUsageRecord) error
	DataUsageRecords(ctx context.Context, deviceID string, start, end *time.Time) ([]model.DataUsageRecord, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying handle for handlers that run ad-hoc queries.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) deviceExists(tx *gorm.DB, id string) error {
	var count int64
	if err := tx.Model(&model.Device{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrDeviceNotFound
	}
	return nil
}
