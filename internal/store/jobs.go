package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"signage-control-backend/internal/model"
)

// CreatePublishJob records a new content push in the pending state.
func (s *gormStore) CreatePublishJob(ctx context.Context, job *model.PublishJob) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.deviceExists(tx, job.DeviceID); err != nil {
			return err
		}
		job.ID = 0
		job.Status = model.PublishJobPending
		job.Progress = 0
		job.DownloadedBytes = 0
		job.StartedAt, job.CompletedAt, job.ErrorMessage = nil, nil, nil
		if err := tx.Omit("Device").Create(job).Error; err != nil {
			return fmt.Errorf("failed to create publish job for device %s: %w", job.DeviceID, err)
		}
		return nil
	})
}

// UpdatePublishJob applies a progress report. Finished jobs reject updates.
func (s *gormStore) UpdatePublishJob(ctx context.Context, id int64, p JobProgress) (*model.PublishJob, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var job model.PublishJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&job, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load publish job %d: %w", id, err)
		}
		if job.Status.Terminal() {
			return ErrJobTerminal
		}

		applyJobProgress(&job, p, s.now())
		if err := tx.Omit("Device").Save(&job).Error; err != nil {
			return fmt.Errorf("failed to update publish job %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// applyJobProgress moves a job forward. A report without an explicit status
// means the transfer is running; progress is derived from bytes when absent.
func applyJobProgress(job *model.PublishJob, p JobProgress, now time.Time) {
	status := model.PublishJobInProgress
	if p.Status != nil {
		status = *p.Status
	}
	if status == model.PublishJobPending {
		status = job.Status
	}

	if p.DownloadedBytes != nil {
		job.DownloadedBytes = *p.DownloadedBytes
	}
	switch {
	case p.Progress != nil:
		job.Progress = *p.Progress
	case p.DownloadedBytes != nil && job.TotalBytes > 0:
		job.Progress = int(job.DownloadedBytes * 100 / job.TotalBytes)
	}
	if job.Progress < 0 {
		job.Progress = 0
	}
	if job.Progress > 100 {
		job.Progress = 100
	}

	if job.StartedAt == nil && status != model.PublishJobPending {
		started := now
		job.StartedAt = &started
	}
	switch status {
	case model.PublishJobCompleted:
		job.Progress = 100
		if job.TotalBytes > 0 {
			job.DownloadedBytes = job.TotalBytes
		}
	case model.PublishJobFailed:
		msg := "publish failed"
		if p.ErrorMessage != nil && *p.ErrorMessage != "" {
			msg = *p.ErrorMessage
		}
		job.ErrorMessage = &msg
	}
	if status.Terminal() {
		completed := now
		job.CompletedAt = &completed
	}
	job.Status = status
}

// ListPublishJobs returns jobs for one device, or all jobs when deviceID is empty.
func (s *gormStore) ListPublishJobs(ctx context.Context, deviceID string) ([]model.PublishJob, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}
	var jobs []model.PublishJob
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list publish jobs: %w", err)
	}
	return jobs, nil
}
