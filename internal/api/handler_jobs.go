package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"signage-control-backend/internal/model"
)

var publishContentTypes = map[string]bool{"media": true, "playlist": true, "schedule": true}

type createPublishJobRequest struct {
	DeviceID    string `json:"deviceId" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
	ContentID   string `json:"contentId" binding:"required"`
	ContentName string `json:"contentName"`
	TotalBytes  int64  `json:"totalBytes"`
}

// CreatePublishJob handles POST /api/publish-jobs.
func (h *Handler) CreatePublishJob(c *gin.Context) {
	var req createPublishJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !publishContentTypes[req.ContentType] {
		badRequest(c, "contentType must be media, playlist or schedule")
		return
	}
	if req.TotalBytes < 0 {
		badRequest(c, "totalBytes must not be negative")
		return
	}

	device, err := h.store.GetDevice(c.Request.Context(), req.DeviceID)
	if err != nil {
		respondError(c, err)
		return
	}
	job := model.PublishJob{
		DeviceID:    device.ID,
		DeviceName:  device.Name,
		ContentType: req.ContentType,
		ContentID:   req.ContentID,
		ContentName: req.ContentName,
		TotalBytes:  req.TotalBytes,
	}
	if err := h.store.CreatePublishJob(c.Request.Context(), &job); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// ListPublishJobs handles GET /api/publish-jobs?deviceId=.
func (h *Handler) ListPublishJobs(c *gin.Context) {
	jobs, err := h.store.ListPublishJobs(c.Request.Context(), c.Query("deviceId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if jobs == nil {
		jobs = []model.PublishJob{}
	}
	c.JSON(http.StatusOK, jobs)
}
