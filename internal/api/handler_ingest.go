package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"signage-control-backend/internal/store"
)

// ReportStatus handles POST /api/device/:id/status from a device.
func (h *Handler) ReportStatus(c *gin.Context) {
	var report store.StatusReport
	if err := c.ShouldBindJSON(&report); err != nil {
		badRequest(c, "invalid status report")
		return
	}
	report.DeviceID = c.Param("id")

	device, err := h.ingest.ReportStatus(c.Request.Context(), report)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

type executedRequest struct {
	ExecutedAt time.Time `json:"executedAt"`
}

// ConfirmExecuted handles POST /api/device/:id/commands/:commandId/executed.
// Repeated confirmations return the already executed command.
func (h *Handler) ConfirmExecuted(c *gin.Context) {
	commandID, err := strconv.ParseInt(c.Param("commandId"), 10, 64)
	if err != nil {
		badRequest(c, "invalid command ID")
		return
	}
	var req executedRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request")
			return
		}
	}

	cmd, err := h.ingest.ConfirmExecuted(c.Request.Context(), c.Param("id"), commandID, req.ExecutedAt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmd)
}

// ReportJobProgress handles POST /api/publish-jobs/:id/progress.
func (h *Handler) ReportJobProgress(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid job ID")
		return
	}
	var progress store.JobProgress
	if err := c.ShouldBindJSON(&progress); err != nil {
		badRequest(c, "invalid request")
		return
	}

	job, err := h.ingest.ReportJobProgress(c.Request.Context(), jobID, progress)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
