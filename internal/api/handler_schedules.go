package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"signage-control-backend/internal/model"
	"signage-control-backend/internal/schedule"
)

type powerScheduleEntry struct {
	DaysOfWeek   []int  `json:"daysOfWeek"`
	PowerOnTime  string `json:"powerOnTime"`
	PowerOffTime string `json:"powerOffTime"`
	Enabled      *bool  `json:"enabled"`
}

type powerScheduleRequest struct {
	Schedules []powerScheduleEntry `json:"schedules"`
}

// GetPowerSchedule handles GET /api/devices/:id/power-schedule.
func (h *Handler) GetPowerSchedule(c *gin.Context) {
	deviceID := c.Param("id")
	if _, err := h.store.GetDevice(c.Request.Context(), deviceID); err != nil {
		respondError(c, err)
		return
	}
	entries, err := h.store.PowerSchedules(c.Request.Context(), deviceID)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []model.PowerSchedule{}
	}
	c.JSON(http.StatusOK, gin.H{"schedules": entries})
}

// SetPowerSchedule handles POST /api/devices/:id/power-schedule and replaces
// the whole list. Entries default to enabled.
func (h *Handler) SetPowerSchedule(c *gin.Context) {
	var req powerScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Schedules == nil {
		badRequest(c, "schedules is required")
		return
	}

	entries := make([]model.PowerSchedule, len(req.Schedules))
	for i, e := range req.Schedules {
		entries[i] = model.PowerSchedule{
			DaysOfWeek:   e.DaysOfWeek,
			PowerOnTime:  e.PowerOnTime,
			PowerOffTime: e.PowerOffTime,
			Enabled:      e.Enabled == nil || *e.Enabled,
		}
	}
	entries, err := schedule.Normalize(entries)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	saved, err := h.store.ReplacePowerSchedules(c.Request.Context(), c.Param("id"), entries)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": saved})
}
