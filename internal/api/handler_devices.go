package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"signage-control-backend/internal/model"
	"signage-control-backend/internal/realtime"
	"signage-control-backend/internal/store"
)

// ListDevices handles GET /api/devices with optional status, online,
// groupId, search, limit and offset filters.
func (h *Handler) ListDevices(c *gin.Context) {
	filter := store.DeviceFilter{Search: c.Query("search")}

	if raw := c.Query("status"); raw != "" {
		status := model.DeviceStatus(raw)
		if !status.Valid() {
			badRequest(c, "invalid status")
			return
		}
		filter.Status = status
	}
	if raw := c.Query("online"); raw != "" {
		online, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "invalid online flag")
			return
		}
		filter.Online = &online
	}
	if raw := c.Query("groupId"); raw != "" {
		groupID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid group ID")
			return
		}
		filter.GroupID = &groupID
	}
	var ok bool
	if filter.Limit, ok = queryInt(c, "limit", 0); !ok {
		badRequest(c, "invalid limit")
		return
	}
	if filter.Offset, ok = queryInt(c, "offset", 0); !ok {
		badRequest(c, "invalid offset")
		return
	}

	devices, err := h.store.ListDevices(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if devices == nil {
		devices = []model.Device{}
	}
	c.JSON(http.StatusOK, devices)
}

type registerDeviceRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name" binding:"required"`
	GroupID *int64 `json:"groupId"`
}

// RegisterDevice handles POST /api/devices.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	device := model.Device{ID: req.ID, Name: req.Name, GroupID: req.GroupID}
	if err := h.store.RegisterDevice(c.Request.Context(), &device); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, device)
}

// GetDeviceDetails handles GET /api/devices/:id/details.
func (h *Handler) GetDeviceDetails(c *gin.Context) {
	device, err := h.store.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

// DeleteDevice handles DELETE /api/devices/:id.
func (h *Handler) DeleteDevice(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteDevice(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.invalidateUsage(id)
	realtime.Publish(h.events, realtime.Event{Type: realtime.EventDeviceDeleted, DeviceID: id})
	c.Status(http.StatusNoContent)
}

// GetSettings handles GET /api/devices/:id/settings.
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.store.GetSettings(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings handles POST /api/devices/:id/settings. Only the fields
// present in the body are changed.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var patch store.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request")
		return
	}

	settings, err := h.store.UpdateSettings(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}
