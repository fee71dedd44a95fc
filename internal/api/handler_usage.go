package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"signage-control-backend/internal/mw"
	"signage-control-backend/internal/telemetry"
)

const dateLayout = "2006-01-02"

// GetDataUsage handles GET /api/devices/:id/data-usage. A named period takes
// precedence over startDate; endDate is inclusive when given as a date.
func (h *Handler) GetDataUsage(c *gin.Context) {
	loc := time.UTC
	if tz := c.Query("tz"); tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			badRequest(c, "invalid timezone")
			return
		}
	}

	start, err := parseBound(c.Query("startDate"), loc, false)
	if err != nil {
		badRequest(c, "invalid startDate")
		return
	}
	end, err := parseBound(c.Query("endDate"), loc, true)
	if err != nil {
		badRequest(c, "invalid endDate")
		return
	}
	if period := c.Query("period"); period != "" {
		if start, err = telemetry.PeriodStart(period, h.now(), loc); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if start != nil && end != nil && end.Before(*start) {
		badRequest(c, "endDate is before startDate")
		return
	}

	deviceID := c.Param("id")
	if _, err := h.store.GetDevice(c.Request.Context(), deviceID); err != nil {
		respondError(c, err)
		return
	}
	records, err := h.store.DataUsageRecords(c.Request.Context(), deviceID, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, telemetry.Aggregate(records, loc))
}

// parseBound accepts RFC 3339 timestamps or plain dates in loc. A plain end
// date covers the whole day.
func parseBound(raw string, loc *time.Location, end bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return nil, err
	}
	if end {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}

func (h *Handler) invalidateUsage(deviceID string) {
	mw.InvalidatePrefix(h.usageCache, "/api/devices/"+deviceID+"/data-usage")
}
