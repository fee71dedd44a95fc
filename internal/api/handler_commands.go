package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"signage-control-backend/internal/command"
	"signage-control-backend/internal/model"
	"signage-control-backend/internal/mw"
)

// DispatchCommand handles POST /api/device/:id/command. The body is the
// command payload itself: {type, value?, ...extra}.
func (h *Handler) DispatchCommand(c *gin.Context) {
	var intent model.CommandPayload
	if err := c.ShouldBindJSON(&intent); err != nil {
		badRequest(c, "invalid request")
		return
	}

	if claims := mw.GetClaims(c); claims != nil {
		log.Printf("Operator %s dispatching %s to device %s", claims.Subject, intent.Type, c.Param("id"))
	}
	cmd, err := h.dispatcher.Dispatch(c.Request.Context(), c.Param("id"), intent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cmd)
}

// GetCommandHistory handles GET /api/device/:id/commands/history.
func (h *Handler) GetCommandHistory(c *gin.Context) {
	limit, ok := queryInt(c, "limit", h.historyLimit)
	if !ok {
		badRequest(c, "invalid limit")
		return
	}
	if limit == 0 || limit > h.historyLimit {
		limit = h.historyLimit
	}

	deviceID := c.Param("id")
	if _, err := h.store.GetDevice(c.Request.Context(), deviceID); err != nil {
		respondError(c, err)
		return
	}
	commands, err := h.store.CommandHistory(c.Request.Context(), deviceID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if commands == nil {
		commands = []model.Command{}
	}
	command.MarkStale(commands, h.staleAfter, h.now())
	c.JSON(http.StatusOK, commands)
}
