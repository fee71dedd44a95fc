package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"signage-control-backend/internal/model"
)

type createGroupRequest struct {
	Name     string `json:"name" binding:"required"`
	ParentID *int64 `json:"parentId"`
}

// ListGroups handles GET /api/groups.
func (h *Handler) ListGroups(c *gin.Context) {
	groups, err := h.store.ListGroups(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if groups == nil {
		groups = []model.DeviceGroup{}
	}
	c.JSON(http.StatusOK, groups)
}

// CreateGroup handles POST /api/groups.
func (h *Handler) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	group := model.DeviceGroup{Name: req.Name, ParentID: req.ParentID}
	if err := h.store.CreateGroup(c.Request.Context(), &group); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

type groupMembersRequest struct {
	DeviceIDs []string `json:"deviceIds"`
}

// SetGroupMembers handles PUT /api/groups/:id/members.
func (h *Handler) SetGroupMembers(c *gin.Context) {
	groupID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid group ID")
		return
	}
	var req groupMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if err := h.store.SetGroupMembers(c.Request.Context(), groupID, req.DeviceIDs); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
