package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evalforge/evalforge/internal/middleware"
	"github.com/evalforge/evalforge/internal/models"
	"github.com/evalforge/evalforge/internal/services"
	"github.com/evalforge/evalforge/pkg/response"
)

type MemberHandler struct {
	members *services.MemberService
	access  *services.AccessService
}

func NewMemberHandler(members *services.MemberService, access *services.AccessService) *MemberHandler {
	return &MemberHandler{members: members, access: access}
}

type updateMemberRoleRequest struct {
	Role string `json:"role" validate:"required,orgrole"`
}

// GET /api/orgs/:id/members
func (h *MemberHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	orgID := c.Param("id")
	ctx := requestContext(c)

	if _, err := h.access.Membership(ctx, orgID, userID); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	members, err := h.members.List(ctx, orgID)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"members": members})
}

// PATCH /api/orgs/:id/members/:memberID
func (h *MemberHandler) UpdateRole(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	orgID := c.Param("id")
	targetID := c.Param("memberID")
	ctx := requestContext(c)

	if _, err := h.access.Require(ctx, orgID, userID, models.RoleAdmin); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	var req updateMemberRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	member, err := h.members.UpdateRole(ctx, orgID, targetID, parseRole(req.Role))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, member)
}

// DELETE /api/orgs/:id/members/:memberID
func (h *MemberHandler) Remove(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	orgID := c.Param("id")
	targetID := c.Param("memberID")
	ctx := requestContext(c)

	if _, err := h.access.Require(ctx, orgID, userID, models.RoleAdmin); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	if err := h.members.Remove(ctx, orgID, targetID); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// POST /api/orgs/:id/leave
func (h *MemberHandler) Leave(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	orgID := c.Param("id")
	ctx := requestContext(c)

	if _, err := h.access.Membership(ctx, orgID, userID); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	if err := h.members.Leave(ctx, orgID, userID); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"left": true})
}
