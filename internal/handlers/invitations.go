package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evalforge/evalforge/internal/middleware"
	"github.com/evalforge/evalforge/internal/models"
	"github.com/evalforge/evalforge/internal/services"
	"github.com/evalforge/evalforge/pkg/response"
)

type InvitationHandler struct {
	invitations *services.InvitationService
	access      *services.AccessService
}

func NewInvitationHandler(invitations *services.InvitationService, access *services.AccessService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, access: access}
}

type createInvitationRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,invitablerole"`
}

type invitationDTO struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Token      string `json:"token,omitempty"`
	ExpiresAt  string `json:"expires_at"`
	AcceptedAt string `json:"accepted_at,omitempty"`
}

func toInvitationDTO(inv *models.OrganizationInvitation, includeToken bool) invitationDTO {
	dto := invitationDTO{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      string(inv.Role),
		ExpiresAt: inv.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if includeToken {
		dto.Token = inv.Token
	}
	if inv.AcceptedAt != nil {
		dto.AcceptedAt = inv.AcceptedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// POST /api/orgs/:id/invite
func (h *InvitationHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	orgID := c.Param("id")
	ctx := requestContext(c)

	if _, err := h.access.Require(ctx, orgID, userID, models.RoleAdmin); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	var req createInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invitation, err := h.invitations.Create(ctx, services.CreateInvitationInput{
		OrganizationID: orgID,
		Email:          req.Email,
		Role:           parseRole(req.Role),
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	// The token is only ever disclosed to the inviting admin, here.
	response.Success(c, http.StatusCreated, toInvitationDTO(invitation, true))
}

// GET /api/orgs/:id/invitations
func (h *InvitationHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	orgID := c.Param("id")
	ctx := requestContext(c)

	if _, err := h.access.Require(ctx, orgID, userID, models.RoleAdmin); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	invitations, err := h.invitations.List(ctx, orgID)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	dtos := make([]invitationDTO, 0, len(invitations))
	for i := range invitations {
		dtos = append(dtos, toInvitationDTO(&invitations[i], false))
	}

	response.Success(c, http.StatusOK, gin.H{"invitations": dtos})
}

// DELETE /api/orgs/:id/invitations/:invitationID
func (h *InvitationHandler) Cancel(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	orgID := c.Param("id")
	invitationID := c.Param("invitationID")
	ctx := requestContext(c)

	if _, err := h.access.Require(ctx, orgID, userID, models.RoleAdmin); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	if err := h.invitations.Cancel(ctx, orgID, invitationID); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}
