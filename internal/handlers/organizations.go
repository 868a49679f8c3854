package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evalforge/evalforge/internal/middleware"
	"github.com/evalforge/evalforge/internal/models"
	"github.com/evalforge/evalforge/internal/services"
	appErrors "github.com/evalforge/evalforge/pkg/errors"
	"github.com/evalforge/evalforge/pkg/response"
)

type OrganizationHandler struct {
	orgs   *services.OrganizationService
	access *services.AccessService
}

func NewOrganizationHandler(orgs *services.OrganizationService, access *services.AccessService) *OrganizationHandler {
	return &OrganizationHandler{orgs: orgs, access: access}
}

type createOrganizationRequest struct {
	Name string `json:"name" validate:"required,min=2,max=128"`
}

type updateOrganizationRequest struct {
	Name          *string `json:"name" validate:"omitempty,min=2,max=128"`
	ProlificToken *string `json:"prolific_token"`
}

// POST /api/orgs
func (h *OrganizationHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req createOrganizationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	org, err := h.orgs.Create(requestContext(c), services.CreateOrganizationInput{
		Name:      req.Name,
		CreatorID: userID,
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusCreated, org)
}

// GET /api/orgs/:id
func (h *OrganizationHandler) Get(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	orgID := c.Param("id")
	ctx := requestContext(c)

	if _, err := h.access.Membership(ctx, orgID, userID); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	org, err := h.orgs.GetByID(ctx, orgID)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, org)
}

// PATCH /api/orgs/:id
func (h *OrganizationHandler) Update(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	orgID := c.Param("id")
	ctx := requestContext(c)

	if _, err := h.access.Require(ctx, orgID, userID, models.RoleAdmin); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	var req updateOrganizationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	org, err := h.orgs.Update(ctx, orgID, services.UpdateOrganizationInput{
		Name:          req.Name,
		ProlificToken: req.ProlificToken,
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, org)
}

// DELETE /api/orgs/:id
func (h *OrganizationHandler) Delete(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	orgID := c.Param("id")
	ctx := requestContext(c)

	if _, err := h.access.Require(ctx, orgID, userID, models.RoleOwner); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	if err := h.orgs.Delete(ctx, orgID); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
