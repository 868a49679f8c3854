package api

import (
	"github.com/gin-gonic/gin"

	"github.com/evalforge/evalforge/internal/handlers"
)

func registerOrganizationRoutes(api *gin.RouterGroup, deps Dependencies) {
	orgHandler := handlers.NewOrganizationHandler(deps.Organizations, deps.Access)
	memberHandler := handlers.NewMemberHandler(deps.Members, deps.Access)
	invitationHandler := handlers.NewInvitationHandler(deps.Invitations, deps.Access)

	orgs := api.Group("/orgs")
	{
		orgs.POST("", orgHandler.Create)
		orgs.GET("/:id", orgHandler.Get)
		orgs.PATCH("/:id", orgHandler.Update)
		orgs.DELETE("/:id", orgHandler.Delete)

		orgs.GET("/:id/members", memberHandler.List)
		orgs.PATCH("/:id/members/:memberID", memberHandler.UpdateRole)
		orgs.DELETE("/:id/members/:memberID", memberHandler.Remove)
		orgs.POST("/:id/leave", memberHandler.Leave)

		orgs.POST("/:id/invite", invitationHandler.Create)
		orgs.GET("/:id/invitations", invitationHandler.List)
		orgs.DELETE("/:id/invitations/:invitationID", invitationHandler.Cancel)
	}
}
