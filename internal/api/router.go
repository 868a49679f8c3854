package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	iauth "github.com/evalforge/evalforge/internal/auth"
	"github.com/evalforge/evalforge/internal/handlers"
	"github.com/evalforge/evalforge/internal/middleware"
	"github.com/evalforge/evalforge/internal/services"
)

// Dependencies carries the constructed services the router wires to handlers.
type Dependencies struct {
	JWT           *iauth.JWTService
	Access        *services.AccessService
	Organizations *services.OrganizationService
	Members       *services.MemberService
	Invitations   *services.InvitationService
	Prolific      *services.ProlificService
	Videos        *services.VideoService
	Tasks         *services.TaskService
}

func (d Dependencies) validate() error {
	switch {
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Access == nil:
		return fmt.Errorf("access service must be provided")
	case d.Organizations == nil:
		return fmt.Errorf("organization service must be provided")
	case d.Members == nil:
		return fmt.Errorf("member service must be provided")
	case d.Invitations == nil:
		return fmt.Errorf("invitation service must be provided")
	case d.Prolific == nil:
		return fmt.Errorf("prolific service must be provided")
	case d.Videos == nil:
		return fmt.Errorf("video service must be provided")
	case d.Tasks == nil:
		return fmt.Errorf("task service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	// Health endpoint (public)
	r.GET("/health", handlers.Health())

	requireAuth := middleware.Auth(deps.JWT)

	api := r.Group("/api")
	api.Use(requireAuth)

	registerOrganizationRoutes(api, deps)
	registerProlificRoutes(api, deps)
	registerVideoRoutes(api, deps)
	registerTaskRoutes(api, deps)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
