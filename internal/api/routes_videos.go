package api

import (
	"github.com/gin-gonic/gin"

	"github.com/evalforge/evalforge/internal/handlers"
)

func registerVideoRoutes(api *gin.RouterGroup, deps Dependencies) {
	videoHandler := handlers.NewVideoHandler(deps.Videos)

	api.GET("/videos", videoHandler.List)
	api.POST("/videos", videoHandler.Upload)

	// The wildcard keeps storage keys with slashes intact.
	api.GET("/video/*path", videoHandler.Serve)
}
