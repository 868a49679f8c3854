package api

import (
	"github.com/gin-gonic/gin"

	"github.com/evalforge/evalforge/internal/handlers"
)

func registerTaskRoutes(api *gin.RouterGroup, deps Dependencies) {
	taskHandler := handlers.NewTaskHandler(deps.Tasks)

	api.POST("/tasks", taskHandler.Create)
}
