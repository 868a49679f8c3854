package api

import (
	"github.com/gin-gonic/gin"

	"github.com/evalforge/evalforge/internal/handlers"
)

func registerProlificRoutes(api *gin.RouterGroup, deps Dependencies) {
	prolificHandler := handlers.NewProlificHandler(deps.Prolific)

	pro := api.Group("/prolific")
	{
		pro.POST("/studies", prolificHandler.CreateStudy)
		pro.GET("/studies", prolificHandler.ListStudies)
		pro.GET("/studies/:studyID", prolificHandler.GetStudy)
		pro.PUT("/studies/:studyID", prolificHandler.TransitionStudy)
		pro.GET("/studies/:studyID/submissions", prolificHandler.ListSubmissions)
		pro.POST("/studies/:studyID/submissions", prolificHandler.ProcessSubmissions)
		pro.POST("/sync", prolificHandler.Sync)
	}
}
