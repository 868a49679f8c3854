package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evalforge/evalforge/internal/middleware"
	"github.com/evalforge/evalforge/internal/services"
	"github.com/evalforge/evalforge/pkg/response"
)

type TaskHandler struct {
	tasks *services.TaskService
}

func NewTaskHandler(tasks *services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

type createTaskRequest struct {
	ExperimentID string         `json:"experiment_id" validate:"required,uuid4"`
	ScenarioID   string         `json:"scenario_id" validate:"required,max=256"`
	ModelA       string         `json:"model_a" validate:"required,max=128"`
	ModelB       string         `json:"model_b" validate:"required,max=128"`
	VideoAPath   string         `json:"video_a_path" validate:"omitempty,max=1024"`
	VideoBPath   string         `json:"video_b_path" validate:"omitempty,max=1024"`
	Metadata     map[string]any `json:"metadata"`
}

// POST /api/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	var req createTaskRequest
	if !bindAndValidate(c, &req) {
		return
	}

	task, err := h.tasks.Create(requestContext(c), userID, services.CreateTaskInput{
		ExperimentID: req.ExperimentID,
		ScenarioID:   req.ScenarioID,
		ModelA:       req.ModelA,
		ModelB:       req.ModelB,
		VideoAPath:   req.VideoAPath,
		VideoBPath:   req.VideoBPath,
		Metadata:     req.Metadata,
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusCreated, task)
}
