package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evalforge/evalforge/internal/middleware"
	"github.com/evalforge/evalforge/internal/prolific"
	"github.com/evalforge/evalforge/internal/services"
	appErrors "github.com/evalforge/evalforge/pkg/errors"
	"github.com/evalforge/evalforge/pkg/response"
)

type ProlificHandler struct {
	prolific *services.ProlificService
}

func NewProlificHandler(prolific *services.ProlificService) *ProlificHandler {
	return &ProlificHandler{prolific: prolific}
}

type createStudyRequest struct {
	ExperimentID      string `json:"experiment_id" validate:"required,uuid4"`
	Title             string `json:"title" validate:"required,min=3,max=256"`
	Description       string `json:"description" validate:"required"`
	RewardMinorUnits  int    `json:"reward" validate:"required,min=1"`
	TotalParticipants int    `json:"total_participants" validate:"required,min=1"`
	ExternalStudyURL  string `json:"external_study_url" validate:"required,url"`
	CompletionCode    string `json:"completion_code" validate:"omitempty,max=32"`
}

type transitionStudyRequest struct {
	Action string `json:"action" validate:"required,oneof=PUBLISH PAUSE START STOP"`
}

type processSubmissionsRequest struct {
	Action        string   `json:"action" validate:"required,oneof=approve reject"`
	SubmissionIDs []string `json:"submission_ids" validate:"required,min=1"`
	Reason        string   `json:"reason" validate:"omitempty,max=1024"`
}

// POST /api/prolific/studies
func (h *ProlificHandler) CreateStudy(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	var req createStudyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	study, err := h.prolific.CreateStudy(requestContext(c), userID, services.CreateStudyInput{
		ExperimentID:      req.ExperimentID,
		Title:             req.Title,
		Description:       req.Description,
		RewardMinorUnits:  req.RewardMinorUnits,
		TotalParticipants: req.TotalParticipants,
		ExternalStudyURL:  req.ExternalStudyURL,
		CompletionCode:    req.CompletionCode,
	})
	if err != nil {
		response.Error(c, upstreamOrServiceError(err))
		return
	}

	response.Success(c, http.StatusCreated, study)
}

// GET /api/prolific/studies
func (h *ProlificHandler) ListStudies(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	studies, err := h.prolific.ListStudies(requestContext(c), userID)
	if err != nil {
		response.Error(c, upstreamOrServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"studies": studies})
}

// GET /api/prolific/studies/:studyID
func (h *ProlificHandler) GetStudy(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	studyID := c.Param("studyID")

	study, err := h.prolific.GetStudy(requestContext(c), userID, studyID)
	if err != nil {
		response.Error(c, upstreamOrServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, study)
}

// PUT /api/prolific/studies/:studyID
func (h *ProlificHandler) TransitionStudy(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	studyID := c.Param("studyID")

	var req transitionStudyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	study, err := h.prolific.TransitionStudy(requestContext(c), userID, studyID, req.Action)
	if err != nil {
		response.Error(c, upstreamOrServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, study)
}

// GET /api/prolific/studies/:studyID/submissions
func (h *ProlificHandler) ListSubmissions(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	studyID := c.Param("studyID")

	submissions, err := h.prolific.ListSubmissions(requestContext(c), userID, studyID)
	if err != nil {
		response.Error(c, upstreamOrServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submissions": submissions})
}

// POST /api/prolific/studies/:studyID/submissions
func (h *ProlificHandler) ProcessSubmissions(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	studyID := c.Param("studyID")

	var req processSubmissionsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.prolific.ProcessSubmissions(requestContext(c), userID, studyID, req.Action, req.SubmissionIDs, req.Reason)
	if err != nil {
		response.Error(c, upstreamOrServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"processed": len(req.SubmissionIDs)})
}

type syncStudyRequest struct {
	StudyID string `json:"study_id" validate:"required"`
}

// POST /api/prolific/sync
func (h *ProlificHandler) Sync(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	var req syncStudyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.prolific.Sync(requestContext(c), userID, req.StudyID)
	if err != nil {
		response.Error(c, upstreamOrServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, result)
}

// upstreamOrServiceError maps sentinels as usual, but surfaces recruitment
// API failures with the upstream message rather than a generic 500.
func upstreamOrServiceError(err error) *appErrors.AppError {
	if errors.Is(err, prolific.ErrUpstream) {
		return appErrors.NewUpstream(err)
	}
	return mapServiceError(err)
}
