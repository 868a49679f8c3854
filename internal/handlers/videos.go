package handlers

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/evalforge/evalforge/internal/middleware"
	"github.com/evalforge/evalforge/internal/services"
	appErrors "github.com/evalforge/evalforge/pkg/errors"
	"github.com/evalforge/evalforge/pkg/response"
)

type VideoHandler struct {
	videos *services.VideoService
}

func NewVideoHandler(videos *services.VideoService) *VideoHandler {
	return &VideoHandler{videos: videos}
}

type uploadVideoRequest struct {
	Name           string  `json:"name" validate:"required,min=1,max=256"`
	ContentType    string  `json:"content_type" validate:"omitempty,max=128"`
	Data           string  `json:"data" validate:"required"`
	OrganizationID *string `json:"organization_id" validate:"omitempty,uuid4"`
	ExperimentID   *string `json:"experiment_id" validate:"omitempty,uuid4"`
}

// GET /api/videos
func (h *VideoHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	videos, err := h.videos.List(requestContext(c), userID)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"videos": videos})
}

// POST /api/videos
func (h *VideoHandler) Upload(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	var req uploadVideoRequest
	if !bindAndValidate(c, &req) {
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("data must be base64 encoded"))
		return
	}

	video, proxyURL, err := h.videos.Upload(requestContext(c), userID, services.UploadVideoInput{
		Name:           req.Name,
		ContentType:    req.ContentType,
		Data:           payload,
		OrganizationID: req.OrganizationID,
		ExperimentID:   req.ExperimentID,
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"video": video, "url": proxyURL})
}

// GET /api/video/*path
//
// Serves the object bytes directly rather than the JSON envelope; headers are
// mirrored from the storage response.
func (h *VideoHandler) Serve(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	key := strings.TrimLeft(c.Param("path"), "/")

	content, err := h.videos.Fetch(requestContext(c), userID, key)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Length", strconv.FormatInt(content.ContentLength, 10))
	header.Set("Accept-Ranges", "bytes")
	if content.CacheControl != "" {
		header.Set("Cache-Control", content.CacheControl)
	} else {
		header.Set("Cache-Control", "private, max-age=3600")
	}
	if content.LastModified != "" {
		header.Set("Last-Modified", content.LastModified)
	}
	if content.ETag != "" {
		header.Set("ETag", content.ETag)
	}

	contentType := content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, content.Data)
}
