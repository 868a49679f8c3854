package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/evalforge/evalforge/internal/models"
	"github.com/evalforge/evalforge/internal/storage"
)

// CreateTaskInput carries the fields of a new comparison task. Metadata is
// stored verbatim as JSON.
type CreateTaskInput struct {
	ExperimentID string
	ScenarioID   string
	ModelA       string
	ModelB       string
	VideoAPath   string
	VideoBPath   string
	Metadata     map[string]any
}

// TaskService creates comparison tasks under an experiment.
type TaskService struct {
	db     *gorm.DB
	store  *storage.Client
	access *AccessService
}

// NewTaskService constructs a TaskService. The storage client is used to
// rewrite direct bucket URLs into proxy URLs and may be nil in tests.
func NewTaskService(db *gorm.DB, store *storage.Client, access *AccessService) (*TaskService, error) {
	if db == nil {
		return nil, errors.New("task service: db is required")
	}
	if access == nil {
		return nil, errors.New("task service: access service is required")
	}
	return &TaskService{db: db, store: store, access: access}, nil
}

// Create validates and stores a comparison task. Caller must be a MEMBER of
// the experiment's organization, or its creator when it has none.
func (s *TaskService) Create(ctx context.Context, callerID string, input CreateTaskInput) (*models.ComparisonTask, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.ScenarioID) == "" {
		return nil, errors.New("task service: scenario id is required")
	}
	if strings.TrimSpace(input.ModelA) == "" || strings.TrimSpace(input.ModelB) == "" {
		return nil, errors.New("task service: both model labels are required")
	}

	var experiment models.Experiment
	err := s.db.WithContext(ctx).First(&experiment, "id = ?", input.ExperimentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrExperimentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("task service: load experiment: %w", err)
	}

	if experiment.OrganizationID != nil {
		if _, err := s.access.Require(ctx, *experiment.OrganizationID, callerID, models.RoleMember); err != nil {
			return nil, err
		}
	} else if experiment.CreatedBy != callerID {
		return nil, ErrNotMember
	}

	task := &models.ComparisonTask{
		ExperimentID: experiment.ID,
		ScenarioID:   strings.TrimSpace(input.ScenarioID),
		ModelA:       strings.TrimSpace(input.ModelA),
		ModelB:       strings.TrimSpace(input.ModelB),
		VideoAPath:   s.proxyURL(input.VideoAPath),
		VideoBPath:   s.proxyURL(input.VideoBPath),
	}

	if len(input.Metadata) > 0 {
		payload, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("task service: encode metadata: %w", err)
		}
		task.Metadata = payload
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("task service: create task: %w", err)
	}
	return task, nil
}

// proxyURL rewrites direct bucket URLs so stored tasks always reference the
// authenticated proxy.
func (s *TaskService) proxyURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || s.store == nil {
		return raw
	}
	return s.store.ConvertToProxyURL(raw)
}
