package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/evalforge/evalforge/internal/models"
	"github.com/evalforge/evalforge/internal/prolific"
	"github.com/evalforge/evalforge/pkg/crypto"
	"github.com/evalforge/evalforge/pkg/logger"
	"github.com/evalforge/evalforge/pkg/metrics"
)

var (
	// ErrExperimentNotFound indicates no experiment matches the identifier.
	ErrExperimentNotFound = errors.New("prolific service: experiment not found")

	// ErrStudyNotLinked indicates no local experiment records the study id.
	ErrStudyNotLinked = errors.New("prolific service: study not linked to any experiment")

	// ErrNoCredentials indicates neither the organization nor the deployment
	// carries a recruitment API token.
	ErrNoCredentials = errors.New("prolific service: no recruitment api token configured")

	// ErrInvalidSubmissionAction indicates an action outside {approve, reject}.
	ErrInvalidSubmissionAction = errors.New("prolific service: submission action must be approve or reject")
)

// clientFactory builds an organization-scoped recruitment client; swapped in
// tests to point at a local server.
type clientFactory func(token string) (*prolific.Client, error)

// ProlificService bridges experiments to the external recruitment service.
// Each operation resolves the experiment's organization and authenticates
// against that organization's own API token, falling back to the configured
// deployment-wide token.
type ProlificService struct {
	db           *gorm.DB
	access       *AccessService
	vaultKey     []byte
	defaultToken string
	newClient    clientFactory
	log          *zap.Logger
}

// ProlificOption customises a ProlificService.
type ProlificOption func(*ProlificService)

// WithClientFactory substitutes client construction, used by tests.
func WithClientFactory(factory clientFactory) ProlificOption {
	return func(s *ProlificService) {
		if factory != nil {
			s.newClient = factory
		}
	}
}

// NewProlificService constructs a ProlificService.
func NewProlificService(db *gorm.DB, access *AccessService, vaultKey []byte, defaultToken string, opts ...ProlificOption) (*ProlificService, error) {
	if db == nil {
		return nil, errors.New("prolific service: db is required")
	}
	if access == nil {
		return nil, errors.New("prolific service: access service is required")
	}
	s := &ProlificService{
		db:           db,
		access:       access,
		vaultKey:     vaultKey,
		defaultToken: strings.TrimSpace(defaultToken),
		newClient: func(token string) (*prolific.Client, error) {
			return prolific.NewClient(token)
		},
		log: logger.WithModule("prolific"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateStudyInput carries the study attributes plus the experiment to link.
type CreateStudyInput struct {
	ExperimentID      string
	Title             string
	Description       string
	RewardMinorUnits  int
	TotalParticipants int
	ExternalStudyURL  string
	CompletionCode    string
}

// StudyView is a study enriched with the local experiment linkage. A non-empty
// Error marks an entry whose external fetch failed.
type StudyView struct {
	ExperimentID   string          `json:"experiment_id"`
	ExperimentName string          `json:"experiment_name"`
	Study          *prolific.Study `json:"study,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// SyncResult reports how many local rows a sync touched.
type SyncResult struct {
	StudyStatus         string `json:"study_status"`
	ParticipantsCreated int    `json:"participants_created"`
	ParticipantsUpdated int    `json:"participants_updated"`
	SubmissionsCreated  int    `json:"submissions_created"`
	SubmissionsUpdated  int    `json:"submissions_updated"`
}

// CreateStudy registers a study for the experiment and stores the returned
// study id. Caller must be ADMIN of the experiment's organization.
func (s *ProlificService) CreateStudy(ctx context.Context, callerID string, input CreateStudyInput) (*prolific.Study, error) {
	ctx = ensureContext(ctx)

	experiment, client, err := s.experimentClient(ctx, callerID, input.ExperimentID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	codes := []prolific.CompletionCode{}
	if code := strings.TrimSpace(input.CompletionCode); code != "" {
		codes = append(codes, prolific.CompletionCode{Code: code, CodeType: "COMPLETED"})
	}

	study, err := client.CreateStudy(ctx, prolific.CreateStudyInput{
		Title:             input.Title,
		Description:       input.Description,
		ExternalStudyURL:  input.ExternalStudyURL,
		RewardMinorUnits:  input.RewardMinorUnits,
		TotalParticipants: input.TotalParticipants,
		CompletionCodes:   codes,
	})
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("prolific", "error").Inc()
		return nil, fmt.Errorf("prolific service: create study: %w", err)
	}
	metrics.UpstreamCalls.WithLabelValues("prolific", "ok").Inc()

	if err := s.db.WithContext(ctx).Model(experiment).Update("prolific_study_id", study.ID).Error; err != nil {
		return nil, fmt.Errorf("prolific service: link study: %w", err)
	}

	return study, nil
}

// ListStudies returns every experiment with a linked study, enriched from the
// external service. A failed fetch degrades that entry to an error message
// rather than failing the whole listing.
func (s *ProlificService) ListStudies(ctx context.Context, callerID string) ([]StudyView, error) {
	ctx = ensureContext(ctx)

	var experiments []models.Experiment
	err := s.db.WithContext(ctx).
		Where("prolific_study_id IS NOT NULL").
		Order("created_at DESC").
		Find(&experiments).Error
	if err != nil {
		return nil, fmt.Errorf("prolific service: list experiments: %w", err)
	}

	views := make([]StudyView, 0, len(experiments))
	for _, experiment := range experiments {
		view := StudyView{ExperimentID: experiment.ID, ExperimentName: experiment.Name}

		if experiment.OrganizationID != nil {
			if _, err := s.access.Membership(ctx, *experiment.OrganizationID, callerID); err != nil {
				continue
			}
		} else if experiment.CreatedBy != callerID {
			continue
		}

		client, err := s.clientFor(ctx, experiment.OrganizationID)
		if err != nil {
			view.Error = err.Error()
			views = append(views, view)
			continue
		}

		study, err := client.GetStudy(ctx, *experiment.ProlificStudyID)
		if err != nil {
			metrics.UpstreamCalls.WithLabelValues("prolific", "error").Inc()
			view.Error = err.Error()
		} else {
			metrics.UpstreamCalls.WithLabelValues("prolific", "ok").Inc()
			view.Study = study
		}
		views = append(views, view)
	}

	return views, nil
}

// GetStudy fetches the study linked to an experiment. Caller must be a member
// of the experiment's organization.
func (s *ProlificService) GetStudy(ctx context.Context, callerID, studyID string) (*prolific.Study, error) {
	ctx = ensureContext(ctx)

	_, client, err := s.studyClient(ctx, callerID, studyID, models.RoleMember)
	if err != nil {
		return nil, err
	}

	study, err := client.GetStudy(ctx, studyID)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("prolific", "error").Inc()
		return nil, fmt.Errorf("prolific service: get study: %w", err)
	}
	metrics.UpstreamCalls.WithLabelValues("prolific", "ok").Inc()
	return study, nil
}

// TransitionStudy forwards a status action (PUBLISH, PAUSE, START, STOP) for
// the linked study. Caller must be ADMIN of the experiment's organization.
func (s *ProlificService) TransitionStudy(ctx context.Context, callerID, studyID, action string) (*prolific.Study, error) {
	ctx = ensureContext(ctx)

	_, client, err := s.studyClient(ctx, callerID, studyID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	study, err := client.TransitionStudy(ctx, studyID, action)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("prolific", "error").Inc()
		return nil, fmt.Errorf("prolific service: transition study: %w", err)
	}
	metrics.UpstreamCalls.WithLabelValues("prolific", "ok").Inc()
	return study, nil
}

// ListSubmissions returns the study's submissions from the external service.
func (s *ProlificService) ListSubmissions(ctx context.Context, callerID, studyID string) ([]prolific.Submission, error) {
	ctx = ensureContext(ctx)

	_, client, err := s.studyClient(ctx, callerID, studyID, models.RoleMember)
	if err != nil {
		return nil, err
	}

	submissions, err := client.ListSubmissions(ctx, studyID)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("prolific", "error").Inc()
		return nil, fmt.Errorf("prolific service: list submissions: %w", err)
	}
	metrics.UpstreamCalls.WithLabelValues("prolific", "ok").Inc()
	return submissions, nil
}

// ProcessSubmissions approves or rejects a batch of submissions. The action is
// validated before any external call so a typo never half-applies a batch.
func (s *ProlificService) ProcessSubmissions(ctx context.Context, callerID, studyID, action string, submissionIDs []string, reason string) error {
	ctx = ensureContext(ctx)

	action = strings.ToUpper(strings.TrimSpace(action))
	if action != "APPROVE" && action != "REJECT" {
		return ErrInvalidSubmissionAction
	}
	submissionIDs = normaliseIDs(submissionIDs)
	if len(submissionIDs) == 0 {
		return errors.New("prolific service: at least one submission id is required")
	}

	_, client, err := s.studyClient(ctx, callerID, studyID, models.RoleAdmin)
	if err != nil {
		return err
	}

	var errs error
	for _, id := range submissionIDs {
		if err := client.TransitionSubmission(ctx, id, action, reason); err != nil {
			metrics.UpstreamCalls.WithLabelValues("prolific", "error").Inc()
			errs = multierr.Append(errs, fmt.Errorf("submission %s: %w", id, err))
			continue
		}
		metrics.UpstreamCalls.WithLabelValues("prolific", "ok").Inc()
	}
	if errs != nil {
		return fmt.Errorf("prolific service: process submissions: %w", errs)
	}
	return nil
}

// Sync pulls the study and its submissions and reconciles local participant
// and submission rows, returning counts of what changed.
func (s *ProlificService) Sync(ctx context.Context, callerID, studyID string) (*SyncResult, error) {
	ctx = ensureContext(ctx)

	experiment, client, err := s.studyClient(ctx, callerID, studyID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	study, err := client.GetStudy(ctx, studyID)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("prolific", "error").Inc()
		return nil, fmt.Errorf("prolific service: sync study: %w", err)
	}
	remote, err := client.ListSubmissions(ctx, studyID)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("prolific", "error").Inc()
		return nil, fmt.Errorf("prolific service: sync submissions: %w", err)
	}
	metrics.UpstreamCalls.WithLabelValues("prolific", "ok").Inc()

	result := &SyncResult{StudyStatus: study.Status}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sub := range remote {
			if err := s.reconcileParticipant(tx, experiment.ID, sub, result); err != nil {
				return err
			}
			if err := s.reconcileSubmission(tx, experiment.ID, sub, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("prolific service: %w", err)
	}

	s.log.Info("study synced",
		zap.String("experiment_id", experiment.ID),
		zap.String("study_id", studyID),
		zap.Int("submissions", len(remote)),
	)
	return result, nil
}

func (s *ProlificService) reconcileParticipant(tx *gorm.DB, experimentID string, sub prolific.Submission, result *SyncResult) error {
	if sub.ParticipantID == "" {
		return nil
	}

	var participant models.Participant
	err := tx.Where("experiment_id = ? AND prolific_pid = ?", experimentID, sub.ParticipantID).
		First(&participant).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		participant = models.Participant{
			ExperimentID: experimentID,
			ProlificPID:  sub.ParticipantID,
			Status:       sub.Status,
		}
		if err := tx.Create(&participant).Error; err != nil {
			return fmt.Errorf("create participant: %w", err)
		}
		result.ParticipantsCreated++
		return nil
	case err != nil:
		return fmt.Errorf("lookup participant: %w", err)
	}

	if participant.Status != sub.Status {
		if err := tx.Model(&participant).Update("status", sub.Status).Error; err != nil {
			return fmt.Errorf("update participant: %w", err)
		}
		result.ParticipantsUpdated++
	}
	return nil
}

func (s *ProlificService) reconcileSubmission(tx *gorm.DB, experimentID string, sub prolific.Submission, result *SyncResult) error {
	var local models.Submission
	err := tx.Where("experiment_id = ? AND prolific_submission_id = ?", experimentID, sub.ID).
		First(&local).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		local = models.Submission{
			ExperimentID:         experimentID,
			ParticipantID:        sub.ParticipantID,
			ProlificSubmissionID: &sub.ID,
			Status:               sub.Status,
		}
		if err := tx.Create(&local).Error; err != nil {
			return fmt.Errorf("create submission: %w", err)
		}
		result.SubmissionsCreated++
		return nil
	case err != nil:
		return fmt.Errorf("lookup submission: %w", err)
	}

	if local.Status != sub.Status {
		if err := tx.Model(&local).Update("status", sub.Status).Error; err != nil {
			return fmt.Errorf("update submission: %w", err)
		}
		result.SubmissionsUpdated++
	}
	return nil
}

// experimentClient resolves an experiment, enforces the caller's role in its
// organization and builds the organization-scoped client.
func (s *ProlificService) experimentClient(ctx context.Context, callerID, experimentID string, min models.Role) (*models.Experiment, *prolific.Client, error) {
	var experiment models.Experiment
	err := s.db.WithContext(ctx).First(&experiment, "id = ?", experimentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrExperimentNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("prolific service: load experiment: %w", err)
	}

	if err := s.authorizeExperiment(ctx, callerID, &experiment, min); err != nil {
		return nil, nil, err
	}

	client, err := s.clientFor(ctx, experiment.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	return &experiment, client, nil
}

// studyClient is experimentClient keyed by the external study id.
func (s *ProlificService) studyClient(ctx context.Context, callerID, studyID string, min models.Role) (*models.Experiment, *prolific.Client, error) {
	var experiment models.Experiment
	err := s.db.WithContext(ctx).First(&experiment, "prolific_study_id = ?", studyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrStudyNotLinked
	}
	if err != nil {
		return nil, nil, fmt.Errorf("prolific service: load experiment: %w", err)
	}

	if err := s.authorizeExperiment(ctx, callerID, &experiment, min); err != nil {
		return nil, nil, err
	}

	client, err := s.clientFor(ctx, experiment.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	return &experiment, client, nil
}

// authorizeExperiment checks the caller against the experiment's organization,
// falling back to creator identity for experiments without one.
func (s *ProlificService) authorizeExperiment(ctx context.Context, callerID string, experiment *models.Experiment, min models.Role) error {
	if experiment.OrganizationID == nil {
		if experiment.CreatedBy != callerID {
			return ErrNotMember
		}
		return nil
	}
	_, err := s.access.Require(ctx, *experiment.OrganizationID, callerID, min)
	return err
}

// clientFor builds the recruitment client for an organization, decrypting its
// stored token or falling back to the deployment default.
func (s *ProlificService) clientFor(ctx context.Context, orgID *string) (*prolific.Client, error) {
	token := s.defaultToken

	if orgID != nil {
		var org models.Organization
		if err := s.db.WithContext(ctx).First(&org, "id = ?", *orgID).Error; err != nil {
			return nil, fmt.Errorf("prolific service: load organization: %w", err)
		}
		if org.ProlificTokenCiphertext != "" {
			plaintext, err := crypto.Decrypt(org.ProlificTokenCiphertext, s.vaultKey)
			if err != nil {
				return nil, fmt.Errorf("prolific service: decrypt token: %w", err)
			}
			token = string(plaintext)
		}
	}

	if token == "" {
		return nil, ErrNoCredentials
	}
	return s.newClient(token)
}
