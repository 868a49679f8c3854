package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/evalforge/evalforge/internal/models"
	"github.com/evalforge/evalforge/internal/storage"
	"github.com/evalforge/evalforge/pkg/logger"
	"github.com/evalforge/evalforge/pkg/metrics"
)

var (
	// ErrVideoNotFound indicates no object exists under the requested key.
	ErrVideoNotFound = errors.New("video service: video not found")

	// ErrVideoForbidden indicates the caller may not access the key. Paths
	// outside the recognised shapes are denied, never allowed by default.
	ErrVideoForbidden = errors.New("video service: access denied")
)

// VideoContent is a fully buffered video ready to be written to a response.
type VideoContent struct {
	Data          []byte
	ContentType   string
	ContentLength int64
	ETag          string
	LastModified  string
	CacheControl  string
}

// UploadVideoInput carries an upload's payload and placement.
type UploadVideoInput struct {
	Name           string
	ContentType    string
	Data           []byte
	OrganizationID *string
	ExperimentID   *string
}

// VideoService authorizes and serves video objects through the storage proxy.
type VideoService struct {
	db     *gorm.DB
	store  *storage.Client
	access *AccessService
	log    *zap.Logger
}

// NewVideoService constructs a VideoService.
func NewVideoService(db *gorm.DB, store *storage.Client, access *AccessService) (*VideoService, error) {
	if db == nil {
		return nil, errors.New("video service: db is required")
	}
	if store == nil {
		return nil, errors.New("video service: storage client is required")
	}
	if access == nil {
		return nil, errors.New("video service: access service is required")
	}
	return &VideoService{
		db:     db,
		store:  store,
		access: access,
		log:    logger.WithModule("videos"),
	}, nil
}

// Authorize decides whether the caller may fetch the key. Library keys are
// checked against the video record's organization; experiment keys against
// the experiment's organization. Unrecognised key shapes are denied.
func (s *VideoService) Authorize(ctx context.Context, callerID, key string) error {
	ctx = ensureContext(ctx)

	key = strings.TrimLeft(key, "/")
	switch {
	case strings.HasPrefix(key, "library/"):
		return s.authorizeLibrary(ctx, callerID, key)
	case strings.HasPrefix(key, "experiments/"):
		return s.authorizeExperiment(ctx, callerID, key)
	default:
		return ErrVideoForbidden
	}
}

// Fetch authorizes, retrieves and fully buffers the object for the key.
func (s *VideoService) Fetch(ctx context.Context, callerID, key string) (*VideoContent, error) {
	ctx = ensureContext(ctx)

	if err := s.Authorize(ctx, callerID, key); err != nil {
		return nil, err
	}

	object, err := s.store.GetObject(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("video service: fetch %q: %w", key, err)
	}
	defer object.Body.Close()

	data, err := io.ReadAll(object.Body)
	if err != nil {
		return nil, fmt.Errorf("video service: read %q: %w", key, err)
	}

	metrics.VideoBytesServed.Add(float64(len(data)))

	return &VideoContent{
		Data:          data,
		ContentType:   object.ContentType,
		ContentLength: int64(len(data)),
		ETag:          object.ETag,
		LastModified:  object.LastModified,
		CacheControl:  object.CacheControl,
	}, nil
}

// List returns video records visible to the caller, newest first: shared
// library videos plus those of organizations the caller belongs to.
func (s *VideoService) List(ctx context.Context, callerID string) ([]models.Video, error) {
	ctx = ensureContext(ctx)

	var orgIDs []string
	err := s.db.WithContext(ctx).Model(&models.OrganizationMember{}).
		Where("user_id = ?", callerID).
		Pluck("organization_id", &orgIDs).Error
	if err != nil {
		return nil, fmt.Errorf("video service: list memberships: %w", err)
	}

	query := s.db.WithContext(ctx).Order("created_at DESC")
	if len(orgIDs) > 0 {
		query = query.Where("organization_id IS NULL OR organization_id IN ?", orgIDs)
	} else {
		query = query.Where("organization_id IS NULL")
	}

	var videos []models.Video
	if err := query.Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("video service: list videos: %w", err)
	}
	return videos, nil
}

// Upload stores the payload and records the Video row. Returns the record and
// the proxy URL clients should use.
func (s *VideoService) Upload(ctx context.Context, callerID string, input UploadVideoInput) (*models.Video, string, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, "", errors.New("video service: name is required")
	}
	if len(input.Data) == 0 {
		return nil, "", errors.New("video service: payload is empty")
	}

	if input.OrganizationID != nil {
		if _, err := s.access.Require(ctx, *input.OrganizationID, callerID, models.RoleAdmin); err != nil {
			return nil, "", err
		}
	}

	key := storage.LibraryKey(name)
	if input.ExperimentID != nil {
		key = fmt.Sprintf("experiments/%s/%s", *input.ExperimentID, name)
	}

	if err := s.store.PutObject(ctx, key, input.Data, input.ContentType); err != nil {
		return nil, "", fmt.Errorf("video service: upload %q: %w", key, err)
	}

	video := &models.Video{
		Key:            key,
		Name:           name,
		ContentType:    input.ContentType,
		SizeBytes:      int64(len(input.Data)),
		OrganizationID: input.OrganizationID,
		ExperimentID:   input.ExperimentID,
	}
	if err := s.db.WithContext(ctx).Create(video).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, "", fmt.Errorf("video service: key %q already exists: %w", key, err)
		}
		return nil, "", fmt.Errorf("video service: record video: %w", err)
	}

	s.log.Info("video uploaded",
		zap.String("key", key),
		zap.Int64("size_bytes", video.SizeBytes),
	)
	return video, s.store.ProxyVideoURL(key), nil
}

func (s *VideoService) authorizeLibrary(ctx context.Context, callerID, key string) error {
	var video models.Video
	err := s.db.WithContext(ctx).First(&video, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Unrecorded library objects stay shared, matching pre-registry uploads.
		return nil
	}
	if err != nil {
		return fmt.Errorf("video service: lookup %q: %w", key, err)
	}

	if video.OrganizationID == nil {
		return nil
	}
	if _, err := s.access.Membership(ctx, *video.OrganizationID, callerID); err != nil {
		return ErrVideoForbidden
	}
	return nil
}

func (s *VideoService) authorizeExperiment(ctx context.Context, callerID, key string) error {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) < 3 || parts[1] == "" {
		return ErrVideoForbidden
	}
	experimentID := parts[1]

	var experiment models.Experiment
	err := s.db.WithContext(ctx).First(&experiment, "id = ?", experimentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrVideoForbidden
	}
	if err != nil {
		return fmt.Errorf("video service: lookup experiment %q: %w", experimentID, err)
	}

	if experiment.OrganizationID == nil {
		if experiment.CreatedBy == callerID {
			return nil
		}
		return ErrVideoForbidden
	}
	if _, err := s.access.Membership(ctx, *experiment.OrganizationID, callerID); err != nil {
		return ErrVideoForbidden
	}
	return nil
}
