package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/evalforge/evalforge/internal/identity"
	"github.com/evalforge/evalforge/internal/models"
	"github.com/evalforge/evalforge/pkg/crypto"
	"github.com/evalforge/evalforge/pkg/logger"
	"github.com/evalforge/evalforge/pkg/metrics"
)

var (
	// ErrOrganizationNotFound indicates the requested organization does not exist.
	ErrOrganizationNotFound = errors.New("organization service: organization not found")
)

// CreateOrganizationInput captures the attributes required to register an organization.
type CreateOrganizationInput struct {
	Name      string
	CreatorID string
}

// UpdateOrganizationInput represents mutable organization fields. A non-nil
// ProlificToken replaces the stored recruitment credential; an empty string
// clears it.
type UpdateOrganizationInput struct {
	Name          *string
	ProlificToken *string
}

// OrganizationService manages organization lifecycle: creation with the
// founding OWNER membership, settings updates, and cascading deletion.
type OrganizationService struct {
	db       *gorm.DB
	provider identity.Provider
	vaultKey []byte
	log      *zap.Logger
	now      func() time.Time
}

// NewOrganizationService constructs an OrganizationService. The identity
// provider may be nil, in which case team mirroring is skipped entirely.
func NewOrganizationService(db *gorm.DB, provider identity.Provider, vaultKey []byte) (*OrganizationService, error) {
	if db == nil {
		return nil, errors.New("organization service: db is required")
	}
	return &OrganizationService{
		db:       db,
		provider: provider,
		vaultKey: vaultKey,
		log:      logger.WithModule("organizations"),
		now:      time.Now,
	}, nil
}

// Create registers a new organization with the creator as its first OWNER and
// best-effort provisions a linked identity-provider team.
func (s *OrganizationService) Create(ctx context.Context, input CreateOrganizationInput) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.New("organization service: name is required")
	}
	if input.CreatorID == "" {
		return nil, errors.New("organization service: creator id is required")
	}

	org := &models.Organization{Name: name}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return fmt.Errorf("create organization: %w", err)
		}
		member := &models.OrganizationMember{
			OrganizationID: org.ID,
			UserID:         input.CreatorID,
			Role:           models.RoleOwner,
			JoinedAt:       s.now(),
		}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("create founding member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("organization service: %w", err)
	}

	if s.provider != nil {
		teamID, teamErr := s.provider.CreateTeam(ctx, name)
		if teamErr != nil {
			metrics.MirrorFailures.WithLabelValues("team.create").Inc()
			s.log.Warn("identity team creation failed",
				zap.String("organization_id", org.ID),
				zap.Error(teamErr),
			)
		} else if updateErr := s.db.WithContext(ctx).Model(org).Update("team_id", teamID).Error; updateErr == nil {
			org.TeamID = &teamID
		}
	}

	return org, nil
}

// GetByID loads an organization by identifier.
func (s *OrganizationService) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	var org models.Organization
	err := s.db.WithContext(ctx).First(&org, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("organization service: get organization: %w", err)
	}
	return &org, nil
}

// Update modifies organization settings. The recruitment API token is
// encrypted with the vault key before it touches the database.
func (s *OrganizationService) Update(ctx context.Context, id string, input UpdateOrganizationInput) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	org, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}

	if input.Name != nil {
		if name := strings.TrimSpace(*input.Name); name != "" && name != org.Name {
			updates["name"] = name
		}
	}
	if input.ProlificToken != nil {
		token := strings.TrimSpace(*input.ProlificToken)
		if token == "" {
			updates["prolific_token_ciphertext"] = ""
		} else {
			ciphertext, encErr := crypto.Encrypt([]byte(token), s.vaultKey)
			if encErr != nil {
				return nil, fmt.Errorf("organization service: encrypt token: %w", encErr)
			}
			updates["prolific_token_ciphertext"] = ciphertext
		}
	}

	if len(updates) == 0 {
		return org, nil
	}

	if err := s.db.WithContext(ctx).Model(org).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("organization service: update organization: %w", err)
	}

	if err := s.db.WithContext(ctx).First(org, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("organization service: reload organization: %w", err)
	}

	return org, nil
}

// Delete removes an organization and every record it owns. Per experiment the
// children go first (submissions, tasks, participants), then experiments,
// videos, invitations and members, then the organization row itself, all in
// one transaction. The linked identity team is deleted after commit,
// best-effort.
func (s *OrganizationService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	var org models.Organization
	err := s.db.WithContext(ctx).
		Preload("Experiments").
		First(&org, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOrganizationNotFound
	}
	if err != nil {
		return fmt.Errorf("organization service: load organization: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, experiment := range org.Experiments {
			if err := tx.Where("experiment_id = ?", experiment.ID).Delete(&models.Submission{}).Error; err != nil {
				return fmt.Errorf("delete submissions: %w", err)
			}
			if err := tx.Where("experiment_id = ?", experiment.ID).Delete(&models.ComparisonTask{}).Error; err != nil {
				return fmt.Errorf("delete tasks: %w", err)
			}
			if err := tx.Where("experiment_id = ?", experiment.ID).Delete(&models.Participant{}).Error; err != nil {
				return fmt.Errorf("delete participants: %w", err)
			}
		}

		if err := tx.Where("organization_id = ?", org.ID).Delete(&models.Experiment{}).Error; err != nil {
			return fmt.Errorf("delete experiments: %w", err)
		}
		if err := tx.Where("organization_id = ?", org.ID).Delete(&models.Video{}).Error; err != nil {
			return fmt.Errorf("delete videos: %w", err)
		}
		if err := tx.Where("organization_id = ?", org.ID).Delete(&models.OrganizationInvitation{}).Error; err != nil {
			return fmt.Errorf("delete invitations: %w", err)
		}
		if err := tx.Where("organization_id = ?", org.ID).Delete(&models.OrganizationMember{}).Error; err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
		if err := tx.Delete(&models.Organization{}, "id = ?", org.ID).Error; err != nil {
			return fmt.Errorf("delete organization: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("organization service: %w", err)
	}

	if s.provider != nil && org.TeamID != nil {
		if teamErr := s.provider.DeleteTeam(ctx, *org.TeamID); teamErr != nil {
			metrics.MirrorFailures.WithLabelValues("team.delete").Inc()
			s.log.Warn("identity team deletion failed",
				zap.String("organization_id", org.ID),
				zap.String("team_id", *org.TeamID),
				zap.Error(teamErr),
			)
		}
	}

	return nil
}
