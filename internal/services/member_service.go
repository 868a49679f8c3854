package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/evalforge/evalforge/internal/identity"
	"github.com/evalforge/evalforge/internal/models"
	"github.com/evalforge/evalforge/pkg/logger"
	"github.com/evalforge/evalforge/pkg/metrics"
)

var (
	// ErrMemberNotFound indicates the user holds no membership in the organization.
	ErrMemberNotFound = errors.New("member service: member not found")

	// ErrLastOwner indicates the operation would leave the organization
	// without any OWNER.
	ErrLastOwner = errors.New("member service: organization must retain at least one owner")

	// ErrInvalidRole indicates the requested role is not recognised.
	ErrInvalidRole = errors.New("member service: invalid role")
)

// MemberView is a membership enriched with profile data from the identity
// provider when available.
type MemberView struct {
	models.OrganizationMember

	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// MemberService manages organization memberships and enforces the invariant
// that an organization always keeps at least one OWNER.
type MemberService struct {
	db       *gorm.DB
	provider identity.Provider
	log      *zap.Logger
}

// NewMemberService constructs a MemberService.
func NewMemberService(db *gorm.DB, provider identity.Provider) (*MemberService, error) {
	if db == nil {
		return nil, errors.New("member service: db is required")
	}
	return &MemberService{
		db:       db,
		provider: provider,
		log:      logger.WithModule("members"),
	}, nil
}

// List returns the organization's members enriched with identity-provider
// profile data. Enrichment is best-effort; a provider failure degrades to the
// bare membership rows.
func (s *MemberService) List(ctx context.Context, orgID string) ([]MemberView, error) {
	ctx = ensureContext(ctx)

	var members []models.OrganizationMember
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("member service: list members: %w", err)
	}

	views := make([]MemberView, 0, len(members))
	for _, member := range members {
		views = append(views, MemberView{OrganizationMember: member})
	}

	if s.provider == nil {
		return views, nil
	}

	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err != nil || org.TeamID == nil {
		return views, nil
	}

	teamUsers, err := s.provider.ListTeamUsers(ctx, *org.TeamID)
	if err != nil {
		metrics.MirrorFailures.WithLabelValues("team.list_users").Inc()
		s.log.Warn("identity team user listing failed",
			zap.String("organization_id", orgID),
			zap.Error(err),
		)
		return views, nil
	}

	profiles := make(map[string]identity.TeamUser, len(teamUsers))
	for _, tu := range teamUsers {
		profiles[tu.ID] = tu
	}
	for i := range views {
		if profile, ok := profiles[views[i].UserID]; ok {
			views[i].Email = profile.PrimaryEmail
			views[i].DisplayName = profile.DisplayName
			if profile.TeamDisplayName != "" {
				views[i].DisplayName = profile.TeamDisplayName
			}
		}
	}

	return views, nil
}

// UpdateRole changes a member's role. Demoting the last OWNER is refused.
func (s *MemberService) UpdateRole(ctx context.Context, orgID, userID string, role models.Role) (*models.OrganizationMember, error) {
	ctx = ensureContext(ctx)

	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	var member models.OrganizationMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).
			Where("organization_id = ? AND user_id = ?", orgID, userID).
			First(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return fmt.Errorf("load member: %w", err)
		}

		if member.Role == models.RoleOwner && role != models.RoleOwner {
			remaining, err := s.ownerCountLocked(tx, orgID)
			if err != nil {
				return err
			}
			if remaining <= 1 {
				return ErrLastOwner
			}
		}

		member.Role = role
		if err := tx.Model(&member).Update("role", role).Error; err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) || errors.Is(err, ErrLastOwner) {
			return nil, err
		}
		return nil, fmt.Errorf("member service: %w", err)
	}

	return &member, nil
}

// Remove deletes a member from the organization. Removing the last OWNER is
// refused. The identity-provider team membership is removed best-effort.
func (s *MemberService) Remove(ctx context.Context, orgID, userID string) error {
	ctx = ensureContext(ctx)

	var removed models.OrganizationMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).
			Where("organization_id = ? AND user_id = ?", orgID, userID).
			First(&removed).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return fmt.Errorf("load member: %w", err)
		}

		if removed.Role == models.RoleOwner {
			remaining, err := s.ownerCountLocked(tx, orgID)
			if err != nil {
				return err
			}
			if remaining <= 1 {
				return ErrLastOwner
			}
		}

		if err := tx.Delete(&removed).Error; err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) || errors.Is(err, ErrLastOwner) {
			return err
		}
		return fmt.Errorf("member service: %w", err)
	}

	s.mirrorRemoval(ctx, orgID, userID)
	return nil
}

// Leave removes the caller's own membership, subject to the same last-owner
// invariant as Remove.
func (s *MemberService) Leave(ctx context.Context, orgID, userID string) error {
	return s.Remove(ctx, orgID, userID)
}

// Add inserts a membership row directly, used when an invitation is accepted.
func (s *MemberService) Add(ctx context.Context, orgID, userID string, role models.Role) (*models.OrganizationMember, error) {
	ctx = ensureContext(ctx)

	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	member := &models.OrganizationMember{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
		JoinedAt:       time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("member service: user already a member: %w", err)
		}
		return nil, fmt.Errorf("member service: add member: %w", err)
	}
	return member, nil
}

// ownerCountLocked locks the organization's OWNER rows for the duration of
// the transaction and returns how many there are. Aggregates cannot carry a
// FOR UPDATE clause, so the rows are fetched.
func (s *MemberService) ownerCountLocked(tx *gorm.DB, orgID string) (int, error) {
	var owners []models.OrganizationMember
	err := lockForUpdate(tx).
		Where("organization_id = ? AND role = ?", orgID, models.RoleOwner).
		Find(&owners).Error
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return len(owners), nil
}

func (s *MemberService) mirrorRemoval(ctx context.Context, orgID, userID string) {
	if s.provider == nil {
		return
	}
	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err != nil || org.TeamID == nil {
		return
	}
	if err := s.provider.RemoveFromTeam(ctx, *org.TeamID, userID); err != nil {
		metrics.MirrorFailures.WithLabelValues("team.remove_user").Inc()
		s.log.Warn("identity team removal failed",
			zap.String("organization_id", orgID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
