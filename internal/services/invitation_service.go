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
	"github.com/evalforge/evalforge/pkg/crypto"
	"github.com/evalforge/evalforge/pkg/logger"
	"github.com/evalforge/evalforge/pkg/metrics"
)

const (
	defaultInvitationTTL       = 7 * 24 * time.Hour
	defaultInvitationTokenSize = 32
)

var (
	// ErrInvitationNotFound indicates the invitation does not exist in the organization.
	ErrInvitationNotFound = errors.New("invitation service: invitation not found")

	// ErrInvitationConflict indicates a live invitation already exists for the email.
	ErrInvitationConflict = errors.New("invitation service: a pending invitation already exists for this email")

	// ErrAlreadyMember indicates the invited email belongs to an existing member.
	ErrAlreadyMember = errors.New("invitation service: user is already a member of this organization")

	// ErrRoleNotInvitable indicates the requested role cannot be granted by invitation.
	ErrRoleNotInvitable = errors.New("invitation service: role cannot be granted by invitation")
)

// InvitationOption customises an InvitationService.
type InvitationOption func(*InvitationService)

// WithClock overrides the time source, used by tests to pin expiry boundaries.
func WithClock(now func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithExpiry overrides the invitation lifetime.
func WithExpiry(ttl time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithTokenSize overrides the random token length in bytes.
func WithTokenSize(size int) InvitationOption {
	return func(s *InvitationService) {
		if size > 0 {
			s.tokenSize = size
		}
	}
}

// InvitationService manages membership invitations: issuing, listing,
// cancelling and purging expired records.
type InvitationService struct {
	db        *gorm.DB
	provider  identity.Provider
	log       *zap.Logger
	now       func() time.Time
	ttl       time.Duration
	tokenSize int
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(db *gorm.DB, provider identity.Provider, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}
	s := &InvitationService{
		db:        db,
		provider:  provider,
		log:       logger.WithModule("invitations"),
		now:       time.Now,
		ttl:       defaultInvitationTTL,
		tokenSize: defaultInvitationTokenSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateInvitationInput captures the attributes of a new invitation.
type CreateInvitationInput struct {
	OrganizationID string
	Email          string
	Role           models.Role
}

// Create issues an invitation for the email at the given role. If the email
// already belongs to a member the call fails; if a live invitation exists the
// call conflicts; an expired or accepted invitation is overwritten with a
// fresh token and expiry.
func (s *InvitationService) Create(ctx context.Context, input CreateInvitationInput) (*models.OrganizationInvitation, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, errors.New("invitation service: email is required")
	}
	if !input.Role.Invitable() {
		return nil, ErrRoleNotInvitable
	}

	if err := s.rejectExistingMember(ctx, input.OrganizationID, email); err != nil {
		return nil, err
	}

	token, err := crypto.GenerateToken(s.tokenSize)
	if err != nil {
		return nil, fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now()
	invitation := &models.OrganizationInvitation{
		OrganizationID: input.OrganizationID,
		Email:          email,
		Role:           input.Role,
		Token:          token,
		ExpiresAt:      now.Add(s.ttl),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.OrganizationInvitation
		findErr := tx.Where("organization_id = ? AND email = ?", input.OrganizationID, email).
			First(&existing).Error
		switch {
		case findErr == nil:
			if existing.Live(now) {
				return ErrInvitationConflict
			}
			// Stale record: reuse the row with fresh token, role and expiry.
			updates := map[string]any{
				"role":        input.Role,
				"token":       token,
				"expires_at":  invitation.ExpiresAt,
				"accepted_at": nil,
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return fmt.Errorf("refresh invitation: %w", err)
			}
			existing.Role = input.Role
			existing.Token = token
			existing.ExpiresAt = invitation.ExpiresAt
			existing.AcceptedAt = nil
			*invitation = existing
			return nil
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			if err := tx.Create(invitation).Error; err != nil {
				if isUniqueConstraintError(err) {
					return ErrInvitationConflict
				}
				return fmt.Errorf("create invitation: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("lookup invitation: %w", findErr)
		}
	})
	if err != nil {
		if errors.Is(err, ErrInvitationConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("invitation service: %w", err)
	}

	s.mirrorInvite(ctx, input.OrganizationID, email)
	return invitation, nil
}

// List returns the organization's open invitations, newest first. Accepted
// and expired records are omitted.
func (s *InvitationService) List(ctx context.Context, orgID string) ([]models.OrganizationInvitation, error) {
	ctx = ensureContext(ctx)

	var invitations []models.OrganizationInvitation
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND accepted_at IS NULL AND expires_at > ?", orgID, s.now()).
		Order("created_at DESC").
		Find(&invitations).Error
	if err != nil {
		return nil, fmt.Errorf("invitation service: list invitations: %w", err)
	}
	return invitations, nil
}

// Cancel deletes a pending invitation.
func (s *InvitationService) Cancel(ctx context.Context, orgID, invitationID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, invitationID).
		Delete(&models.OrganizationInvitation{})
	if result.Error != nil {
		return fmt.Errorf("invitation service: cancel invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

// PurgeExpired removes unaccepted invitations whose expiry has passed and
// returns the number deleted.
func (s *InvitationService) PurgeExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("expires_at < ? AND accepted_at IS NULL", s.now()).
		Delete(&models.OrganizationInvitation{})
	if result.Error != nil {
		return 0, fmt.Errorf("invitation service: purge expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// rejectExistingMember fails when the email resolves to a current member. An
// identity lookup miss means the user has no account yet, which is fine.
func (s *InvitationService) rejectExistingMember(ctx context.Context, orgID, email string) error {
	if s.provider == nil {
		return nil
	}
	user, err := s.provider.FindUserByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		return nil
	}
	if err != nil {
		metrics.MirrorFailures.WithLabelValues("user.lookup").Inc()
		s.log.Warn("identity lookup failed during invite",
			zap.String("organization_id", orgID),
			zap.Error(err),
		)
		return nil
	}

	var count int64
	err = s.db.WithContext(ctx).Model(&models.OrganizationMember{}).
		Where("organization_id = ? AND user_id = ?", orgID, user.ID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("invitation service: membership check: %w", err)
	}
	if count > 0 {
		return ErrAlreadyMember
	}
	return nil
}

func (s *InvitationService) mirrorInvite(ctx context.Context, orgID, email string) {
	if s.provider == nil {
		return
	}
	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err != nil || org.TeamID == nil {
		return
	}
	if err := s.provider.InviteToTeam(ctx, *org.TeamID, email); err != nil {
		metrics.MirrorFailures.WithLabelValues("team.invite").Inc()
		s.log.Warn("identity team invite failed",
			zap.String("organization_id", orgID),
			zap.Error(err),
		)
	}
}
