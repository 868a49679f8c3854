package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/evalforge/evalforge/internal/models"
	"github.com/evalforge/evalforge/pkg/metrics"
)

var (
	// ErrNotAuthenticated indicates no caller identity was supplied.
	ErrNotAuthenticated = errors.New("access: caller is not authenticated")
	// ErrNotMember indicates the caller does not belong to the organization.
	ErrNotMember = errors.New("access: caller is not a member of this organization")
	// ErrInsufficientRole indicates the caller's role is below the required minimum.
	ErrInsufficientRole = errors.New("access: caller role is insufficient")
)

// AccessService resolves a caller's role within an organization and gates
// operations by minimum required role. Every mutating operation in the other
// services runs one of these checks first.
type AccessService struct {
	db *gorm.DB
}

// NewAccessService constructs an AccessService.
func NewAccessService(db *gorm.DB) (*AccessService, error) {
	if db == nil {
		return nil, errors.New("access service: db is required")
	}
	return &AccessService{db: db}, nil
}

// Membership returns the caller's membership row in the organization.
func (s *AccessService) Membership(ctx context.Context, orgID, userID string) (*models.OrganizationMember, error) {
	ctx = ensureContext(ctx)

	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	var member models.OrganizationMember
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, fmt.Errorf("access service: load membership: %w", err)
	}
	return &member, nil
}

// Require verifies the caller holds at least min within the organization,
// returning the membership row on success.
func (s *AccessService) Require(ctx context.Context, orgID, userID string, min models.Role) (*models.OrganizationMember, error) {
	member, err := s.Membership(ctx, orgID, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrNotMember):
			metrics.RoleChecks.WithLabelValues("deny").Inc()
		default:
			metrics.RoleChecks.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	if !member.Role.AtLeast(min) {
		metrics.RoleChecks.WithLabelValues("deny").Inc()
		return nil, ErrInsufficientRole
	}

	metrics.RoleChecks.WithLabelValues("allow").Inc()
	return member, nil
}
