package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/internal/database/testutil"
	"github.com/evalforge/evalforge/internal/models"
)

func TestAccessServiceRequire(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	org := &models.Organization{Name: "Lab"}
	require.NoError(t, db.Create(org).Error)
	require.NoError(t, db.Create(&models.OrganizationMember{
		OrganizationID: org.ID,
		UserID:         "user-admin",
		Role:           models.RoleAdmin,
		JoinedAt:       time.Now(),
	}).Error)

	access, err := NewAccessService(db)
	require.NoError(t, err)

	member, err := access.Require(context.Background(), org.ID, "user-admin", models.RoleMember)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, member.Role)

	_, err = access.Require(context.Background(), org.ID, "user-admin", models.RoleOwner)
	require.ErrorIs(t, err, ErrInsufficientRole)

	_, err = access.Require(context.Background(), org.ID, "stranger", models.RoleViewer)
	require.ErrorIs(t, err, ErrNotMember)

	_, err = access.Require(context.Background(), org.ID, "", models.RoleViewer)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRoleOrdering(t *testing.T) {
	require.True(t, models.RoleOwner.AtLeast(models.RoleAdmin))
	require.True(t, models.RoleAdmin.AtLeast(models.RoleMember))
	require.True(t, models.RoleMember.AtLeast(models.RoleViewer))
	require.False(t, models.RoleViewer.AtLeast(models.RoleMember))
	require.False(t, models.Role("bogus").Valid())
	require.False(t, models.RoleOwner.Invitable())
	require.True(t, models.RoleAdmin.Invitable())
}
