package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/internal/database/testutil"
	"github.com/evalforge/evalforge/internal/models"
)

func TestInvitationCreateAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	org := seedOrgWithMembers(t, db, map[string]models.Role{"owner-1": models.RoleOwner})
	provider := newFakeProvider()

	current := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewInvitationService(db, provider,
		WithClock(func() time.Time { return current }),
	)
	require.NoError(t, err)

	invitation, err := svc.Create(context.Background(), CreateInvitationInput{
		OrganizationID: org.ID,
		Email:          "  Newcomer@Example.COM ",
		Role:           models.RoleMember,
	})
	require.NoError(t, err)
	require.Equal(t, "newcomer@example.com", invitation.Email)
	require.NotEmpty(t, invitation.Token)
	require.Equal(t, current.Add(7*24*time.Hour), invitation.ExpiresAt.UTC())
	require.Equal(t, []string{"team-1/newcomer@example.com"}, provider.invited)

	list, err := svc.List(context.Background(), org.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestInvitationCreateConflictsWhileLive(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	org := seedOrgWithMembers(t, db, map[string]models.Role{"owner-1": models.RoleOwner})

	svc, err := NewInvitationService(db, nil)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInvitationInput{
		OrganizationID: org.ID, Email: "pending@example.com", Role: models.RoleViewer,
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInvitationInput{
		OrganizationID: org.ID, Email: "pending@example.com", Role: models.RoleAdmin,
	})
	require.ErrorIs(t, err, ErrInvitationConflict)
}

func TestInvitationExpiredIsOverwritten(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	org := seedOrgWithMembers(t, db, map[string]models.Role{"owner-1": models.RoleOwner})

	current := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewInvitationService(db, nil,
		WithClock(func() time.Time { return current }),
		WithExpiry(24*time.Hour),
	)
	require.NoError(t, err)

	first, err := svc.Create(context.Background(), CreateInvitationInput{
		OrganizationID: org.ID, Email: "again@example.com", Role: models.RoleViewer,
	})
	require.NoError(t, err)

	// Jump past the expiry and re-invite at a different role.
	current = current.Add(48 * time.Hour)
	second, err := svc.Create(context.Background(), CreateInvitationInput{
		OrganizationID: org.ID, Email: "again@example.com", Role: models.RoleAdmin,
	})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, models.RoleAdmin, second.Role)
	require.NotEqual(t, first.Token, second.Token)
	require.Nil(t, second.AcceptedAt)
	require.True(t, second.Live(current))

	var count int64
	require.NoError(t, db.Model(&models.OrganizationInvitation{}).
		Where("organization_id = ?", org.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestInvitationRejectsExistingMember(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	org := seedOrgWithMembers(t, db, map[string]models.Role{"user-7": models.RoleOwner})

	provider := newFakeProvider()
	provider.addUser("user-7", "taken@example.com", "Taken")

	svc, err := NewInvitationService(db, provider)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInvitationInput{
		OrganizationID: org.ID, Email: "taken@example.com", Role: models.RoleMember,
	})
	require.ErrorIs(t, err, ErrAlreadyMember)
}

func TestInvitationOwnerRoleRejected(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	org := seedOrgWithMembers(t, db, map[string]models.Role{"owner-1": models.RoleOwner})

	svc, err := NewInvitationService(db, nil)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInvitationInput{
		OrganizationID: org.ID, Email: "boss@example.com", Role: models.RoleOwner,
	})
	require.ErrorIs(t, err, ErrRoleNotInvitable)
}

func TestInvitationCancel(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	org := seedOrgWithMembers(t, db, map[string]models.Role{"owner-1": models.RoleOwner})

	svc, err := NewInvitationService(db, nil)
	require.NoError(t, err)

	invitation, err := svc.Create(context.Background(), CreateInvitationInput{
		OrganizationID: org.ID, Email: "cancel@example.com", Role: models.RoleMember,
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Cancel(context.Background(), "other-org", invitation.ID), ErrInvitationNotFound)
	require.NoError(t, svc.Cancel(context.Background(), org.ID, invitation.ID))
	require.ErrorIs(t, svc.Cancel(context.Background(), org.ID, invitation.ID), ErrInvitationNotFound)
}

func TestInvitationPurgeExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	org := seedOrgWithMembers(t, db, map[string]models.Role{"owner-1": models.RoleOwner})

	current := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewInvitationService(db, nil,
		WithClock(func() time.Time { return current }),
		WithExpiry(time.Hour),
	)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInvitationInput{
		OrganizationID: org.ID, Email: "stale@example.com", Role: models.RoleMember,
	})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateInvitationInput{
		OrganizationID: org.ID, Email: "fresh@example.com", Role: models.RoleMember,
	})
	require.NoError(t, err)

	// Accepting protects the record from the purge.
	accepted := current.Add(30 * time.Minute)
	require.NoError(t, db.Model(&models.OrganizationInvitation{}).
		Where("email = ?", "fresh@example.com").
		Update("accepted_at", accepted).Error)

	current = current.Add(2 * time.Hour)
	purged, err := svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	var remaining []models.OrganizationInvitation
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "fresh@example.com", remaining[0].Email)
}
