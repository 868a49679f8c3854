package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/evalforge/evalforge/internal/database/testutil"
	"github.com/evalforge/evalforge/internal/models"
	"github.com/evalforge/evalforge/internal/services"
)

func seedInvitations(t *testing.T, db *gorm.DB, now time.Time) {
	t.Helper()

	org := &models.Organization{Name: "Maintenance Org"}
	require.NoError(t, db.Create(org).Error)

	accepted := now.Add(-time.Hour)
	rows := []models.OrganizationInvitation{
		{OrganizationID: org.ID, Email: "live@example.com", Role: models.RoleMember, Token: "t1", ExpiresAt: now.Add(24 * time.Hour)},
		{OrganizationID: org.ID, Email: "expired@example.com", Role: models.RoleMember, Token: "t2", ExpiresAt: now.Add(-24 * time.Hour)},
		{OrganizationID: org.ID, Email: "joined@example.com", Role: models.RoleMember, Token: "t3", ExpiresAt: now.Add(-24 * time.Hour), AcceptedAt: &accepted},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}
}

func remainingEmails(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	var emails []string
	require.NoError(t, db.Model(&models.OrganizationInvitation{}).Order("email").Pluck("email", &emails).Error)
	return emails
}

func TestRunOncePurgesExpiredInvitations(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Now().UTC()
	seedInvitations(t, db, now)

	invitations, err := services.NewInvitationService(db, nil)
	require.NoError(t, err)

	cleaner := NewCleaner(invitations)
	require.NoError(t, cleaner.RunOnce(context.Background()))

	// Accepted rows are kept as an audit trail, only expired unaccepted ones go.
	require.Equal(t, []string{"joined@example.com", "live@example.com"}, remainingEmails(t, db))
}

func TestRunOnceWithoutInvitationService(t *testing.T) {
	cleaner := NewCleaner(nil)
	require.NoError(t, cleaner.RunOnce(context.Background()))
}

func TestStartSchedulesPurgeJob(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Now().UTC()
	seedInvitations(t, db, now)

	invitations, err := services.NewInvitationService(db, nil)
	require.NoError(t, err)

	// Seconds-resolution cron so the job fires within the test's lifetime.
	c := cron.New(cron.WithSeconds(), cron.WithLogger(cron.DiscardLogger))
	cleaner := NewCleaner(invitations,
		WithCron(c),
		WithInvitationSchedule("* * * * * *"),
	)

	require.NoError(t, cleaner.Start())
	defer func() { <-cleaner.Stop().Done() }()

	require.Eventually(t, func() bool {
		return len(remainingEmails(t, db)) == 2
	}, 5*time.Second, 100*time.Millisecond)
}

func TestStartWithBadScheduleFails(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	invitations, err := services.NewInvitationService(db, nil)
	require.NoError(t, err)

	cleaner := NewCleaner(invitations, WithInvitationSchedule("not a schedule"))
	require.Error(t, cleaner.Start())
}
