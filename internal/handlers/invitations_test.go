package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/evalforge/evalforge/internal/database/testutil"
	"github.com/evalforge/evalforge/internal/middleware"
	"github.com/evalforge/evalforge/internal/models"
	"github.com/evalforge/evalforge/internal/services"
)

func newInvitationHandlerFixture(t *testing.T) (*gorm.DB, *InvitationHandler) {
	t.Helper()
	db := testutil.MustOpenTestDB(t)

	access, err := services.NewAccessService(db)
	require.NoError(t, err)
	invitations, err := services.NewInvitationService(db, nil)
	require.NoError(t, err)

	return db, NewInvitationHandler(invitations, access)
}

func TestInvitationHandlerCreate(t *testing.T) {
	db, handler := newInvitationHandlerFixture(t)

	org := &models.Organization{Name: "Lab"}
	require.NoError(t, db.Create(org).Error)
	seedMember(t, db, org.ID, "admin-1", models.RoleAdmin)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "id", Value: org.ID}}
	c.Set(middleware.CtxUserIDKey, "admin-1")
	c.Request = jsonRequest(t, http.MethodPost, gin.H{"email": "alice@example.com", "role": "member"})

	handler.Create(c)

	require.Equal(t, http.StatusCreated, recorder.Code)
	payload := decodeResponse(t, recorder)
	require.True(t, payload.Success)

	data, ok := payload.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "alice@example.com", data["email"])
	require.Equal(t, "MEMBER", data["role"])
	require.NotEmpty(t, data["token"])

	var invitation models.OrganizationInvitation
	require.NoError(t, db.First(&invitation, "organization_id = ?", org.ID).Error)
	require.Equal(t, models.RoleMember, invitation.Role)
}

func TestInvitationHandlerCreateRejectsOwnerRole(t *testing.T) {
	db, handler := newInvitationHandlerFixture(t)

	org := &models.Organization{Name: "Lab"}
	require.NoError(t, db.Create(org).Error)
	seedMember(t, db, org.ID, "admin-1", models.RoleAdmin)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "id", Value: org.ID}}
	c.Set(middleware.CtxUserIDKey, "admin-1")
	c.Request = jsonRequest(t, http.MethodPost, gin.H{"email": "boss@example.com", "role": "OWNER"})

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	payload := decodeResponse(t, recorder)
	require.Equal(t, "BAD_REQUEST", payload.Error.Code)
}

func TestInvitationHandlerCreateForbiddenForMembers(t *testing.T) {
	db, handler := newInvitationHandlerFixture(t)

	org := &models.Organization{Name: "Lab"}
	require.NoError(t, db.Create(org).Error)
	seedMember(t, db, org.ID, "member-1", models.RoleMember)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "id", Value: org.ID}}
	c.Set(middleware.CtxUserIDKey, "member-1")
	c.Request = jsonRequest(t, http.MethodPost, gin.H{"email": "alice@example.com", "role": "member"})

	handler.Create(c)

	require.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestInvitationHandlerListHidesTokens(t *testing.T) {
	db, handler := newInvitationHandlerFixture(t)

	org := &models.Organization{Name: "Lab"}
	require.NoError(t, db.Create(org).Error)
	seedMember(t, db, org.ID, "admin-1", models.RoleAdmin)

	create := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(create)
	c.Params = gin.Params{{Key: "id", Value: org.ID}}
	c.Set(middleware.CtxUserIDKey, "admin-1")
	c.Request = jsonRequest(t, http.MethodPost, gin.H{"email": "alice@example.com", "role": "viewer"})
	handler.Create(c)
	require.Equal(t, http.StatusCreated, create.Code)

	recorder := httptest.NewRecorder()
	c, _ = gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "id", Value: org.ID}}
	c.Set(middleware.CtxUserIDKey, "admin-1")
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeResponse(t, recorder)
	data, ok := payload.Data.(map[string]any)
	require.True(t, ok)
	list, ok := data["invitations"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)

	entry, ok := list[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "alice@example.com", entry["email"])
	require.NotContains(t, entry, "token")
}
