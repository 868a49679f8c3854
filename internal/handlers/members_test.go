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

func newMemberHandlerFixture(t *testing.T) (*gorm.DB, *MemberHandler) {
	t.Helper()
	db := testutil.MustOpenTestDB(t)

	access, err := services.NewAccessService(db)
	require.NoError(t, err)
	members, err := services.NewMemberService(db, nil)
	require.NoError(t, err)

	return db, NewMemberHandler(members, access)
}

func TestMemberHandlerUpdateRoleForbiddenForMembers(t *testing.T) {
	db, handler := newMemberHandlerFixture(t)

	org := &models.Organization{Name: "Lab"}
	require.NoError(t, db.Create(org).Error)
	seedMember(t, db, org.ID, "owner-1", models.RoleOwner)
	seedMember(t, db, org.ID, "member-1", models.RoleMember)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "id", Value: org.ID}, {Key: "memberID", Value: "owner-1"}}
	c.Set(middleware.CtxUserIDKey, "member-1")
	c.Request = jsonRequest(t, http.MethodPatch, gin.H{"role": "viewer"})

	handler.UpdateRole(c)

	require.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestMemberHandlerUpdateRolePromotes(t *testing.T) {
	db, handler := newMemberHandlerFixture(t)

	org := &models.Organization{Name: "Lab"}
	require.NoError(t, db.Create(org).Error)
	seedMember(t, db, org.ID, "owner-1", models.RoleOwner)
	seedMember(t, db, org.ID, "member-1", models.RoleMember)

	// Role values are accepted in either case and stored uppercase.
	for i, role := range []string{"admin", "VIEWER"} {
		recorder := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(recorder)
		c.Params = gin.Params{{Key: "id", Value: org.ID}, {Key: "memberID", Value: "member-1"}}
		c.Set(middleware.CtxUserIDKey, "owner-1")
		c.Request = jsonRequest(t, http.MethodPatch, gin.H{"role": role})

		handler.UpdateRole(c)

		require.Equal(t, http.StatusOK, recorder.Code, "role %q", role)

		var member models.OrganizationMember
		require.NoError(t, db.First(&member, "organization_id = ? AND user_id = ?", org.ID, "member-1").Error)
		if i == 0 {
			require.Equal(t, models.RoleAdmin, member.Role)
		} else {
			require.Equal(t, models.RoleViewer, member.Role)
		}
	}
}

func TestMemberHandlerLastOwnerConflict(t *testing.T) {
	db, handler := newMemberHandlerFixture(t)

	org := &models.Organization{Name: "Lab"}
	require.NoError(t, db.Create(org).Error)
	seedMember(t, db, org.ID, "owner-1", models.RoleOwner)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "id", Value: org.ID}, {Key: "memberID", Value: "owner-1"}}
	c.Set(middleware.CtxUserIDKey, "owner-1")
	c.Request = jsonRequest(t, http.MethodPatch, gin.H{"role": "member"})

	handler.UpdateRole(c)

	require.Equal(t, http.StatusConflict, recorder.Code)
	payload := decodeResponse(t, recorder)
	require.Equal(t, "CONFLICT", payload.Error.Code)
}

func TestMemberHandlerUpdateRoleRejectsUnknownRole(t *testing.T) {
	db, handler := newMemberHandlerFixture(t)

	org := &models.Organization{Name: "Lab"}
	require.NoError(t, db.Create(org).Error)
	seedMember(t, db, org.ID, "owner-1", models.RoleOwner)
	seedMember(t, db, org.ID, "member-1", models.RoleMember)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "id", Value: org.ID}, {Key: "memberID", Value: "member-1"}}
	c.Set(middleware.CtxUserIDKey, "owner-1")
	c.Request = jsonRequest(t, http.MethodPatch, gin.H{"role": "superuser"})

	handler.UpdateRole(c)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestMemberHandlerLeave(t *testing.T) {
	db, handler := newMemberHandlerFixture(t)

	org := &models.Organization{Name: "Lab"}
	require.NoError(t, db.Create(org).Error)
	seedMember(t, db, org.ID, "owner-1", models.RoleOwner)
	seedMember(t, db, org.ID, "member-1", models.RoleMember)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "id", Value: org.ID}}
	c.Set(middleware.CtxUserIDKey, "member-1")
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	handler.Leave(c)

	require.Equal(t, http.StatusOK, recorder.Code)

	var count int64
	require.NoError(t, db.Model(&models.OrganizationMember{}).
		Where("organization_id = ?", org.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
