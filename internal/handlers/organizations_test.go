package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/evalforge/evalforge/internal/database/testutil"
	"github.com/evalforge/evalforge/internal/middleware"
	"github.com/evalforge/evalforge/internal/models"
	"github.com/evalforge/evalforge/internal/services"
	"github.com/evalforge/evalforge/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testVaultKey = []byte("0123456789abcdef0123456789abcdef")

func jsonRequest(t *testing.T, method string, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func seedMember(t *testing.T, db *gorm.DB, orgID, userID string, role models.Role) {
	t.Helper()
	require.NoError(t, db.Create(&models.OrganizationMember{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
		JoinedAt:       time.Now(),
	}).Error)
}

func newOrgHandlerFixture(t *testing.T) (*gorm.DB, *OrganizationHandler) {
	t.Helper()
	db := testutil.MustOpenTestDB(t)

	access, err := services.NewAccessService(db)
	require.NoError(t, err)
	orgs, err := services.NewOrganizationService(db, nil, testVaultKey)
	require.NoError(t, err)

	return db, NewOrganizationHandler(orgs, access)
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var payload response.Response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return payload
}

func TestOrganizationHandlerCreate(t *testing.T) {
	db, handler := newOrgHandlerFixture(t)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Set(middleware.CtxUserIDKey, "user-1")
	c.Request = jsonRequest(t, http.MethodPost, gin.H{"name": "Robotics Lab"})

	handler.Create(c)

	require.Equal(t, http.StatusCreated, recorder.Code)
	payload := decodeResponse(t, recorder)
	require.True(t, payload.Success)

	var member models.OrganizationMember
	require.NoError(t, db.First(&member, "user_id = ?", "user-1").Error)
	require.Equal(t, models.RoleOwner, member.Role)
}

func TestOrganizationHandlerCreateRejectsShortName(t *testing.T) {
	_, handler := newOrgHandlerFixture(t)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Set(middleware.CtxUserIDKey, "user-1")
	c.Request = jsonRequest(t, http.MethodPost, gin.H{"name": "x"})

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	payload := decodeResponse(t, recorder)
	require.False(t, payload.Success)
	require.Equal(t, "BAD_REQUEST", payload.Error.Code)
}

func TestOrganizationHandlerDeleteRequiresOwner(t *testing.T) {
	db, handler := newOrgHandlerFixture(t)

	org := &models.Organization{Name: "Lab"}
	require.NoError(t, db.Create(org).Error)
	seedMember(t, db, org.ID, "admin-1", models.RoleAdmin)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "id", Value: org.ID}}
	c.Set(middleware.CtxUserIDKey, "admin-1")
	c.Request = httptest.NewRequest(http.MethodDelete, "/", nil)

	handler.Delete(c)

	require.Equal(t, http.StatusForbidden, recorder.Code)
	payload := decodeResponse(t, recorder)
	require.Equal(t, "FORBIDDEN", payload.Error.Code)
}

func TestOrganizationHandlerGetRequiresMembership(t *testing.T) {
	db, handler := newOrgHandlerFixture(t)

	org := &models.Organization{Name: "Lab"}
	require.NoError(t, db.Create(org).Error)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "id", Value: org.ID}}
	c.Set(middleware.CtxUserIDKey, "stranger")
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	handler.Get(c)

	require.Equal(t, http.StatusForbidden, recorder.Code)
}
