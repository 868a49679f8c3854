package handlers

import (
	"io"
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
	"github.com/evalforge/evalforge/internal/storage"
)

func newVideoHandlerFixture(t *testing.T) (*gorm.DB, *VideoHandler, map[string][]byte) {
	t.Helper()
	db := testutil.MustOpenTestDB(t)

	objects := map[string][]byte{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[len("/bucket/"):]
		switch r.Method {
		case http.MethodGet:
			payload, ok := objects[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "video/mp4")
			w.Header().Set("ETag", `"etag-1"`)
			_, _ = w.Write(payload)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			objects[key] = body
		}
	}))
	t.Cleanup(server.Close)

	store, err := storage.NewClient(storage.Config{
		Endpoint:      server.URL,
		Bucket:        "bucket",
		AccessKey:     "ak",
		SecretKey:     "sk",
		PublicBaseURL: "https://eval.example.com",
	})
	require.NoError(t, err)

	access, err := services.NewAccessService(db)
	require.NoError(t, err)
	videos, err := services.NewVideoService(db, store, access)
	require.NoError(t, err)

	return db, NewVideoHandler(videos), objects
}

func TestVideoHandlerServeMirrorsHeaders(t *testing.T) {
	db, handler, objects := newVideoHandlerFixture(t)

	require.NoError(t, db.Create(&models.Video{Key: "library/clip.mp4", Name: "clip"}).Error)
	objects["library/clip.mp4"] = []byte("binary-video")

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "path", Value: "/library/clip.mp4"}}
	c.Set(middleware.CtxUserIDKey, "user-1")
	c.Request = httptest.NewRequest(http.MethodGet, "/api/video/library/clip.mp4", nil)

	handler.Serve(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "binary-video", recorder.Body.String())
	require.Equal(t, "video/mp4", recorder.Header().Get("Content-Type"))
	require.Equal(t, "12", recorder.Header().Get("Content-Length"))
	require.Equal(t, "bytes", recorder.Header().Get("Accept-Ranges"))
	require.Equal(t, `"etag-1"`, recorder.Header().Get("ETag"))
	require.NotEmpty(t, recorder.Header().Get("Cache-Control"))
}

func TestVideoHandlerServeDeniesUnknownPathShape(t *testing.T) {
	_, handler, _ := newVideoHandlerFixture(t)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "path", Value: "/etc/passwd"}}
	c.Set(middleware.CtxUserIDKey, "user-1")
	c.Request = httptest.NewRequest(http.MethodGet, "/api/video/etc/passwd", nil)

	handler.Serve(c)

	require.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestVideoHandlerServeMissingObject(t *testing.T) {
	db, handler, _ := newVideoHandlerFixture(t)

	require.NoError(t, db.Create(&models.Video{Key: "library/ghost.mp4", Name: "ghost"}).Error)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Params = gin.Params{{Key: "path", Value: "/library/ghost.mp4"}}
	c.Set(middleware.CtxUserIDKey, "user-1")
	c.Request = httptest.NewRequest(http.MethodGet, "/api/video/library/ghost.mp4", nil)

	handler.Serve(c)

	require.Equal(t, http.StatusNotFound, recorder.Code)
}
