package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "studyhub/backend/internal/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestWriteErrorHidesCause(t *testing.T) {
	r := gin.New()
	r.GET("/rooms/:roomId", func(c *gin.Context) {
		writeError(c, apperrors.Internal("failed to load room").WithCause(errors.New("disk on fire")))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/r1", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"internal_error"`)
	assert.Contains(t, rec.Body.String(), "failed to load room")
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestWriteErrorNilIsInternal(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) { writeError(c, nil) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestBindJSONRejectsMalformedBody(t *testing.T) {
	var got credentials
	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		if !bindJSON(c, &got) {
			return
		}
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"invalid_json"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c","password":"pw"}`)))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "a@b.c", got.Email)
}
