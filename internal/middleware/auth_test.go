package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"localchat-backend/internal/config"
	"localchat-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/whoami", func(c *gin.Context) {
		id, _ := c.Get(userIDKey)
		c.JSON(http.StatusOK, gin.H{"userID": id})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	config.Cfg = &config.AppConfig{JWTSecret: "test-secret", TokenMaxAge: time.Hour}
	r := newAuthedRouter()

	userID := uuid.New()
	token, err := utils.GenerateJWT(userID)
	require.NoError(t, err)

	get := func(authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, get("").Code)
	assert.Equal(t, http.StatusUnauthorized, get("Token "+token).Code)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer").Code)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer not-a-jwt").Code)

	w := get("Bearer " + token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())

	// Scheme matching is case-insensitive.
	assert.Equal(t, http.StatusOK, get("bearer "+token).Code)
}
