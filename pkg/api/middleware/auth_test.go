package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/middleware"
)

func testJWTConfig(t *testing.T) *middleware.JWTConfig {
	t.Helper()
	config, err := middleware.NewJWTConfig("test-secret", time.Hour)
	require.NoError(t, err)
	return config
}

func TestNewJWTConfig(t *testing.T) {
	_, err := middleware.NewJWTConfig("", time.Hour)
	assert.Error(t, err)

	config, err := middleware.NewJWTConfig("s", 0)
	assert.NoError(t, err)
	assert.Equal(t, 24*time.Hour, config.Expiration)
}

func TestValidateToken(t *testing.T) {
	config := testJWTConfig(t)

	t.Run("valid token", func(t *testing.T) {
		token, err := middleware.GenerateToken(config, "user123", "john_doe", []string{middleware.RoleOperator})
		require.NoError(t, err)

		claims, err := middleware.ValidateToken(config, token)
		assert.NoError(t, err)
		assert.Equal(t, "user123", claims.UserID)
		assert.Equal(t, "john_doe", claims.Username)
		assert.Contains(t, claims.Roles, middleware.RoleOperator)
	})

	t.Run("invalid token", func(t *testing.T) {
		claims, err := middleware.ValidateToken(config, "invalid-token")
		assert.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, _ := middleware.NewJWTConfig("other-secret", time.Hour)
		token, _ := middleware.GenerateToken(other, "user123", "john_doe", nil)

		_, err := middleware.ValidateToken(config, token)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := &middleware.JWTConfig{SecretKey: config.SecretKey, Expiration: -time.Minute}
		token, _ := middleware.GenerateToken(expired, "user123", "john_doe", nil)

		_, err := middleware.ValidateToken(config, token)
		assert.Error(t, err)
	})
}

func TestJWTAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config := testJWTConfig(t)

	router := gin.New()
	router.Use(middleware.JWTAuth(config))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(200, gin.H{"user_id": c.GetString("user_id")})
	})

	token, _ := middleware.GenerateToken(config, "user123", "john_doe", []string{middleware.RoleViewer})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token in header", "Bearer " + token, http.StatusOK},
		{"missing authorization header", "", http.StatusUnauthorized},
		{"invalid token format", "InvalidFormat", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(roles []string) *gin.Engine {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			if roles != nil {
				c.Set("roles", roles)
			}
			c.Next()
		})
		router.Use(middleware.RequireRole(middleware.RoleOperator))
		router.GET("/test", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok"})
		})
		return router
	}

	tests := []struct {
		name  string
		roles []string
		want  int
	}{
		{"user has required role", []string{middleware.RoleViewer, middleware.RoleOperator}, http.StatusOK},
		{"user does not have required role", []string{middleware.RoleViewer}, http.StatusForbidden},
		{"no roles", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newRouter(tt.roles).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config := testJWTConfig(t)
	token, _ := middleware.GenerateToken(config, "user123", "john_doe", nil)

	router := gin.New()
	router.Use(middleware.OptionalAuth(config))
	router.GET("/test", func(c *gin.Context) {
		c.String(200, c.GetString("user_id"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "user123", w.Body.String())
}
