package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/middleware"
)

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(limiter *middleware.RateLimiter) *gin.Engine {
		router := gin.New()
		router.Use(limiter.RateLimit())
		router.GET("/test", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok"})
		})
		return router
	}

	t.Run("allows requests within limit", func(t *testing.T) {
		limiter := middleware.NewRateLimiter(10, 10, time.Minute)
		defer limiter.Stop()
		router := newRouter(limiter)

		for i := 0; i < 5; i++ {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}
		assert.Equal(t, 1, limiter.Len())
	})

	t.Run("rate limits past the burst", func(t *testing.T) {
		limiter := middleware.NewRateLimiter(0.001, 2, time.Minute)
		defer limiter.Stop()
		router := newRouter(limiter)

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("idle clients are evicted", func(t *testing.T) {
		limiter := middleware.NewRateLimiter(10, 10, 20*time.Millisecond)
		defer limiter.Stop()
		router := newRouter(limiter)

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, 1, limiter.Len())

		assert.Eventually(t, func() bool { return limiter.Len() == 0 }, time.Second, 10*time.Millisecond)
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		limiter := middleware.NewRateLimiter(10, 10, time.Minute)
		limiter.Stop()
		limiter.Stop()
	})
}
