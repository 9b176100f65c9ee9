package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/yourusername/escrow-demo/metrics"
	"github.com/zoobzio/clockz"
)

func limitedRouter(limiter *RateLimiter) *gin.Engine {
	router := gin.New()
	router.POST("/charge", limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func post(router http.Handler, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodPost, "/charge", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := clockz.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	router := limitedRouter(NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1}, clock))

	assert.Equal(t, http.StatusOK, post(router, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, post(router, "10.0.0.1:1234"))

	t.Run("Other Clients Unaffected", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, post(router, "10.0.0.2:1234"))
	})

	t.Run("Refills Over Time", func(t *testing.T) {
		clock.Advance(time.Second)
		assert.Equal(t, http.StatusOK, post(router, "10.0.0.1:1234"))
	})
}

func TestRateLimiterDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := limitedRouter(NewRateLimiter(RateLimit{}, nil))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, post(router, "10.0.0.1:1234"))
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := clockz.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2}, clock)
	router := limitedRouter(limiter)

	post(router, "10.0.0.1:1234")
	post(router, "10.0.0.2:1234")
	assert.Equal(t, 2, limiter.visitorCount())

	clock.Advance(visitorTTL)
	post(router, "10.0.0.3:1234")
	assert.Equal(t, 1, limiter.visitorCount())
}

func TestRequestMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestMetrics(metrics.Escrow()))
	router.GET("/payments/:id", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	req := httptest.NewRequest(http.MethodGet, "/payments/123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// A nil collector set is accepted.
	router = gin.New()
	router.Use(RequestMetrics(nil))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
