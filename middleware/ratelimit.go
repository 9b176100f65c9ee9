package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zoobzio/clockz"
	"golang.org/x/time/rate"
)

// visitorTTL is how long an idle client's limiter is kept.
const visitorTTL = 5 * time.Minute

type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client IP.
type RateLimiter struct {
	limit    RateLimit
	clock    clockz.Clock
	mu       sync.Mutex
	visitors map[string]*rateEntry
	swept    time.Time
}

func NewRateLimiter(limit RateLimit, clock clockz.Clock) *RateLimiter {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &RateLimiter{
		limit:    limit,
		clock:    clock,
		visitors: make(map[string]*rateEntry),
		swept:    clock.Now(),
	}
}

// Middleware rejects requests over the limit with 429. A zero
// RequestsPerMinute disables limiting.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.limit.RequestsPerMinute <= 0 {
			c.Next()
			return
		}
		now := r.clock.Now()
		if !r.obtainLimiter(c.ClientIP(), now).AllowN(now, 1) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) obtainLimiter(id string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.swept) >= visitorTTL {
		for key, entry := range r.visitors {
			if now.Sub(entry.lastSeen) >= visitorTTL {
				delete(r.visitors, key)
			}
		}
		r.swept = now
	}
	if entry, ok := r.visitors[id]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	burst := r.limit.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(r.limit.RequestsPerMinute/60.0), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (r *RateLimiter) visitorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}
