package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/aromelle/cartsync/internal/config"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-session token bucket to cart mutations. Rapid
// duplicate submissions from a stuck button are answered with 429 instead of
// piling up behind the synchronizer's operation queue.
type RateLimiter struct {
	qps   float64
	burst int

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

// NewRateLimiter creates a rate limiter from config
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		qps:      cfg.QPS,
		burst:    cfg.Burst,
		limiters: make(map[string]*limiterEntry),
	}
}

// Middleware returns the gin middleware enforcing the limit. Requests are
// keyed by session token, falling back to client IP for unauthenticated
// callers.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := GetTokenFromContext(c)
		if !ok {
			key = c.ClientIP()
		}

		if !rl.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.qps), rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now

	if len(rl.limiters) > 10000 {
		rl.prune(now)
	}

	return entry.limiter.Allow()
}

// prune drops limiters idle for more than ten minutes. Caller holds rl.mu.
func (rl *RateLimiter) prune(now time.Time) {
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > 10*time.Minute {
			delete(rl.limiters, key)
		}
	}
}
