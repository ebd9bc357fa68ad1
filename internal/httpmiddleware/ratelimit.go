package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is an in-memory per-client token bucket. A single-device
// deployment has few clients, so no eviction is needed.
type RateLimiter struct {
	capacity int
	perMin   int
	mu       sync.Mutex
	buckets  map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewRateLimiter creates a limiter refilled at perMinute tokens.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		capacity: perMinute,
		perMin:   perMinute,
		buckets:  make(map[string]*bucket),
	}
}

// Middleware returns a gin handler enforcing per-IP limits.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	refill := int(now.Sub(b.last).Minutes() * float64(l.perMin))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
