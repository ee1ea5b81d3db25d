package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

// ByClientIP counts requests per remote address.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// Limiters hands out one token bucket per key. Buckets idle for longer than
// the eviction window are dropped.
type Limiters struct {
	buckets *cache.Cache
	mu      sync.Mutex
	r       rate.Limit
	b       int
}

// NewLimiters creates a bucket set refilling at r with burst b.
func NewLimiters(r rate.Limit, b int, idle time.Duration) *Limiters {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &Limiters{
		buckets: cache.New(idle, idle),
		r:       r,
		b:       b,
	}
}

// Get returns the bucket for key, creating it on first use.
func (l *Limiters) Get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.buckets.Get(key); ok {
		limiter := v.(*rate.Limiter)
		l.buckets.SetDefault(key, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(l.r, l.b)
	l.buckets.SetDefault(key, limiter)
	return limiter
}

// RateLimiter rejects requests once the caller's bucket is empty.
func RateLimiter(l *Limiters, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Get(key(c)).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
