package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache keeps successful GET responses for a short TTL. Any
// successful write through Invalidate drops every entry, since a reservation
// change alters derived locker statuses. A zero TTL disables caching.
type ResponseCache struct {
	store *cache.Cache
	ttl   time.Duration
}

// NewResponseCache creates a response cache with the given TTL.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		return &ResponseCache{}
	}
	return &ResponseCache{store: cache.New(ttl, 2*ttl), ttl: ttl}
}

func (rc *ResponseCache) enabled() bool {
	return rc != nil && rc.store != nil
}

// Serve answers GET requests from the cache and fills it on a miss.
func (rc *ResponseCache) Serve() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rc.enabled() || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.RequestURI()
		if v, found := rc.store.Get(key); found {
			cached := v.(cachedResponse)
			for k, vals := range cached.headers {
				c.Writer.Header()[k] = vals
			}
			c.Header("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if blw.Status() >= 200 && blw.Status() < 300 {
			rc.store.Set(key, cachedResponse{
				status:  blw.Status(),
				headers: blw.Header().Clone(),
				body:    blw.body.Bytes(),
			}, rc.ttl)
		}
	}
}

// Invalidate flushes the cache after a successful non-GET request.
func (rc *ResponseCache) Invalidate() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if !rc.enabled() || c.Request.Method == http.MethodGet {
			return
		}
		if status := c.Writer.Status(); status >= 200 && status < 400 {
			rc.store.Flush()
		}
	}
}

// Flush drops every cached response.
func (rc *ResponseCache) Flush() {
	if rc.enabled() {
		rc.store.Flush()
	}
}
