package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const (
	metaKey      = "response_meta"
	metaStartKey = "response_meta_start"
	cacheHitKey  = "cache_hit"
	elapsedKey   = "processing_time_ms"
)

// WithResponseMeta starts the request clock and the metadata bag that
// handlers merge into the response envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(metaStartKey, time.Now())
		c.Set(metaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetMeta records a single response metadata entry.
func SetMeta(c *gin.Context, key string, value interface{}) {
	bag(c)[key] = value
}

// SetCacheHit records whether the payload came from the read-through cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, cacheHitKey, hit)
}

// ExtractMeta returns a copy of the recorded metadata. The elapsed processing
// time is included when WithResponseMeta started the clock.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	meta := lo.Assign(bag(c))
	if raw, ok := c.Get(metaStartKey); ok {
		if start, ok := raw.(time.Time); ok {
			meta[elapsedKey] = time.Since(start).Milliseconds()
		}
	}
	return meta
}

func bag(c *gin.Context) map[string]interface{} {
	if raw, ok := c.Get(metaKey); ok {
		if meta, ok := raw.(map[string]interface{}); ok {
			return meta
		}
	}
	meta := map[string]interface{}{}
	c.Set(metaKey, meta)
	return meta
}
