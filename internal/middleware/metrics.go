package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voxen-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route so that random
// URLs cannot blow up the path label cardinality.
const unmatchedRoute = "unmatched"

// RequestObserver receives one observation per served request.
type RequestObserver interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
}

var _ RequestObserver = (*service.MetricsService)(nil)

// Metrics observes request latency by route template. Paths listed in skip
// (the scrape and probe endpoints) are not observed.
func Metrics(observer RequestObserver, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if observer == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		observer.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
