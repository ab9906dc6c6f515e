package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// rateLimitMiddleware throttles inbound requests to the routing API,
// grounded on the teacher's golang.org/x/time/rate-based rate limiters
// (apps/edge-mcp/internal/middleware/rate_limit.go), scoped down from
// per-tenant/per-tool buckets to a single global limiter since the router
// API has no tenant concept.
func rateLimitMiddleware(rps, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
