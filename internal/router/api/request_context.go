package api

import (
	"github.com/developer-mesh/agent-router/pkg/observability"
	"github.com/gin-gonic/gin"
)

// requestContextMiddleware stamps every request with a request ID (reusing
// an inbound X-Request-ID when the caller already set one) and propagates a
// caller-supplied X-Correlation-ID across the routing/outcome call pair,
// grounded on the teacher's context.GetString("RequestID") pattern
// (apps/rest-api/internal/api/context/handlers.go) generalized to the
// request/correlation helpers in pkg/observability.
func requestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = observability.GenerateRequestID()
		}
		ctx := observability.WithRequestID(c.Request.Context(), requestID)

		if correlationID := c.GetHeader("X-Correlation-ID"); correlationID != "" {
			ctx = observability.WithCorrelationID(ctx, correlationID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
