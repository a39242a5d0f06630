package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "stockcore/internal/core/context"
)

// Trace attaches a TraceContext to every request, honoring inbound
// X-Request-ID headers.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		trace := appctx.NewTraceContext()
		if reqID := c.GetHeader("X-Request-ID"); reqID != "" {
			trace.RequestID = reqID
		}

		ctx := appctx.WithTrace(c.Request.Context(), trace)
		c.Request = c.Request.WithContext(ctx)

		c.Set("request_id", trace.RequestID)
		c.Header("X-Request-ID", trace.RequestID)

		c.Next()
	}
}
