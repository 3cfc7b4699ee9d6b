package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/metra/internal/observability/metrics"
)

// StaffHeader carries the caller-supplied staff identity.
const StaffHeader = "X-Staff-ID"

// Middleware throttles per staff member. Requests without the staff
// header share one anonymous bucket.
func Middleware(limiter *Limiter, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(StaffHeader)
		if key == "" {
			key = "anonymous"
		}
		if !limiter.Allow(c.Request.Context(), key) {
			m.RecordRateLimitDenied(c.Request.Context(), c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "too many bulk submissions, slow down",
			})
			return
		}
		c.Next()
	}
}
