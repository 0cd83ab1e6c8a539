package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/entityusage/internal/observability/logger"
	"go.uber.org/zap"
)

const rateLimitReasonEntityType = "entity-type-rate"

// UsageReportRateLimit throttles usage reports per entity type.
func (s *Server) UsageReportRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.usageLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		entityType, err := s.entitySvc.ResolveType(c.Param("entity"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		result, err := s.usageLimiter.Allow(ctx, entityType)
		if err != nil {
			logger.FromContext(ctx).Warn("usage report rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			logger.FromContext(ctx).Warn("usage report rate limit exceeded",
				zap.String("entity_type", entityType),
				zap.String("reason", rateLimitReasonEntityType),
			)
			c.Header("Retry-After", retryAfterSeconds(result.RetryAfter.Seconds()))
			s.httpMetrics.IncRateLimited(entityType)
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, entityType, rateLimitReasonEntityType)
			}
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

func retryAfterSeconds(seconds float64) string {
	secs := int(math.Ceil(seconds))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
