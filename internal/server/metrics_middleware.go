package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/entityusage/pkg/telemetry"
)

// HTTPMetricsMiddleware records request counts and latency by route template.
func HTTPMetricsMiddleware(m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPIRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
