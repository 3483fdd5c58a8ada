package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/acadia-labs/registrar-api/internal/service"
)

// Metrics records per-request duration and count. Unmatched routes are
// labelled by raw path so 404 traffic stays visible without exploding
// cardinality on known routes.
func Metrics(m *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		m.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
