package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lexdesk/backend/internal/infrastructure/telemetry"
)

// profilingSkipPrefixes are not worth labelling
var profilingSkipPrefixes = []string{"/health", "/swagger"}

// ProfilingLabels tags CPU and heap samples taken while a request runs with
// its route pattern and method, so Pyroscope can separate document
// rendering from list queries.
func ProfilingLabels(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		for _, prefix := range profilingSkipPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}
		labels := map[string]string{
			telemetry.ProfilingLabelRoute:  routePattern(c),
			telemetry.ProfilingLabelMethod: c.Request.Method,
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
