package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lexdesk/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
)

func profiledRouter(enabled bool, seen map[string]string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ProfilingLabels(enabled))
	capture := func(c *gin.Context) {
		ctx := c.Request.Context()
		for _, key := range []string{telemetry.ProfilingLabelRoute, telemetry.ProfilingLabelMethod} {
			if v, ok := pprof.Label(ctx, key); ok {
				seen[key] = v
			}
		}
		c.Status(http.StatusOK)
	}
	r.GET("/api/v1/invoices/:id/document", capture)
	r.GET("/health", capture)
	return r
}

func TestProfilingLabels_TagsRoutePattern(t *testing.T) {
	seen := map[string]string{}
	r := profiledRouter(true, seen)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/5f0c/document", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/api/v1/invoices/:id/document", seen[telemetry.ProfilingLabelRoute])
	assert.Equal(t, http.MethodGet, seen[telemetry.ProfilingLabelMethod])
}

func TestProfilingLabels_SkipsHealth(t *testing.T) {
	seen := map[string]string{}
	r := profiledRouter(true, seen)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, seen)
}

func TestProfilingLabels_Disabled(t *testing.T) {
	seen := map[string]string{}
	r := profiledRouter(false, seen)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/5f0c/document", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, seen)
}
