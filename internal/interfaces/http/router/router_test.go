package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.Equal(t, "v1", r.apiVersion)
	assert.Equal(t, "/api/v1", r.BasePath())
	assert.Empty(t, r.registrars)

	assert.Equal(t, "/api/v2", NewRouter(gin.New(), WithAPIVersion("v2")).BasePath())
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	invoices := NewDomainGroup("invoices", "/invoices")
	invoices.GET("", func(c *gin.Context) { c.String(http.StatusOK, "list") }).
		POST("/:id/finalize", func(c *gin.Context) { c.String(http.StatusOK, "finalize "+c.Param("id")) })

	rates := NewDomainGroup("rates", "/exchange-rates")
	rates.GET("/suggest", func(c *gin.Context) { c.String(http.StatusOK, "rates") })

	r.Register(invoices).Register(rates)
	r.Setup()

	w := serve(engine, http.MethodGet, "/api/v1/invoices")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "list", w.Body.String())

	w = serve(engine, http.MethodPost, "/api/v1/invoices/abc/finalize")
	assert.Equal(t, "finalize abc", w.Body.String())

	w = serve(engine, http.MethodGet, "/api/v1/exchange-rates/suggest")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/invoices").Code)
}

func TestDomainGroup_Methods(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("invoices", "/invoices")
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	g.GET("/:id", ok).PUT("/:id", ok).PATCH("/:id", ok).DELETE("/:id", ok).POST("", ok)
	g.RegisterRoutes(engine.Group("/api/v1"))

	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/invoices/1"},
		{http.MethodPut, "/api/v1/invoices/1"},
		{http.MethodPatch, "/api/v1/invoices/1"},
		{http.MethodDelete, "/api/v1/invoices/1"},
		{http.MethodPost, "/api/v1/invoices"},
	} {
		assert.Equal(t, http.StatusOK, serve(engine, tt.method, tt.path).Code, "%s %s", tt.method, tt.path)
	}
}

func TestDomainGroup_Middleware(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("invoices", "/invoices")
	g.Use(func(c *gin.Context) {
		c.Header("X-Group", "applied")
		c.Next()
	})

	routeOnly := func(c *gin.Context) {
		c.Header("X-Route", "applied")
		c.Next()
	}
	g.GET("", func(c *gin.Context) { c.Status(http.StatusOK) })
	g.POST("/:id/upload", routeOnly, func(c *gin.Context) { c.Status(http.StatusOK) })
	g.RegisterRoutes(engine.Group("/api/v1"))

	w := serve(engine, http.MethodGet, "/api/v1/invoices")
	assert.Equal(t, "applied", w.Header().Get("X-Group"))
	assert.Empty(t, w.Header().Get("X-Route"))

	w = serve(engine, http.MethodPost, "/api/v1/invoices/1/upload")
	assert.Equal(t, "applied", w.Header().Get("X-Group"))
	assert.Equal(t, "applied", w.Header().Get("X-Route"))
}

func TestDomainGroup_Subgroups(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("invoices", "/invoices")
	payments := g.Group("payments", "/:id/payments")
	payments.GET("", func(c *gin.Context) { c.String(http.StatusOK, "payments of "+c.Param("id")) })
	g.RegisterRoutes(engine.Group("/api/v1"))

	w := serve(engine, http.MethodGet, "/api/v1/invoices/7/payments")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "payments of 7", w.Body.String())
	assert.Equal(t, "invoices", g.Name())
	assert.Equal(t, "/invoices", g.Prefix())
}

func TestRouter_Routes(t *testing.T) {
	r := NewRouter(gin.New())
	noop := func(c *gin.Context) {}

	g := NewDomainGroup("invoices", "/invoices")
	g.GET("", noop).POST("/:id/finalize", noop)
	g.Group("payments", "/:id/payments").POST("", noop)
	r.Register(g)

	assert.Equal(t, []RouteInfo{
		{Group: "invoices", Method: http.MethodGet, Path: "/api/v1/invoices"},
		{Group: "invoices", Method: http.MethodPost, Path: "/api/v1/invoices/:id/finalize"},
		{Group: "payments", Method: http.MethodPost, Path: "/api/v1/invoices/:id/payments"},
	}, r.Routes())
}
