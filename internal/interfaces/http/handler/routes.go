package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/lexdesk/backend/internal/interfaces/http/router"
)

// InvoiceRoutes creates the route group for the invoice lifecycle. upload
// middleware (the body limit) applies to the signed document upload only.
func InvoiceRoutes(handler *InvoiceHandler, upload ...gin.HandlerFunc) *router.DomainGroup {
	group := router.NewDomainGroup("invoices", "/invoices")

	group.POST("", handler.Create)
	group.GET("", handler.List)
	group.POST("/detect-currencies", handler.DetectCurrencies)

	group.GET("/:id", handler.Get)
	group.PUT("/:id", handler.Update)
	group.DELETE("/:id", handler.Delete)

	group.POST("/:id/finalize", handler.Finalize)
	group.GET("/:id/document", handler.Document)
	group.POST("/:id/upload", append(upload, handler.Upload)...)

	payments := group.Group("payments", "/:id/payments")
	payments.POST("", handler.RecordPayment)
	payments.GET("", handler.ListPayments)

	return group
}

// ExchangeRateRoutes creates the route group for rate suggestions
func ExchangeRateRoutes(handler *ExchangeRateHandler, mw ...gin.HandlerFunc) *router.DomainGroup {
	group := router.NewDomainGroup("exchange-rates", "/exchange-rates")
	group.Use(mw...)
	group.GET("/suggest", handler.Suggest)
	return group
}

// SystemRoutes creates the route group for health checks
func SystemRoutes(handler *SystemHandler) *router.DomainGroup {
	group := router.NewDomainGroup("system", "")
	group.GET("/health", handler.Health)
	return group
}
