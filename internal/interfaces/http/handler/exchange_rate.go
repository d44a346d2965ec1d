package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lexdesk/backend/internal/application/billing"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/interfaces/http/dto"
)

// ExchangeRateHandler serves advisory exchange rate suggestions
type ExchangeRateHandler struct {
	BaseHandler
	service InvoiceService
}

// NewExchangeRateHandler creates a new ExchangeRateHandler
func NewExchangeRateHandler(service InvoiceService) *ExchangeRateHandler {
	return &ExchangeRateHandler{service: service}
}

// Suggest godoc
// @Summary      Suggest exchange rates
// @Description  Advisory rates from the configured provider; rates can still be entered by hand
// @Tags         exchange-rates
// @Produce      json
// @Param        target query string true "Invoice currency"
// @Param        sources query []string true "Source currencies, comma separated or repeated" collectionFormat(csv)
// @Success      200 {object} dto.Response{data=billing.SuggestRatesResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /exchange-rates/suggest [get]
func (h *ExchangeRateHandler) Suggest(c *gin.Context) {
	var sources []string
	for _, raw := range c.QueryArray("sources") {
		for _, code := range strings.Split(raw, ",") {
			if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
				sources = append(sources, code)
			}
		}
	}
	target := strings.ToUpper(strings.TrimSpace(c.Query("target")))

	result, err := h.service.SuggestExchangeRates(c.Request.Context(), target, sources)
	switch {
	case err == nil:
		h.Success(c, result)
	case errors.Is(err, billing.ErrRateSuggestionsDisabled):
		h.ServiceUnavailable(c, "Exchange rate suggestions are not configured")
	default:
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) {
			h.HandleError(c, err)
			return
		}
		// rates can still be entered by hand
		h.Error(c, http.StatusBadGateway, dto.ErrCodeUnavailable, "Exchange rate provider is unavailable")
	}
}
