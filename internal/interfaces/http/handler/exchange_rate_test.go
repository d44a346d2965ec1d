package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lexdesk/backend/internal/application/billing"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExchangeRateHandler_Suggest(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)

	svc.On("SuggestExchangeRates", mock.Anything, "INR", []string{"USD", "EUR", "GBP"}).
		Return(&billing.SuggestRatesResponse{
			Target: "INR",
			Rates: map[string]decimal.Decimal{
				"USD": decimal.RequireFromString("83.125"),
				"EUR": decimal.RequireFromString("90.5"),
			},
		}, nil)

	w := doJSON(engine, http.MethodGet, "/api/v1/exchange-rates/suggest?target=inr&sources=usd,%20EUR&sources=GBP", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w).Data.(map[string]any)
	assert.Equal(t, "INR", data["target"])
	assert.Equal(t, "83.125", data["rates"].(map[string]any)["USD"])
	svc.AssertExpectations(t)
}

func TestExchangeRateHandler_Suggest_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not configured", billing.ErrRateSuggestionsDisabled, http.StatusServiceUnavailable, dto.ErrCodeUnavailable},
		{"bad currency", shared.NewValidationError("Unsupported currency XYZ"), http.StatusBadRequest, shared.CodeValidation},
		{"provider down", fmt.Errorf("suggest exchange rates: %w", errors.New("status 502")), http.StatusBadGateway, dto.ErrCodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockInvoiceService)
			engine := setupInvoiceRouter(svc)
			svc.On("SuggestExchangeRates", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			w := doJSON(engine, http.MethodGet, "/api/v1/exchange-rates/suggest?target=INR&sources=USD", "")
			require.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decode(t, w).Error.Code)
		})
	}
}
