package billing

import (
	"errors"
	"testing"

	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewExchangeRates(t *testing.T) {
	rates, err := NewExchangeRates(map[string]decimal.Decimal{"usd": dec("83.25"), "EUR": dec("90.1")})
	require.NoError(t, err)
	assert.True(t, rates[valueobject.USD].Equal(dec("83.25")))
	assert.Equal(t, []valueobject.Currency{valueobject.EUR, valueobject.USD}, rates.Currencies())

	_, err = NewExchangeRates(map[string]decimal.Decimal{"USD": decimal.Zero})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	_, err = NewExchangeRates(map[string]decimal.Decimal{"??": dec("1")})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestNewExchangeRates_RejectsDuplicateCodes(t *testing.T) {
	_, err := NewExchangeRates(map[string]decimal.Decimal{"usd": dec("83"), "USD": dec("84")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	assert.Contains(t, err.Error(), "more than once")
}

func TestConvert_SameCurrencySkipsLookup(t *testing.T) {
	conv, err := Convert(dec("123.456789"), valueobject.INR, valueobject.INR, nil)
	require.NoError(t, err)
	assert.True(t, conv.Amount.Equal(dec("123.456789")))
	assert.True(t, conv.Rate.Equal(decimal.NewFromInt(1)))
}

func TestConvert_UsesRateAtInternalPrecision(t *testing.T) {
	rates := ExchangeRates{valueobject.USD: dec("83.123456")}
	conv, err := Convert(dec("10.5"), valueobject.USD, valueobject.INR, rates)
	require.NoError(t, err)
	assert.Equal(t, "872.7963", conv.Amount.String())
	assert.True(t, conv.Rate.Equal(dec("83.123456")))
}

func TestConvert_MissingRateNamesPair(t *testing.T) {
	_, err := Convert(dec("10"), valueobject.USD, valueobject.INR, ExchangeRates{valueobject.EUR: dec("90")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrMissingExchangeRate))

	var de *shared.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "USD", de.Details["from"])
	assert.Equal(t, "INR", de.Details["to"])
}

func TestConvert_NonPositiveRateIsMissing(t *testing.T) {
	_, err := Convert(dec("10"), valueobject.USD, valueobject.INR, ExchangeRates{valueobject.USD: decimal.Zero})
	assert.True(t, errors.Is(err, shared.ErrMissingExchangeRate))
}

func TestExchangeRates_ValueScanRoundTrip(t *testing.T) {
	rates := ExchangeRates{valueobject.USD: dec("83.25")}
	v, err := rates.Value()
	require.NoError(t, err)

	var scanned ExchangeRates
	require.NoError(t, scanned.Scan(v))
	assert.True(t, scanned[valueobject.USD].Equal(dec("83.25")))

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)
	assert.Error(t, scanned.Scan(42))
}

func TestMissingCurrencies(t *testing.T) {
	rates := ExchangeRates{valueobject.USD: dec("83")}
	missing := MissingCurrencies(
		[]valueobject.Currency{valueobject.INR, valueobject.USD, valueobject.GBP, valueobject.EUR, valueobject.GBP},
		valueobject.INR, rates)
	assert.Equal(t, []valueobject.Currency{valueobject.EUR, valueobject.GBP}, missing)

	err := EnsureRatesCover([]valueobject.Currency{valueobject.GBP}, valueobject.INR, rates)
	assert.True(t, errors.Is(err, shared.ErrMissingExchangeRate))
	assert.NoError(t, EnsureRatesCover([]valueobject.Currency{valueobject.USD, valueobject.INR}, valueobject.INR, rates))
}
