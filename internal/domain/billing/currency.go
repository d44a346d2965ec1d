package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ExchangeRates maps a source currency to its rate into the invoice currency.
// Rates are stored exactly as entered so historical amounts stay reproducible.
type ExchangeRates map[valueobject.Currency]decimal.Decimal

// NewExchangeRates parses caller-supplied rates, normalising currency codes.
// Every rate must be strictly positive and codes that normalise to the same
// currency are rejected.
func NewExchangeRates(raw map[string]decimal.Decimal) (ExchangeRates, error) {
	rates := make(ExchangeRates, len(raw))
	for code, rate := range raw {
		c, err := valueobject.ParseCurrency(code)
		if err != nil {
			return nil, shared.NewValidationError("Invalid currency in exchange rates").WithDetail("currency", code)
		}
		if !rate.IsPositive() {
			return nil, shared.NewValidationError("Exchange rate must be greater than zero").
				WithDetail("currency", c.String()).
				WithDetail("rate", rate.String())
		}
		if _, dup := rates[c]; dup {
			return nil, shared.NewValidationError("Exchange rate given more than once for a currency").
				WithDetail("currency", c.String())
		}
		rates[c] = rate
	}
	return rates, nil
}

// Rate returns the stored rate for source, if any
func (r ExchangeRates) Rate(source valueobject.Currency) (decimal.Decimal, bool) {
	rate, ok := r[source]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, false
	}
	return rate, true
}

// Clone returns an independent copy
func (r ExchangeRates) Clone() ExchangeRates {
	out := make(ExchangeRates, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Currencies returns the map keys in sorted order
func (r ExchangeRates) Currencies() []valueobject.Currency {
	out := make([]valueobject.Currency, 0, len(r))
	for c := range r {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Value implements driver.Valuer interface for GORM to store as JSON
func (r ExchangeRates) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	raw := make(map[string]string, len(r))
	for c, rate := range r {
		raw[c.String()] = rate.String()
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface for GORM to read from JSON
func (r *ExchangeRates) Scan(value any) error {
	if value == nil {
		*r = ExchangeRates{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan ExchangeRates: unsupported type")
	}

	if len(bytes) == 0 {
		*r = ExchangeRates{}
		return nil
	}

	raw := map[string]decimal.Decimal{}
	if err := json.Unmarshal(bytes, &raw); err != nil {
		return fmt.Errorf("failed to scan ExchangeRates: %w", err)
	}
	out := make(ExchangeRates, len(raw))
	for code, rate := range raw {
		out[valueobject.Currency(code)] = rate
	}
	*r = out
	return nil
}

// MissingExchangeRateError names the currency pair that has no usable rate
func MissingExchangeRateError(source, target valueobject.Currency) *shared.DomainError {
	return shared.NewDomainError(shared.CodeMissingExchangeRate,
		fmt.Sprintf("No exchange rate for %s to %s", source, target)).
		WithDetail("from", source.String()).
		WithDetail("to", target.String())
}

// Conversion is the result of normalizing one amount
type Conversion struct {
	Amount decimal.Decimal
	Rate   decimal.Decimal
}

// Convert converts amount from source into target using rates.
// Same-currency amounts pass through with rate 1 and no lookup; otherwise the
// result is kept at internal precision.
func Convert(amount decimal.Decimal, source, target valueobject.Currency, rates ExchangeRates) (Conversion, error) {
	if source == target {
		return Conversion{Amount: amount, Rate: decimal.NewFromInt(1)}, nil
	}
	rate, ok := rates.Rate(source)
	if !ok {
		return Conversion{}, MissingExchangeRateError(source, target)
	}
	return Conversion{
		Amount: valueobject.RoundInternal(amount.Mul(rate)),
		Rate:   rate,
	}, nil
}

// EnsureRatesCover checks that every currency in sources either equals
// target or has a positive rate. The first uncovered currency in sorted
// order is reported.
func EnsureRatesCover(sources []valueobject.Currency, target valueobject.Currency, rates ExchangeRates) error {
	missing := MissingCurrencies(sources, target, rates)
	if len(missing) > 0 {
		return MissingExchangeRateError(missing[0], target)
	}
	return nil
}

// MissingCurrencies returns the distinct, sorted currencies from sources that
// differ from target and have no usable rate
func MissingCurrencies(sources []valueobject.Currency, target valueobject.Currency, rates ExchangeRates) []valueobject.Currency {
	seen := map[valueobject.Currency]bool{}
	var missing []valueobject.Currency
	for _, c := range sources {
		if c == target || c.IsZero() || seen[c] {
			continue
		}
		seen[c] = true
		if _, ok := rates.Rate(c); !ok {
			missing = append(missing, c)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}
