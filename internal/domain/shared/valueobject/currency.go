package valueobject

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	INR Currency = "INR" // Indian Rupee
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
	SGD Currency = "SGD" // Singapore Dollar
	AED Currency = "AED" // UAE Dirham
)

// ParseCurrency normalises and validates an ISO 4217 code
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", fmt.Errorf("currency code is empty")
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("unknown currency %q: %w", code, err)
	}
	return Currency(unit.String()), nil
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}

// IsZero reports whether no currency is set
func (c Currency) IsZero() bool {
	return c == ""
}

// CurrencySet is a configured set of accepted currencies
type CurrencySet map[Currency]struct{}

// NewCurrencySet parses the given codes, skipping duplicates
func NewCurrencySet(codes ...string) (CurrencySet, error) {
	set := make(CurrencySet, len(codes))
	for _, code := range codes {
		c, err := ParseCurrency(code)
		if err != nil {
			return nil, err
		}
		set[c] = struct{}{}
	}
	return set, nil
}

// Contains reports whether c is in the set. An empty set accepts everything.
func (s CurrencySet) Contains(c Currency) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[c]
	return ok
}
