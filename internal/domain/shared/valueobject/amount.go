package valueobject

import (
	"github.com/shopspring/decimal"
)

const (
	// InternalPrecision is kept on converted amounts before display rounding
	InternalPrecision int32 = 4
	// DisplayPrecision is used for user-facing totals
	DisplayPrecision int32 = 2
)

var hundred = decimal.NewFromInt(100)

// Hundred returns decimal 100
func Hundred() decimal.Decimal {
	return hundred
}

// RoundDisplay rounds an amount to two decimals
func RoundDisplay(d decimal.Decimal) decimal.Decimal {
	return d.Round(DisplayPrecision)
}

// RoundInternal rounds an amount to four decimals
func RoundInternal(d decimal.Decimal) decimal.Decimal {
	return d.Round(InternalPrecision)
}

// Percent returns amount * pct / 100 without rounding
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// AllocateByPercentages splits total into display-rounded parts proportional
// to pcts. The rounding remainder lands on the last part so that the parts
// always sum to the rounded total.
func AllocateByPercentages(total decimal.Decimal, pcts []decimal.Decimal) []decimal.Decimal {
	if len(pcts) == 0 {
		return nil
	}
	rounded := RoundDisplay(total)
	parts := make([]decimal.Decimal, len(pcts))
	allocated := decimal.Zero
	for i, pct := range pcts[:len(pcts)-1] {
		parts[i] = RoundDisplay(Percent(total, pct))
		allocated = allocated.Add(parts[i])
	}
	parts[len(parts)-1] = rounded.Sub(allocated)
	return parts
}

// WithinTolerance reports whether |a-b| <= tol
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}
