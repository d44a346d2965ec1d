package billing

import (
	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PercentTolerance is the accepted deviation when percentages must total 100
var PercentTolerance = decimal.RequireFromString("0.01")

// PartnerShare is one partner's percentage claim on an invoice's revenue
type PartnerShare struct {
	PartnerID  uuid.UUID       `json:"partner_id"`
	Percentage decimal.Decimal `json:"percentage"`
}

// PartnerShares is the full share set of one invoice
type PartnerShares []PartnerShare

// Total sums the percentages
func (s PartnerShares) Total() decimal.Decimal {
	total := decimal.Zero
	for _, share := range s {
		total = total.Add(share.Percentage)
	}
	return total
}

// Validate requires at least one share, unique positive entries and a
// total of 100 within tolerance
func (s PartnerShares) Validate() error {
	if len(s) == 0 {
		return ShareMismatchError("partner shares", decimal.Zero)
	}
	seen := make(map[uuid.UUID]bool, len(s))
	for _, share := range s {
		if share.PartnerID == uuid.Nil {
			return shared.NewValidationError("Partner is required for each share")
		}
		if seen[share.PartnerID] {
			return shared.NewValidationError("Partner appears more than once").
				WithDetail("partner_id", share.PartnerID.String())
		}
		seen[share.PartnerID] = true
		if !share.Percentage.IsPositive() || share.Percentage.GreaterThan(valueobject.Hundred()) {
			return shared.NewValidationError("Partner share must be between 0 and 100").
				WithDetail("partner_id", share.PartnerID.String()).
				WithDetail("percentage", share.Percentage.String())
		}
	}
	if total := s.Total(); !valueobject.WithinTolerance(total, valueobject.Hundred(), PercentTolerance) {
		return ShareMismatchError("partner shares", total)
	}
	return nil
}

// Clone returns an independent copy
func (s PartnerShares) Clone() PartnerShares {
	if s == nil {
		return nil
	}
	return append(PartnerShares(nil), s...)
}

// ShareMismatchError reports a percentage set that does not total 100
func ShareMismatchError(what string, total decimal.Decimal) *shared.DomainError {
	return shared.NewDomainError(shared.CodeShareMismatch, "The "+what+" must total 100%").
		WithDetail("total", total.String())
}
