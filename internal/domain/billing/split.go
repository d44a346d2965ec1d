package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// SplitTarget is one billing client and its share of a split invoice
type SplitTarget struct {
	ClientID   uuid.UUID       `json:"client_id"`
	Percentage decimal.Decimal `json:"percentage"`
}

// SplitPlan is a validated list of split targets
type SplitPlan struct {
	Targets []SplitTarget
}

// Active reports whether the plan produces child invoices
func (p SplitPlan) Active() bool {
	return len(p.Targets) > 1
}

// PlanSplit validates split targets for an invoice billed to clientID.
// No targets, or a single target at 100%, yields an inactive plan.
func PlanSplit(clientID uuid.UUID, targets []SplitTarget, clients map[uuid.UUID]Client) (SplitPlan, error) {
	if len(targets) == 0 {
		return SplitPlan{}, nil
	}
	total := decimal.Zero
	for _, t := range targets {
		total = total.Add(t.Percentage)
	}
	if len(targets) == 1 {
		if valueobject.WithinTolerance(total, valueobject.Hundred(), PercentTolerance) {
			return SplitPlan{}, nil
		}
		return SplitPlan{}, ShareMismatchError("split percentages", total)
	}

	original, ok := clients[clientID]
	if !ok {
		return SplitPlan{}, shared.NewNotFoundError("client", clientID.String())
	}
	seen := make(map[uuid.UUID]bool, len(targets))
	for _, t := range targets {
		if t.ClientID == uuid.Nil {
			return SplitPlan{}, shared.NewValidationError("Client is required for each split")
		}
		if seen[t.ClientID] {
			return SplitPlan{}, shared.NewValidationError("A client may appear only once in a split").
				WithDetail("client_id", t.ClientID.String())
		}
		seen[t.ClientID] = true
		if !t.Percentage.IsPositive() {
			return SplitPlan{}, shared.NewValidationError("Split percentage must be positive").
				WithDetail("client_id", t.ClientID.String())
		}
		c, ok := clients[t.ClientID]
		if !ok {
			return SplitPlan{}, shared.NewNotFoundError("client", t.ClientID.String())
		}
		if !original.SameGroup(c) {
			return SplitPlan{}, shared.NewValidationError("Split clients must belong to the invoice client's group").
				WithDetail("client_id", t.ClientID.String())
		}
	}
	if !valueobject.WithinTolerance(total, valueobject.Hundred(), PercentTolerance) {
		return SplitPlan{}, ShareMismatchError("split percentages", total)
	}
	return SplitPlan{Targets: append([]SplitTarget(nil), targets...)}, nil
}

// splitInto builds one finalized child per target. Amounts are allocated
// with the rounding remainder on the last child so children always sum to
// the parent.
func (inv *Invoice) splitInto(plan SplitPlan, shares PartnerShares, at time.Time) []*Invoice {
	pcts := make([]decimal.Decimal, len(plan.Targets))
	for i, t := range plan.Targets {
		pcts[i] = t.Percentage
	}
	subtotals := valueobject.AllocateByPercentages(inv.Subtotal, pcts)
	discounts := valueobject.AllocateByPercentages(inv.DiscountAmount, pcts)
	var bases []decimal.Decimal
	if inv.BaseCurrencyAmount != nil {
		bases = valueobject.AllocateByPercentages(*inv.BaseCurrencyAmount, pcts)
	}

	parentID := inv.ID
	children := make([]*Invoice, 0, len(plan.Targets))
	for i, t := range plan.Targets {
		pct := t.Percentage
		finalizedAt := at
		child := &Invoice{
			BaseAggregateRoot: shared.NewBaseAggregateRoot(),
			InvoiceNumber:     ChildInvoiceNumber(inv.InvoiceNumber, i+1),
			ClientID:          t.ClientID,
			MatterIDs:         append([]uuid.UUID(nil), inv.MatterIDs...),
			BillingLocation:   inv.BillingLocation,
			InvoiceDate:       inv.InvoiceDate,
			DueDate:           inv.DueDate,
			Currency:          inv.Currency,
			BaseCurrency:      inv.BaseCurrency,
			ExchangeRates:     inv.ExchangeRates.Clone(),
			Subtotal:          subtotals[i],
			DiscountType:      inv.DiscountType,
			DiscountAmount:    discounts[i],
			FinalAmount:       subtotals[i].Sub(discounts[i]),
			AmountPaid:        decimal.Zero,
			Status:            InvoiceStatusFinalized,
			PaymentStatus:     PaymentStatusNew,
			ParentID:          &parentID,
			SplitPercentage:   &pct,
			SplitSequence:     i + 1,
			Notes:             inv.Notes,
			CreatedBy:         inv.CreatedBy,
			FinalizedAt:       &finalizedAt,
			TimesheetLinks:    append([]TimesheetLink(nil), inv.TimesheetLinks...),
			PartnerShares:     shares.Clone(),
		}
		child.DiscountValue = inv.DiscountValue
		if inv.DiscountType == DiscountTypeFixed {
			child.DiscountValue = discounts[i]
		}
		if bases != nil {
			b := bases[i]
			child.BaseCurrencyAmount = &b
		}
		child.CreatedAt = at
		child.UpdatedAt = at
		children = append(children, child)
	}
	return children
}

// SplitChildSummary is the read-time view of one child invoice
type SplitChildSummary struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	Percentage    decimal.Decimal `json:"percentage"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
}

// SplitSummary aggregates a split parent's children at read time
type SplitSummary struct {
	Children      []SplitChildSummary `json:"children"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	TotalPaid     decimal.Decimal     `json:"total_paid"`
	Outstanding   decimal.Decimal     `json:"outstanding"`
	PaymentStatus PaymentStatus       `json:"payment_status"`
}

// SummarizeSplit derives a parent's totals and status from its children.
// Nothing here is ever written back to the parent.
func SummarizeSplit(children []Invoice, now time.Time) SplitSummary {
	summary := SplitSummary{
		Children:    make([]SplitChildSummary, 0, len(children)),
		TotalAmount: decimal.Zero,
		TotalPaid:   decimal.Zero,
	}
	allPaid := len(children) > 0
	anyOverdue, anyPaid := false, false
	for i := range children {
		c := &children[i]
		status := c.DerivePaymentStatus(now)
		pct := decimal.Zero
		if c.SplitPercentage != nil {
			pct = *c.SplitPercentage
		}
		summary.Children = append(summary.Children, SplitChildSummary{
			InvoiceID:     c.ID,
			InvoiceNumber: c.InvoiceNumber,
			ClientID:      c.ClientID,
			Percentage:    pct,
			FinalAmount:   c.FinalAmount,
			AmountPaid:    c.AmountPaid,
			PaymentStatus: status,
		})
		summary.TotalAmount = summary.TotalAmount.Add(c.FinalAmount)
		summary.TotalPaid = summary.TotalPaid.Add(c.AmountPaid)
		if status != PaymentStatusPaid {
			allPaid = false
		}
		if status == PaymentStatusOverdue {
			anyOverdue = true
		}
		if c.AmountPaid.IsPositive() {
			anyPaid = true
		}
	}
	summary.Outstanding = summary.TotalAmount.Sub(summary.TotalPaid)
	switch {
	case allPaid:
		summary.PaymentStatus = PaymentStatusPaid
	case anyOverdue:
		summary.PaymentStatus = PaymentStatusOverdue
	case anyPaid:
		summary.PaymentStatus = PaymentStatusPartiallyPaid
	default:
		summary.PaymentStatus = PaymentStatusNew
	}
	return summary
}
