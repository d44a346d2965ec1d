package printing

import (
	"sort"
	"time"

	"github.com/google/uuid"
	appbilling "github.com/lexdesk/backend/internal/application/billing"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// InvoiceView is the flattened data bound to the invoice template
type InvoiceView struct {
	FirmName    string
	FirmAddress string

	Number          string
	Status          string
	PaymentStatus   string
	InvoiceDate     time.Time
	DueDate         time.Time
	BillingLocation string
	Currency        string
	Notes           string
	SplitPercentage *decimal.Decimal
	IsSplitParent   bool

	ClientName    string
	ClientEmail   string
	ClientAddress string
	Matters       []string

	Timesheets []TimesheetRow
	Expenses   []ExpenseRow
	Rates      []RateRow

	Subtotal       decimal.Decimal
	DiscountLabel  string
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	BaseCurrency   string
	BaseAmount     *decimal.Decimal
	AmountPaid     decimal.Decimal
	Outstanding    decimal.Decimal

	Payments []PaymentRow
	Children []ChildRow

	GeneratedAt time.Time
}

// TimesheetRow is one billed time entry
type TimesheetRow struct {
	WorkDate       time.Time
	Matter         string
	Description    string
	Minutes        int
	HourlyRate     decimal.Decimal
	SourceCurrency string
	ExchangeRate   decimal.Decimal
	Converted      bool
	Amount         decimal.Decimal
}

// ExpenseRow is one billed expense
type ExpenseRow struct {
	Matter           string
	Description      string
	OriginalAmount   decimal.Decimal
	OriginalCurrency string
	ExchangeRate     decimal.Decimal
	Converted        bool
	Amount           decimal.Decimal
}

// RateRow is one applied conversion rate
type RateRow struct {
	Currency string
	Rate     decimal.Decimal
}

// PaymentRow is one recorded payment
type PaymentRow struct {
	Date      time.Time
	Method    string
	Reference string
	Amount    decimal.Decimal
}

// ChildRow is one child invoice of a split parent
type ChildRow struct {
	Number        string
	Percentage    decimal.Decimal
	FinalAmount   decimal.Decimal
	AmountPaid    decimal.Decimal
	PaymentStatus string
}

// NewInvoiceView flattens an invoice document for printing. Split parents
// take their money totals from the children.
func NewInvoiceView(doc *appbilling.InvoiceDocument, firmName, firmAddress string) (*InvoiceView, error) {
	if doc == nil || doc.Invoice == nil {
		return nil, NewRenderError(ErrCodeInvalidDocument, "invoice document is empty", nil)
	}
	inv := doc.Invoice

	matterNames := make(map[uuid.UUID]string, len(doc.Matters))
	matters := make([]string, 0, len(doc.Matters))
	for _, m := range doc.Matters {
		matterNames[m.ID] = m.Name
		matters = append(matters, m.Name)
	}

	view := &InvoiceView{
		FirmName:        firmName,
		FirmAddress:     firmAddress,
		Number:          inv.InvoiceNumber,
		Status:          inv.Status.String(),
		PaymentStatus:   string(doc.PaymentStatus),
		InvoiceDate:     inv.InvoiceDate,
		DueDate:         inv.DueDate,
		BillingLocation: inv.BillingLocation,
		Currency:        inv.Currency.String(),
		Notes:           inv.Notes,
		SplitPercentage: inv.SplitPercentage,
		IsSplitParent:   inv.IsSplit,
		ClientName:      doc.Client.Name,
		ClientEmail:     doc.Client.Email,
		ClientAddress:   doc.Client.Address,
		Matters:         matters,
		Subtotal:        inv.Subtotal,
		DiscountAmount:  inv.DiscountAmount,
		FinalAmount:     inv.FinalAmount,
		BaseCurrency:    inv.BaseCurrency.String(),
		BaseAmount:      inv.BaseCurrencyAmount,
		AmountPaid:      inv.AmountPaid,
		Outstanding:     inv.OutstandingAmount(),
		GeneratedAt:     doc.GeneratedAt,
	}
	if view.PaymentStatus == "" {
		view.PaymentStatus = string(inv.PaymentStatus)
	}

	switch inv.DiscountType {
	case billing.DiscountTypePercentage:
		view.DiscountLabel = "Discount (" + inv.DiscountValue.String() + "%)"
	case billing.DiscountTypeFixed:
		view.DiscountLabel = "Discount"
	}

	for _, l := range inv.TimesheetLinks {
		view.Timesheets = append(view.Timesheets, TimesheetRow{
			WorkDate:       l.WorkDate,
			Matter:         matterNames[l.MatterID],
			Description:    l.Description,
			Minutes:        l.BilledMinutes,
			HourlyRate:     l.HourlyRate,
			SourceCurrency: l.SourceCurrency.String(),
			ExchangeRate:   l.ExchangeRate,
			Converted:      l.SourceCurrency != inv.Currency,
			Amount:         l.BilledAmount,
		})
	}
	sort.SliceStable(view.Timesheets, func(i, j int) bool {
		return view.Timesheets[i].WorkDate.Before(view.Timesheets[j].WorkDate)
	})

	for _, l := range inv.ExpenseLinks {
		view.Expenses = append(view.Expenses, ExpenseRow{
			Matter:           matterNames[l.MatterID],
			Description:      l.Description,
			OriginalAmount:   l.OriginalAmount,
			OriginalCurrency: l.OriginalCurrency.String(),
			ExchangeRate:     l.ExchangeRate,
			Converted:        l.OriginalCurrency != inv.Currency,
			Amount:           l.BilledAmount,
		})
	}

	for _, c := range inv.ExchangeRates.Currencies() {
		if c == inv.Currency {
			continue
		}
		rate, _ := inv.ExchangeRates.Rate(c)
		view.Rates = append(view.Rates, RateRow{Currency: c.String(), Rate: rate})
	}

	for _, p := range doc.Payments {
		view.Payments = append(view.Payments, PaymentRow{
			Date:      p.PaymentDate,
			Method:    string(p.Method),
			Reference: p.Reference,
			Amount:    p.Amount,
		})
	}

	if doc.Split != nil {
		view.FinalAmount = doc.Split.TotalAmount
		view.AmountPaid = doc.Split.TotalPaid
		view.Outstanding = doc.Split.Outstanding
		for _, c := range doc.Split.Children {
			view.Children = append(view.Children, ChildRow{
				Number:        c.InvoiceNumber,
				Percentage:    c.Percentage,
				FinalAmount:   c.FinalAmount,
				AmountPaid:    c.AmountPaid,
				PaymentStatus: string(c.PaymentStatus),
			})
		}
	}
	return view, nil
}
