package billing

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

var sixty = decimal.NewFromInt(60)

// TimesheetLink is the billed snapshot of one timesheet entry
type TimesheetLink struct {
	TimesheetID    uuid.UUID            `json:"timesheet_id"`
	MatterID       uuid.UUID            `json:"matter_id"`
	WorkDate       time.Time            `json:"work_date"`
	Description    string               `json:"description"`
	BilledMinutes  int                  `json:"billed_minutes"`
	HourlyRate     decimal.Decimal      `json:"hourly_rate"`
	SourceCurrency valueobject.Currency `json:"source_currency"`
	ExchangeRate   decimal.Decimal      `json:"exchange_rate"`
	BilledAmount   decimal.Decimal      `json:"billed_amount"`
}

// ExpenseLink is the billed snapshot of one expense
type ExpenseLink struct {
	ExpenseID        uuid.UUID            `json:"expense_id"`
	MatterID         uuid.UUID            `json:"matter_id"`
	Description      string               `json:"description"`
	OriginalAmount   decimal.Decimal      `json:"original_amount"`
	OriginalCurrency valueobject.Currency `json:"original_currency"`
	ExchangeRate     decimal.Decimal      `json:"exchange_rate"`
	BilledAmount     decimal.Decimal      `json:"billed_amount"`
	BilledCurrency   valueobject.Currency `json:"billed_currency"`
}

// TimesheetOverride adjusts the billed minutes or hourly rate of one entry
type TimesheetOverride struct {
	BilledMinutes *int
	HourlyRate    *decimal.Decimal
}

// LineItems is the full, converted snapshot set for one invoice
type LineItems struct {
	Timesheets []TimesheetLink
	Expenses   []ExpenseLink
	Subtotal   decimal.Decimal
}

// AggregationInput collects everything one aggregation pass needs
type AggregationInput struct {
	Timesheets []TimesheetEntry
	Expenses   []Expense
	Matters    map[uuid.UUID]Matter
	Overrides  map[uuid.UUID]TimesheetOverride
	// Claims maps a source record ID to the number of another invoice
	// that already bills it
	Claims map[uuid.UUID]string
	Target valueobject.Currency
	Rates  ExchangeRates
}

// LineItemAggregator converts timesheets and expenses into invoice lines
type LineItemAggregator struct {
	defaultCurrency valueobject.Currency
	expenseCurrency valueobject.Currency
}

// NewLineItemAggregator creates an aggregator. defaultCurrency applies to
// timesheets whose entry and matter carry no currency; expenseCurrency is
// the canonical currency for expenses recorded without one.
func NewLineItemAggregator(defaultCurrency, expenseCurrency valueobject.Currency) *LineItemAggregator {
	if defaultCurrency.IsZero() {
		defaultCurrency = valueobject.INR
	}
	if expenseCurrency.IsZero() {
		expenseCurrency = defaultCurrency
	}
	return &LineItemAggregator{defaultCurrency: defaultCurrency, expenseCurrency: expenseCurrency}
}

// DefaultCurrency returns the fallback timesheet currency
func (a *LineItemAggregator) DefaultCurrency() valueobject.Currency {
	return a.defaultCurrency
}

// TimesheetCurrency resolves an entry's native currency: the entry's own,
// else its matter's, else the default
func (a *LineItemAggregator) TimesheetCurrency(entry TimesheetEntry, matters map[uuid.UUID]Matter) valueobject.Currency {
	if !entry.Currency.IsZero() {
		return entry.Currency
	}
	if m, ok := matters[entry.MatterID]; ok && !m.Currency.IsZero() {
		return m.Currency
	}
	return a.defaultCurrency
}

// ExpenseCurrency resolves an expense's native currency
func (a *LineItemAggregator) ExpenseCurrency(expense Expense) valueobject.Currency {
	if !expense.Currency.IsZero() {
		return expense.Currency
	}
	return a.expenseCurrency
}

// Aggregate builds a fresh snapshot set. The result never depends on any
// previous snapshot, so re-running it with the same input is idempotent.
func (a *LineItemAggregator) Aggregate(in AggregationInput) (LineItems, error) {
	items := LineItems{
		Timesheets: make([]TimesheetLink, 0, len(in.Timesheets)),
		Expenses:   make([]ExpenseLink, 0, len(in.Expenses)),
	}
	total := decimal.Zero

	for _, entry := range sortedTimesheets(in.Timesheets) {
		if number, ok := in.Claims[entry.ID]; ok {
			return LineItems{}, AlreadyInvoicedError("timesheet", entry.ID, number)
		}
		minutes := entry.Minutes
		rate := entry.HourlyRate
		if o, ok := in.Overrides[entry.ID]; ok {
			if o.BilledMinutes != nil {
				minutes = *o.BilledMinutes
			}
			if o.HourlyRate != nil {
				rate = *o.HourlyRate
			}
		}
		if minutes < 0 || rate.IsNegative() {
			return LineItems{}, shared.NewValidationError("Billed minutes and hourly rate must not be negative").
				WithDetail("timesheet_id", entry.ID.String())
		}
		source := a.TimesheetCurrency(entry, in.Matters)
		native := decimal.NewFromInt(int64(minutes)).Div(sixty).Mul(rate)
		conv, err := Convert(native, source, in.Target, in.Rates)
		if err != nil {
			return LineItems{}, err
		}
		amount := valueobject.RoundInternal(conv.Amount)
		items.Timesheets = append(items.Timesheets, TimesheetLink{
			TimesheetID:    entry.ID,
			MatterID:       entry.MatterID,
			WorkDate:       entry.WorkDate,
			Description:    entry.Description,
			BilledMinutes:  minutes,
			HourlyRate:     rate,
			SourceCurrency: source,
			ExchangeRate:   conv.Rate,
			BilledAmount:   amount,
		})
		total = total.Add(amount)
	}

	for _, expense := range sortedExpenses(in.Expenses) {
		if number, ok := in.Claims[expense.ID]; ok {
			return LineItems{}, AlreadyInvoicedError("expense", expense.ID, number)
		}
		source := a.ExpenseCurrency(expense)
		conv, err := Convert(expense.Amount, source, in.Target, in.Rates)
		if err != nil {
			return LineItems{}, err
		}
		amount := valueobject.RoundInternal(conv.Amount)
		items.Expenses = append(items.Expenses, ExpenseLink{
			ExpenseID:        expense.ID,
			MatterID:         expense.MatterID,
			Description:      expense.Description,
			OriginalAmount:   expense.Amount,
			OriginalCurrency: source,
			ExchangeRate:     conv.Rate,
			BilledAmount:     amount,
			BilledCurrency:   in.Target,
		})
		total = total.Add(amount)
	}

	items.Subtotal = valueobject.RoundDisplay(total)
	return items, nil
}

// DetectCurrencies lists the distinct native currencies of the candidate
// sources plus the matters' own currencies, sorted
func (a *LineItemAggregator) DetectCurrencies(matters map[uuid.UUID]Matter, timesheets []TimesheetEntry, expenses []Expense) []valueobject.Currency {
	seen := map[valueobject.Currency]bool{}
	for _, m := range matters {
		if !m.Currency.IsZero() {
			seen[m.Currency] = true
		}
	}
	for _, t := range timesheets {
		seen[a.TimesheetCurrency(t, matters)] = true
	}
	for _, e := range expenses {
		seen[a.ExpenseCurrency(e)] = true
	}
	out := make([]valueobject.Currency, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AlreadyInvoicedError reports a source record billed by another invoice
func AlreadyInvoicedError(kind string, id uuid.UUID, invoiceNumber string) *shared.DomainError {
	return shared.NewDomainError(shared.CodeAlreadyInvoiced,
		"The "+kind+" is already billed on invoice "+invoiceNumber).
		WithDetail(kind+"_id", id.String()).
		WithDetail("invoice_number", invoiceNumber)
}

func sortedTimesheets(in []TimesheetEntry) []TimesheetEntry {
	out := append([]TimesheetEntry(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].WorkDate.Equal(out[j].WorkDate) {
			return out[i].WorkDate.Before(out[j].WorkDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func sortedExpenses(in []Expense) []Expense {
	out := append([]Expense(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].IncurredOn.Equal(out[j].IncurredOn) {
			return out[i].IncurredOn.Before(out[j].IncurredOn)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
