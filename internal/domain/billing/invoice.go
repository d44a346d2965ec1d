package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the workflow status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusFinalized InvoiceStatus = "finalized"
	InvoiceStatusUploaded  InvoiceStatus = "invoice_uploaded"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusFinalized, InvoiceStatusUploaded:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// CanEdit returns true if fields and line items may change
func (s InvoiceStatus) CanEdit() bool {
	return s == InvoiceStatusDraft
}

// CanUpload returns true if a signed document may be attached
func (s InvoiceStatus) CanUpload() bool {
	return s == InvoiceStatusFinalized
}

// CanReceivePayment returns true once the invoice has left draft
func (s InvoiceStatus) CanReceivePayment() bool {
	return s == InvoiceStatusFinalized || s == InvoiceStatusUploaded
}

// PaymentStatus is the settlement status of an invoice
type PaymentStatus string

const (
	PaymentStatusNew           PaymentStatus = "new"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusOverdue       PaymentStatus = "overdue"
	PaymentStatusPaid          PaymentStatus = "paid"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusNew, PaymentStatusPartiallyPaid, PaymentStatusOverdue, PaymentStatusPaid:
		return true
	}
	return false
}

// DiscountType selects how the discount value is interpreted
type DiscountType string

const (
	DiscountTypeNone       DiscountType = ""
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// IsValid checks if the discount type is valid
func (t DiscountType) IsValid() bool {
	switch t {
	case DiscountTypeNone, DiscountTypePercentage, DiscountTypeFixed:
		return true
	}
	return false
}

// Discount is a discount rule applied to the subtotal
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// Validate checks the discount rule itself, independent of any subtotal
func (d Discount) Validate() error {
	if !d.Type.IsValid() {
		return shared.NewValidationError("Discount type must be percentage or fixed").
			WithDetail("discount_type", string(d.Type))
	}
	if d.Value.IsNegative() {
		return shared.NewValidationError("Discount value must not be negative")
	}
	if d.Type == DiscountTypePercentage && d.Value.GreaterThan(valueobject.Hundred()) {
		return shared.NewValidationError("Discount percentage must not exceed 100")
	}
	return nil
}

// Amount computes the discount on subtotal, clamped to [0, subtotal]
func (d Discount) Amount(subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch d.Type {
	case DiscountTypePercentage:
		amount = valueobject.RoundDisplay(valueobject.Percent(subtotal, d.Value))
	case DiscountTypeFixed:
		amount = valueobject.RoundDisplay(d.Value)
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}

// Invoice is the aggregate root for one billable document. A split parent
// carries IsSplit and never receives payments; its children do.
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber      string
	ClientID           uuid.UUID
	MatterIDs          []uuid.UUID
	BillingLocation    string
	InvoiceDate        time.Time
	DueDate            time.Time
	Currency           valueobject.Currency
	BaseCurrency       valueobject.Currency
	ExchangeRates      ExchangeRates
	Subtotal           decimal.Decimal
	DiscountType       DiscountType
	DiscountValue      decimal.Decimal
	DiscountAmount     decimal.Decimal
	FinalAmount        decimal.Decimal
	BaseCurrencyAmount *decimal.Decimal
	AmountPaid         decimal.Decimal
	Status             InvoiceStatus
	PaymentStatus      PaymentStatus
	ParentID           *uuid.UUID
	IsSplit            bool
	SplitPercentage    *decimal.Decimal
	SplitSequence      int
	Notes              string
	CreatedBy          string
	SignedDocumentURL  string
	FinalizedAt        *time.Time
	UploadedAt         *time.Time
	TimesheetLinks     []TimesheetLink
	ExpenseLinks       []ExpenseLink
	PartnerShares      PartnerShares
}

// InvoiceDraft carries everything needed to create a draft invoice
type InvoiceDraft struct {
	InvoiceNumber   string
	ClientID        uuid.UUID
	MatterIDs       []uuid.UUID
	BillingLocation string
	InvoiceDate     time.Time
	DueDate         time.Time
	Currency        valueobject.Currency
	BaseCurrency    valueobject.Currency
	ExchangeRates   ExchangeRates
	Discount        Discount
	Notes           string
	CreatedBy       string
	Items           LineItems
}

// NewInvoice creates a draft invoice from a fully aggregated draft
func NewInvoice(d InvoiceDraft) (*Invoice, error) {
	if d.InvoiceNumber == "" {
		return nil, shared.NewValidationError("Invoice number cannot be empty")
	}
	if d.ClientID == uuid.Nil {
		return nil, shared.NewValidationError("Client is required")
	}
	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     d.InvoiceNumber,
		ClientID:          d.ClientID,
		Status:            InvoiceStatusDraft,
		PaymentStatus:     PaymentStatusNew,
		AmountPaid:        decimal.Zero,
		CreatedBy:         d.CreatedBy,
	}
	if err := inv.apply(DraftRevision{
		MatterIDs:       d.MatterIDs,
		BillingLocation: d.BillingLocation,
		InvoiceDate:     d.InvoiceDate,
		DueDate:         d.DueDate,
		Currency:        d.Currency,
		BaseCurrency:    d.BaseCurrency,
		ExchangeRates:   d.ExchangeRates,
		Discount:        d.Discount,
		Notes:           d.Notes,
		Items:           d.Items,
	}); err != nil {
		return nil, err
	}

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))
	return inv, nil
}

// DraftRevision is the complete new state of an edited draft. Line items
// replace the previous snapshot set wholesale.
type DraftRevision struct {
	MatterIDs       []uuid.UUID
	BillingLocation string
	InvoiceDate     time.Time
	DueDate         time.Time
	Currency        valueobject.Currency
	BaseCurrency    valueobject.Currency
	ExchangeRates   ExchangeRates
	Discount        Discount
	Notes           string
	Items           LineItems
}

// Revise replaces the draft's editable state and re-derives its totals
func (inv *Invoice) Revise(r DraftRevision) error {
	if err := inv.EnsureEditable(); err != nil {
		return err
	}
	if err := inv.apply(r); err != nil {
		return err
	}
	inv.UpdatedAt = time.Now()
	inv.AddDomainEvent(NewInvoiceRevisedEvent(inv))
	return nil
}

func (inv *Invoice) apply(r DraftRevision) error {
	if len(r.MatterIDs) == 0 {
		return shared.NewValidationError("At least one matter is required")
	}
	seen := make(map[uuid.UUID]bool, len(r.MatterIDs))
	for _, id := range r.MatterIDs {
		if id == uuid.Nil || seen[id] {
			return shared.NewValidationError("Matter list contains an empty or repeated entry")
		}
		seen[id] = true
	}
	if r.Currency.IsZero() {
		return shared.NewValidationError("Invoice currency is required")
	}
	if r.InvoiceDate.IsZero() || r.DueDate.IsZero() {
		return shared.NewValidationError("Invoice date and due date are required")
	}
	if r.DueDate.Before(r.InvoiceDate) {
		return shared.NewValidationError("Due date cannot be before invoice date")
	}
	if err := r.Discount.Validate(); err != nil {
		return err
	}

	inv.MatterIDs = append([]uuid.UUID(nil), r.MatterIDs...)
	inv.BillingLocation = r.BillingLocation
	inv.InvoiceDate = r.InvoiceDate
	inv.DueDate = r.DueDate
	inv.Currency = r.Currency
	inv.BaseCurrency = r.BaseCurrency
	inv.ExchangeRates = r.ExchangeRates.Clone()
	inv.DiscountType = r.Discount.Type
	inv.DiscountValue = r.Discount.Value
	inv.Notes = r.Notes
	inv.TimesheetLinks = append([]TimesheetLink(nil), r.Items.Timesheets...)
	inv.ExpenseLinks = append([]ExpenseLink(nil), r.Items.Expenses...)
	inv.recalculate()
	return nil
}

// recalculate re-derives every total from the current snapshot set
func (inv *Invoice) recalculate() {
	total := decimal.Zero
	for _, l := range inv.TimesheetLinks {
		total = total.Add(l.BilledAmount)
	}
	for _, l := range inv.ExpenseLinks {
		total = total.Add(l.BilledAmount)
	}
	inv.Subtotal = valueobject.RoundDisplay(total)
	inv.DiscountAmount = Discount{Type: inv.DiscountType, Value: inv.DiscountValue}.Amount(inv.Subtotal)
	inv.FinalAmount = inv.Subtotal.Sub(inv.DiscountAmount)
	inv.BaseCurrencyAmount = inv.baseCurrencyAmount()
}

// baseCurrencyAmount expresses the final amount in the reporting currency.
// The stored rate for the base currency converts base into invoice currency.
func (inv *Invoice) baseCurrencyAmount() *decimal.Decimal {
	if inv.BaseCurrency.IsZero() || inv.BaseCurrency == inv.Currency {
		v := inv.FinalAmount
		return &v
	}
	rate, ok := inv.ExchangeRates.Rate(inv.BaseCurrency)
	if !ok {
		return nil
	}
	v := valueobject.RoundDisplay(inv.FinalAmount.Div(rate))
	return &v
}

// SourceCurrencies lists the native currencies of every billed snapshot
func (inv *Invoice) SourceCurrencies() []valueobject.Currency {
	out := make([]valueobject.Currency, 0, len(inv.TimesheetLinks)+len(inv.ExpenseLinks))
	for _, l := range inv.TimesheetLinks {
		out = append(out, l.SourceCurrency)
	}
	for _, l := range inv.ExpenseLinks {
		out = append(out, l.OriginalCurrency)
	}
	return out
}

// TimesheetOverrides returns the billed minutes and rates of the current
// snapshot set so a re-aggregation keeps prior adjustments
func (inv *Invoice) TimesheetOverrides() map[uuid.UUID]TimesheetOverride {
	out := make(map[uuid.UUID]TimesheetOverride, len(inv.TimesheetLinks))
	for _, l := range inv.TimesheetLinks {
		minutes := l.BilledMinutes
		rate := l.HourlyRate
		out[l.TimesheetID] = TimesheetOverride{BilledMinutes: &minutes, HourlyRate: &rate}
	}
	return out
}

// TimesheetIDs returns the IDs of the billed timesheets
func (inv *Invoice) TimesheetIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(inv.TimesheetLinks))
	for _, l := range inv.TimesheetLinks {
		out = append(out, l.TimesheetID)
	}
	return out
}

// ExpenseIDs returns the IDs of the billed expenses
func (inv *Invoice) ExpenseIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(inv.ExpenseLinks))
	for _, l := range inv.ExpenseLinks {
		out = append(out, l.ExpenseID)
	}
	return out
}

// Discount returns the invoice's discount rule
func (inv *Invoice) Discount() Discount {
	return Discount{Type: inv.DiscountType, Value: inv.DiscountValue}
}

// IsChild reports whether the invoice was produced by a split
func (inv *Invoice) IsChild() bool {
	return inv.ParentID != nil
}

// OutstandingAmount returns final amount minus amount paid
func (inv *Invoice) OutstandingAmount() decimal.Decimal {
	return inv.FinalAmount.Sub(inv.AmountPaid)
}

// FinalizeParams carries the inputs of the draft -> finalized transition
type FinalizeParams struct {
	Shares PartnerShares
	Splits []SplitTarget
	// Clients must contain the invoice's client and every split client
	Clients map[uuid.UUID]Client
	// MatterCurrencies are the native currencies of the linked matters
	MatterCurrencies []valueobject.Currency
	At               time.Time
}

// Finalize validates and performs the draft -> finalized transition.
// Nothing is mutated unless every check passes. When more than one split
// target is given the returned children carry the partner shares and the
// invoice becomes a split parent.
func (inv *Invoice) Finalize(p FinalizeParams) ([]*Invoice, error) {
	if inv.Status != InvoiceStatusDraft {
		return nil, inv.stateError("finalize")
	}
	required := append(inv.SourceCurrencies(), p.MatterCurrencies...)
	if err := EnsureRatesCover(required, inv.Currency, inv.ExchangeRates); err != nil {
		return nil, err
	}
	if err := p.Shares.Validate(); err != nil {
		return nil, err
	}
	plan, err := PlanSplit(inv.ClientID, p.Splits, p.Clients)
	if err != nil {
		return nil, err
	}

	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	inv.Status = InvoiceStatusFinalized
	inv.FinalizedAt = &at
	inv.UpdatedAt = at

	var children []*Invoice
	if plan.Active() {
		children = inv.splitInto(plan, p.Shares, at)
		inv.IsSplit = true
		inv.PartnerShares = nil
	} else {
		inv.PartnerShares = p.Shares.Clone()
	}

	inv.AddDomainEvent(NewInvoiceFinalizedEvent(inv))
	if len(children) > 0 {
		inv.AddDomainEvent(NewInvoiceSplitEvent(inv, children))
	}
	return children, nil
}

// AttachSignedDocument records the stored signed document and moves the
// invoice to invoice_uploaded
func (inv *Invoice) AttachSignedDocument(url string, at time.Time) error {
	if err := inv.EnsureUploadable(); err != nil {
		return err
	}
	if url == "" {
		return shared.NewValidationError("Signed document location is required")
	}
	inv.SignedDocumentURL = url
	inv.Status = InvoiceStatusUploaded
	inv.UploadedAt = &at
	inv.UpdatedAt = at
	inv.AddDomainEvent(NewInvoiceUploadedEvent(inv))
	return nil
}

// RecordPayment applies a payment to a leaf invoice
func (inv *Invoice) RecordPayment(p *Payment) error {
	if inv.IsSplit {
		return shared.NewInvalidStateError("Payments must be recorded on the split invoices, not the parent").
			WithDetail("invoice_number", inv.InvoiceNumber)
	}
	if !inv.Status.CanReceivePayment() {
		return inv.stateError("record a payment on")
	}
	if p.InvoiceID != inv.ID {
		return shared.NewValidationError("Payment belongs to a different invoice")
	}
	if !p.Amount.IsPositive() {
		return shared.NewValidationError("Payment amount must be positive")
	}
	outstanding := inv.OutstandingAmount()
	if p.Amount.GreaterThan(outstanding) {
		return shared.NewDomainError(shared.CodeExceedsOutstanding,
			fmt.Sprintf("Payment amount %s exceeds outstanding amount %s", p.Amount.StringFixed(2), outstanding.StringFixed(2))).
			WithDetail("invoice_number", inv.InvoiceNumber).
			WithDetail("outstanding", outstanding.StringFixed(2))
	}

	inv.AmountPaid = inv.AmountPaid.Add(p.Amount)
	if inv.AmountPaid.GreaterThanOrEqual(inv.FinalAmount) {
		inv.PaymentStatus = PaymentStatusPaid
	} else {
		inv.PaymentStatus = PaymentStatusPartiallyPaid
	}
	inv.UpdatedAt = time.Now()
	inv.AddDomainEvent(NewPaymentRecordedEvent(inv, p))
	return nil
}

// DerivePaymentStatus computes the settlement status as of now. It never
// reads the stored PaymentStatus. An invoice is overdue once its whole due
// day has passed with money still outstanding.
func (inv *Invoice) DerivePaymentStatus(now time.Time) PaymentStatus {
	if inv.Status == InvoiceStatusDraft {
		return PaymentStatusNew
	}
	if !inv.OutstandingAmount().IsPositive() {
		return PaymentStatusPaid
	}
	if !inv.DueDate.IsZero() && !now.Before(inv.DueDate.AddDate(0, 0, 1)) {
		return PaymentStatusOverdue
	}
	if inv.AmountPaid.IsPositive() {
		return PaymentStatusPartiallyPaid
	}
	return PaymentStatusNew
}

// EnsureEditable rejects edits outside draft
func (inv *Invoice) EnsureEditable() error {
	if !inv.Status.CanEdit() {
		return inv.stateError("edit")
	}
	return nil
}

// EnsureUploadable rejects signed uploads outside finalized
func (inv *Invoice) EnsureUploadable() error {
	if !inv.Status.CanUpload() {
		return inv.stateError("upload a signed document for")
	}
	return nil
}

// EnsureDeletable rejects deletion of uploaded invoices, split children
// and invoices carrying payments
func (inv *Invoice) EnsureDeletable() error {
	if inv.Status == InvoiceStatusUploaded {
		return inv.stateError("delete")
	}
	if inv.IsChild() {
		return shared.NewInvalidStateError("Split invoices are removed together with their parent").
			WithDetail("invoice_number", inv.InvoiceNumber)
	}
	if inv.AmountPaid.IsPositive() {
		return shared.NewInvalidStateError("Invoice with payments cannot be deleted").
			WithDetail("invoice_number", inv.InvoiceNumber)
	}
	return nil
}

// MarkDeleted raises the deletion event
func (inv *Invoice) MarkDeleted() {
	inv.AddDomainEvent(NewInvoiceDeletedEvent(inv))
}

func (inv *Invoice) stateError(action string) *shared.DomainError {
	return shared.NewInvalidStateError(fmt.Sprintf("Cannot %s invoice in %s status", action, inv.Status)).
		WithDetail("invoice_number", inv.InvoiceNumber).
		WithDetail("status", inv.Status.String())
}
