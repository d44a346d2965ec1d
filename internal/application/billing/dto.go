package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// TimesheetOverrideRequest adjusts one timesheet's billed minutes or rate
type TimesheetOverrideRequest struct {
	TimesheetID   uuid.UUID        `json:"timesheet_id" binding:"required"`
	BilledMinutes *int             `json:"billed_minutes" binding:"omitempty,min=0"`
	HourlyRate    *decimal.Decimal `json:"hourly_rate"`
}

// DiscountRequest describes the discount applied to the subtotal
type DiscountRequest struct {
	Type  string          `json:"type" binding:"omitempty,oneof=percentage fixed"`
	Value decimal.Decimal `json:"value"`
}

// CreateInvoiceRequest represents a request to create a draft invoice
type CreateInvoiceRequest struct {
	ClientID        uuid.UUID                  `json:"client_id" binding:"required"`
	MatterIDs       []uuid.UUID                `json:"matter_ids" binding:"required,min=1,dive,required"`
	InvoiceNumber   string                     `json:"invoice_number" binding:"omitempty,max=40"`
	BillingLocation string                     `json:"billing_location" binding:"max=100"`
	InvoiceDate     string                     `json:"invoice_date" binding:"omitempty,datetime=2006-01-02"`
	DueDate         string                     `json:"due_date" binding:"omitempty,datetime=2006-01-02"`
	Currency        string                     `json:"currency" binding:"omitempty,len=3"`
	BaseCurrency    string                     `json:"base_currency" binding:"omitempty,len=3"`
	ExchangeRates   map[string]decimal.Decimal `json:"exchange_rates"`
	TimesheetIDs    []uuid.UUID                `json:"timesheet_ids"`
	ExpenseIDs      []uuid.UUID                `json:"expense_ids"`
	// IncludeUnbilled bills every unbilled timesheet and expense of the
	// matters when no explicit IDs are given
	IncludeUnbilled bool                       `json:"include_unbilled"`
	Overrides       []TimesheetOverrideRequest `json:"overrides" binding:"dive"`
	Discount        *DiscountRequest           `json:"discount"`
	Notes           string                     `json:"notes" binding:"max=4000"`
	CreatedBy       string                     `json:"created_by" binding:"max=100"`
}

// UpdateInvoiceRequest edits a draft. Nil fields keep their current value;
// TimesheetIDs and ExpenseIDs replace the billed sets when present.
type UpdateInvoiceRequest struct {
	MatterIDs       []uuid.UUID                `json:"matter_ids" binding:"omitempty,min=1,dive,required"`
	BillingLocation *string                    `json:"billing_location" binding:"omitempty,max=100"`
	InvoiceDate     *string                    `json:"invoice_date" binding:"omitempty,datetime=2006-01-02"`
	DueDate         *string                    `json:"due_date" binding:"omitempty,datetime=2006-01-02"`
	Currency        *string                    `json:"currency" binding:"omitempty,len=3"`
	BaseCurrency    *string                    `json:"base_currency" binding:"omitempty,len=3"`
	ExchangeRates   map[string]decimal.Decimal `json:"exchange_rates"`
	TimesheetIDs    []uuid.UUID                `json:"timesheet_ids"`
	ExpenseIDs      []uuid.UUID                `json:"expense_ids"`
	Overrides       []TimesheetOverrideRequest `json:"overrides" binding:"dive"`
	Discount        *DiscountRequest           `json:"discount"`
	Notes           *string                    `json:"notes" binding:"omitempty,max=4000"`
}

// PartnerShareRequest is one partner's share at finalize
type PartnerShareRequest struct {
	PartnerID  uuid.UUID       `json:"partner_id" binding:"required"`
	Percentage decimal.Decimal `json:"percentage"`
}

// SplitRequest is one client's portion of a split invoice
type SplitRequest struct {
	ClientID   uuid.UUID       `json:"client_id" binding:"required"`
	Percentage decimal.Decimal `json:"percentage"`
}

// FinalizeInvoiceRequest represents a request to finalize a draft
type FinalizeInvoiceRequest struct {
	PartnerShares []PartnerShareRequest `json:"partner_shares" binding:"required,min=1,dive"`
	Splits        []SplitRequest        `json:"splits" binding:"dive"`
}

// UploadSignedInvoiceRequest carries the signed document. With no content
// the generated document is stored instead.
type UploadSignedInvoiceRequest struct {
	FileName    string
	ContentType string
	Content     []byte
}

// RecordPaymentRequest represents a request to record a payment
type RecordPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date" binding:"omitempty,datetime=2006-01-02"`
	Method      string          `json:"method" binding:"omitempty,oneof=bank_transfer cheque cash card upi other"`
	Reference   string          `json:"reference" binding:"max=200"`
	Notes       string          `json:"notes" binding:"max=2000"`
	RecordedBy  string          `json:"recorded_by" binding:"max=100"`
}

// DetectCurrenciesRequest names a candidate billing set
type DetectCurrenciesRequest struct {
	MatterIDs    []uuid.UUID `json:"matter_ids" binding:"required,min=1,dive,required"`
	TimesheetIDs []uuid.UUID `json:"timesheet_ids"`
	ExpenseIDs   []uuid.UUID `json:"expense_ids"`
	Currency     string      `json:"currency" binding:"omitempty,len=3"`
}

// DetectCurrenciesResponse lists the currencies found and those still
// needing an exchange rate into the invoice currency
type DetectCurrenciesResponse struct {
	Currency      string   `json:"currency"`
	Currencies    []string `json:"currencies"`
	RequiresRates []string `json:"requires_rates"`
}

// SuggestRatesResponse holds advisory exchange rates
type SuggestRatesResponse struct {
	Target string                     `json:"target"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

// InvoiceListFilter represents filter options for invoice listings
type InvoiceListFilter struct {
	Search       string     `form:"search"`
	ClientID     *uuid.UUID `form:"-"`
	MatterID     *uuid.UUID `form:"-"`
	Status       string     `form:"status" binding:"omitempty,oneof=draft finalized invoice_uploaded"`
	TopLevelOnly bool       `form:"top_level_only"`
	DateFrom     string     `form:"date_from" binding:"omitempty,datetime=2006-01-02"`
	DateTo       string     `form:"date_to" binding:"omitempty,datetime=2006-01-02"`
	Page         int        `form:"page" binding:"omitempty,min=1"`
	PageSize     int        `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy      string     `form:"order_by"`
	OrderDir     string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// PartnerShareResponse is one partner's share
type PartnerShareResponse struct {
	PartnerID  uuid.UUID       `json:"partner_id"`
	Percentage decimal.Decimal `json:"percentage"`
}

// InvoiceResponse represents an invoice in API responses. PaymentStatus is
// derived at read time.
type InvoiceResponse struct {
	ID                 uuid.UUID                  `json:"id"`
	InvoiceNumber      string                     `json:"invoice_number"`
	ClientID           uuid.UUID                  `json:"client_id"`
	MatterIDs          []uuid.UUID                `json:"matter_ids"`
	BillingLocation    string                     `json:"billing_location"`
	InvoiceDate        string                     `json:"invoice_date"`
	DueDate            string                     `json:"due_date"`
	Currency           string                     `json:"currency"`
	BaseCurrency       string                     `json:"base_currency,omitempty"`
	ExchangeRates      map[string]decimal.Decimal `json:"exchange_rates"`
	Subtotal           decimal.Decimal            `json:"subtotal"`
	DiscountType       string                     `json:"discount_type,omitempty"`
	DiscountValue      decimal.Decimal            `json:"discount_value"`
	DiscountAmount     decimal.Decimal            `json:"discount_amount"`
	FinalAmount        decimal.Decimal            `json:"final_amount"`
	BaseCurrencyAmount *decimal.Decimal           `json:"base_currency_amount,omitempty"`
	AmountPaid         decimal.Decimal            `json:"amount_paid"`
	OutstandingAmount  decimal.Decimal            `json:"outstanding_amount"`
	Status             string                     `json:"status"`
	PaymentStatus      string                     `json:"payment_status"`
	ParentID           *uuid.UUID                 `json:"parent_id,omitempty"`
	IsSplit            bool                       `json:"is_split"`
	SplitPercentage    *decimal.Decimal           `json:"split_percentage,omitempty"`
	SplitSequence      int                        `json:"split_sequence,omitempty"`
	Notes              string                     `json:"notes,omitempty"`
	CreatedBy          string                     `json:"created_by,omitempty"`
	SignedDocumentURL  string                     `json:"signed_document_url,omitempty"`
	FinalizedAt        *time.Time                 `json:"finalized_at,omitempty"`
	UploadedAt         *time.Time                 `json:"uploaded_at,omitempty"`
	Timesheets         []billing.TimesheetLink    `json:"timesheets"`
	Expenses           []billing.ExpenseLink      `json:"expenses"`
	PartnerShares      []PartnerShareResponse     `json:"partner_shares"`
	Split              *billing.SplitSummary      `json:"split,omitempty"`
	Version            int                        `json:"version"`
	CreatedAt          time.Time                  `json:"created_at"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}

// InvoiceListItemResponse represents an invoice row in listings
type InvoiceListItemResponse struct {
	ID                uuid.UUID       `json:"id"`
	InvoiceNumber     string          `json:"invoice_number"`
	ClientID          uuid.UUID       `json:"client_id"`
	InvoiceDate       string          `json:"invoice_date"`
	DueDate           string          `json:"due_date"`
	Currency          string          `json:"currency"`
	FinalAmount       decimal.Decimal `json:"final_amount"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	Status            string          `json:"status"`
	PaymentStatus     string          `json:"payment_status"`
	ParentID          *uuid.UUID      `json:"parent_id,omitempty"`
	IsSplit           bool            `json:"is_split"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   string          `json:"payment_date"`
	Method        string          `json:"method"`
	Reference     string          `json:"reference,omitempty"`
	RecordedBy    string          `json:"recorded_by,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RecordPaymentResponse returns the payment and the invoice after it
type RecordPaymentResponse struct {
	Payment PaymentResponse `json:"payment"`
	Invoice InvoiceResponse `json:"invoice"`
}

// ToInvoiceResponse converts a domain invoice, deriving payment status as of now
func ToInvoiceResponse(inv *billing.Invoice, now time.Time) InvoiceResponse {
	rates := make(map[string]decimal.Decimal, len(inv.ExchangeRates))
	for c, r := range inv.ExchangeRates {
		rates[c.String()] = r
	}
	shares := make([]PartnerShareResponse, len(inv.PartnerShares))
	for i, s := range inv.PartnerShares {
		shares[i] = PartnerShareResponse{PartnerID: s.PartnerID, Percentage: s.Percentage}
	}
	timesheets := inv.TimesheetLinks
	if timesheets == nil {
		timesheets = []billing.TimesheetLink{}
	}
	expenses := inv.ExpenseLinks
	if expenses == nil {
		expenses = []billing.ExpenseLink{}
	}
	return InvoiceResponse{
		ID:                 inv.ID,
		InvoiceNumber:      inv.InvoiceNumber,
		ClientID:           inv.ClientID,
		MatterIDs:          inv.MatterIDs,
		BillingLocation:    inv.BillingLocation,
		InvoiceDate:        formatDate(inv.InvoiceDate),
		DueDate:            formatDate(inv.DueDate),
		Currency:           inv.Currency.String(),
		BaseCurrency:       inv.BaseCurrency.String(),
		ExchangeRates:      rates,
		Subtotal:           inv.Subtotal,
		DiscountType:       string(inv.DiscountType),
		DiscountValue:      inv.DiscountValue,
		DiscountAmount:     inv.DiscountAmount,
		FinalAmount:        inv.FinalAmount,
		BaseCurrencyAmount: inv.BaseCurrencyAmount,
		AmountPaid:         inv.AmountPaid,
		OutstandingAmount:  inv.OutstandingAmount(),
		Status:             inv.Status.String(),
		PaymentStatus:      string(inv.DerivePaymentStatus(now)),
		ParentID:           inv.ParentID,
		IsSplit:            inv.IsSplit,
		SplitPercentage:    inv.SplitPercentage,
		SplitSequence:      inv.SplitSequence,
		Notes:              inv.Notes,
		CreatedBy:          inv.CreatedBy,
		SignedDocumentURL:  inv.SignedDocumentURL,
		FinalizedAt:        inv.FinalizedAt,
		UploadedAt:         inv.UploadedAt,
		Timesheets:         timesheets,
		Expenses:           expenses,
		PartnerShares:      shares,
		Version:            inv.Version,
		CreatedAt:          inv.CreatedAt,
		UpdatedAt:          inv.UpdatedAt,
	}
}

// ToInvoiceListItemResponse converts a domain invoice to a list row
func ToInvoiceListItemResponse(inv *billing.Invoice, now time.Time) InvoiceListItemResponse {
	return InvoiceListItemResponse{
		ID:                inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		ClientID:          inv.ClientID,
		InvoiceDate:       formatDate(inv.InvoiceDate),
		DueDate:           formatDate(inv.DueDate),
		Currency:          inv.Currency.String(),
		FinalAmount:       inv.FinalAmount,
		AmountPaid:        inv.AmountPaid,
		OutstandingAmount: inv.OutstandingAmount(),
		Status:            inv.Status.String(),
		PaymentStatus:     string(inv.DerivePaymentStatus(now)),
		ParentID:          inv.ParentID,
		IsSplit:           inv.IsSplit,
	}
}

// ToPaymentResponse converts a domain payment
func ToPaymentResponse(p *billing.Payment, invoiceNumber string) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		InvoiceID:     p.InvoiceID,
		InvoiceNumber: invoiceNumber,
		Amount:        p.Amount,
		PaymentDate:   formatDate(p.PaymentDate),
		Method:        string(p.Method),
		Reference:     p.Reference,
		RecordedBy:    p.RecordedBy,
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt,
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}
