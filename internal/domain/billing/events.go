package billing

import (
	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// AggregateTypeInvoice is the aggregate type for invoice events
const AggregateTypeInvoice = "Invoice"

// Invoice event types
const (
	EventTypeInvoiceCreated   = "InvoiceCreated"
	EventTypeInvoiceRevised   = "InvoiceRevised"
	EventTypeInvoiceFinalized = "InvoiceFinalized"
	EventTypeInvoiceSplit     = "InvoiceSplit"
	EventTypeInvoiceUploaded  = "InvoiceUploaded"
	EventTypePaymentRecorded  = "PaymentRecorded"
	EventTypeInvoiceDeleted   = "InvoiceDeleted"
)

// InvoiceCreatedEvent is raised when a draft invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string               `json:"invoice_number"`
	ClientID      uuid.UUID            `json:"client_id"`
	Currency      valueobject.Currency `json:"currency"`
	FinalAmount   decimal.Decimal      `json:"final_amount"`
}

// NewInvoiceCreatedEvent creates an InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
		Currency:        inv.Currency,
		FinalAmount:     inv.FinalAmount,
	}
}

// InvoiceRevisedEvent is raised when a draft is edited
type InvoiceRevisedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
}

// NewInvoiceRevisedEvent creates an InvoiceRevisedEvent
func NewInvoiceRevisedEvent(inv *Invoice) *InvoiceRevisedEvent {
	return &InvoiceRevisedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceRevised, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
		Subtotal:        inv.Subtotal,
		FinalAmount:     inv.FinalAmount,
	}
}

// InvoiceFinalizedEvent is raised when a draft is finalized
type InvoiceFinalizedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	IsSplit       bool            `json:"is_split"`
}

// NewInvoiceFinalizedEvent creates an InvoiceFinalizedEvent
func NewInvoiceFinalizedEvent(inv *Invoice) *InvoiceFinalizedEvent {
	return &InvoiceFinalizedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceFinalized, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
		FinalAmount:     inv.FinalAmount,
		IsSplit:         inv.IsSplit,
	}
}

// SplitChildRef describes one child produced by a split
type SplitChildRef struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	Percentage    decimal.Decimal `json:"percentage"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
}

// InvoiceSplitEvent is raised on the parent when children are created
type InvoiceSplitEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	Children      []SplitChildRef `json:"children"`
}

// NewInvoiceSplitEvent creates an InvoiceSplitEvent
func NewInvoiceSplitEvent(parent *Invoice, children []*Invoice) *InvoiceSplitEvent {
	refs := make([]SplitChildRef, 0, len(children))
	for _, c := range children {
		pct := decimal.Zero
		if c.SplitPercentage != nil {
			pct = *c.SplitPercentage
		}
		refs = append(refs, SplitChildRef{
			InvoiceID:     c.ID,
			InvoiceNumber: c.InvoiceNumber,
			ClientID:      c.ClientID,
			Percentage:    pct,
			FinalAmount:   c.FinalAmount,
		})
	}
	return &InvoiceSplitEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceSplit, AggregateTypeInvoice, parent.ID),
		InvoiceNumber:   parent.InvoiceNumber,
		Children:        refs,
	}
}

// InvoiceUploadedEvent is raised when the signed document is stored
type InvoiceUploadedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string `json:"invoice_number"`
	DocumentURL   string `json:"document_url"`
}

// NewInvoiceUploadedEvent creates an InvoiceUploadedEvent
func NewInvoiceUploadedEvent(inv *Invoice) *InvoiceUploadedEvent {
	return &InvoiceUploadedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceUploaded, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
		DocumentURL:     inv.SignedDocumentURL,
	}
}

// PaymentRecordedEvent is raised when a payment is applied
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	PaymentID     uuid.UUID       `json:"payment_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
}

// NewPaymentRecordedEvent creates a PaymentRecordedEvent
func NewPaymentRecordedEvent(inv *Invoice, p *Payment) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRecorded, AggregateTypeInvoice, inv.ID),
		PaymentID:       p.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		Amount:          p.Amount,
		AmountPaid:      inv.AmountPaid,
		PaymentStatus:   inv.PaymentStatus,
	}
}

// InvoiceDeletedEvent is raised when an invoice is removed
type InvoiceDeletedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string `json:"invoice_number"`
}

// NewInvoiceDeletedEvent creates an InvoiceDeletedEvent
func NewInvoiceDeletedEvent(inv *Invoice) *InvoiceDeletedEvent {
	return &InvoiceDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceDeleted, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
	}
}
