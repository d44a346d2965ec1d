package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentMethod is how a payment was received
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCheque       PaymentMethod = "cheque"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodUPI          PaymentMethod = "upi"
	PaymentMethodOther        PaymentMethod = "other"
)

// IsValid checks if the method is a valid PaymentMethod
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodCheque, PaymentMethodCash,
		PaymentMethodCard, PaymentMethodUPI, PaymentMethodOther:
		return true
	}
	return false
}

// Payment is an additive receipt against one leaf invoice. It is never
// mutated after creation.
type Payment struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	Amount      decimal.Decimal
	PaymentDate time.Time
	Method      PaymentMethod
	Reference   string
	RecordedBy  string
	Notes       string
	CreatedAt   time.Time
}

// NewPayment creates a payment after validating its own fields
func NewPayment(invoiceID uuid.UUID, amount decimal.Decimal, date time.Time, method PaymentMethod, reference, recordedBy, notes string) (*Payment, error) {
	if invoiceID == uuid.Nil {
		return nil, shared.NewValidationError("Invoice is required")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("Payment amount must be positive").
			WithDetail("amount", amount.String())
	}
	if date.IsZero() {
		return nil, shared.NewValidationError("Payment date is required")
	}
	if method == "" {
		method = PaymentMethodBankTransfer
	}
	if !method.IsValid() {
		return nil, shared.NewValidationError("Unknown payment method").
			WithDetail("method", string(method))
	}
	return &Payment{
		ID:          uuid.New(),
		InvoiceID:   invoiceID,
		Amount:      amount,
		PaymentDate: date,
		Method:      method,
		Reference:   reference,
		RecordedBy:  recordedBy,
		Notes:       notes,
		CreatedAt:   time.Now(),
	}, nil
}
