package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// InvoiceDocument is the normalized invoice view handed to the document generator
type InvoiceDocument struct {
	Invoice       *billing.Invoice
	Client        billing.Client
	Matters       []billing.Matter
	Payments      []billing.Payment
	Split         *billing.SplitSummary
	PaymentStatus billing.PaymentStatus
	GeneratedAt   time.Time
}

// RenderedDocument is a generated invoice document
type RenderedDocument struct {
	Content     []byte
	ContentType string
	FileName    string
}

// DocumentGenerator turns an invoice view into a printable document
type DocumentGenerator interface {
	Generate(ctx context.Context, doc *InvoiceDocument) (*RenderedDocument, error)
}

// ObjectStore persists uploaded signed documents
type ObjectStore interface {
	// Upload stores data under key
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	// PublicURL returns the retrievable location of key
	PublicURL(key string) string
}

// RateSuggester proposes exchange rates at input time. Suggestions are
// advisory and never used during recalculation.
type RateSuggester interface {
	// Suggest returns, for each source currency, the rate converting one
	// unit of it into target. Currencies without a quote are omitted.
	Suggest(ctx context.Context, target valueobject.Currency, sources []valueobject.Currency) (map[valueobject.Currency]decimal.Decimal, error)
}

// ContactLinker cross-references invoices on client contacts
type ContactLinker interface {
	LinkInvoice(ctx context.Context, contactID, invoiceID uuid.UUID, invoiceNumber string) error
	UnlinkInvoice(ctx context.Context, invoiceID uuid.UUID) error
}

// ClientDirectory looks up clients and their contacts
type ClientDirectory interface {
	FindClients(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]billing.Client, error)
	FindContacts(ctx context.Context, clientID uuid.UUID) ([]billing.Contact, error)
}
