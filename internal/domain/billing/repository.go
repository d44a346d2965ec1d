package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/shared"
)

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	shared.Filter
	ClientID *uuid.UUID
	MatterID *uuid.UUID
	ParentID *uuid.UUID
	Status   InvoiceStatus
	// TopLevelOnly hides split children
	TopLevelOnly bool
	DateFrom     *time.Time
	DateTo       *time.Time
}

// InvoiceRepository persists Invoice aggregates with their links and shares
type InvoiceRepository interface {
	NumberLedger

	// FindByID loads an invoice with links and shares
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// FindByNumber loads an invoice by its number
	FindByNumber(ctx context.Context, number string) (*Invoice, error)
	// FindChildren loads the split children of a parent ordered by sequence
	FindChildren(ctx context.Context, parentID uuid.UUID) ([]Invoice, error)
	// FindChildrenOf loads children for many parents, keyed by parent ID
	FindChildrenOf(ctx context.Context, parentIDs []uuid.UUID) (map[uuid.UUID][]Invoice, error)
	// CountChildren counts the split children of a parent
	CountChildren(ctx context.Context, parentID uuid.UUID) (int64, error)
	// List returns one page of invoices and the total count
	List(ctx context.Context, filter InvoiceFilter) ([]Invoice, int64, error)
	// Create inserts a new invoice. A taken number yields ErrDuplicateInvoiceNumber.
	Create(ctx context.Context, inv *Invoice) error
	// SaveWithLock updates an invoice if its version is unchanged and
	// replaces its link and share sets
	SaveWithLock(ctx context.Context, inv *Invoice) error
	// Delete removes an invoice with its links and shares
	Delete(ctx context.Context, id uuid.UUID) error
	// FindTimesheetClaims maps each timesheet billed by a top-level invoice
	// other than exclude to that invoice's number
	FindTimesheetClaims(ctx context.Context, timesheetIDs []uuid.UUID, exclude uuid.UUID) (map[uuid.UUID]string, error)
	// FindExpenseClaims does the same for expenses
	FindExpenseClaims(ctx context.Context, expenseIDs []uuid.UUID, exclude uuid.UUID) (map[uuid.UUID]string, error)
	// LockNumberScope serializes number allocation for one office/day key
	// until the surrounding transaction ends
	LockNumberScope(ctx context.Context, key string) error
}

// PaymentRepository persists payments
type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error)
	FindByInvoices(ctx context.Context, invoiceIDs []uuid.UUID) ([]Payment, error)
	DeleteByInvoice(ctx context.Context, invoiceID uuid.UUID) error
}

// SourceRepository reads the records invoices are built from
type SourceRepository interface {
	FindClients(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Client, error)
	FindMatters(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Matter, error)
	FindTimesheets(ctx context.Context, ids []uuid.UUID) ([]TimesheetEntry, error)
	FindExpenses(ctx context.Context, ids []uuid.UUID) ([]Expense, error)
	// FindUnbilledTimesheets lists matter timesheets not billed by any top-level invoice
	FindUnbilledTimesheets(ctx context.Context, matterIDs []uuid.UUID) ([]TimesheetEntry, error)
	// FindUnbilledExpenses lists matter expenses not billed by any top-level invoice
	FindUnbilledExpenses(ctx context.Context, matterIDs []uuid.UUID) ([]Expense, error)
	FindContacts(ctx context.Context, clientID uuid.UUID) ([]Contact, error)
}

// ContactLinkRepository stores invoice references on client contacts
type ContactLinkRepository interface {
	LinkInvoice(ctx context.Context, contactID, invoiceID uuid.UUID, invoiceNumber string) error
	// UnlinkInvoice drops every contact reference to the invoice
	UnlinkInvoice(ctx context.Context, invoiceID uuid.UUID) error
}
