package billing

import (
	"context"

	"github.com/lexdesk/backend/internal/domain/billing"
)

// TransactionScope provides transactional access to billing repositories.
// Every repository handed to fn shares one database transaction, committed
// when fn returns nil and rolled back otherwise.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all billing repositories within a transaction
type TransactionalRepositories interface {
	// Invoices returns the invoice repository scoped to the current transaction
	Invoices() billing.InvoiceRepository
	// Payments returns the payment repository scoped to the current transaction
	Payments() billing.PaymentRepository
	// Sources returns the source record repository scoped to the current transaction
	Sources() billing.SourceRepository
}

// NoOpTransactionScope runs fn against plain repositories without a transaction.
// Useful in tests that substitute in-memory repositories.
type NoOpTransactionScope struct {
	invoices billing.InvoiceRepository
	payments billing.PaymentRepository
	sources  billing.SourceRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories
func NewNoOpTransactionScope(
	invoices billing.InvoiceRepository,
	payments billing.PaymentRepository,
	sources billing.SourceRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{invoices: invoices, payments: payments, sources: sources}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Invoices returns the invoice repository
func (s *NoOpTransactionScope) Invoices() billing.InvoiceRepository {
	return s.invoices
}

// Payments returns the payment repository
func (s *NoOpTransactionScope) Payments() billing.PaymentRepository {
	return s.payments
}

// Sources returns the source record repository
func (s *NoOpTransactionScope) Sources() billing.SourceRepository {
	return s.sources
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
