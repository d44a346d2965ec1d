package persistence

import (
	"context"

	appbilling "github.com/lexdesk/backend/internal/application/billing"
	"github.com/lexdesk/backend/internal/domain/billing"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within one database transaction, rolled back when fn
// returns an error
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appbilling.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// Invoices returns the invoice repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Invoices() billing.InvoiceRepository {
	return NewGormInvoiceRepository(r.tx)
}

// Payments returns the payment repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Payments() billing.PaymentRepository {
	return NewGormPaymentRepository(r.tx)
}

// Sources returns the source record repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Sources() billing.SourceRepository {
	return NewGormSourceRepository(r.tx)
}

var _ appbilling.TransactionScope = (*GormTransactionScope)(nil)

var _ appbilling.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
