package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/lexdesk/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPaymentRepository implements billing.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// Create inserts a payment
func (r *GormPaymentRepository) Create(ctx context.Context, p *billing.Payment) error {
	return r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(p)).Error
}

// FindByInvoice lists an invoice's payments, oldest first
func (r *GormPaymentRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.Payment, error) {
	return r.FindByInvoices(ctx, []uuid.UUID{invoiceID})
}

// FindByInvoices lists payments for several invoices, oldest first
func (r *GormPaymentRepository) FindByInvoices(ctx context.Context, invoiceIDs []uuid.UUID) ([]billing.Payment, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}
	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id IN ?", invoiceIDs).
		Order("payment_date, created_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]billing.Payment, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// DeleteByInvoice removes an invoice's payments
func (r *GormPaymentRepository) DeleteByInvoice(ctx context.Context, invoiceID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).Delete(&models.PaymentModel{}).Error
}

var _ billing.PaymentRepository = (*GormPaymentRepository)(nil)
