package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/lexdesk/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSourceRepository reads clients, matters, timesheets and expenses
type GormSourceRepository struct {
	db *gorm.DB
}

// NewGormSourceRepository creates a new GormSourceRepository
func NewGormSourceRepository(db *gorm.DB) *GormSourceRepository {
	return &GormSourceRepository{db: db}
}

// FindClients loads clients keyed by ID
func (r *GormSourceRepository) FindClients(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]billing.Client, error) {
	out := make(map[uuid.UUID]billing.Client, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.ClientModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = rows[i].ToDomain()
	}
	return out, nil
}

// FindMatters loads matters keyed by ID
func (r *GormSourceRepository) FindMatters(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]billing.Matter, error) {
	out := make(map[uuid.UUID]billing.Matter, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.MatterModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = rows[i].ToDomain()
	}
	return out, nil
}

// FindTimesheets loads timesheet entries by ID
func (r *GormSourceRepository) FindTimesheets(ctx context.Context, ids []uuid.UUID) ([]billing.TimesheetEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.TimesheetEntryModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("work_date, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toTimesheets(rows), nil
}

// FindExpenses loads expenses by ID
func (r *GormSourceRepository) FindExpenses(ctx context.Context, ids []uuid.UUID) ([]billing.Expense, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.ExpenseModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("incurred_on, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toExpenses(rows), nil
}

// FindUnbilledTimesheets lists the matters' timesheets that no top-level
// invoice bills yet
func (r *GormSourceRepository) FindUnbilledTimesheets(ctx context.Context, matterIDs []uuid.UUID) ([]billing.TimesheetEntry, error) {
	if len(matterIDs) == 0 {
		return nil, nil
	}
	var rows []models.TimesheetEntryModel
	if err := r.db.WithContext(ctx).
		Where("matter_id IN ?", matterIDs).
		Where("id NOT IN (?)", r.billedSources("invoice_timesheet_links", "timesheet_id")).
		Order("work_date, id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toTimesheets(rows), nil
}

// FindUnbilledExpenses lists the matters' expenses that no top-level
// invoice bills yet
func (r *GormSourceRepository) FindUnbilledExpenses(ctx context.Context, matterIDs []uuid.UUID) ([]billing.Expense, error) {
	if len(matterIDs) == 0 {
		return nil, nil
	}
	var rows []models.ExpenseModel
	if err := r.db.WithContext(ctx).
		Where("matter_id IN ?", matterIDs).
		Where("id NOT IN (?)", r.billedSources("invoice_expense_links", "expense_id")).
		Order("incurred_on, id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toExpenses(rows), nil
}

func (r *GormSourceRepository) billedSources(table, column string) *gorm.DB {
	return r.db.Table(table+" AS l").
		Select("l."+column).
		Joins("JOIN invoices i ON i.id = l.invoice_id").
		Where("i.parent_id IS NULL")
}

// FindContacts lists a client's contacts
func (r *GormSourceRepository) FindContacts(ctx context.Context, clientID uuid.UUID) ([]billing.Contact, error) {
	var rows []models.ClientContactModel
	if err := r.db.WithContext(ctx).Where("client_id = ?", clientID).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]billing.Contact, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

func toTimesheets(rows []models.TimesheetEntryModel) []billing.TimesheetEntry {
	out := make([]billing.TimesheetEntry, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

func toExpenses(rows []models.ExpenseModel) []billing.Expense {
	out := make([]billing.Expense, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var _ billing.SourceRepository = (*GormSourceRepository)(nil)

// GormContactLinkRepository implements billing.ContactLinkRepository
type GormContactLinkRepository struct {
	db *gorm.DB
}

// NewGormContactLinkRepository creates a new GormContactLinkRepository
func NewGormContactLinkRepository(db *gorm.DB) *GormContactLinkRepository {
	return &GormContactLinkRepository{db: db}
}

// LinkInvoice records invoiceNumber on the contact. Linking twice is a no-op.
func (r *GormContactLinkRepository) LinkInvoice(ctx context.Context, contactID, invoiceID uuid.UUID, invoiceNumber string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ContactInvoiceLinkModel{}).
		Where("contact_id = ? AND invoice_id = ?", contactID, invoiceID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Create(&models.ContactInvoiceLinkModel{
		ID:            uuid.New(),
		ContactID:     contactID,
		InvoiceID:     invoiceID,
		InvoiceNumber: invoiceNumber,
		CreatedAt:     time.Now().UTC(),
	}).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}

// UnlinkInvoice removes every contact reference to invoiceID
func (r *GormContactLinkRepository) UnlinkInvoice(ctx context.Context, invoiceID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).Delete(&models.ContactInvoiceLinkModel{}).Error
}

var _ billing.ContactLinkRepository = (*GormContactLinkRepository)(nil)
