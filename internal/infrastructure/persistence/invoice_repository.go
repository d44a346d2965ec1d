package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// InvoiceSortFields contains allowed sort fields for invoices
var InvoiceSortFields = map[string]bool{
	"invoice_number": true,
	"invoice_date":   true,
	"due_date":       true,
	"final_amount":   true,
	"status":         true,
	"created_at":     true,
	"updated_at":     true,
}

// GormInvoiceRepository implements billing.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

func (r *GormInvoiceRepository) withLinks(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Matters", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Timesheets", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Expenses", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Shares", func(db *gorm.DB) *gorm.DB { return db.Order("position") })
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.withLinks(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("Invoice", id.String())
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumber finds an invoice by its number
func (r *GormInvoiceRepository) FindByNumber(ctx context.Context, number string) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.withLinks(ctx).First(&model, "invoice_number = ?", number).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("Invoice", number)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindChildren returns the split children of parentID ordered by sequence
func (r *GormInvoiceRepository) FindChildren(ctx context.Context, parentID uuid.UUID) ([]billing.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.withLinks(ctx).
		Where("parent_id = ?", parentID).
		Order("split_sequence").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toInvoices(rows), nil
}

// FindChildrenOf loads children for several parents at once
func (r *GormInvoiceRepository) FindChildrenOf(ctx context.Context, parentIDs []uuid.UUID) (map[uuid.UUID][]billing.Invoice, error) {
	out := make(map[uuid.UUID][]billing.Invoice, len(parentIDs))
	if len(parentIDs) == 0 {
		return out, nil
	}
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("parent_id IN ?", parentIDs).
		Order("split_sequence").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		inv := rows[i].ToDomain()
		out[*inv.ParentID] = append(out[*inv.ParentID], *inv)
	}
	return out, nil
}

// CountChildren counts the split children of parentID
func (r *GormInvoiceRepository) CountChildren(ctx context.Context, parentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("parent_id = ?", parentID).
		Count(&count).Error
	return count, err
}

// List returns one page of invoices matching filter and the total count
func (r *GormInvoiceRepository) List(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, int64, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := ValidateSortField(filter.OrderBy, InvoiceSortFields, "invoice_date")
	orderDir := ValidateSortOrder(filter.OrderDir)
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	var rows []models.InvoiceModel
	if err := r.applyFilter(r.withLinks(ctx), filter).
		Order(orderBy + " " + orderDir).
		Order("invoice_number " + orderDir).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toInvoices(rows), total, nil
}

func (r *GormInvoiceRepository) applyFilter(query *gorm.DB, filter billing.InvoiceFilter) *gorm.DB {
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(invoice_number) LIKE ? OR LOWER(notes) LIKE ?", pattern, pattern)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.MatterID != nil {
		query = query.Where("id IN (?)", r.db.Model(&models.InvoiceMatterLinkModel{}).
			Select("invoice_id").Where("matter_id = ?", *filter.MatterID))
	}
	if filter.ParentID != nil {
		query = query.Where("parent_id = ?", *filter.ParentID)
	}
	if filter.TopLevelOnly {
		query = query.Where("parent_id IS NULL")
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DateFrom != nil {
		query = query.Where("invoice_date >= ?", filter.DateFrom.UTC())
	}
	if filter.DateTo != nil {
		query = query.Where("invoice_date <= ?", filter.DateTo.UTC())
	}
	return query
}

// ListNumbersBetween returns the numbers of invoices dated within [start, end]
func (r *GormInvoiceRepository) ListNumbersBetween(ctx context.Context, start, end time.Time) ([]string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("invoice_date >= ? AND invoice_date <= ?", start.UTC(), end.UTC()).
		Pluck("invoice_number", &numbers).Error
	return numbers, err
}

// ExistsByNumber reports whether an invoice already uses number
func (r *GormInvoiceRepository) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("invoice_number = ?", number).
		Count(&count).Error
	return count > 0, err
}

// Create inserts a new invoice with its links and shares
func (r *GormInvoiceRepository) Create(ctx context.Context, inv *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return billing.ErrDuplicateInvoiceNumber.WithDetail("invoice_number", inv.InvoiceNumber)
		}
		return err
	}
	return nil
}

// SaveWithLock saves with optimistic locking (version check) and replaces
// the link and share sets
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, inv *billing.Invoice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		currentVersion := inv.Version
		model := models.InvoiceModelFromDomain(inv)
		model.Version = currentVersion + 1
		model.UpdatedAt = time.Now().UTC()

		result := tx.Model(&models.InvoiceModel{}).
			Where("id = ? AND version = ?", inv.ID, currentVersion).
			Updates(map[string]any{
				"client_id":            model.ClientID,
				"billing_location":     model.BillingLocation,
				"invoice_date":         model.InvoiceDate,
				"due_date":             model.DueDate,
				"currency":             model.Currency,
				"base_currency":        model.BaseCurrency,
				"exchange_rates":       model.ExchangeRates,
				"subtotal":             model.Subtotal,
				"discount_type":        model.DiscountType,
				"discount_value":       model.DiscountValue,
				"discount_amount":      model.DiscountAmount,
				"final_amount":         model.FinalAmount,
				"base_currency_amount": model.BaseCurrencyAmount,
				"amount_paid":          model.AmountPaid,
				"status":               model.Status,
				"payment_status":       model.PaymentStatus,
				"is_split":             model.IsSplit,
				"notes":                model.Notes,
				"signed_document_url":  model.SignedDocumentURL,
				"finalized_at":         model.FinalizedAt,
				"uploaded_at":          model.UploadedAt,
				"version":              model.Version,
				"updated_at":           model.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&models.InvoiceModel{}).Where("id = ?", inv.ID).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return shared.NewNotFoundError("Invoice", inv.ID.String())
			}
			return shared.ErrConcurrencyConflict.WithDetail("invoice_number", inv.InvoiceNumber)
		}

		if err := deleteLinks(tx, inv.ID); err != nil {
			return err
		}
		if err := insertLinks(tx, model); err != nil {
			return err
		}

		inv.Version = model.Version
		inv.UpdatedAt = model.UpdatedAt
		return nil
	})
}

// Delete removes an invoice together with its links and shares
func (r *GormInvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteLinks(tx, id); err != nil {
			return err
		}
		result := tx.Delete(&models.InvoiceModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewNotFoundError("Invoice", id.String())
		}
		return nil
	})
}

// FindTimesheetClaims maps timesheets billed by another top-level invoice
// to that invoice's number
func (r *GormInvoiceRepository) FindTimesheetClaims(ctx context.Context, timesheetIDs []uuid.UUID, exclude uuid.UUID) (map[uuid.UUID]string, error) {
	return r.findClaims(ctx, "invoice_timesheet_links", "timesheet_id", timesheetIDs, exclude)
}

// FindExpenseClaims maps expenses billed by another top-level invoice to
// that invoice's number
func (r *GormInvoiceRepository) FindExpenseClaims(ctx context.Context, expenseIDs []uuid.UUID, exclude uuid.UUID) (map[uuid.UUID]string, error) {
	return r.findClaims(ctx, "invoice_expense_links", "expense_id", expenseIDs, exclude)
}

type claimRow struct {
	SourceID      uuid.UUID
	InvoiceNumber string
}

func (r *GormInvoiceRepository) findClaims(ctx context.Context, table, column string, ids []uuid.UUID, exclude uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	if len(ids) == 0 {
		return out, nil
	}
	var rows []claimRow
	err := r.db.WithContext(ctx).
		Table(table+" AS l").
		Select("l."+column+" AS source_id, i.invoice_number AS invoice_number").
		Joins("JOIN invoices i ON i.id = l.invoice_id").
		Where("l."+column+" IN ?", ids).
		Where("i.parent_id IS NULL AND i.id <> ?", exclude).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.SourceID] = row.InvoiceNumber
	}
	return out, nil
}

// LockNumberScope takes a transaction-scoped advisory lock on PostgreSQL.
// Other drivers serialize writers already, so it is a no-op there.
func (r *GormInvoiceRepository) LockNumberScope(ctx context.Context, key string) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error
}

func deleteLinks(tx *gorm.DB, invoiceID uuid.UUID) error {
	for _, model := range []any{
		&models.InvoiceMatterLinkModel{},
		&models.InvoiceTimesheetLinkModel{},
		&models.InvoiceExpenseLinkModel{},
		&models.InvoicePartnerShareModel{},
	} {
		if err := tx.Where("invoice_id = ?", invoiceID).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func insertLinks(tx *gorm.DB, m *models.InvoiceModel) error {
	if len(m.Matters) > 0 {
		if err := tx.Create(&m.Matters).Error; err != nil {
			return err
		}
	}
	if len(m.Timesheets) > 0 {
		if err := tx.Create(&m.Timesheets).Error; err != nil {
			return err
		}
	}
	if len(m.Expenses) > 0 {
		if err := tx.Create(&m.Expenses).Error; err != nil {
			return err
		}
	}
	if len(m.Shares) > 0 {
		if err := tx.Create(&m.Shares).Error; err != nil {
			return err
		}
	}
	return nil
}

func toInvoices(rows []models.InvoiceModel) []billing.Invoice {
	out := make([]billing.Invoice, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// isUniqueViolation recognizes unique-key failures from every supported driver
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint failed")
}

var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
