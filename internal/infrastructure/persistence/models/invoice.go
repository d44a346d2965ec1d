package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber      string                `gorm:"type:varchar(40);not null;uniqueIndex:idx_invoices_number"`
	ClientID           uuid.UUID             `gorm:"type:uuid;not null;index"`
	BillingLocation    string                `gorm:"type:varchar(100)"`
	InvoiceDate        time.Time             `gorm:"not null;index"`
	DueDate            time.Time             `gorm:"not null"`
	Currency           valueobject.Currency  `gorm:"type:varchar(3);not null"`
	BaseCurrency       valueobject.Currency  `gorm:"type:varchar(3)"`
	ExchangeRates      billing.ExchangeRates `gorm:"type:jsonb;not null;default:'{}'"`
	Subtotal           decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	DiscountType       billing.DiscountType  `gorm:"type:varchar(20)"`
	DiscountValue      decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	DiscountAmount     decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	FinalAmount        decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	BaseCurrencyAmount *decimal.Decimal      `gorm:"type:decimal(18,4)"`
	AmountPaid         decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	Status             billing.InvoiceStatus `gorm:"type:varchar(20);not null;default:'draft';index"`
	PaymentStatus      billing.PaymentStatus `gorm:"type:varchar(20);not null;default:'new'"`
	ParentID           *uuid.UUID            `gorm:"type:uuid;index"`
	IsSplit            bool                  `gorm:"not null;default:false"`
	SplitPercentage    *decimal.Decimal      `gorm:"type:decimal(7,4)"`
	SplitSequence      int                   `gorm:"not null;default:0"`
	Notes              string                `gorm:"type:text"`
	CreatedBy          string                `gorm:"type:varchar(100)"`
	SignedDocumentURL  string                `gorm:"type:varchar(1000)"`
	FinalizedAt        *time.Time
	UploadedAt         *time.Time

	Matters    []InvoiceMatterLinkModel    `gorm:"foreignKey:InvoiceID;references:ID"`
	Timesheets []InvoiceTimesheetLinkModel `gorm:"foreignKey:InvoiceID;references:ID"`
	Expenses   []InvoiceExpenseLinkModel   `gorm:"foreignKey:InvoiceID;references:ID"`
	Shares     []InvoicePartnerShareModel  `gorm:"foreignKey:InvoiceID;references:ID"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	inv := &billing.Invoice{
		BaseAggregateRoot:  m.ToAggregateRoot(),
		InvoiceNumber:      m.InvoiceNumber,
		ClientID:           m.ClientID,
		BillingLocation:    m.BillingLocation,
		InvoiceDate:        m.InvoiceDate,
		DueDate:            m.DueDate,
		Currency:           m.Currency,
		BaseCurrency:       m.BaseCurrency,
		ExchangeRates:      m.ExchangeRates.Clone(),
		Subtotal:           m.Subtotal,
		DiscountType:       m.DiscountType,
		DiscountValue:      m.DiscountValue,
		DiscountAmount:     m.DiscountAmount,
		FinalAmount:        m.FinalAmount,
		BaseCurrencyAmount: m.BaseCurrencyAmount,
		AmountPaid:         m.AmountPaid,
		Status:             m.Status,
		PaymentStatus:      m.PaymentStatus,
		ParentID:           m.ParentID,
		IsSplit:            m.IsSplit,
		SplitPercentage:    m.SplitPercentage,
		SplitSequence:      m.SplitSequence,
		Notes:              m.Notes,
		CreatedBy:          m.CreatedBy,
		SignedDocumentURL:  m.SignedDocumentURL,
		FinalizedAt:        m.FinalizedAt,
		UploadedAt:         m.UploadedAt,
		MatterIDs:          make([]uuid.UUID, len(m.Matters)),
		TimesheetLinks:     make([]billing.TimesheetLink, len(m.Timesheets)),
		ExpenseLinks:       make([]billing.ExpenseLink, len(m.Expenses)),
	}
	for i, l := range m.Matters {
		inv.MatterIDs[i] = l.MatterID
	}
	for i, l := range m.Timesheets {
		inv.TimesheetLinks[i] = l.ToDomain()
	}
	for i, l := range m.Expenses {
		inv.ExpenseLinks[i] = l.ToDomain()
	}
	if len(m.Shares) > 0 {
		inv.PartnerShares = make(billing.PartnerShares, len(m.Shares))
		for i, s := range m.Shares {
			inv.PartnerShares[i] = billing.PartnerShare{PartnerID: s.PartnerID, Percentage: s.Percentage}
		}
	}
	return inv
}

// FromDomain populates the persistence model from a domain Invoice.
// Link rows get fresh IDs; the repository replaces link sets wholesale.
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.ClientID = inv.ClientID
	m.BillingLocation = inv.BillingLocation
	m.InvoiceDate = utc(inv.InvoiceDate)
	m.DueDate = utc(inv.DueDate)
	m.Currency = inv.Currency
	m.BaseCurrency = inv.BaseCurrency
	m.ExchangeRates = inv.ExchangeRates.Clone()
	m.Subtotal = inv.Subtotal
	m.DiscountType = inv.DiscountType
	m.DiscountValue = inv.DiscountValue
	m.DiscountAmount = inv.DiscountAmount
	m.FinalAmount = inv.FinalAmount
	m.BaseCurrencyAmount = inv.BaseCurrencyAmount
	m.AmountPaid = inv.AmountPaid
	m.Status = inv.Status
	m.PaymentStatus = inv.PaymentStatus
	m.ParentID = inv.ParentID
	m.IsSplit = inv.IsSplit
	m.SplitPercentage = inv.SplitPercentage
	m.SplitSequence = inv.SplitSequence
	m.Notes = inv.Notes
	m.CreatedBy = inv.CreatedBy
	m.SignedDocumentURL = inv.SignedDocumentURL
	m.FinalizedAt = utcPtr(inv.FinalizedAt)
	m.UploadedAt = utcPtr(inv.UploadedAt)

	m.Matters = make([]InvoiceMatterLinkModel, len(inv.MatterIDs))
	for i, id := range inv.MatterIDs {
		m.Matters[i] = InvoiceMatterLinkModel{ID: uuid.New(), InvoiceID: inv.ID, MatterID: id, Position: i}
	}
	m.Timesheets = make([]InvoiceTimesheetLinkModel, len(inv.TimesheetLinks))
	for i, l := range inv.TimesheetLinks {
		m.Timesheets[i] = timesheetLinkFromDomain(inv.ID, i, l)
	}
	m.Expenses = make([]InvoiceExpenseLinkModel, len(inv.ExpenseLinks))
	for i, l := range inv.ExpenseLinks {
		m.Expenses[i] = expenseLinkFromDomain(inv.ID, i, l)
	}
	m.Shares = make([]InvoicePartnerShareModel, len(inv.PartnerShares))
	for i, s := range inv.PartnerShares {
		m.Shares[i] = InvoicePartnerShareModel{
			ID:         uuid.New(),
			InvoiceID:  inv.ID,
			PartnerID:  s.PartnerID,
			Percentage: s.Percentage,
			Position:   i,
		}
	}
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// InvoiceMatterLinkModel links an invoice to one matter
type InvoiceMatterLinkModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	InvoiceID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_matter,priority:1"`
	MatterID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_matter,priority:2;index"`
	Position  int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (InvoiceMatterLinkModel) TableName() string {
	return "invoice_matter_links"
}

// InvoiceTimesheetLinkModel is the billed snapshot of one timesheet entry
type InvoiceTimesheetLinkModel struct {
	ID             uuid.UUID            `gorm:"type:uuid;primary_key"`
	InvoiceID      uuid.UUID            `gorm:"type:uuid;not null;index"`
	TimesheetID    uuid.UUID            `gorm:"type:uuid;not null;index"`
	MatterID       uuid.UUID            `gorm:"type:uuid;not null"`
	WorkDate       time.Time            `gorm:"not null"`
	Description    string               `gorm:"type:text"`
	BilledMinutes  int                  `gorm:"not null"`
	HourlyRate     decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	SourceCurrency valueobject.Currency `gorm:"type:varchar(3);not null"`
	ExchangeRate   decimal.Decimal      `gorm:"type:decimal(18,8);not null;default:1"`
	BilledAmount   decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Position       int                  `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (InvoiceTimesheetLinkModel) TableName() string {
	return "invoice_timesheet_links"
}

// ToDomain converts the link row to a domain TimesheetLink
func (m *InvoiceTimesheetLinkModel) ToDomain() billing.TimesheetLink {
	return billing.TimesheetLink{
		TimesheetID:    m.TimesheetID,
		MatterID:       m.MatterID,
		WorkDate:       m.WorkDate,
		Description:    m.Description,
		BilledMinutes:  m.BilledMinutes,
		HourlyRate:     m.HourlyRate,
		SourceCurrency: m.SourceCurrency,
		ExchangeRate:   m.ExchangeRate,
		BilledAmount:   m.BilledAmount,
	}
}

func timesheetLinkFromDomain(invoiceID uuid.UUID, pos int, l billing.TimesheetLink) InvoiceTimesheetLinkModel {
	return InvoiceTimesheetLinkModel{
		ID:             uuid.New(),
		InvoiceID:      invoiceID,
		TimesheetID:    l.TimesheetID,
		MatterID:       l.MatterID,
		WorkDate:       utc(l.WorkDate),
		Description:    l.Description,
		BilledMinutes:  l.BilledMinutes,
		HourlyRate:     l.HourlyRate,
		SourceCurrency: l.SourceCurrency,
		ExchangeRate:   l.ExchangeRate,
		BilledAmount:   l.BilledAmount,
		Position:       pos,
	}
}

// InvoiceExpenseLinkModel is the billed snapshot of one expense
type InvoiceExpenseLinkModel struct {
	ID               uuid.UUID            `gorm:"type:uuid;primary_key"`
	InvoiceID        uuid.UUID            `gorm:"type:uuid;not null;index"`
	ExpenseID        uuid.UUID            `gorm:"type:uuid;not null;index"`
	MatterID         uuid.UUID            `gorm:"type:uuid;not null"`
	Description      string               `gorm:"type:text"`
	OriginalAmount   decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	OriginalCurrency valueobject.Currency `gorm:"type:varchar(3);not null"`
	ExchangeRate     decimal.Decimal      `gorm:"type:decimal(18,8);not null;default:1"`
	BilledAmount     decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	BilledCurrency   valueobject.Currency `gorm:"type:varchar(3);not null"`
	Position         int                  `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (InvoiceExpenseLinkModel) TableName() string {
	return "invoice_expense_links"
}

// ToDomain converts the link row to a domain ExpenseLink
func (m *InvoiceExpenseLinkModel) ToDomain() billing.ExpenseLink {
	return billing.ExpenseLink{
		ExpenseID:        m.ExpenseID,
		MatterID:         m.MatterID,
		Description:      m.Description,
		OriginalAmount:   m.OriginalAmount,
		OriginalCurrency: m.OriginalCurrency,
		ExchangeRate:     m.ExchangeRate,
		BilledAmount:     m.BilledAmount,
		BilledCurrency:   m.BilledCurrency,
	}
}

func expenseLinkFromDomain(invoiceID uuid.UUID, pos int, l billing.ExpenseLink) InvoiceExpenseLinkModel {
	return InvoiceExpenseLinkModel{
		ID:               uuid.New(),
		InvoiceID:        invoiceID,
		ExpenseID:        l.ExpenseID,
		MatterID:         l.MatterID,
		Description:      l.Description,
		OriginalAmount:   l.OriginalAmount,
		OriginalCurrency: l.OriginalCurrency,
		ExchangeRate:     l.ExchangeRate,
		BilledAmount:     l.BilledAmount,
		BilledCurrency:   l.BilledCurrency,
		Position:         pos,
	}
}

// InvoicePartnerShareModel stores one partner's share of an invoice
type InvoicePartnerShareModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key"`
	InvoiceID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_partner,priority:1"`
	PartnerID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_partner,priority:2"`
	Percentage decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	Position   int             `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (InvoicePartnerShareModel) TableName() string {
	return "invoice_partner_shares"
}

// PaymentModel is the persistence model for a Payment
type PaymentModel struct {
	ID          uuid.UUID             `gorm:"type:uuid;primary_key"`
	InvoiceID   uuid.UUID             `gorm:"type:uuid;not null;index"`
	Amount      decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	PaymentDate time.Time             `gorm:"not null"`
	Method      billing.PaymentMethod `gorm:"type:varchar(20);not null"`
	Reference   string                `gorm:"type:varchar(200)"`
	RecordedBy  string                `gorm:"type:varchar(100)"`
	Notes       string                `gorm:"type:text"`
	CreatedAt   time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *billing.Payment {
	return &billing.Payment{
		ID:          m.ID,
		InvoiceID:   m.InvoiceID,
		Amount:      m.Amount,
		PaymentDate: m.PaymentDate,
		Method:      m.Method,
		Reference:   m.Reference,
		RecordedBy:  m.RecordedBy,
		Notes:       m.Notes,
		CreatedAt:   m.CreatedAt,
	}
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	return &PaymentModel{
		ID:          p.ID,
		InvoiceID:   p.InvoiceID,
		Amount:      p.Amount,
		PaymentDate: utc(p.PaymentDate),
		Method:      p.Method,
		Reference:   p.Reference,
		RecordedBy:  p.RecordedBy,
		Notes:       p.Notes,
		CreatedAt:   utc(p.CreatedAt),
	}
}
