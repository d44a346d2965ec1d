package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ClientModel is the persistence model for billing clients
type ClientModel struct {
	BaseModel
	Name    string     `gorm:"type:varchar(200);not null"`
	GroupID *uuid.UUID `gorm:"type:uuid;index"`
	Email   string     `gorm:"type:varchar(200)"`
	Address string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (ClientModel) TableName() string {
	return "clients"
}

// ToDomain converts the persistence model to a domain Client
func (m *ClientModel) ToDomain() billing.Client {
	return billing.Client{ID: m.ID, Name: m.Name, GroupID: m.GroupID, Email: m.Email, Address: m.Address}
}

// MatterModel is the persistence model for matters
type MatterModel struct {
	BaseModel
	ClientID uuid.UUID            `gorm:"type:uuid;not null;index"`
	Name     string               `gorm:"type:varchar(200);not null"`
	Currency valueobject.Currency `gorm:"type:varchar(3)"`
}

// TableName returns the table name for GORM
func (MatterModel) TableName() string {
	return "matters"
}

// ToDomain converts the persistence model to a domain Matter
func (m *MatterModel) ToDomain() billing.Matter {
	return billing.Matter{ID: m.ID, ClientID: m.ClientID, Name: m.Name, Currency: m.Currency}
}

// TimesheetEntryModel is the persistence model for recorded time
type TimesheetEntryModel struct {
	BaseModel
	MatterID    uuid.UUID            `gorm:"type:uuid;not null;index"`
	UserID      uuid.UUID            `gorm:"type:uuid;not null"`
	WorkDate    time.Time            `gorm:"not null"`
	Minutes     int                  `gorm:"not null"`
	HourlyRate  decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Currency    valueobject.Currency `gorm:"type:varchar(3)"`
	Description string               `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (TimesheetEntryModel) TableName() string {
	return "timesheet_entries"
}

// ToDomain converts the persistence model to a domain TimesheetEntry
func (m *TimesheetEntryModel) ToDomain() billing.TimesheetEntry {
	return billing.TimesheetEntry{
		ID:          m.ID,
		MatterID:    m.MatterID,
		UserID:      m.UserID,
		WorkDate:    m.WorkDate,
		Minutes:     m.Minutes,
		HourlyRate:  m.HourlyRate,
		Currency:    m.Currency,
		Description: m.Description,
	}
}

// ExpenseModel is the persistence model for matter expenses
type ExpenseModel struct {
	BaseModel
	MatterID    uuid.UUID            `gorm:"type:uuid;not null;index"`
	Amount      decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Currency    valueobject.Currency `gorm:"type:varchar(3)"`
	Description string               `gorm:"type:text"`
	IncurredOn  time.Time            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ExpenseModel) TableName() string {
	return "expenses"
}

// ToDomain converts the persistence model to a domain Expense
func (m *ExpenseModel) ToDomain() billing.Expense {
	return billing.Expense{
		ID:          m.ID,
		MatterID:    m.MatterID,
		Amount:      m.Amount,
		Currency:    m.Currency,
		Description: m.Description,
		IncurredOn:  m.IncurredOn,
	}
}

// ClientContactModel is a person attached to a client
type ClientContactModel struct {
	BaseModel
	ClientID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name     string    `gorm:"type:varchar(200);not null"`
	Email    string    `gorm:"type:varchar(200)"`
}

// TableName returns the table name for GORM
func (ClientContactModel) TableName() string {
	return "client_contacts"
}

// ToDomain converts the persistence model to a domain Contact
func (m *ClientContactModel) ToDomain() billing.Contact {
	return billing.Contact{ID: m.ID, ClientID: m.ClientID, Name: m.Name, Email: m.Email}
}

// ContactInvoiceLinkModel records an invoice reference on a contact
type ContactInvoiceLinkModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	ContactID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contact_invoice,priority:1"`
	InvoiceID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contact_invoice,priority:2"`
	InvoiceNumber string    `gorm:"type:varchar(40);not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ContactInvoiceLinkModel) TableName() string {
	return "contact_invoice_links"
}

// All returns every model in migration order
func All() []any {
	return []any{
		&ClientModel{},
		&MatterModel{},
		&TimesheetEntryModel{},
		&ExpenseModel{},
		&ClientContactModel{},
		&InvoiceModel{},
		&InvoiceMatterLinkModel{},
		&InvoiceTimesheetLinkModel{},
		&InvoiceExpenseLinkModel{},
		&InvoicePartnerShareModel{},
		&PaymentModel{},
		&ContactInvoiceLinkModel{},
	}
}
