package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Client is a read model of a billing client
type Client struct {
	ID      uuid.UUID
	Name    string
	GroupID *uuid.UUID
	Email   string
	Address string
}

// SameGroup reports whether both clients belong to one client group.
// A client without a group only groups with itself.
func (c Client) SameGroup(other Client) bool {
	if c.ID == other.ID {
		return true
	}
	if c.GroupID == nil || other.GroupID == nil {
		return false
	}
	return *c.GroupID == *other.GroupID
}

// Matter is a read model of a client engagement
type Matter struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	Name     string
	Currency valueobject.Currency
}

// TimesheetEntry is a read model of recorded billable time
type TimesheetEntry struct {
	ID          uuid.UUID
	MatterID    uuid.UUID
	UserID      uuid.UUID
	WorkDate    time.Time
	Minutes     int
	HourlyRate  decimal.Decimal
	Currency    valueobject.Currency
	Description string
}

// Expense is a read model of a one-time disbursement
type Expense struct {
	ID          uuid.UUID
	MatterID    uuid.UUID
	Amount      decimal.Decimal
	Currency    valueobject.Currency
	Description string
	IncurredOn  time.Time
}

// Contact is a person attached to a client
type Contact struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	Name     string
	Email    string
}
