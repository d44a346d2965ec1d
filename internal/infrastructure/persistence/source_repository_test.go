package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormSourceRepository_Lookups(t *testing.T) {
	db := setupBillingTestDB(t)
	f := seedBillingFixture(t, db)
	repo := NewGormSourceRepository(db)
	ctx := context.Background()

	clients, err := repo.FindClients(ctx, []uuid.UUID{f.ClientID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "Acme Holdings", clients[f.ClientID].Name)

	matters, err := repo.FindMatters(ctx, []uuid.UUID{f.MatterID})
	require.NoError(t, err)
	assert.Equal(t, f.ClientID, matters[f.MatterID].ClientID)
	assert.True(t, matters[f.MatterID].Currency.IsZero())

	timesheets, err := repo.FindTimesheets(ctx, f.Timesheets)
	require.NoError(t, err)
	require.Len(t, timesheets, 2)
	assert.Equal(t, 60, timesheets[0].Minutes)

	expenses, err := repo.FindExpenses(ctx, []uuid.UUID{f.ExpenseID})
	require.NoError(t, err)
	require.Len(t, expenses, 1)

	empty, err := repo.FindUnbilledTimesheets(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGormContactLinkRepository(t *testing.T) {
	db := setupBillingTestDB(t)
	f := seedBillingFixture(t, db)
	sources := NewGormSourceRepository(db)
	links := NewGormContactLinkRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	contactID := uuid.New()
	require.NoError(t, db.Create(&models.ClientContactModel{
		BaseModel: models.BaseModel{ID: contactID, CreatedAt: now, UpdatedAt: now},
		ClientID:  f.ClientID,
		Name:      "Priya Raman",
		Email:     "priya@acme.example",
	}).Error)

	contacts, err := sources.FindContacts(ctx, f.ClientID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Priya Raman", contacts[0].Name)

	invoiceID := uuid.New()
	require.NoError(t, links.LinkInvoice(ctx, contactID, invoiceID, "18102026-M"))
	require.NoError(t, links.LinkInvoice(ctx, contactID, invoiceID, "18102026-M"), "linking twice is a no-op")

	var count int64
	require.NoError(t, db.Model(&models.ContactInvoiceLinkModel{}).Where("invoice_id = ?", invoiceID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, links.UnlinkInvoice(ctx, invoiceID))
	require.NoError(t, db.Model(&models.ContactInvoiceLinkModel{}).Where("invoice_id = ?", invoiceID).Count(&count).Error)
	assert.Zero(t, count)
}
