package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	appbilling "github.com/lexdesk/backend/internal/application/billing"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/lexdesk/backend/internal/infrastructure/persistence"
	"github.com/lexdesk/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MockEventPublisher collects published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (m *MockEventPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MockEventPublisher) GetEventsByType(eventType string) []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, 0)
	for _, e := range m.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

// MockObjectStore is a mock implementation of ObjectStore
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	args := m.Called(ctx, key, data, contentType)
	return args.Error(0)
}

func (m *MockObjectStore) PublicURL(key string) string {
	return "https://docs.example/" + key
}

// MockDocumentGenerator is a mock implementation of DocumentGenerator
type MockDocumentGenerator struct {
	mock.Mock
}

func (m *MockDocumentGenerator) Generate(ctx context.Context, doc *appbilling.InvoiceDocument) (*appbilling.RenderedDocument, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.RenderedDocument), args.Error(1)
}

// MockRateSuggester is a mock implementation of RateSuggester
type MockRateSuggester struct {
	mock.Mock
}

func (m *MockRateSuggester) Suggest(ctx context.Context, target valueobject.Currency, sources []valueobject.Currency) (map[valueobject.Currency]decimal.Decimal, error) {
	args := m.Called(ctx, target, sources)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[valueobject.Currency]decimal.Decimal), args.Error(1)
}

// 10:00 in Mumbai on 18 Oct 2026
var testNow = time.Date(2026, 10, 18, 4, 30, 0, 0, time.UTC)

var ist = time.FixedZone("IST", 5*3600+1800)

type serviceFixture struct {
	db        *gorm.DB
	svc       *appbilling.InvoiceService
	events    *MockEventPublisher
	objects   *MockObjectStore
	documents *MockDocumentGenerator
	rates     *MockRateSuggester

	clientID  uuid.UUID
	sisterID  uuid.UUID
	outsideID uuid.UUID
	matterID  uuid.UUID
	usdHours  []uuid.UUID
	inrHours  uuid.UUID
	expenseID uuid.UUID
	partnerA  uuid.UUID
	partnerB  uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	return newServiceFixtureIn(t, ist)
}

// newServiceFixtureIn builds a fixture whose reference timezone is loc
func newServiceFixtureIn(t *testing.T, loc *time.Location) *serviceFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	f := &serviceFixture{
		db:        db,
		events:    &MockEventPublisher{},
		objects:   &MockObjectStore{},
		documents: &MockDocumentGenerator{},
		rates:     &MockRateSuggester{},
		clientID:  uuid.New(),
		sisterID:  uuid.New(),
		outsideID: uuid.New(),
		matterID:  uuid.New(),
		usdHours:  []uuid.UUID{uuid.New(), uuid.New()},
		inrHours:  uuid.New(),
		expenseID: uuid.New(),
		partnerA:  uuid.New(),
		partnerB:  uuid.New(),
	}
	f.seed(t)

	f.svc = appbilling.NewInvoiceService(appbilling.InvoiceServiceConfig{
		TxScope:        persistence.NewGormTransactionScope(db),
		Invoices:       persistence.NewGormInvoiceRepository(db),
		Payments:       persistence.NewGormPaymentRepository(db),
		Sources:        persistence.NewGormSourceRepository(db),
		Documents:      f.documents,
		Objects:        f.objects,
		Rates:          f.rates,
		EventPublisher: f.events,
		Allocator:      billing.NewNumberAllocator(billing.DefaultOfficeDirectory()),
		Rules: appbilling.InvoiceRules{
			DefaultCurrency:     valueobject.INR,
			BaseCurrency:        valueobject.INR,
			NumberRetryAttempts: 3,
			PaymentTermsDays:    30,
			Location:            loc,
			DocumentKeyPrefix:   "signed",
		},
		Clock: func() time.Time { return testNow },
	})
	return f
}

func (f *serviceFixture) seed(t *testing.T) {
	now := testNow
	base := func(id uuid.UUID) models.BaseModel {
		return models.BaseModel{ID: id, CreatedAt: now, UpdatedAt: now}
	}
	group := uuid.New()
	require.NoError(t, f.db.Create(&[]models.ClientModel{
		{BaseModel: base(f.clientID), Name: "Acme Holdings", GroupID: &group},
		{BaseModel: base(f.sisterID), Name: "Acme Subsidiary", GroupID: &group},
		{BaseModel: base(f.outsideID), Name: "Unrelated Ltd"},
	}).Error)
	require.NoError(t, f.db.Create(&models.MatterModel{BaseModel: base(f.matterID), ClientID: f.clientID, Name: "Acme v. Beta"}).Error)
	for i, id := range f.usdHours {
		require.NoError(t, f.db.Create(&models.TimesheetEntryModel{
			BaseModel:  base(id),
			MatterID:   f.matterID,
			UserID:     uuid.New(),
			WorkDate:   time.Date(2026, 10, 1+i, 0, 0, 0, 0, time.UTC),
			Minutes:    60,
			HourlyRate: decimal.NewFromInt(100),
			Currency:   valueobject.USD,
		}).Error)
	}
	require.NoError(t, f.db.Create(&models.TimesheetEntryModel{
		BaseModel:  base(f.inrHours),
		MatterID:   f.matterID,
		UserID:     uuid.New(),
		WorkDate:   time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC),
		Minutes:    90,
		HourlyRate: decimal.NewFromInt(4000),
	}).Error)
	require.NoError(t, f.db.Create(&models.ExpenseModel{
		BaseModel:  base(f.expenseID),
		MatterID:   f.matterID,
		Amount:     decimal.NewFromInt(500),
		Currency:   valueobject.INR,
		IncurredOn: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC),
	}).Error)
}

func (f *serviceFixture) createUSDDraft(t *testing.T) *appbilling.InvoiceResponse {
	t.Helper()
	resp, err := f.svc.CreateInvoice(context.Background(), appbilling.CreateInvoiceRequest{
		ClientID:        f.clientID,
		MatterIDs:       []uuid.UUID{f.matterID},
		BillingLocation: "Mumbai",
		ExchangeRates:   map[string]decimal.Decimal{"USD": decimal.NewFromInt(83)},
		TimesheetIDs:    f.usdHours,
		ExpenseIDs:      []uuid.UUID{f.expenseID},
	})
	require.NoError(t, err)
	return resp
}

func (f *serviceFixture) shares() []appbilling.PartnerShareRequest {
	return []appbilling.PartnerShareRequest{
		{PartnerID: f.partnerA, Percentage: decimal.NewFromInt(70)},
		{PartnerID: f.partnerB, Percentage: decimal.NewFromInt(30)},
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var de *shared.DomainError
	require.True(t, errors.As(err, &de), "expected a domain error, got %v", err)
	assert.Equal(t, code, de.Code, de.Error())
}

func TestInvoiceService_CreateInvoice(t *testing.T) {
	t.Run("converts sources and assigns the day's first number", func(t *testing.T) {
		f := newServiceFixture(t)
		resp := f.createUSDDraft(t)

		assert.Equal(t, "18102026-M", resp.InvoiceNumber)
		assert.Equal(t, "draft", resp.Status)
		assert.Equal(t, "2026-10-18", resp.InvoiceDate)
		assert.Equal(t, "2026-11-17", resp.DueDate)
		assert.Equal(t, "INR", resp.Currency)
		assert.True(t, resp.Subtotal.Equal(decimal.NewFromInt(17100)), resp.Subtotal.String())
		assert.True(t, resp.FinalAmount.Equal(resp.Subtotal))
		require.Len(t, resp.Timesheets, 2)
		assert.True(t, resp.Timesheets[0].BilledAmount.Equal(decimal.NewFromInt(8300)))
		assert.Len(t, f.events.GetEventsByType(billing.EventTypeInvoiceCreated), 1)
	})

	t.Run("second invoice of the day gets suffix A", func(t *testing.T) {
		f := newServiceFixture(t)
		f.createUSDDraft(t)

		resp, err := f.svc.CreateInvoice(context.Background(), appbilling.CreateInvoiceRequest{
			ClientID:        f.clientID,
			MatterIDs:       []uuid.UUID{f.matterID},
			BillingLocation: "mumbai",
			IncludeUnbilled: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "18102026-M-A", resp.InvoiceNumber)
		require.Len(t, resp.Timesheets, 1, "only the unbilled INR entry is left")
		assert.True(t, resp.Subtotal.Equal(decimal.NewFromInt(6000)), resp.Subtotal.String())
	})

	t.Run("explicit date keeps its calendar day west of UTC", func(t *testing.T) {
		newYork, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		f := newServiceFixtureIn(t, newYork)

		resp, err := f.svc.CreateInvoice(context.Background(), appbilling.CreateInvoiceRequest{
			ClientID:        f.clientID,
			MatterIDs:       []uuid.UUID{f.matterID},
			BillingLocation: "mumbai",
			InvoiceDate:     "2026-01-08",
			TimesheetIDs:    []uuid.UUID{f.inrHours},
		})
		require.NoError(t, err)
		assert.Equal(t, "2026-01-08", resp.InvoiceDate)
		assert.Equal(t, "08012026-M", resp.InvoiceNumber)

		second, err := f.svc.CreateInvoice(context.Background(), appbilling.CreateInvoiceRequest{
			ClientID:    f.clientID,
			MatterIDs:   []uuid.UUID{f.matterID},
			InvoiceDate: "2026-01-08",
			ExpenseIDs:  []uuid.UUID{f.expenseID},
		})
		require.NoError(t, err)
		assert.Equal(t, "08012026-M-A", second.InvoiceNumber)
	})

	t.Run("default date is today in the reference timezone", func(t *testing.T) {
		newYork, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		f := newServiceFixtureIn(t, newYork)
		// 04:30 UTC on 18 Oct is 00:30 on 18 Oct in New York
		resp, err := f.svc.CreateInvoice(context.Background(), appbilling.CreateInvoiceRequest{
			ClientID:     f.clientID,
			MatterIDs:    []uuid.UUID{f.matterID},
			TimesheetIDs: []uuid.UUID{f.inrHours},
		})
		require.NoError(t, err)
		assert.Equal(t, "2026-10-18", resp.InvoiceDate)
		assert.Equal(t, "18102026-M", resp.InvoiceNumber)
	})

	t.Run("missing exchange rate names the pair", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.CreateInvoice(context.Background(), appbilling.CreateInvoiceRequest{
			ClientID:     f.clientID,
			MatterIDs:    []uuid.UUID{f.matterID},
			TimesheetIDs: f.usdHours[:1],
		})
		assertCode(t, err, shared.CodeMissingExchangeRate)
		assert.Contains(t, err.Error(), "USD")
	})

	t.Run("timesheet already billed elsewhere is rejected", func(t *testing.T) {
		f := newServiceFixture(t)
		f.createUSDDraft(t)
		_, err := f.svc.CreateInvoice(context.Background(), appbilling.CreateInvoiceRequest{
			ClientID:      f.clientID,
			MatterIDs:     []uuid.UUID{f.matterID},
			ExchangeRates: map[string]decimal.Decimal{"USD": decimal.NewFromInt(83)},
			TimesheetIDs:  f.usdHours[:1],
		})
		assertCode(t, err, shared.CodeAlreadyInvoiced)
		assert.Contains(t, err.Error(), "18102026-M")
	})

	t.Run("manual number must be free and canonical", func(t *testing.T) {
		f := newServiceFixture(t)
		f.createUSDDraft(t)
		req := appbilling.CreateInvoiceRequest{
			ClientID:      f.clientID,
			MatterIDs:     []uuid.UUID{f.matterID},
			InvoiceNumber: "18102026-M",
			ExpenseIDs:    []uuid.UUID{},
		}
		_, err := f.svc.CreateInvoice(context.Background(), req)
		assertCode(t, err, shared.CodeConflict)

		req.InvoiceNumber = "INV-001"
		_, err = f.svc.CreateInvoice(context.Background(), req)
		assertCode(t, err, shared.CodeValidation)
	})

	t.Run("matter of another client is rejected", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.CreateInvoice(context.Background(), appbilling.CreateInvoiceRequest{
			ClientID:  f.outsideID,
			MatterIDs: []uuid.UUID{f.matterID},
		})
		assertCode(t, err, shared.CodeValidation)
	})

	t.Run("percentage discount reduces the final amount", func(t *testing.T) {
		f := newServiceFixture(t)
		resp, err := f.svc.CreateInvoice(context.Background(), appbilling.CreateInvoiceRequest{
			ClientID:     f.clientID,
			MatterIDs:    []uuid.UUID{f.matterID},
			TimesheetIDs: []uuid.UUID{f.inrHours},
			Discount:     &appbilling.DiscountRequest{Type: "percentage", Value: decimal.NewFromInt(10)},
		})
		require.NoError(t, err)
		assert.True(t, resp.DiscountAmount.Equal(decimal.NewFromInt(600)), resp.DiscountAmount.String())
		assert.True(t, resp.FinalAmount.Equal(decimal.NewFromInt(5400)), resp.FinalAmount.String())
	})
}

func TestInvoiceService_UpdateDraftInvoice(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	draft := f.createUSDDraft(t)

	minutes := 30
	notes := "Reduced per engagement letter"
	resp, err := f.svc.UpdateDraftInvoice(ctx, draft.ID, appbilling.UpdateInvoiceRequest{
		Overrides: []appbilling.TimesheetOverrideRequest{{TimesheetID: f.usdHours[0], BilledMinutes: &minutes}},
		Notes:     &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, draft.InvoiceNumber, resp.InvoiceNumber)
	assert.Equal(t, notes, resp.Notes)
	assert.Equal(t, draft.Version+1, resp.Version)
	assert.True(t, resp.Subtotal.Equal(decimal.NewFromInt(4150+8300+500)), resp.Subtotal.String())

	t.Run("overrides survive a later edit", func(t *testing.T) {
		rate := decimal.NewFromInt(84)
		resp, err := f.svc.UpdateDraftInvoice(ctx, draft.ID, appbilling.UpdateInvoiceRequest{
			ExchangeRates: map[string]decimal.Decimal{"USD": rate},
		})
		require.NoError(t, err)
		assert.True(t, resp.Subtotal.Equal(decimal.NewFromInt(4200+8400+500)), resp.Subtotal.String())
	})

	t.Run("finalized invoices are not editable", func(t *testing.T) {
		_, err := f.svc.FinalizeInvoice(ctx, draft.ID, appbilling.FinalizeInvoiceRequest{PartnerShares: f.shares()})
		require.NoError(t, err)
		_, err = f.svc.UpdateDraftInvoice(ctx, draft.ID, appbilling.UpdateInvoiceRequest{Notes: &notes})
		assertCode(t, err, shared.CodeInvalidState)
	})
}

func TestInvoiceService_FinalizeInvoice(t *testing.T) {
	t.Run("partner shares must total 100", func(t *testing.T) {
		f := newServiceFixture(t)
		draft := f.createUSDDraft(t)
		_, err := f.svc.FinalizeInvoice(context.Background(), draft.ID, appbilling.FinalizeInvoiceRequest{
			PartnerShares: []appbilling.PartnerShareRequest{{PartnerID: f.partnerA, Percentage: decimal.NewFromInt(90)}},
		})
		assertCode(t, err, shared.CodeShareMismatch)

		got, err := f.svc.GetInvoice(context.Background(), draft.ID)
		require.NoError(t, err)
		assert.Equal(t, "draft", got.Status, "a failed finalize changes nothing")
	})

	t.Run("split 60/40 creates numbered children that sum to the parent", func(t *testing.T) {
		f := newServiceFixture(t)
		draft := f.createUSDDraft(t)
		resp, err := f.svc.FinalizeInvoice(context.Background(), draft.ID, appbilling.FinalizeInvoiceRequest{
			PartnerShares: f.shares(),
			Splits: []appbilling.SplitRequest{
				{ClientID: f.clientID, Percentage: decimal.NewFromInt(60)},
				{ClientID: f.sisterID, Percentage: decimal.NewFromInt(40)},
			},
		})
		require.NoError(t, err)
		assert.True(t, resp.IsSplit)
		assert.Equal(t, "finalized", resp.Status)
		require.NotNil(t, resp.Split)
		require.Len(t, resp.Split.Children, 2)
		assert.Equal(t, "18102026-M-1", resp.Split.Children[0].InvoiceNumber)
		assert.Equal(t, "18102026-M-2", resp.Split.Children[1].InvoiceNumber)
		assert.True(t, resp.Split.Children[0].FinalAmount.Equal(decimal.NewFromInt(10260)))
		assert.True(t, resp.Split.Children[1].FinalAmount.Equal(decimal.NewFromInt(6840)))
		assert.True(t, resp.Split.TotalAmount.Equal(resp.FinalAmount))
		assert.Len(t, f.events.GetEventsByType(billing.EventTypeInvoiceSplit), 1)

		children, err := f.svc.ListInvoices(context.Background(), appbilling.InvoiceListFilter{ClientID: &f.sisterID})
		require.NoError(t, err)
		require.Len(t, children.Items, 1)
		assert.Equal(t, "18102026-M-2", children.Items[0].InvoiceNumber)
	})

	t.Run("failure while inserting a child rolls everything back", func(t *testing.T) {
		f := newServiceFixture(t)
		draft := f.createUSDDraft(t)
		blocker := uuid.New()
		require.NoError(t, f.db.Create(&models.InvoiceModel{
			AggregateModel: models.AggregateModel{
				BaseModel: models.BaseModel{ID: blocker, CreatedAt: testNow, UpdatedAt: testNow},
				Version:   1,
			},
			InvoiceNumber: "18102026-M-2",
			ClientID:      f.outsideID,
			InvoiceDate:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
			DueDate:       time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC),
			Currency:      valueobject.INR,
			ExchangeRates: billing.ExchangeRates{},
			Status:        billing.InvoiceStatusDraft,
			PaymentStatus: billing.PaymentStatusNew,
		}).Error)

		_, err := f.svc.FinalizeInvoice(context.Background(), draft.ID, appbilling.FinalizeInvoiceRequest{
			PartnerShares: f.shares(),
			Splits: []appbilling.SplitRequest{
				{ClientID: f.clientID, Percentage: decimal.NewFromInt(60)},
				{ClientID: f.sisterID, Percentage: decimal.NewFromInt(40)},
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "18102026-M-2")

		got, err := f.svc.GetInvoice(context.Background(), draft.ID)
		require.NoError(t, err)
		assert.Equal(t, "draft", got.Status)
		assert.False(t, got.IsSplit)
		assert.Nil(t, got.Split)

		var children int64
		require.NoError(t, f.db.Model(&models.InvoiceModel{}).
			Where("invoice_number = ? OR parent_id = ?", "18102026-M-1", draft.ID).
			Count(&children).Error)
		assert.Zero(t, children)
		var shares int64
		require.NoError(t, f.db.Model(&models.InvoicePartnerShareModel{}).Count(&shares).Error)
		assert.Zero(t, shares)
		assert.Empty(t, f.events.GetEventsByType(billing.EventTypeInvoiceSplit))
		assert.Empty(t, f.events.GetEventsByType(billing.EventTypeInvoiceFinalized))
	})

	t.Run("split clients must share the group", func(t *testing.T) {
		f := newServiceFixture(t)
		draft := f.createUSDDraft(t)
		_, err := f.svc.FinalizeInvoice(context.Background(), draft.ID, appbilling.FinalizeInvoiceRequest{
			PartnerShares: f.shares(),
			Splits: []appbilling.SplitRequest{
				{ClientID: f.clientID, Percentage: decimal.NewFromInt(50)},
				{ClientID: f.outsideID, Percentage: decimal.NewFromInt(50)},
			},
		})
		assertCode(t, err, shared.CodeValidation)
	})
}

func TestInvoiceService_RecordPayment(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	draft, err := f.svc.CreateInvoice(ctx, appbilling.CreateInvoiceRequest{
		ClientID:     f.clientID,
		MatterIDs:    []uuid.UUID{f.matterID},
		TimesheetIDs: []uuid.UUID{},
		ExpenseIDs:   []uuid.UUID{f.expenseID},
		Discount:     &appbilling.DiscountRequest{},
	})
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, draft.ID, appbilling.RecordPaymentRequest{Amount: decimal.NewFromInt(100)})
	assertCode(t, err, shared.CodeInvalidState)

	_, err = f.svc.FinalizeInvoice(ctx, draft.ID, appbilling.FinalizeInvoiceRequest{PartnerShares: f.shares()})
	require.NoError(t, err)

	first, err := f.svc.RecordPayment(ctx, draft.ID, appbilling.RecordPaymentRequest{
		Amount:     decimal.NewFromInt(400),
		Method:     "upi",
		Reference:  "UTR-1",
		RecordedBy: "accounts",
	})
	require.NoError(t, err)
	assert.Equal(t, "partially_paid", first.Invoice.PaymentStatus)
	assert.Equal(t, "2026-10-18", first.Payment.PaymentDate)
	assert.True(t, first.Invoice.OutstandingAmount.Equal(decimal.NewFromInt(100)))

	_, err = f.svc.RecordPayment(ctx, draft.ID, appbilling.RecordPaymentRequest{Amount: decimal.NewFromInt(101)})
	assertCode(t, err, shared.CodeExceedsOutstanding)

	second, err := f.svc.RecordPayment(ctx, draft.ID, appbilling.RecordPaymentRequest{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, "paid", second.Invoice.PaymentStatus)

	payments, err := f.svc.ListPayments(ctx, draft.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
	assert.Len(t, f.events.GetEventsByType(billing.EventTypePaymentRecorded), 2)
}

func TestInvoiceService_SplitParentPayments(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	draft := f.createUSDDraft(t)
	parent, err := f.svc.FinalizeInvoice(ctx, draft.ID, appbilling.FinalizeInvoiceRequest{
		PartnerShares: f.shares(),
		Splits: []appbilling.SplitRequest{
			{ClientID: f.clientID, Percentage: decimal.NewFromInt(60)},
			{ClientID: f.sisterID, Percentage: decimal.NewFromInt(40)},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, parent.ID, appbilling.RecordPaymentRequest{Amount: decimal.NewFromInt(10)})
	assertCode(t, err, shared.CodeInvalidState)

	child := parent.Split.Children[1]
	_, err = f.svc.RecordPayment(ctx, child.InvoiceID, appbilling.RecordPaymentRequest{Amount: child.FinalAmount})
	require.NoError(t, err)

	got, err := f.svc.GetInvoice(ctx, parent.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountPaid.Equal(child.FinalAmount))
	assert.Equal(t, "partially_paid", got.PaymentStatus)
	assert.Equal(t, "paid", string(got.Split.Children[1].PaymentStatus))

	payments, err := f.svc.ListPayments(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "18102026-M-2", payments[0].InvoiceNumber)

	err = f.svc.DeleteInvoice(ctx, parent.ID)
	assertCode(t, err, shared.CodeInvalidState)
}

func TestInvoiceService_UploadSignedInvoice(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	draft := f.createUSDDraft(t)

	pdf := []byte("%PDF-1.7 signed")
	_, err := f.svc.UploadSignedInvoice(ctx, draft.ID, appbilling.UploadSignedInvoiceRequest{Content: pdf})
	assertCode(t, err, shared.CodeInvalidState)

	_, err = f.svc.FinalizeInvoice(ctx, draft.ID, appbilling.FinalizeInvoiceRequest{PartnerShares: f.shares()})
	require.NoError(t, err)

	_, err = f.svc.UploadSignedInvoice(ctx, draft.ID, appbilling.UploadSignedInvoiceRequest{Content: []byte("plain text")})
	assertCode(t, err, shared.CodeValidation)

	key := "signed/invoices/18102026-M/signed-1792297800.pdf"
	f.objects.On("Upload", mock.Anything, key, pdf, "application/pdf").Return(nil).Once()

	resp, err := f.svc.UploadSignedInvoice(ctx, draft.ID, appbilling.UploadSignedInvoiceRequest{FileName: "signed.pdf", Content: pdf})
	require.NoError(t, err)
	assert.Equal(t, "invoice_uploaded", resp.Status)
	assert.Equal(t, "https://docs.example/"+key, resp.SignedDocumentURL)
	f.objects.AssertExpectations(t)

	err = f.svc.DeleteInvoice(ctx, draft.ID)
	assertCode(t, err, shared.CodeInvalidState)
}

func TestInvoiceService_RenderAndGeneratedUpload(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	draft := f.createUSDDraft(t)
	_, err := f.svc.FinalizeInvoice(ctx, draft.ID, appbilling.FinalizeInvoiceRequest{PartnerShares: f.shares()})
	require.NoError(t, err)

	rendered := &appbilling.RenderedDocument{Content: []byte("%PDF-1.7 generated"), ContentType: "application/pdf", FileName: "18102026-M.pdf"}
	f.documents.On("Generate", mock.Anything, mock.MatchedBy(func(doc *appbilling.InvoiceDocument) bool {
		return doc.Invoice.ID == draft.ID && doc.Client.Name == "Acme Holdings" && len(doc.Matters) == 1
	})).Return(rendered, nil)
	f.objects.On("Upload", mock.Anything, mock.Anything, rendered.Content, "application/pdf").Return(nil).Once()

	doc, err := f.svc.RenderInvoiceDocument(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "18102026-M.pdf", doc.FileName)

	resp, err := f.svc.UploadSignedInvoice(ctx, draft.ID, appbilling.UploadSignedInvoiceRequest{})
	require.NoError(t, err)
	assert.Equal(t, "invoice_uploaded", resp.Status)
	f.objects.AssertExpectations(t)
}

func TestInvoiceService_DeleteInvoice(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	draft := f.createUSDDraft(t)

	require.NoError(t, f.svc.DeleteInvoice(ctx, draft.ID))
	_, err := f.svc.GetInvoice(ctx, draft.ID)
	assertCode(t, err, shared.CodeNotFound)
	assert.Len(t, f.events.GetEventsByType(billing.EventTypeInvoiceDeleted), 1)

	again := f.createUSDDraft(t)
	assert.Equal(t, "18102026-M", again.InvoiceNumber, "deleted numbers are reusable and sources are unbilled again")
}

func TestInvoiceService_DetectCurrencies(t *testing.T) {
	f := newServiceFixture(t)

	resp, err := f.svc.DetectCurrencies(context.Background(), appbilling.DetectCurrenciesRequest{
		MatterIDs: []uuid.UUID{f.matterID},
	})
	require.NoError(t, err)
	assert.Equal(t, "INR", resp.Currency)
	assert.ElementsMatch(t, []string{"INR", "USD"}, resp.Currencies)
	assert.Equal(t, []string{"USD"}, resp.RequiresRates)

	_, err = f.svc.DetectCurrencies(context.Background(), appbilling.DetectCurrenciesRequest{
		MatterIDs: []uuid.UUID{uuid.New()},
	})
	assertCode(t, err, shared.CodeNotFound)
}

func TestInvoiceService_SuggestExchangeRates(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.rates.On("Suggest", mock.Anything, valueobject.INR, []valueobject.Currency{valueobject.EUR, valueobject.USD}).
		Return(map[valueobject.Currency]decimal.Decimal{
			valueobject.USD: decimal.RequireFromString("83.25"),
			valueobject.EUR: decimal.RequireFromString("90.10"),
		}, nil).Once()

	resp, err := f.svc.SuggestExchangeRates(ctx, "INR", []string{"usd", "EUR", "INR", "USD"})
	require.NoError(t, err)
	assert.Equal(t, "INR", resp.Target)
	assert.True(t, resp.Rates["USD"].Equal(decimal.RequireFromString("83.25")))
	f.rates.AssertExpectations(t)

	disabled := appbilling.NewInvoiceService(appbilling.InvoiceServiceConfig{})
	_, err = disabled.SuggestExchangeRates(ctx, "INR", []string{"USD"})
	assert.ErrorIs(t, err, appbilling.ErrRateSuggestionsDisabled)
}
