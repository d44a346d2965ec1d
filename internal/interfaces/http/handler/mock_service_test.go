package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/application/billing"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

type mockInvoiceService struct {
	mock.Mock
}

var _ InvoiceService = (*mockInvoiceService)(nil)

func (m *mockInvoiceService) CreateInvoice(ctx context.Context, req billing.CreateInvoiceRequest) (*billing.InvoiceResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.InvoiceResponse), args.Error(1)
}

func (m *mockInvoiceService) UpdateDraftInvoice(ctx context.Context, id uuid.UUID, req billing.UpdateInvoiceRequest) (*billing.InvoiceResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.InvoiceResponse), args.Error(1)
}

func (m *mockInvoiceService) FinalizeInvoice(ctx context.Context, id uuid.UUID, req billing.FinalizeInvoiceRequest) (*billing.InvoiceResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.InvoiceResponse), args.Error(1)
}

func (m *mockInvoiceService) RenderInvoiceDocument(ctx context.Context, id uuid.UUID) (*billing.RenderedDocument, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.RenderedDocument), args.Error(1)
}

func (m *mockInvoiceService) UploadSignedInvoice(ctx context.Context, id uuid.UUID, req billing.UploadSignedInvoiceRequest) (*billing.InvoiceResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.InvoiceResponse), args.Error(1)
}

func (m *mockInvoiceService) RecordPayment(ctx context.Context, id uuid.UUID, req billing.RecordPaymentRequest) (*billing.RecordPaymentResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.RecordPaymentResponse), args.Error(1)
}

func (m *mockInvoiceService) ListPayments(ctx context.Context, id uuid.UUID) ([]billing.PaymentResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.PaymentResponse), args.Error(1)
}

func (m *mockInvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*billing.InvoiceResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.InvoiceResponse), args.Error(1)
}

func (m *mockInvoiceService) ListInvoices(ctx context.Context, filter billing.InvoiceListFilter) (*shared.Paginated[billing.InvoiceListItemResponse], error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[billing.InvoiceListItemResponse]), args.Error(1)
}

func (m *mockInvoiceService) DetectCurrencies(ctx context.Context, req billing.DetectCurrenciesRequest) (*billing.DetectCurrenciesResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.DetectCurrenciesResponse), args.Error(1)
}

func (m *mockInvoiceService) SuggestExchangeRates(ctx context.Context, target string, sources []string) (*billing.SuggestRatesResponse, error) {
	args := m.Called(ctx, target, sources)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SuggestRatesResponse), args.Error(1)
}

func (m *mockInvoiceService) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}
