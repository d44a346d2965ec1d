package telemetry_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/lexdesk/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func TestNewBillingMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewBillingMetrics(nil, nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
	assert.Equal(t, "NewBillingMetrics: meter cannot be nil", err.Error())
}

func TestBillingMetrics_Handle(t *testing.T) {
	ctx := context.Background()
	reader, provider := newManualMeter(t)

	bm, err := telemetry.NewBillingMetrics(provider.Meter("billing"), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Contains(t, bm.EventTypes(), billing.EventTypePaymentRecorded)
	assert.NotContains(t, bm.EventTypes(), billing.EventTypeInvoiceRevised)

	invoiceID := uuid.New()
	events := []shared.DomainEvent{
		&billing.InvoiceCreatedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(billing.EventTypeInvoiceCreated, billing.AggregateTypeInvoice, invoiceID),
			Currency:        valueobject.USD,
			FinalAmount:     decimal.NewFromInt(2500),
		},
		&billing.InvoiceCreatedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(billing.EventTypeInvoiceCreated, billing.AggregateTypeInvoice, uuid.New()),
			Currency:        valueobject.INR,
			FinalAmount:     decimal.NewFromInt(150000),
		},
		&billing.InvoiceFinalizedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(billing.EventTypeInvoiceFinalized, billing.AggregateTypeInvoice, invoiceID),
			IsSplit:         true,
		},
		&billing.InvoiceSplitEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(billing.EventTypeInvoiceSplit, billing.AggregateTypeInvoice, invoiceID),
			Children:        []billing.SplitChildRef{{InvoiceID: uuid.New()}, {InvoiceID: uuid.New()}},
		},
		&billing.PaymentRecordedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(billing.EventTypePaymentRecorded, billing.AggregateTypeInvoice, invoiceID),
			PaymentStatus:   billing.PaymentStatusPartiallyPaid,
		},
		&billing.InvoiceRevisedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(billing.EventTypeInvoiceRevised, billing.AggregateTypeInvoice, invoiceID),
		},
	}
	for _, e := range events {
		require.NoError(t, bm.Handle(ctx, e))
	}

	created, ok := collect(t, reader, "lexdesk_invoices_created_total")
	require.True(t, ok)
	assert.Equal(t, int64(1), sumValue(t, created, telemetry.AttrCurrency.String("USD")))
	assert.Equal(t, int64(1), sumValue(t, created, telemetry.AttrCurrency.String("INR")))

	finalized, ok := collect(t, reader, "lexdesk_invoices_finalized_total")
	require.True(t, ok)
	assert.Equal(t, int64(1), sumValue(t, finalized, telemetry.AttrIsSplit.Bool(true)))

	children, ok := collect(t, reader, "lexdesk_split_children_total")
	require.True(t, ok)
	assert.Equal(t, int64(2), sumValue(t, children))

	payments, ok := collect(t, reader, "lexdesk_payments_recorded_total")
	require.True(t, ok)
	assert.Equal(t, int64(1), sumValue(t, payments, telemetry.AttrPaymentStatus.String(string(billing.PaymentStatusPartiallyPaid))))

	amount, ok := collect(t, reader, "lexdesk_invoice_final_amount")
	require.True(t, ok)
	hist := amount.Data.(metricdata.Histogram[float64])
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}
