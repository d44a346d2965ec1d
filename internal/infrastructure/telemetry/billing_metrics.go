package telemetry

import (
	"context"

	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/lexdesk/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewBillingMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// BillingMetrics counts invoice lifecycle activity. It is fed by the event
// bus rather than called from the service, so a failing exporter never
// touches a billing transaction.
type BillingMetrics struct {
	logger *zap.Logger

	invoicesCreated   *Counter
	invoicesFinalized *Counter
	invoicesSplit     *Counter
	splitChildren     *Counter
	invoicesUploaded  *Counter
	invoicesDeleted   *Counter
	paymentsRecorded  *Counter
	invoiceAmount     *Histogram
}

// NewBillingMetrics registers the billing instruments on meter.
func NewBillingMetrics(meter metric.Meter, logger *zap.Logger) (*BillingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BillingMetrics{logger: logger}
	counters := []struct {
		target      **Counter
		name        string
		description string
		unit        string
	}{
		{&bm.invoicesCreated, "lexdesk_invoices_created_total", "Draft invoices created", "{invoices}"},
		{&bm.invoicesFinalized, "lexdesk_invoices_finalized_total", "Invoices finalized", "{invoices}"},
		{&bm.invoicesSplit, "lexdesk_invoices_split_total", "Invoices split between partners", "{invoices}"},
		{&bm.splitChildren, "lexdesk_split_children_total", "Child invoices produced by splits", "{invoices}"},
		{&bm.invoicesUploaded, "lexdesk_invoices_uploaded_total", "Signed documents stored", "{documents}"},
		{&bm.invoicesDeleted, "lexdesk_invoices_deleted_total", "Invoices deleted", "{invoices}"},
		{&bm.paymentsRecorded, "lexdesk_payments_recorded_total", "Payments recorded against invoices", "{payments}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(meter, c.name, c.description, c.unit)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	amount, err := NewHistogram(meter, HistogramOpts{
		Name:        "lexdesk_invoice_final_amount",
		Description: "Final amount of newly created invoices in their own currency",
		Unit:        "{amount}",
		Boundaries:  AmountBuckets,
	})
	if err != nil {
		return nil, err
	}
	bm.invoiceAmount = amount

	return bm, nil
}

// EventTypes returns the invoice events this handler counts
func (bm *BillingMetrics) EventTypes() []string {
	return []string{
		billing.EventTypeInvoiceCreated,
		billing.EventTypeInvoiceFinalized,
		billing.EventTypeInvoiceSplit,
		billing.EventTypeInvoiceUploaded,
		billing.EventTypeInvoiceDeleted,
		billing.EventTypePaymentRecorded,
	}
}

// Handle records an invoice event. Unknown events are ignored.
func (bm *BillingMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *billing.InvoiceCreatedEvent:
		currency := AttrCurrency.String(e.Currency.String())
		bm.invoicesCreated.Inc(ctx, currency)
		bm.invoiceAmount.Record(ctx, e.FinalAmount.InexactFloat64(), currency)
	case *billing.InvoiceFinalizedEvent:
		bm.invoicesFinalized.Inc(ctx, AttrIsSplit.Bool(e.IsSplit))
	case *billing.InvoiceSplitEvent:
		bm.invoicesSplit.Inc(ctx)
		bm.splitChildren.Add(ctx, int64(len(e.Children)))
	case *billing.InvoiceUploadedEvent:
		bm.invoicesUploaded.Inc(ctx)
	case *billing.InvoiceDeletedEvent:
		bm.invoicesDeleted.Inc(ctx)
	case *billing.PaymentRecordedEvent:
		bm.paymentsRecorded.Inc(ctx, AttrPaymentStatus.String(string(e.PaymentStatus)))
	default:
		bm.logger.Debug("Ignoring event without billing metric", zap.String("event_type", event.EventType()))
	}
	return nil
}

// Ensure BillingMetrics implements EventHandler
var _ shared.EventHandler = (*BillingMetrics)(nil)
