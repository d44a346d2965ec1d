package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/lexdesk/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrRateSuggestionsDisabled is returned when no rate suggester is configured
var ErrRateSuggestionsDisabled = errors.New("invoice: exchange rate suggestions are not configured")

var signedDocumentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// InvoiceRules are the billing settings the service applies
type InvoiceRules struct {
	DefaultCurrency     valueobject.Currency
	BaseCurrency        valueobject.Currency
	SupportedCurrencies valueobject.CurrencySet
	// NumberRetryAttempts bounds retries of automatic numbering after a
	// unique-index collision
	NumberRetryAttempts int
	PaymentTermsDays    int
	// Location is the reference timezone deciding the current calendar day.
	// Calendar dates themselves are civil dates held at UTC midnight.
	Location          *time.Location
	DocumentKeyPrefix string
}

// InvoiceServiceConfig holds the collaborators of the invoice service
type InvoiceServiceConfig struct {
	TxScope        TransactionScope
	Invoices       billing.InvoiceRepository
	Payments       billing.PaymentRepository
	Sources        billing.SourceRepository
	Allocator      *billing.NumberAllocator
	Aggregator     *billing.LineItemAggregator
	Documents      DocumentGenerator
	Objects        ObjectStore
	Rates          RateSuggester
	EventPublisher shared.EventPublisher
	Rules          InvoiceRules
	Logger         *zap.Logger
	// Clock overrides time.Now, for tests
	Clock func() time.Time
}

// InvoiceService runs the invoice lifecycle: drafting, finalizing with
// splits and partner shares, signed uploads and payments
type InvoiceService struct {
	txScope        TransactionScope
	invoices       billing.InvoiceRepository
	payments       billing.PaymentRepository
	sources        billing.SourceRepository
	allocator      *billing.NumberAllocator
	aggregator     *billing.LineItemAggregator
	documents      DocumentGenerator
	objects        ObjectStore
	rates          RateSuggester
	eventPublisher shared.EventPublisher
	rules          InvoiceRules
	logger         *zap.Logger
	clock          func() time.Time
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(cfg InvoiceServiceConfig) *InvoiceService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	rules := cfg.Rules
	if rules.Location == nil {
		rules.Location = time.UTC
	}
	if rules.DefaultCurrency.IsZero() {
		rules.DefaultCurrency = valueobject.INR
	}
	if rules.NumberRetryAttempts < 1 {
		rules.NumberRetryAttempts = 1
	}
	allocator := cfg.Allocator
	if allocator == nil {
		allocator = billing.NewNumberAllocator(nil)
	}
	aggregator := cfg.Aggregator
	if aggregator == nil {
		aggregator = billing.NewLineItemAggregator(rules.DefaultCurrency, "")
	}
	txScope := cfg.TxScope
	if txScope == nil {
		txScope = NewNoOpTransactionScope(cfg.Invoices, cfg.Payments, cfg.Sources)
	}

	return &InvoiceService{
		txScope:        txScope,
		invoices:       cfg.Invoices,
		payments:       cfg.Payments,
		sources:        cfg.Sources,
		allocator:      allocator,
		aggregator:     aggregator,
		documents:      cfg.Documents,
		objects:        cfg.Objects,
		rates:          cfg.Rates,
		eventPublisher: cfg.EventPublisher,
		rules:          rules,
		logger:         logger,
		clock:          clock,
	}
}

// SetEventPublisher sets the event publisher for domain events
func (s *InvoiceService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// CreateInvoice creates a draft invoice from the chosen matters and sources.
// Automatic numbers that lose a race on the unique index are re-allocated.
func (s *InvoiceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrClientID, req.ClientID.String(),
		"matters_count", len(req.MatterIDs),
	)

	currency, err := s.parseCurrency(req.Currency, s.rules.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	base, err := s.parseCurrency(req.BaseCurrency, s.rules.BaseCurrency)
	if err != nil {
		return nil, err
	}
	rates, err := billing.NewExchangeRates(req.ExchangeRates)
	if err != nil {
		return nil, err
	}
	invoiceDate, err := s.parseDate("invoice_date", req.InvoiceDate, s.today())
	if err != nil {
		return nil, err
	}
	dueDate, err := s.parseDate("due_date", req.DueDate, invoiceDate.AddDate(0, 0, s.rules.PaymentTermsDays))
	if err != nil {
		return nil, err
	}
	discount := toDiscount(req.Discount, billing.Discount{})
	overrides := mergeOverrides(nil, req.Overrides)

	var inv *billing.Invoice
	for attempt := 1; ; attempt++ {
		err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			set, err := s.collectSources(ctx, repos, sourceQuery{
				ClientID:        req.ClientID,
				MatterIDs:       req.MatterIDs,
				TimesheetIDs:    req.TimesheetIDs,
				ExpenseIDs:      req.ExpenseIDs,
				IncludeUnbilled: req.IncludeUnbilled,
			})
			if err != nil {
				return err
			}
			items, err := s.aggregator.Aggregate(billing.AggregationInput{
				Timesheets: set.Timesheets,
				Expenses:   set.Expenses,
				Matters:    set.Matters,
				Overrides:  overrides,
				Claims:     set.Claims,
				Target:     currency,
				Rates:      rates,
			})
			if err != nil {
				return err
			}
			number, err := assignNumber(ctx, s.allocator, repos.Invoices(), req.InvoiceNumber, invoiceDate, req.BillingLocation)
			if err != nil {
				return err
			}
			created, err := billing.NewInvoice(billing.InvoiceDraft{
				InvoiceNumber:   number,
				ClientID:        req.ClientID,
				MatterIDs:       req.MatterIDs,
				BillingLocation: req.BillingLocation,
				InvoiceDate:     invoiceDate,
				DueDate:         dueDate,
				Currency:        currency,
				BaseCurrency:    base,
				ExchangeRates:   rates,
				Discount:        discount,
				Notes:           req.Notes,
				CreatedBy:       req.CreatedBy,
				Items:           items,
			})
			if err != nil {
				return err
			}
			if err := repos.Invoices().Create(ctx, created); err != nil {
				return err
			}
			inv = created
			return nil
		})
		if err == nil {
			break
		}
		manual := strings.TrimSpace(req.InvoiceNumber) != ""
		if !manual && attempt < s.rules.NumberRetryAttempts && errors.Is(err, billing.ErrDuplicateInvoiceNumber) {
			s.logger.Warn("Invoice number collision, retrying allocation",
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrInvoiceNumber, inv.InvoiceNumber)
	s.logger.Info("Invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("final_amount", inv.FinalAmount.StringFixed(2)))
	s.publishEvents(ctx, inv)

	resp := ToInvoiceResponse(inv, s.civilNow())
	return &resp, nil
}

// UpdateDraftInvoice edits a draft and re-aggregates its line items.
// Previously billed minutes and rates carry over unless overridden.
func (s *InvoiceService) UpdateDraftInvoice(ctx context.Context, id uuid.UUID, req UpdateInvoiceRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "update_draft")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrInvoiceID, id.String())

	var inv *billing.Invoice
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		current, err := repos.Invoices().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := current.EnsureEditable(); err != nil {
			return err
		}
		revision, err := s.buildRevision(ctx, repos, current, req)
		if err != nil {
			return err
		}
		if err := current.Revise(revision); err != nil {
			return err
		}
		if err := repos.Invoices().SaveWithLock(ctx, current); err != nil {
			return err
		}
		inv = current
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publishEvents(ctx, inv)
	resp := ToInvoiceResponse(inv, s.civilNow())
	return &resp, nil
}

func (s *InvoiceService) buildRevision(ctx context.Context, repos TransactionalRepositories, current *billing.Invoice, req UpdateInvoiceRequest) (billing.DraftRevision, error) {
	rev := billing.DraftRevision{
		MatterIDs:       current.MatterIDs,
		BillingLocation: current.BillingLocation,
		InvoiceDate:     current.InvoiceDate,
		DueDate:         current.DueDate,
		Currency:        current.Currency,
		BaseCurrency:    current.BaseCurrency,
		ExchangeRates:   current.ExchangeRates,
		Discount:        toDiscount(req.Discount, current.Discount()),
		Notes:           current.Notes,
	}
	var err error
	if req.MatterIDs != nil {
		rev.MatterIDs = req.MatterIDs
	}
	if req.BillingLocation != nil {
		rev.BillingLocation = *req.BillingLocation
	}
	if req.InvoiceDate != nil {
		if rev.InvoiceDate, err = s.parseDate("invoice_date", *req.InvoiceDate, current.InvoiceDate); err != nil {
			return rev, err
		}
	}
	if req.DueDate != nil {
		if rev.DueDate, err = s.parseDate("due_date", *req.DueDate, current.DueDate); err != nil {
			return rev, err
		}
	}
	if req.Currency != nil {
		if rev.Currency, err = s.parseCurrency(*req.Currency, current.Currency); err != nil {
			return rev, err
		}
	}
	if req.BaseCurrency != nil {
		if rev.BaseCurrency, err = s.parseCurrency(*req.BaseCurrency, s.rules.BaseCurrency); err != nil {
			return rev, err
		}
	}
	if req.ExchangeRates != nil {
		if rev.ExchangeRates, err = billing.NewExchangeRates(req.ExchangeRates); err != nil {
			return rev, err
		}
	}
	if req.Notes != nil {
		rev.Notes = *req.Notes
	}

	timesheetIDs := current.TimesheetIDs()
	if req.TimesheetIDs != nil {
		timesheetIDs = req.TimesheetIDs
	}
	expenseIDs := current.ExpenseIDs()
	if req.ExpenseIDs != nil {
		expenseIDs = req.ExpenseIDs
	}
	set, err := s.collectSources(ctx, repos, sourceQuery{
		ClientID:     current.ClientID,
		MatterIDs:    rev.MatterIDs,
		TimesheetIDs: timesheetIDs,
		ExpenseIDs:   expenseIDs,
		Exclude:      current.ID,
	})
	if err != nil {
		return rev, err
	}
	rev.Items, err = s.aggregator.Aggregate(billing.AggregationInput{
		Timesheets: set.Timesheets,
		Expenses:   set.Expenses,
		Matters:    set.Matters,
		Overrides:  mergeOverrides(current.TimesheetOverrides(), req.Overrides),
		Claims:     set.Claims,
		Target:     rev.Currency,
		Rates:      rev.ExchangeRates,
	})
	return rev, err
}

// FinalizeInvoice moves a draft to finalized, attaching partner shares and,
// for more than one split target, creating the child invoices
func (s *InvoiceService) FinalizeInvoice(ctx context.Context, id uuid.UUID, req FinalizeInvoiceRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "finalize")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, id.String(),
		"splits_count", len(req.Splits),
	)

	shares := make(billing.PartnerShares, len(req.PartnerShares))
	for i, ps := range req.PartnerShares {
		shares[i] = billing.PartnerShare{PartnerID: ps.PartnerID, Percentage: ps.Percentage}
	}
	targets := make([]billing.SplitTarget, len(req.Splits))
	for i, sp := range req.Splits {
		targets[i] = billing.SplitTarget{ClientID: sp.ClientID, Percentage: sp.Percentage}
	}

	var (
		inv      *billing.Invoice
		children []*billing.Invoice
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		current, err := repos.Invoices().FindByID(ctx, id)
		if err != nil {
			return err
		}
		clientIDs := []uuid.UUID{current.ClientID}
		for _, t := range targets {
			clientIDs = append(clientIDs, t.ClientID)
		}
		clients, err := repos.Sources().FindClients(ctx, clientIDs)
		if err != nil {
			return err
		}
		matters, err := repos.Sources().FindMatters(ctx, current.MatterIDs)
		if err != nil {
			return err
		}
		matterCurrencies := make([]valueobject.Currency, 0, len(matters))
		for _, m := range matters {
			if !m.Currency.IsZero() {
				matterCurrencies = append(matterCurrencies, m.Currency)
			}
		}

		kids, err := current.Finalize(billing.FinalizeParams{
			Shares:           shares,
			Splits:           targets,
			Clients:          clients,
			MatterCurrencies: matterCurrencies,
			At:               s.clock(),
		})
		if err != nil {
			return err
		}
		if err := repos.Invoices().SaveWithLock(ctx, current); err != nil {
			return err
		}
		for _, child := range kids {
			if err := repos.Invoices().Create(ctx, child); err != nil {
				return fmt.Errorf("create split invoice %s: %w", child.InvoiceNumber, err)
			}
		}
		inv, children = current, kids
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Invoice finalized",
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.Int("split_children", len(children)))
	s.publishEvents(ctx, append([]*billing.Invoice{inv}, children...)...)

	now := s.civilNow()
	resp := ToInvoiceResponse(inv, now)
	if inv.IsSplit {
		values := make([]billing.Invoice, len(children))
		for i, c := range children {
			values[i] = *c
		}
		applySplitSummary(&resp, billing.SummarizeSplit(values, now))
	}
	return &resp, nil
}

// RenderInvoiceDocument generates the printable document of an invoice
func (s *InvoiceService) RenderInvoiceDocument(ctx context.Context, id uuid.UUID) (*RenderedDocument, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "render_document")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrInvoiceID, id.String())

	if s.documents == nil {
		err := errors.New("invoice: document generator is not configured")
		telemetry.RecordError(span, err)
		return nil, err
	}
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	doc, err := s.buildDocument(ctx, inv)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	rendered, err := s.documents.Generate(ctx, doc)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("generate invoice document: %w", err)
	}
	return rendered, nil
}

func (s *InvoiceService) buildDocument(ctx context.Context, inv *billing.Invoice) (*InvoiceDocument, error) {
	clients, err := s.sources.FindClients(ctx, []uuid.UUID{inv.ClientID})
	if err != nil {
		return nil, err
	}
	client, ok := clients[inv.ClientID]
	if !ok {
		return nil, shared.NewNotFoundError("client", inv.ClientID.String())
	}
	matterMap, err := s.sources.FindMatters(ctx, inv.MatterIDs)
	if err != nil {
		return nil, err
	}
	matters := make([]billing.Matter, 0, len(inv.MatterIDs))
	for _, mid := range inv.MatterIDs {
		if m, ok := matterMap[mid]; ok {
			matters = append(matters, m)
		}
	}
	payments, err := s.payments.FindByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	now := s.civilNow()
	doc := &InvoiceDocument{
		Invoice:       inv,
		Client:        client,
		Matters:       matters,
		Payments:      payments,
		PaymentStatus: inv.DerivePaymentStatus(now),
		GeneratedAt:   s.clock(),
	}
	if inv.IsSplit {
		children, err := s.invoices.FindChildren(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		summary := billing.SummarizeSplit(children, now)
		doc.Split = &summary
		doc.PaymentStatus = summary.PaymentStatus
	}
	return doc, nil
}

// UploadSignedInvoice stores the signed document of a finalized invoice and
// moves it to invoice_uploaded. The object is written before the
// transaction; a failed status update leaves an orphaned object only.
func (s *InvoiceService) UploadSignedInvoice(ctx context.Context, id uuid.UUID, req UploadSignedInvoiceRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "upload_signed")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrInvoiceID, id.String())

	if s.objects == nil {
		err := errors.New("invoice: object store is not configured")
		telemetry.RecordError(span, err)
		return nil, err
	}
	current, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := current.EnsureUploadable(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	content, contentType := req.Content, req.ContentType
	if len(content) == 0 {
		if s.documents == nil {
			err := shared.NewValidationError("Signed document content is required")
			telemetry.RecordError(span, err)
			return nil, err
		}
		doc, err := s.buildDocument(ctx, current)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		rendered, err := s.documents.Generate(ctx, doc)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("generate invoice document: %w", err)
		}
		content, contentType = rendered.Content, rendered.ContentType
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(content)
	}
	contentType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	ext, ok := signedDocumentTypes[contentType]
	if !ok {
		err := shared.NewValidationError("Signed document must be a PDF, PNG or JPEG").
			WithDetail("content_type", contentType)
		telemetry.RecordError(span, err)
		return nil, err
	}

	now := s.clock()
	key := path.Join(s.rules.DocumentKeyPrefix, "invoices", current.InvoiceNumber,
		fmt.Sprintf("signed-%d%s", now.Unix(), ext))
	if err := s.objects.Upload(ctx, key, content, contentType); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("store signed document: %w", err)
	}
	url := s.objects.PublicURL(key)

	var inv *billing.Invoice
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		fresh, err := repos.Invoices().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fresh.AttachSignedDocument(url, now); err != nil {
			return err
		}
		if err := repos.Invoices().SaveWithLock(ctx, fresh); err != nil {
			return err
		}
		inv = fresh
		return nil
	})
	if err != nil {
		s.logger.Warn("Signed document stored but invoice not updated",
			zap.String("key", key),
			zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publishEvents(ctx, inv)
	resp := ToInvoiceResponse(inv, s.civilNow())
	return &resp, nil
}

// RecordPayment applies a payment to a leaf invoice under its version check
func (s *InvoiceService) RecordPayment(ctx context.Context, invoiceID uuid.UUID, req RecordPaymentRequest) (*RecordPaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "record_payment")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, invoiceID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	paymentDate, err := s.parseDate("payment_date", req.PaymentDate, s.today())
	if err != nil {
		return nil, err
	}
	payment, err := billing.NewPayment(invoiceID, req.Amount, paymentDate,
		billing.PaymentMethod(req.Method), req.Reference, req.RecordedBy, req.Notes)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var inv *billing.Invoice
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		current, err := repos.Invoices().FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := current.RecordPayment(payment); err != nil {
			return err
		}
		if err := repos.Invoices().SaveWithLock(ctx, current); err != nil {
			return err
		}
		if err := repos.Payments().Create(ctx, payment); err != nil {
			return err
		}
		inv = current
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Payment recorded",
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("amount_paid", inv.AmountPaid.StringFixed(2)))
	s.publishEvents(ctx, inv)

	return &RecordPaymentResponse{
		Payment: ToPaymentResponse(payment, inv.InvoiceNumber),
		Invoice: ToInvoiceResponse(inv, s.civilNow()),
	}, nil
}

// ListPayments lists an invoice's payments. For a split parent the
// payments of every child are listed.
func (s *InvoiceService) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "list_payments")
	defer span.End()

	inv, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	numbers := map[uuid.UUID]string{inv.ID: inv.InvoiceNumber}
	if inv.IsSplit {
		children, err := s.invoices.FindChildren(ctx, inv.ID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		for _, c := range children {
			numbers[c.ID] = c.InvoiceNumber
		}
	}
	ids := make([]uuid.UUID, 0, len(numbers))
	for id := range numbers {
		ids = append(ids, id)
	}
	payments, err := s.payments.FindByInvoices(ctx, ids)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	out := make([]PaymentResponse, len(payments))
	for i := range payments {
		out[i] = ToPaymentResponse(&payments[i], numbers[payments[i].InvoiceID])
	}
	return out, nil
}

// GetInvoice loads one invoice. Split parents carry their children's
// summary and take paid totals and status from it.
func (s *InvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "get")
	defer span.End()

	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	now := s.civilNow()
	resp := ToInvoiceResponse(inv, now)
	if inv.IsSplit {
		children, err := s.invoices.FindChildren(ctx, inv.ID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		applySplitSummary(&resp, billing.SummarizeSplit(children, now))
	}
	return &resp, nil
}

// ListInvoices returns one page of invoices matching filter
func (s *InvoiceService) ListInvoices(ctx context.Context, filter InvoiceListFilter) (*shared.Paginated[InvoiceListItemResponse], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "list")
	defer span.End()

	domainFilter := billing.InvoiceFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
			Search:   filter.Search,
		},
		ClientID:     filter.ClientID,
		MatterID:     filter.MatterID,
		Status:       billing.InvoiceStatus(filter.Status),
		TopLevelOnly: filter.TopLevelOnly,
	}
	if domainFilter.Page < 1 {
		domainFilter.Page = 1
	}
	if domainFilter.PageSize < 1 {
		domainFilter.PageSize = 20
	}
	if filter.DateFrom != "" {
		from, err := s.parseDate("date_from", filter.DateFrom, time.Time{})
		if err != nil {
			return nil, err
		}
		domainFilter.DateFrom = &from
	}
	if filter.DateTo != "" {
		to, err := s.parseDate("date_to", filter.DateTo, time.Time{})
		if err != nil {
			return nil, err
		}
		domainFilter.DateTo = &to
	}

	invoices, total, err := s.invoices.List(ctx, domainFilter)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var parentIDs []uuid.UUID
	for i := range invoices {
		if invoices[i].IsSplit {
			parentIDs = append(parentIDs, invoices[i].ID)
		}
	}
	children := map[uuid.UUID][]billing.Invoice{}
	if len(parentIDs) > 0 {
		if children, err = s.invoices.FindChildrenOf(ctx, parentIDs); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	now := s.civilNow()
	items := make([]InvoiceListItemResponse, len(invoices))
	for i := range invoices {
		items[i] = ToInvoiceListItemResponse(&invoices[i], now)
		if invoices[i].IsSplit {
			summary := billing.SummarizeSplit(children[invoices[i].ID], now)
			items[i].AmountPaid = summary.TotalPaid
			items[i].OutstandingAmount = summary.Outstanding
			items[i].PaymentStatus = string(summary.PaymentStatus)
		}
	}
	page := shared.NewPaginated(items, total, domainFilter.Page, domainFilter.PageSize)
	return &page, nil
}

// DetectCurrencies reports the native currencies of a candidate billing set
// and which of them still need a rate into the invoice currency
func (s *InvoiceService) DetectCurrencies(ctx context.Context, req DetectCurrenciesRequest) (*DetectCurrenciesResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "detect_currencies")
	defer span.End()

	target, err := s.parseCurrency(req.Currency, s.rules.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	matters, err := s.sources.FindMatters(ctx, req.MatterIDs)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	for _, id := range req.MatterIDs {
		if _, ok := matters[id]; !ok {
			return nil, shared.NewNotFoundError("matter", id.String())
		}
	}
	timesheets, expenses, err := s.candidateSources(ctx, s.sources, req.MatterIDs, req.TimesheetIDs, req.ExpenseIDs, true)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	found := s.aggregator.DetectCurrencies(matters, timesheets, expenses)
	resp := &DetectCurrenciesResponse{
		Currency:      target.String(),
		Currencies:    make([]string, 0, len(found)),
		RequiresRates: []string{},
	}
	for _, c := range found {
		resp.Currencies = append(resp.Currencies, c.String())
		if c != target {
			resp.RequiresRates = append(resp.RequiresRates, c.String())
		}
	}
	return resp, nil
}

// SuggestExchangeRates asks the rate service for advisory rates converting
// each source currency into target. No transaction is held.
func (s *InvoiceService) SuggestExchangeRates(ctx context.Context, target string, sources []string) (*SuggestRatesResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "suggest_rates")
	defer span.End()

	if s.rates == nil {
		return nil, ErrRateSuggestionsDisabled
	}
	to, err := s.parseCurrency(target, s.rules.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	seen := map[valueobject.Currency]bool{}
	var from []valueobject.Currency
	for _, code := range sources {
		c, err := s.parseCurrency(code, "")
		if err != nil {
			return nil, err
		}
		if c == to || seen[c] {
			continue
		}
		seen[c] = true
		from = append(from, c)
	}
	sort.Slice(from, func(i, j int) bool { return from[i] < from[j] })

	resp := &SuggestRatesResponse{Target: to.String(), Rates: map[string]decimal.Decimal{}}
	if len(from) == 0 {
		return resp, nil
	}
	quotes, err := s.rates.Suggest(ctx, to, from)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("suggest exchange rates: %w", err)
	}
	for c, r := range quotes {
		resp.Rates[c.String()] = r
	}
	return resp, nil
}

// DeleteInvoice removes a top-level invoice with its links and, for a
// split parent, its unpaid children
func (s *InvoiceService) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "delete")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrInvoiceID, id.String())

	var removed []*billing.Invoice
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err := repos.Invoices().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := inv.EnsureDeletable(); err != nil {
			return err
		}
		if inv.IsSplit {
			children, err := repos.Invoices().FindChildren(ctx, inv.ID)
			if err != nil {
				return err
			}
			for i := range children {
				if children[i].AmountPaid.IsPositive() || children[i].Status == billing.InvoiceStatusUploaded {
					return shared.NewInvalidStateError("Split invoice with paid or uploaded children cannot be deleted").
						WithDetail("invoice_number", inv.InvoiceNumber).
						WithDetail("child_number", children[i].InvoiceNumber)
				}
			}
			for i := range children {
				if err := repos.Invoices().Delete(ctx, children[i].ID); err != nil {
					return err
				}
				child := children[i]
				child.MarkDeleted()
				removed = append(removed, &child)
			}
		}
		if err := repos.Invoices().Delete(ctx, inv.ID); err != nil {
			return err
		}
		inv.MarkDeleted()
		removed = append(removed, inv)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	s.logger.Info("Invoice deleted",
		zap.String("invoice_id", id.String()),
		zap.Int("records", len(removed)))
	s.publishEvents(ctx, removed...)
	return nil
}

// sourceQuery names the records one aggregation pass bills
type sourceQuery struct {
	ClientID        uuid.UUID
	MatterIDs       []uuid.UUID
	TimesheetIDs    []uuid.UUID
	ExpenseIDs      []uuid.UUID
	IncludeUnbilled bool
	// Exclude is the invoice being edited; its own links are not claims
	Exclude uuid.UUID
}

type sourceSet struct {
	Matters    map[uuid.UUID]billing.Matter
	Timesheets []billing.TimesheetEntry
	Expenses   []billing.Expense
	Claims     map[uuid.UUID]string
}

// collectSources loads and checks the client, matters and billable records
// of q, and finds which of them another top-level invoice already bills
func (s *InvoiceService) collectSources(ctx context.Context, repos TransactionalRepositories, q sourceQuery) (*sourceSet, error) {
	clients, err := repos.Sources().FindClients(ctx, []uuid.UUID{q.ClientID})
	if err != nil {
		return nil, err
	}
	if _, ok := clients[q.ClientID]; !ok {
		return nil, shared.NewNotFoundError("client", q.ClientID.String())
	}
	matters, err := repos.Sources().FindMatters(ctx, q.MatterIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range q.MatterIDs {
		m, ok := matters[id]
		if !ok {
			return nil, shared.NewNotFoundError("matter", id.String())
		}
		if m.ClientID != q.ClientID {
			return nil, shared.NewValidationError("Matter belongs to a different client").
				WithDetail("matter_id", id.String())
		}
	}

	timesheets, expenses, err := s.candidateSources(ctx, repos.Sources(), q.MatterIDs, q.TimesheetIDs, q.ExpenseIDs, q.IncludeUnbilled)
	if err != nil {
		return nil, err
	}
	for _, t := range timesheets {
		if _, ok := matters[t.MatterID]; !ok {
			return nil, shared.NewValidationError("Timesheet belongs to a matter not on the invoice").
				WithDetail("timesheet_id", t.ID.String())
		}
	}
	for _, e := range expenses {
		if _, ok := matters[e.MatterID]; !ok {
			return nil, shared.NewValidationError("Expense belongs to a matter not on the invoice").
				WithDetail("expense_id", e.ID.String())
		}
	}

	claims := map[uuid.UUID]string{}
	if len(timesheets) > 0 {
		ids := make([]uuid.UUID, len(timesheets))
		for i, t := range timesheets {
			ids[i] = t.ID
		}
		found, err := repos.Invoices().FindTimesheetClaims(ctx, ids, q.Exclude)
		if err != nil {
			return nil, err
		}
		for k, v := range found {
			claims[k] = v
		}
	}
	if len(expenses) > 0 {
		ids := make([]uuid.UUID, len(expenses))
		for i, e := range expenses {
			ids[i] = e.ID
		}
		found, err := repos.Invoices().FindExpenseClaims(ctx, ids, q.Exclude)
		if err != nil {
			return nil, err
		}
		for k, v := range found {
			claims[k] = v
		}
	}

	return &sourceSet{Matters: matters, Timesheets: timesheets, Expenses: expenses, Claims: claims}, nil
}

// candidateSources loads explicitly named records, or the matters'
// unbilled records when none are named and unbilled is set
func (s *InvoiceService) candidateSources(ctx context.Context, src billing.SourceRepository, matterIDs, timesheetIDs, expenseIDs []uuid.UUID, unbilled bool) ([]billing.TimesheetEntry, []billing.Expense, error) {
	var (
		timesheets []billing.TimesheetEntry
		expenses   []billing.Expense
		err        error
	)
	switch {
	case len(timesheetIDs) > 0:
		if timesheets, err = src.FindTimesheets(ctx, timesheetIDs); err != nil {
			return nil, nil, err
		}
		if missing := missingID(timesheetIDs, timesheets, func(t billing.TimesheetEntry) uuid.UUID { return t.ID }); missing != uuid.Nil {
			return nil, nil, shared.NewNotFoundError("timesheet", missing.String())
		}
	case timesheetIDs == nil && unbilled:
		if timesheets, err = src.FindUnbilledTimesheets(ctx, matterIDs); err != nil {
			return nil, nil, err
		}
	}
	switch {
	case len(expenseIDs) > 0:
		if expenses, err = src.FindExpenses(ctx, expenseIDs); err != nil {
			return nil, nil, err
		}
		if missing := missingID(expenseIDs, expenses, func(e billing.Expense) uuid.UUID { return e.ID }); missing != uuid.Nil {
			return nil, nil, shared.NewNotFoundError("expense", missing.String())
		}
	case expenseIDs == nil && unbilled:
		if expenses, err = src.FindUnbilledExpenses(ctx, matterIDs); err != nil {
			return nil, nil, err
		}
	}
	return timesheets, expenses, nil
}

func missingID[T any](want []uuid.UUID, got []T, id func(T) uuid.UUID) uuid.UUID {
	found := make(map[uuid.UUID]bool, len(got))
	for _, g := range got {
		found[id(g)] = true
	}
	for _, w := range want {
		if !found[w] {
			return w
		}
	}
	return uuid.Nil
}

// parseCurrency normalises code, falling back when empty, and checks it
// against the configured currencies
func (s *InvoiceService) parseCurrency(code string, fallback valueobject.Currency) (valueobject.Currency, error) {
	if strings.TrimSpace(code) == "" {
		return fallback, nil
	}
	c, err := valueobject.ParseCurrency(code)
	if err != nil {
		return "", shared.NewValidationError("Unknown currency code").WithDetail("currency", code)
	}
	if len(s.rules.SupportedCurrencies) > 0 && !s.rules.SupportedCurrencies.Contains(c) {
		return "", shared.NewValidationError("Currency is not supported").WithDetail("currency", c.String())
	}
	return c, nil
}

// parseDate reads a civil calendar date
func (s *InvoiceService) parseDate(field, value string, fallback time.Time) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, shared.NewValidationError("Date must be formatted as YYYY-MM-DD").
			WithDetail("field", field).
			WithDetail("value", value)
	}
	return t, nil
}

// civilNow is the wall-clock time of the reference timezone expressed in
// UTC, comparable with stored calendar dates
func (s *InvoiceService) civilNow() time.Time {
	n := s.clock().In(s.rules.Location)
	return time.Date(n.Year(), n.Month(), n.Day(), n.Hour(), n.Minute(), n.Second(), n.Nanosecond(), time.UTC)
}

func (s *InvoiceService) today() time.Time {
	return s.civilNow().Truncate(24 * time.Hour)
}

// publishEvents publishes and clears the pending events of each invoice.
// Publication failures are logged, the committed change stands.
func (s *InvoiceService) publishEvents(ctx context.Context, invoices ...*billing.Invoice) {
	for _, inv := range invoices {
		if inv == nil {
			continue
		}
		events := inv.GetDomainEvents()
		if len(events) == 0 {
			continue
		}
		if s.eventPublisher != nil {
			if err := s.eventPublisher.Publish(ctx, events...); err != nil {
				s.logger.Warn("Failed to publish invoice events",
					zap.String("invoice_number", inv.InvoiceNumber),
					zap.Error(err))
			}
		}
		inv.ClearDomainEvents()
	}
}

func toDiscount(req *DiscountRequest, fallback billing.Discount) billing.Discount {
	if req == nil {
		return fallback
	}
	return billing.Discount{Type: billing.DiscountType(req.Type), Value: req.Value}
}

func mergeOverrides(base map[uuid.UUID]billing.TimesheetOverride, reqs []TimesheetOverrideRequest) map[uuid.UUID]billing.TimesheetOverride {
	out := make(map[uuid.UUID]billing.TimesheetOverride, len(base)+len(reqs))
	for id, o := range base {
		out[id] = o
	}
	for _, r := range reqs {
		o := out[r.TimesheetID]
		if r.BilledMinutes != nil {
			minutes := *r.BilledMinutes
			o.BilledMinutes = &minutes
		}
		if r.HourlyRate != nil {
			rate := *r.HourlyRate
			o.HourlyRate = &rate
		}
		out[r.TimesheetID] = o
	}
	return out
}

func applySplitSummary(resp *InvoiceResponse, summary billing.SplitSummary) {
	resp.Split = &summary
	resp.AmountPaid = summary.TotalPaid
	resp.OutstandingAmount = summary.Outstanding
	resp.PaymentStatus = string(summary.PaymentStatus)
}
