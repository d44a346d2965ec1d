package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/lexdesk/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ContactLinkHandler cross-references invoices on the contacts of the
// billed client. It runs on the async event bus, so its failures are
// logged and never reach the request that raised the event.
type ContactLinkHandler struct {
	directory ClientDirectory
	linker    ContactLinker
	logger    *zap.Logger
}

// NewContactLinkHandler creates a new handler for invoice contact links
func NewContactLinkHandler(directory ClientDirectory, linker ContactLinker, logger *zap.Logger) *ContactLinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactLinkHandler{
		directory: directory,
		linker:    linker,
		logger:    logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *ContactLinkHandler) EventTypes() []string {
	return []string{
		billing.EventTypeInvoiceCreated,
		billing.EventTypeInvoiceSplit,
		billing.EventTypeInvoiceDeleted,
	}
}

// Handle links or unlinks contacts for one invoice event
func (h *ContactLinkHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *billing.InvoiceCreatedEvent:
		return h.link(ctx, e.ClientID, e.AggregateID(), e.InvoiceNumber)
	case *billing.InvoiceSplitEvent:
		for _, child := range e.Children {
			if err := h.link(ctx, child.ClientID, child.InvoiceID, child.InvoiceNumber); err != nil {
				return err
			}
		}
		return nil
	case *billing.InvoiceDeletedEvent:
		if err := h.linker.UnlinkInvoice(ctx, e.AggregateID()); err != nil {
			h.logger.Error("failed to unlink invoice from contacts",
				zap.String("invoice_id", e.AggregateID().String()),
				zap.Error(err),
			)
			return fmt.Errorf("unlink invoice contacts: %w", err)
		}
		return nil
	default:
		h.logger.Error("unexpected event type",
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}
}

func (h *ContactLinkHandler) link(ctx context.Context, clientID, invoiceID uuid.UUID, invoiceNumber string) error {
	contacts, err := h.directory.FindContacts(ctx, clientID)
	if err != nil {
		h.logger.Error("failed to load client contacts",
			zap.String("client_id", clientID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("load client contacts: %w", err)
	}
	for _, c := range contacts {
		if err := h.linker.LinkInvoice(ctx, c.ID, invoiceID, invoiceNumber); err != nil {
			h.logger.Error("failed to link invoice to contact",
				zap.String("contact_id", c.ID.String()),
				zap.String("invoice_number", invoiceNumber),
				zap.Error(err),
			)
			return fmt.Errorf("link invoice to contact: %w", err)
		}
	}
	h.logger.Debug("invoice linked to client contacts",
		zap.String("invoice_number", invoiceNumber),
		zap.Int("contacts", len(contacts)),
	)
	return nil
}
