package billing

import (
	"context"
	"strings"
	"time"

	"github.com/lexdesk/backend/internal/domain/billing"
)

// assignNumber picks the invoice number inside the creating transaction.
// Automatic numbers take the office/day lock first so concurrent creators
// for the same scope see each other's inserts.
func assignNumber(ctx context.Context, allocator *billing.NumberAllocator, repo billing.InvoiceRepository, manual string, date time.Time, location string) (string, error) {
	if manual = strings.TrimSpace(manual); manual != "" {
		if err := allocator.ValidateManual(ctx, repo, manual); err != nil {
			return "", err
		}
		return manual, nil
	}
	if err := repo.LockNumberScope(ctx, allocator.ScopeKey(date, location)); err != nil {
		return "", err
	}
	return allocator.Next(ctx, repo, date, location)
}
