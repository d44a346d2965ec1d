// Package billing provides the domain model for law-firm invoicing.
//
// This package implements the invoicing bounded context, which is responsible for:
//   - Allocating date- and office-scoped invoice numbers
//   - Normalizing billable timesheets and expenses into the invoice currency
//   - Driving the draft -> finalized -> invoice_uploaded workflow
//   - Splitting a finalized invoice across clients of one client group
//   - Recording payments against leaf invoices and deriving payment status
//
// Key Aggregates:
//   - Invoice: the billable document, optionally a split parent with children
//   - Payment: an additive receipt against one leaf invoice
//
// Value Objects:
//   - ExchangeRates: invoice-scoped currency -> rate-to-invoice-currency map
//   - TimesheetLink / ExpenseLink: billed snapshots of source records
//   - PartnerShare: a partner's percentage of an invoice's revenue
//
// Timesheets, expenses, matters and clients are owned elsewhere and are read
// through SourceRepository.
package billing
