// Package models contains GORM persistence models that map to database tables.
// They are kept separate from domain types so the domain layer stays free of
// ORM concerns; each model carries ToDomain/FromDomain mappers.
//
// Structure:
//   - base.go: BaseModel and AggregateModel
//   - invoice.go: invoices, their matter/timesheet/expense links, partner shares, payments
//   - source.go: clients, matters, timesheet entries, expenses, contacts
package models
