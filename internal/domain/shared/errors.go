package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error codes shared across the billing domain
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeConflict            = "CONFLICT"
	CodeAlreadyInvoiced     = "ALREADY_INVOICED"
	CodeInvalidState        = "INVALID_STATE"
	CodeMissingExchangeRate = "MISSING_EXCHANGE_RATE"
	CodeShareMismatch       = "SHARE_MISMATCH"
	CodeNotFound            = "NOT_FOUND"
	CodeExceedsOutstanding  = "EXCEEDS_OUTSTANDING"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Details[k])
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, ", "))
}

// Is reports whether target is a DomainError carrying the same code,
// so errors.Is(err, shared.ErrNotFound) matches any not-found error.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// WithDetail returns a copy of the error with an extra detail entry
func (e *DomainError) WithDetail(key, value string) *DomainError {
	details := make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Code: e.Code, Message: e.Message, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a VALIDATION_ERROR with the given message
func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message)
}

// NewInvalidStateError creates an INVALID_STATE error with the given message
func NewInvalidStateError(message string) *DomainError {
	return NewDomainError(CodeInvalidState, message)
}

// NewNotFoundError creates a NOT_FOUND error for the named resource
func NewNotFoundError(resource, id string) *DomainError {
	return NewDomainError(CodeNotFound, resource+" not found").WithDetail("id", id)
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrConflict            = NewDomainError(CodeConflict, "Resource already exists")
	ErrInvalidInput        = NewDomainError(CodeValidation, "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrMissingExchangeRate = NewDomainError(CodeMissingExchangeRate, "Exchange rate is missing")
	ErrShareMismatch       = NewDomainError(CodeShareMismatch, "Percentages do not sum to 100")
	ErrAlreadyInvoiced     = NewDomainError(CodeAlreadyInvoiced, "Timesheet is already invoiced")
	ErrExceedsOutstanding  = NewDomainError(CodeExceedsOutstanding, "Payment exceeds outstanding amount")
)
