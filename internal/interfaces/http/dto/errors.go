package dto

import (
	"net/http"

	"github.com/lexdesk/backend/internal/domain/shared"
)

// Transport-level error codes. Domain errors keep their own codes
// (see shared.Code*) and are mapped to a status by GetHTTPStatus.
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInvalidJSON     = "INVALID_JSON"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeValidation      = shared.CodeValidation
	ErrCodeNotFound        = shared.CodeNotFound
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
	ErrCodeForbidden:       http.StatusForbidden,

	// Rejected input -> 400
	shared.CodeValidation:          http.StatusBadRequest,
	shared.CodeMissingExchangeRate: http.StatusBadRequest,
	shared.CodeShareMismatch:       http.StatusBadRequest,
	shared.CodeExceedsOutstanding:  http.StatusBadRequest,

	shared.CodeNotFound: http.StatusNotFound,

	// Collisions with existing records -> 409
	shared.CodeConflict:            http.StatusConflict,
	shared.CodeAlreadyInvoiced:     http.StatusConflict,
	shared.CodeConcurrencyConflict: http.StatusConflict,

	// Lifecycle violations -> 422
	shared.CodeInvalidState: http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
