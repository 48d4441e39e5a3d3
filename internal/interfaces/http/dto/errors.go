package dto

import "net/http"

// Transport error codes. Ledger domain codes are passed through unchanged.
const (
	ErrCodeInternal        = "ERR_INTERNAL"
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeUnauthorized    = "ERR_UNAUTHORIZED"
	ErrCodeForbidden       = "ERR_FORBIDDEN"
	ErrCodeTokenExpired    = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid    = "ERR_TOKEN_INVALID"
	ErrCodeNotFound        = "ERR_NOT_FOUND"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	ErrCodeUnavailable     = "ERR_UNAVAILABLE"
)

// Ledger domain error codes
const (
	CodeInvalidQuantity        = "INVALID_QUANTITY"
	CodeUnknownTransactionType = "UNKNOWN_TRANSACTION_TYPE"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeInvalidReason          = "INVALID_REASON"
	CodeInvalidLocation        = "INVALID_LOCATION"
	CodeEmptyBatch             = "EMPTY_BATCH"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeAlreadyReversed        = "ALREADY_REVERSED"
	CodeNotFound               = "NOT_FOUND"
	CodeDuplicateCorrelation   = "DUPLICATE_CORRELATION"
	CodeCannotReverseReversal  = "CANNOT_REVERSE_REVERSAL"
	CodePartialCommit          = "PARTIAL_COMMIT_FAILURE"
	CodeImmutableMovement      = "IMMUTABLE_MOVEMENT"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeForbidden:       http.StatusForbidden,
	ErrCodeTokenExpired:    http.StatusUnauthorized,
	ErrCodeTokenInvalid:    http.StatusUnauthorized,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,

	// Rejected input -> 400
	CodeInvalidQuantity:        http.StatusBadRequest,
	CodeUnknownTransactionType: http.StatusBadRequest,
	CodeInvalidInput:           http.StatusBadRequest,
	CodeInvalidReason:          http.StatusBadRequest,
	CodeInvalidLocation:        http.StatusBadRequest,
	CodeEmptyBatch:             http.StatusBadRequest,

	// Business rules -> 422
	CodeInsufficientStock:     http.StatusUnprocessableEntity,
	CodeCannotReverseReversal: http.StatusUnprocessableEntity,

	// Conflicts -> 409
	CodeAlreadyReversed:      http.StatusConflict,
	CodeDuplicateCorrelation: http.StatusConflict,

	CodeNotFound:     http.StatusNotFound,
	CodeUnauthorized: http.StatusUnauthorized,
	CodeForbidden:    http.StatusForbidden,

	CodePartialCommit:     http.StatusInternalServerError,
	CodeImmutableMovement: http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsClientError reports whether the code maps to a 4xx status
func IsClientError(code string) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}
