package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for request validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
)

// Resource error codes
const (
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeConflict      = "ERR_CONFLICT"
	// ErrCodeSessionBusy is used when a session is already being processed
	ErrCodeSessionBusy = "ERR_SESSION_BUSY"
)

// Pipeline error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for the session status
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeUnparseableFile is used when no parsing strategy could read the upload
	ErrCodeUnparseableFile = "ERR_UNPARSEABLE_FILE"
	// ErrCodeNoMappings is used when processing is requested without any mapping
	ErrCodeNoMappings = "ERR_NO_MAPPINGS"
)

// Input error codes
const (
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodePayloadTooLarge = "ERR_PAYLOAD_TOO_LARGE"
)

// Dependency error codes
const (
	// ErrCodeDependencyFailed is used when a database, cache or archive call fails
	ErrCodeDependencyFailed = "ERR_DEPENDENCY_FAILED"
	ErrCodeRateLimited      = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,
	ErrCodeSessionBusy:   http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:    http.StatusUnprocessableEntity,
	ErrCodeUnparseableFile: http.StatusUnprocessableEntity,
	ErrCodeNoMappings:      http.StatusUnprocessableEntity,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeDependencyFailed: http.StatusBadGateway,
	ErrCodeRateLimited:      http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":             ErrCodeNotFound,
	"ALREADY_EXISTS":        ErrCodeAlreadyExists,
	"INVALID_INPUT":         ErrCodeInvalidInput,
	"INVALID_ENTITY_TYPE":   ErrCodeInvalidInput,
	"INVALID_FILE_NAME":     ErrCodeInvalidInput,
	"INVALID_FILE_SIZE":     ErrCodeInvalidInput,
	"INVALID_TOTAL_RECORDS": ErrCodeInvalidInput,
	"INVALID_SCHEMA":        ErrCodeInvalidInput,
	"INVALID_STATE":         ErrCodeInvalidState,
	"UNPARSEABLE_FILE":      ErrCodeUnparseableFile,
	"NO_MAPPINGS":           ErrCodeNoMappings,
	"SESSION_BUSY":          ErrCodeSessionBusy,
	"PAYLOAD_TOO_LARGE":     ErrCodePayloadTooLarge,
	"DEPENDENCY_FAILED":     ErrCodeDependencyFailed,
	"VALIDATION_ERROR":      ErrCodeValidation,
	"BAD_REQUEST":           ErrCodeBadRequest,
	"INTERNAL_ERROR":        ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in API format or unknown pass through unchanged.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
