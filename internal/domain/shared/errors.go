package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so wrapped
// errors created with NewDomainError can be matched against the sentinels.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound         = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists    = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput     = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState     = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrUnparseableFile  = NewDomainError("UNPARSEABLE_FILE", "No parsing strategy could read the file")
	ErrNoMappings       = NewDomainError("NO_MAPPINGS", "No field mappings could be produced")
	ErrSessionBusy      = NewDomainError("SESSION_BUSY", "Import session is already processing")
	ErrPayloadTooLarge  = NewDomainError("PAYLOAD_TOO_LARGE", "Uploaded file exceeds the size limit")
	ErrDependencyFailed = NewDomainError("DEPENDENCY_FAILED", "A required dependency failed")
)
