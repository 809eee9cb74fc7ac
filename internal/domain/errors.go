package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeTimeout          = "TIMEOUT"
)

// Validation errors
var (
	ErrEmptyDocument        = NewDomainError(ErrCodeValidation, "document has no content")
	ErrInvalidStage         = NewDomainError(ErrCodeValidation, "invalid pipeline stage")
	ErrInvalidRunStatus     = NewDomainError(ErrCodeValidation, "invalid run status")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrRunNotFound      = NewDomainError(ErrCodeNotFound, "pipeline run not found")
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrArtifactNotFound = NewDomainError(ErrCodeNotFound, "stage artifact not found")
)

// Operation errors
var (
	ErrRunAlreadyTerminal = NewDomainError(ErrCodeInvalidOperation, "pipeline run is already in a terminal state")
	ErrStageOutOfOrder    = NewDomainError(ErrCodeInvalidOperation, "stage cannot start before its predecessor succeeds")
	ErrStageTimedOut      = NewDomainError(ErrCodeTimeout, "stage exceeded its time budget")
)
