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
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeDiscoveryEmpty      = "DISCOVERY_EMPTY"
	ErrCodeGenerationFailed    = "GENERATION_FAILED"
	ErrCodeValidationRejected  = "VALIDATION_REJECTED"
	ErrCodeExecutionFailed     = "EXECUTION_FAILED"
	ErrCodeEmbeddingFailed     = "EMBEDDING_FAILED"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// Retrieval pipeline errors. DiscoveryEmpty is a normal outcome for callers;
// the orchestrator absorbs it and never surfaces it as a request failure.
var (
	ErrNoRelevantTables    = NewDomainError(ErrCodeDiscoveryEmpty, "no relevant tables found for query")
	ErrNoRelevantDocuments = NewDomainError(ErrCodeDiscoveryEmpty, "no relevant documents found for query")
	ErrGenerationFailed    = NewDomainError(ErrCodeGenerationFailed, "text generation failed or returned unusable output")
	ErrValidationRejected  = NewDomainError(ErrCodeValidationRejected, "generated sql rejected by validation gate")
	ErrExecutionFailed     = NewDomainError(ErrCodeExecutionFailed, "database rejected or timed out the query")
	ErrEmbeddingFailed     = NewDomainError(ErrCodeEmbeddingFailed, "embedding generation failed")
	ErrUpstreamUnavailable = NewDomainError(ErrCodeUpstreamUnavailable, "upstream model provider unreachable")
)

// Validation errors
var (
	ErrInvalidQueryMode   = NewDomainError(ErrCodeValidation, "invalid query mode")
	ErrEmptyQuestion      = NewDomainError(ErrCodeValidation, "question cannot be empty")
	ErrEmptyDocument      = NewDomainError(ErrCodeValidation, "document content cannot be empty")
	ErrMissingConnection  = NewDomainError(ErrCodeValidation, "connection_id is required")
	ErrInvalidAPIKey      = NewDomainError(ErrCodeUnauthorized, "invalid api key")
	ErrConnectionNotFound = NewDomainError(ErrCodeNotFound, "connection not found")
	ErrTableNotCataloged  = NewDomainError(ErrCodeNotFound, "table not present in metadata catalog")
)
