package domain

import (
	"errors"
	"fmt"
)

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

// Is reports whether target carries the same code, so a wrapped error
// still matches its sentinel with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
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

// Wrap returns a copy of the sentinel carrying err as its cause.
func Wrap(sentinel *DomainError, err error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, err)
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"

	ErrCodeEmptyContent       = "EMPTY_CONTENT"
	ErrCodeEmbeddingProvider  = "EMBEDDING_PROVIDER_ERROR"
	ErrCodeNamespaceDelete    = "NAMESPACE_DELETE_ERROR"
	ErrCodeNamespaceNotFound  = "NAMESPACE_NOT_FOUND"
	ErrCodeIndexProvision     = "INDEX_PROVISION_ERROR"
	ErrCodeInvalidVectorBatch = "INVALID_VECTOR_BATCH"
	ErrCodeIndexWrite         = "INDEX_WRITE_ERROR"
	ErrCodePipeline           = "PIPELINE_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField   = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidIndexJobStatus  = NewDomainError(ErrCodeValidation, "invalid index job status")
	ErrInvalidIndexJobAction  = NewDomainError(ErrCodeValidation, "invalid index job action")
	ErrInvalidStateTransition = NewDomainError(ErrCodeInternalError, "invalid pipeline state transition")
)

// Not found errors
var (
	ErrIndexJobNotFound  = NewDomainError(ErrCodeNotFound, "index job not found")
	ErrNamespaceNotFound = NewDomainError(ErrCodeNamespaceNotFound, "namespace does not exist")
)

// Pipeline errors
var (
	ErrEmptyContent       = NewDomainError(ErrCodeEmptyContent, "no valid sentences found in input text")
	ErrEmbeddingProvider  = NewDomainError(ErrCodeEmbeddingProvider, "embedding provider failed")
	ErrNamespaceDelete    = NewDomainError(ErrCodeNamespaceDelete, "failed to delete namespace")
	ErrIndexProvision     = NewDomainError(ErrCodeIndexProvision, "failed to provision vector index")
	ErrInvalidVectorBatch = NewDomainError(ErrCodeInvalidVectorBatch, "invalid vector batch")
	ErrIndexWrite         = NewDomainError(ErrCodeIndexWrite, "failed to upsert vectors")
	ErrPipeline           = NewDomainError(ErrCodePipeline, "indexing pipeline failed")
)

// ErrorCode returns the domain code of err, or "" for foreign errors.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsRetryable reports whether re-running the same input may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch ErrorCode(err) {
	case ErrCodeEmptyContent, ErrCodeInvalidVectorBatch, ErrCodeValidation, ErrCodeNotFound:
		return false
	}
	return true
}
