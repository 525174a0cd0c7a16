// Package errors provides standardized error handling for the intent gateway.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeTemplateLibraryUnreadable ErrorCode = "TEMPLATE_LIBRARY_UNREADABLE"
	ErrCodeTemplateInvalid           ErrorCode = "TEMPLATE_INVALID"
	ErrCodeTemplateNotFound          ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeDomainConfigInvalid       ErrorCode = "DOMAIN_CONFIG_INVALID"

	ErrCodeEmbeddingFailed   ErrorCode = "EMBEDDING_FAILED"
	ErrCodeEmbeddingTimeout  ErrorCode = "EMBEDDING_TIMEOUT"
	ErrCodeNoConfidentMatch  ErrorCode = "NO_CONFIDENT_MATCH"
	ErrCodeExtractionFailed  ErrorCode = "EXTRACTION_FAILED"
	ErrCodeCompletionFailed  ErrorCode = "COMPLETION_FAILED"
	ErrCodeCompletionTimeout ErrorCode = "COMPLETION_TIMEOUT"

	ErrCodeDatasourceUnavailable ErrorCode = "DATASOURCE_UNAVAILABLE"
	ErrCodeQueryExecutionFailed  ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout          ErrorCode = "QUERY_TIMEOUT"
	ErrCodeCircuitOpen           ErrorCode = "CIRCUIT_OPEN"
	ErrCodeBindingFailed         ErrorCode = "BINDING_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewTemplateInvalidError creates a non-retryable template validation error.
// The offending template is skipped at load time, never at query time.
func NewTemplateInvalidError(templateID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateInvalid,
		Message:   "Template failed load-time validation",
		Details:   fmt.Sprintf("templateId: %s, %s", templateID, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template lookup error.
func NewTemplateNotFoundError(templateID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Template not found in store",
		Details:   fmt.Sprintf("templateId: %s", templateID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDomainConfigInvalidError creates a non-retryable domain configuration error.
func NewDomainConfigInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDomainConfigInvalid,
		Message:   "Domain configuration failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmbeddingFailedError creates a retryable embedding service error.
func NewEmbeddingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmbeddingFailed,
		Message:   "Embedding service error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionFailedError creates a non-retryable parameter extraction error.
// A missing required parameter is a property of the query text, retrying the
// same text cannot resolve it.
func NewExtractionFailedError(templateID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionFailed,
		Message:   "Parameter extraction failed",
		Details:   fmt.Sprintf("templateId: %s, %s", templateID, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCompletionFailedError creates a retryable completion service error.
func NewCompletionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCompletionFailed,
		Message:   "Completion service error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable datasource execution error.
func NewQueryExecutionFailedError(datasource string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Datasource query execution error",
		Details:   fmt.Sprintf("datasource: %s, error: %s", datasource, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryTimeoutError creates a retryable datasource timeout error.
func NewQueryTimeoutError(datasource string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryTimeout,
		Message:   "Datasource query timeout",
		Details:   fmt.Sprintf("datasource: %s", datasource),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCircuitOpenError creates a non-retryable fast failure raised while a
// datasource breaker is open. Distinct from a timeout so callers can message
// the user appropriately.
func NewCircuitOpenError(datasource string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCircuitOpen,
		Message:   "Datasource circuit breaker is open",
		Details:   fmt.Sprintf("datasource: %s", datasource),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewBindingFailedError creates a non-retryable parameter binding error.
func NewBindingFailedError(templateID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBindingFailed,
		Message:   "Parameter binding failed",
		Details:   fmt.Sprintf("templateId: %s, error: %s", templateID, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the recommended retry count per error class.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeEmbeddingFailed,
		ErrCodeCompletionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeDatasourceUnavailable:
		return 3 // Retryable technical errors

	case ErrCodeQueryTimeout,
		ErrCodeEmbeddingTimeout,
		ErrCodeCompletionTimeout:
		return 2 // Partial retry for timeouts

	default:
		return 0 // Validation and business outcomes: no retry
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TEMPLATE") || strings.Contains(codeStr, "DOMAIN"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "EMBEDDING") || strings.Contains(codeStr, "MATCH"):
		return "MATCHING"
	case strings.Contains(codeStr, "EXTRACTION") || strings.Contains(codeStr, "COMPLETION"):
		return "EXTRACTION"
	case strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "DATASOURCE") || strings.Contains(codeStr, "CIRCUIT") || strings.Contains(codeStr, "BINDING"):
		return "EXECUTION"
	default:
		return "OTHER"
	}
}
