// Package errors provides standardized error handling for the search pipeline.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Input errors: rejected before any pipeline stage runs.
	ErrCodeMissingQuery ErrorCode = "MISSING_QUERY"
	ErrCodeInvalidMode  ErrorCode = "INVALID_MODE"

	// Understanding errors. Cleanup failure leaves no usable sentence and is
	// fatal; structuring misses recover via the minimal-intent fallback.
	ErrCodeCleanupFailed     ErrorCode = "CLEANUP_FAILED"
	ErrCodeStructuringFailed ErrorCode = "STRUCTURING_FAILED"
	ErrCodeIntentSchema      ErrorCode = "INTENT_SCHEMA_VIOLATION"

	// Normalization errors: recovered locally via the dictionary-only result.
	ErrCodeNormalizationFailed  ErrorCode = "NORMALIZATION_FAILED"
	ErrCodeNormalizationInvalid ErrorCode = "NORMALIZATION_INVALID"

	// Retrieval errors: fatal to the request.
	ErrCodeEmbeddingFailed   ErrorCode = "EMBEDDING_FAILED"
	ErrCodeEmbeddingTimeout  ErrorCode = "EMBEDDING_TIMEOUT"
	ErrCodeRetrievalFailed   ErrorCode = "RETRIEVAL_FAILED"
	ErrCodeRetrievalTimeout  ErrorCode = "RETRIEVAL_TIMEOUT"
	ErrCodeStoreConnection   ErrorCode = "STORE_CONNECTION_FAILED"

	// Rerank errors: recovered locally via pass-through.
	ErrCodeRerankFailed  ErrorCode = "RERANK_FAILED"
	ErrCodeRerankTimeout ErrorCode = "RERANK_TIMEOUT"

	// Stream errors.
	ErrCodeStreamClosed ErrorCode = "STREAM_CLOSED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Fatal     bool                   `json:"fatal"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewMissingQueryError creates a fatal input error.
func NewMissingQueryError() *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingQuery,
		Message:   "Search query is required",
		Fatal:     true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidModeError creates a fatal input error.
func NewInvalidModeError(mode string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidMode,
		Message:   "Search mode must be 'candidates' or 'jobs'",
		Details:   fmt.Sprintf("mode: %s", mode),
		Fatal:     true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCleanupFailedError creates a fatal understanding error; without a
// cleaned sentence no later stage has usable input.
func NewCleanupFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCleanupFailed,
		Message:   "Query understanding failed",
		Details:   err.Error(),
		Fatal:     true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStructuringFailedError creates a non-fatal understanding error; the
// caller falls back to the minimal intent.
func NewStructuringFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStructuringFailed,
		Message:   "Intent structuring output could not be parsed",
		Details:   err.Error(),
		Fatal:     false,
		Timestamp: time.Now().UTC(),
	}
}

// NewIntentSchemaError creates a non-fatal schema violation error.
func NewIntentSchemaError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIntentSchema,
		Message:   "Intent JSON rejected by schema validation",
		Details:   details,
		Fatal:     false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNormalizationFailedError creates a non-fatal normalization error; the
// caller falls back to the dictionary-only result.
func NewNormalizationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNormalizationFailed,
		Message:   "LLM normalization pass failed",
		Details:   err.Error(),
		Fatal:     false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNormalizationInvalidError reports a normalized string that failed
// validation; reported to the caller, not silently repaired.
func NewNormalizationInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNormalizationInvalid,
		Message:   "Normalized text failed validation",
		Details:   details,
		Fatal:     false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmbeddingFailedError creates a fatal embedding error.
func NewEmbeddingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmbeddingFailed,
		Message:   "Embedding generation failed",
		Details:   err.Error(),
		Fatal:     true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmbeddingTimeoutError creates a fatal embedding timeout error.
func NewEmbeddingTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeEmbeddingTimeout,
		Message:   "Embedding generation timed out",
		Fatal:     true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRetrievalFailedError creates a fatal retrieval error.
func NewRetrievalFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRetrievalFailed,
		Message:   "Retrieval store query failed",
		Details:   err.Error(),
		Fatal:     true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRetrievalTimeoutError creates a fatal retrieval timeout error.
func NewRetrievalTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeRetrievalTimeout,
		Message:   "Retrieval store query timed out",
		Fatal:     true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreConnectionError creates a fatal store connection error.
func NewStoreConnectionError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreConnection,
		Message:   "Retrieval store connection error",
		Details:   err.Error(),
		Fatal:     true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRerankFailedError creates a non-fatal rerank error; the stage passes
// its input through unchanged.
func NewRerankFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRerankFailed,
		Message:   "Cross-encoder rerank call failed",
		Details:   err.Error(),
		Fatal:     false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRerankTimeoutError creates a non-fatal rerank timeout error.
func NewRerankTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeRerankTimeout,
		Message:   "Cross-encoder rerank call timed out",
		Fatal:     false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsFatal reports whether err must terminate the stream with an error event.
// Unknown error types are treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Fatal
	}
	return true
}

// UserMessage returns the human-readable message for the error event; it
// never exposes a stack trace or internal details.
func UserMessage(err error) string {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Message
	}
	return "Search failed due to an internal error"
}
