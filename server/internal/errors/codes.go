// Package errors defines the error taxonomy of the chat pipeline.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a specific failure class.
type ErrorCode string

const (
	// ErrCodePersistenceFailure means the conversation store rejected a write. Fatal
	// when it hits the incoming user message.
	ErrCodePersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
	// ErrCodeEmbeddingUnavailable means text could not be embedded; indexing is skipped.
	ErrCodeEmbeddingUnavailable ErrorCode = "EMBEDDING_UNAVAILABLE"
	// ErrCodeIndexUpsertFailure means the vector index rejected a record; indexing is skipped.
	ErrCodeIndexUpsertFailure ErrorCode = "INDEX_UPSERT_FAILURE"
	// ErrCodeRetrievalFailure means context assembly failed; the prompt goes out without context.
	ErrCodeRetrievalFailure ErrorCode = "RETRIEVAL_FAILURE"
	// ErrCodeGenerationFailure means the model call failed; a degraded reply is stored.
	ErrCodeGenerationFailure ErrorCode = "GENERATION_FAILURE"
	// ErrCodeGenerationTimeout means the model call hit its deadline; a degraded reply is stored.
	ErrCodeGenerationTimeout ErrorCode = "GENERATION_TIMEOUT"

	ErrCodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
)

// AIError represents a structured error of the chat pipeline.
type AIError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *AIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AIError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AIError) WithContext(key string, value any) *AIError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the code to the status the API responds with.
func (e *AIError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeGenerationTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeEmbeddingUnavailable, ErrCodeGenerationFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Fatal reports whether the code aborts a send. Every later stage degrades instead.
func (c ErrorCode) Fatal() bool {
	return c == ErrCodePersistenceFailure || c == ErrCodeInvalidArgument ||
		c == ErrCodeNotFound || c == ErrCodeUnauthorized
}

// Convenience constructors.

func PersistenceFailure(msg string, cause error) *AIError {
	return &AIError{Code: ErrCodePersistenceFailure, Message: msg, Cause: cause}
}

func EmbeddingUnavailable(cause error) *AIError {
	return &AIError{Code: ErrCodeEmbeddingUnavailable, Message: "embedding unavailable", Cause: cause}
}

func IndexUpsertFailure(cause error) *AIError {
	return &AIError{Code: ErrCodeIndexUpsertFailure, Message: "index upsert failed", Cause: cause}
}

func RetrievalFailure(cause error) *AIError {
	return &AIError{Code: ErrCodeRetrievalFailure, Message: "context retrieval failed", Cause: cause}
}

func GenerationFailure(cause error) *AIError {
	return &AIError{Code: ErrCodeGenerationFailure, Message: "generation failed", Cause: cause}
}

func GenerationTimeout(cause error) *AIError {
	return &AIError{Code: ErrCodeGenerationTimeout, Message: "generation timed out", Cause: cause}
}

func InvalidArgument(msg string) *AIError {
	return &AIError{Code: ErrCodeInvalidArgument, Message: msg}
}

func NotFound(msg string) *AIError {
	return &AIError{Code: ErrCodeNotFound, Message: msg}
}

func Unauthorized(msg string) *AIError {
	return &AIError{Code: ErrCodeUnauthorized, Message: msg}
}

func RateLimitExceeded(msg string) *AIError {
	return &AIError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// Wrap wraps an existing error with a code.
func Wrap(cause error, code ErrorCode, msg string) *AIError {
	return &AIError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if any error in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AIError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.Code
	}
	return defaultCode
}
