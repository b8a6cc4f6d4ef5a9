package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for chat turn operations.
type ErrorCode string

const (
	// ErrCodeTransport indicates a network or service failure from a
	// completion, embedding, or search call.
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"
	// ErrCodeMalformedAnswer indicates the answer synthesis output did not
	// match the expected JSON shape.
	ErrCodeMalformedAnswer ErrorCode = "MALFORMED_ANSWER"
	// ErrCodeMalformedFollowUp indicates the follow-up output was not a
	// valid JSON array. Recovered locally, never surfaced to callers.
	ErrCodeMalformedFollowUp ErrorCode = "MALFORMED_FOLLOW_UP"
	// ErrCodeStore indicates a conversation persistence failure.
	ErrCodeStore ErrorCode = "STORE_ERROR"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeContextCanceled indicates the turn was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeTimeout indicates a stage exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimitExceeded indicates the caller is sending turns too fast.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
)

// TurnError represents a structured error for a chat turn.
type TurnError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *TurnError) Unwrap() error {
	return e.Cause
}

// GetCode returns the error code.
func (e *TurnError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// Transport creates a transport error.
func Transport(msg string, cause error) *TurnError {
	return &TurnError{Code: ErrCodeTransport, Message: msg, Cause: cause}
}

// MalformedAnswer creates a malformed answer error.
func MalformedAnswer(msg string, cause error) *TurnError {
	return &TurnError{Code: ErrCodeMalformedAnswer, Message: msg, Cause: cause}
}

// MalformedFollowUp creates a malformed follow-up error.
func MalformedFollowUp(cause error) *TurnError {
	return &TurnError{Code: ErrCodeMalformedFollowUp, Message: "follow-up output is not a JSON array", Cause: cause}
}

// Store creates a store error.
func Store(msg string, cause error) *TurnError {
	return &TurnError{Code: ErrCodeStore, Message: msg, Cause: cause}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *TurnError {
	return &TurnError{Code: ErrCodeInvalidArgument, Message: msg}
}

// ContextCanceled creates a context canceled error.
func ContextCanceled(cause error) *TurnError {
	return &TurnError{Code: ErrCodeContextCanceled, Message: "turn canceled", Cause: cause}
}

// Timeout creates a timeout error.
func Timeout(msg string) *TurnError {
	return &TurnError{Code: ErrCodeTimeout, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *TurnError {
	return &TurnError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if turnErr, ok := err.(*TurnError); ok {
		return turnErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not a TurnError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if turnErr, ok := err.(*TurnError); ok {
		return turnErr.Code
	}
	return defaultCode
}
