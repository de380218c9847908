// Package errors provides the error taxonomy surfaced by the project session.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodePreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	ErrCodeFetchFailed        ErrorCode = "FETCH_FAILED"
	ErrCodeSaveFailed         ErrorCode = "SAVE_FAILED"
	ErrCodeDraftStoreFailed   ErrorCode = "DRAFT_STORE_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// NewValidationError creates a non-retryable input validation error.
func NewValidationError(field, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Validation failed",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"field": field},
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable not-found error.
func NewNotFoundError(resource, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPreconditionFailedError creates a non-retryable business rule error.
func NewPreconditionFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePreconditionFailed,
		Message:   "Precondition failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewFetchFailedError creates a retryable error for a failed read.
func NewFetchFailedError(resource string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeFetchFailed,
		Message:   fmt.Sprintf("Failed to fetch %s", resource),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewSaveFailedError creates a retryable error for a failed write.
func NewSaveFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSaveFailed,
		Message:   fmt.Sprintf("Failed to save %s", operation),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewDraftStoreFailedError wraps a local draft store failure. These never
// reach the user.
func NewDraftStoreFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDraftStoreFailed,
		Message:   fmt.Sprintf("Draft store %s failed", op),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// CodeOf returns the code of the first StandardError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether the error is worth retrying.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION"), strings.Contains(codeStr, "PRECONDITION"):
		return "USER_INPUT"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "LOOKUP"
	case strings.Contains(codeStr, "FETCH"), strings.Contains(codeStr, "SAVE"):
		return "BACKEND"
	case strings.Contains(codeStr, "DRAFT"):
		return "LOCAL_STORAGE"
	default:
		return "OTHER"
	}
}
