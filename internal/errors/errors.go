package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a tabrec error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrTabUnreachable   ErrorCode = "TAB_UNREACHABLE"   // 409
	ErrCancelled        ErrorCode = "CANCELLED"         // 499
	ErrInternal         ErrorCode = "INTERNAL"          // 500
	ErrUploadFailed     ErrorCode = "UPLOAD_FAILED"     // 502
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE" // 503
)

// RecorderError represents a structured error with code, status, and details.
type RecorderError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// cause is the underlying error, if any. Not exposed in API payloads.
	cause error
}

// Error implements the error interface.
func (e *RecorderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause so errors.Is/As see through it.
func (e *RecorderError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
// Validation errors are raised before any I/O happens.
func NewInvalidRequest(msg string) *RecorderError {
	return &RecorderError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing recording or session.
func NewNotFound(kind, identifier string) *RecorderError {
	return &RecorderError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewTabUnreachable creates a 409 error when a directed tab message fails.
// The coordinator treats this as a stale-state signal, never as fatal.
func NewTabUnreachable(tabID string, err error) *RecorderError {
	msg := fmt.Sprintf("tab %s unreachable", tabID)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &RecorderError{
		Code:    ErrTabUnreachable,
		Status:  409,
		Message: msg,
		Details: map[string]any{"tab_id": tabID},
		cause:   err,
	}
}

// NewCancelled creates a 499 error when an operation is cancelled via context.
func NewCancelled(operation string) *RecorderError {
	return &RecorderError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewUploadFailed creates a 502 error for a failed segment upload.
// sequence is the 1-based segment that failed; delivered counts the
// segments acknowledged before it.
func NewUploadFailed(sessionID string, sequence, delivered int, err error) *RecorderError {
	msg := fmt.Sprintf("upload of session %s failed at segment %d", sessionID, sequence)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &RecorderError{
		Code:    ErrUploadFailed,
		Status:  502,
		Message: msg,
		Details: map[string]any{
			"session_id":         sessionID,
			"sequence_number":    sequence,
			"segments_delivered": delivered,
		},
		cause: err,
	}
}

// NewStoreUnavailable creates a 503 error when the store cannot be opened
// or a transaction fails to start.
func NewStoreUnavailable(err error) *RecorderError {
	msg := "recording store unavailable"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &RecorderError{
		Code:    ErrStoreUnavailable,
		Status:  503,
		Message: msg,
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *RecorderError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &RecorderError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error (or anything it wraps) is a RecorderError with the given code.
func Is(err error, code ErrorCode) bool {
	var rErr *RecorderError
	if stderrors.As(err, &rErr) {
		return rErr.Code == code
	}
	return false
}

// As reports whether err is a RecorderError and returns it.
func As(err error) (*RecorderError, bool) {
	var rErr *RecorderError
	if stderrors.As(err, &rErr) {
		return rErr, true
	}
	return nil, false
}
