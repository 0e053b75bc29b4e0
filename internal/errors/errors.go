// Package errors provides error code definitions shared across the sync engine.
package errors

import "fmt"

// ErrorCode represents a unique error code that can be surfaced to the UI layer.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrDuplicate  ErrorCode = "DUPLICATE"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Persistence errors
	ErrPersistence ErrorCode = "PERSISTENCE_ERROR"

	// Entity errors
	ErrFolderNotFound  ErrorCode = "FOLDER_NOT_FOUND"
	ErrFolderProtected ErrorCode = "FOLDER_PROTECTED"
	ErrTaskNotFound    ErrorCode = "TASK_NOT_FOUND"

	// Sync errors
	ErrSyncFailed         ErrorCode = "SYNC_FAILED"
	ErrSyncTimeout        ErrorCode = "SYNC_TIMEOUT"
	ErrSyncConflict       ErrorCode = "SYNC_CONFLICT"
	ErrSyncRetryExhausted ErrorCode = "SYNC_RETRY_EXHAUSTED"
	ErrSyncQueueFull      ErrorCode = "SYNC_QUEUE_FULL"
	ErrNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"

	// Quota errors
	ErrQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf extracts the ErrorCode from an error chain.
// Returns ErrInternal for values that carry no AppError.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrInternal
}

// Is reports whether the error carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsTransient reports whether the error is retryable: a timeout or a
// transport-level sync failure. Transient errors are retried with backoff.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case ErrSyncTimeout, ErrSyncFailed:
		return true
	}
	return false
}

// IsConflict reports whether the error indicates divergent local and
// remote state, which is routed to the conflict resolver.
func IsConflict(err error) bool {
	return Is(err, ErrSyncConflict)
}

// IsExhausted reports whether a transient error outlived its retry budget.
func IsExhausted(err error) bool {
	return Is(err, ErrSyncRetryExhausted)
}

// IsPermanent reports whether the error must not be retried
// (validation failures, quota exhaustion, malformed payloads).
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return !IsTransient(err) && !IsConflict(err) && !IsExhausted(err)
}
