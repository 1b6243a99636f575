package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Configuration errors
	ErrConfigLoad ErrorCode = "CONFIG_LOAD"
	ErrConfigSave ErrorCode = "CONFIG_SAVE"

	// Drive errors
	ErrDriveNotFound    ErrorCode = "DRIVE_NOT_FOUND"
	ErrVolumeNotMounted ErrorCode = "VOLUME_NOT_MOUNTED"
	ErrWatchFailed      ErrorCode = "WATCH_FAILED"

	// Reconciliation errors
	ErrPathRootOrEmpty ErrorCode = "PATH_ROOT_OR_EMPTY"
	ErrCopyFailed      ErrorCode = "COPY_FAILED"
	ErrRemoveFailed    ErrorCode = "REMOVE_FAILED"
	ErrSymlinkFailed   ErrorCode = "SYMLINK_FAILED"
	ErrBackupFailed    ErrorCode = "BACKUP_FAILED"

	// FileSystem errors
	ErrFileAccess ErrorCode = "FILE_ACCESS"
	ErrDirCreate  ErrorCode = "DIR_CREATE"
)

// LinkdriveError represents a structured error with code and details
type LinkdriveError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *LinkdriveError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *LinkdriveError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *LinkdriveError) Is(target error) bool {
	var targetErr *LinkdriveError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new LinkdriveError with the given code and message
func New(code ErrorCode, message string) *LinkdriveError {
	return &LinkdriveError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new LinkdriveError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *LinkdriveError {
	return &LinkdriveError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a LinkdriveError
func Wrap(err error, code ErrorCode, message string) *LinkdriveError {
	if err == nil {
		return nil
	}
	return &LinkdriveError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *LinkdriveError {
	if err == nil {
		return nil
	}
	return &LinkdriveError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *LinkdriveError) WithDetail(key string, value interface{}) *LinkdriveError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var ldErr *LinkdriveError
	if errors.As(err, &ldErr) {
		return ldErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a
// LinkdriveError
func GetErrorCode(err error) ErrorCode {
	var ldErr *LinkdriveError
	if errors.As(err, &ldErr) {
		return ldErr.Code
	}
	return ErrUnknown
}
