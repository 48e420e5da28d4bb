// Package errors provides structured error types for the tablet partitioning
// subsystem. All errors include a category, code, message, and retryable flag
// for consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryEncoding   ErrorCategory = "ENCODING"
	ErrCategoryAlteration ErrorCategory = "ALTERATION"
	ErrCategoryManifest   ErrorCategory = "MANIFEST"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Encoding codes
	CodeTypeMismatch       = "TYPE_MISMATCH"
	CodeNullKeyValue       = "NULL_KEY_VALUE"
	CodeUnsupportedKeyType = "UNSUPPORTED_KEY_TYPE"
	CodeMalformedKey       = "MALFORMED_KEY"

	// Validation codes
	CodeInvalidSchema          = "INVALID_SCHEMA"
	CodeIncompleteSplitRow     = "INCOMPLETE_SPLIT_ROW"
	CodeInvalidSplitRow        = "INVALID_SPLIT_ROW"
	CodeDuplicateSplitRow      = "DUPLICATE_SPLIT_ROW"
	CodeSplitRowOutOfKeyOrder  = "SPLIT_ROW_OUT_OF_KEY_ORDER"
	CodeOverlappingHashColumns = "OVERLAPPING_HASH_COLUMNS"
	CodeInvalidHashComponent   = "INVALID_HASH_COMPONENT"
	CodeInvalidRangeComponent  = "INVALID_RANGE_COMPONENT"
	CodeTooManyPartitions      = "TOO_MANY_PARTITIONS"
	CodeUnknownHashVersion     = "UNKNOWN_HASH_VERSION"

	// Alteration codes
	CodeIllegalAlteration = "ILLEGAL_ALTERATION"

	// Manifest codes
	CodeTableNotFound      = "TABLE_NOT_FOUND"
	CodeTableExists        = "TABLE_EXISTS"
	CodeWriteConflict      = "WRITE_CONFLICT"
	CodeCorruptionDetected = "CORRUPTION_DETECTED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeDeleteFailed   = "DELETE_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// TabletError is the structured error type used throughout the system.
type TabletError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *TabletError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *TabletError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *TabletError) Is(target error) bool {
	var t *TabletError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new TabletError.
func New(category ErrorCategory, code, message string) *TabletError {
	return &TabletError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Newf creates a new TabletError with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *TabletError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new TabletError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *TabletError {
	return &TabletError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *TabletError) WithDetails(details map[string]interface{}) *TabletError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var te *TabletError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a TabletError.
func GetCategory(err error) ErrorCategory {
	var te *TabletError
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a TabletError.
func GetCode(err error) string {
	var te *TabletError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code string) bool {
	for err != nil {
		if te, ok := err.(*TabletError); ok && te.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// isRetryable determines if an error code is retryable. Schema and encoding
// failures are deterministic, so only transient storage failures qualify.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryManifest && code == CodeWriteConflict:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *TabletError {
	return New(ErrCategoryValidation, code, message)
}

func NewEncodingError(code, message string) *TabletError {
	return New(ErrCategoryEncoding, code, message)
}

func NewAlterationError(message string) *TabletError {
	return New(ErrCategoryAlteration, CodeIllegalAlteration, message)
}

func NewManifestError(code, message string, cause error) *TabletError {
	return Wrap(ErrCategoryManifest, code, message, cause)
}

func NewStorageError(code, message string, cause error) *TabletError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *TabletError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
