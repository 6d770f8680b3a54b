// Package errors provides structured error handling for TableLink
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeConnectionRefused represents refused network connections
	ErrorTypeConnectionRefused ErrorType = "connection_refused"
	// ErrorTypeAuthenticationFailed represents rejected database credentials
	ErrorTypeAuthenticationFailed ErrorType = "authentication_failed"
	// ErrorTypeDatabaseNotFound represents an unknown database name
	ErrorTypeDatabaseNotFound ErrorType = "database_not_found"
	// ErrorTypeTimeout represents timed-out operations
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeNotFound represents an unknown connection id
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypePoolCreationFailed represents pool construction or validation failures
	ErrorTypePoolCreationFailed ErrorType = "pool_creation_failed"
	// ErrorTypeSchemaFetchFailed represents metadata query failures
	ErrorTypeSchemaFetchFailed ErrorType = "schema_fetch_failed"
	// ErrorTypeCollectionAlreadyExists represents a duplicate target collection
	ErrorTypeCollectionAlreadyExists ErrorType = "collection_already_exists"
	// ErrorTypeCollectionWriteFailed represents metadata-store write failures
	ErrorTypeCollectionWriteFailed ErrorType = "collection_write_failed"
	// ErrorTypeShuttingDown represents work rejected after shutdown began
	ErrorTypeShuttingDown ErrorType = "shutting_down"
	// ErrorTypeValidation represents invalid input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeConnection represents generic connection errors (fallback)
	ErrorTypeConnection ErrorType = "connection"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeConnection, ErrorTypeConnectionRefused:
		return true
	default:
		return false
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the error type, or the generic connection type for
// errors that did not originate in this package.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeConnection
	}
	return e.Type
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
