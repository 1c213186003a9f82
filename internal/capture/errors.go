// Package capture buffers per-suite test output streams and spills them to disk.
package capture

import (
	"errors"
	"fmt"
)

// Error types for output capture and reporting
var (
	// ErrCapture indicates captured output could not be buffered or spilled
	ErrCapture = errors.New("capture failed")

	// ErrReport indicates a failure log could not be written
	ErrReport = errors.New("report failed")

	// ErrCleanup indicates a capture buffer could not be released
	ErrCleanup = errors.New("cleanup failed")

	// ErrConfiguration indicates an invalid run configuration
	ErrConfiguration = errors.New("invalid configuration")
)

// ErrorType represents the category of a capture error
type ErrorType int

const (
	// ErrorTypeUnknown indicates an unknown error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeCapture indicates spill-file creation or write failure
	ErrorTypeCapture
	// ErrorTypeReport indicates failure-log write failure
	ErrorTypeReport
	// ErrorTypeCleanup indicates close or delete failure
	ErrorTypeCleanup
	// ErrorTypeConfiguration indicates a configuration conflict
	ErrorTypeConfiguration
)

// Error is a categorized capture subsystem error.
type Error struct {
	Type    ErrorType
	Subject string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch e.Type {
	case ErrorTypeCapture:
		return fmt.Sprintf("unable to capture test output for %s: %v", e.Subject, e.Err)
	case ErrorTypeReport:
		return fmt.Sprintf("unable to write failure log %s: %v", e.Subject, e.Err)
	case ErrorTypeCleanup:
		return fmt.Sprintf("failed to close output handler for %s: %v", e.Subject, e.Err)
	case ErrorTypeConfiguration:
		return fmt.Sprintf("configuration error: %v", e.Err)
	default:
		return fmt.Sprintf("unknown error for %s: %v", e.Subject, e.Err)
	}
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *Error) Is(target error) bool {
	switch target {
	case ErrCapture:
		return e.Type == ErrorTypeCapture
	case ErrReport:
		return e.Type == ErrorTypeReport
	case ErrCleanup:
		return e.Type == ErrorTypeCleanup
	case ErrConfiguration:
		return e.Type == ErrorTypeConfiguration
	}
	return false
}

// CaptureError wraps err as a capture failure for subject.
func CaptureError(subject string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Type: ErrorTypeCapture, Subject: subject, Err: err}
}

// ReportError wraps err as a failure-log write failure for path.
func ReportError(path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Type: ErrorTypeReport, Subject: path, Err: err}
}

// CleanupError wraps err as a close failure for subject.
func CleanupError(subject string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Type: ErrorTypeCleanup, Subject: subject, Err: err}
}

// ConfigurationError creates a configuration error with a formatted message.
func ConfigurationError(format string, args ...interface{}) error {
	return &Error{Type: ErrorTypeConfiguration, Err: fmt.Errorf(format, args...)}
}
