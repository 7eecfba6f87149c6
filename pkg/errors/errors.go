package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error types that can be used throughout the application
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternalError  = errors.New("internal error")
	ErrUnavailable    = errors.New("service unavailable")
	ErrNotImplemented = errors.New("not implemented")
	ErrCanceled       = errors.New("operation canceled")

	// Domain-specific error sentinel values
	ErrInvalidDirectory  = errors.New("invalid number directory")
	ErrInvalidWindow     = errors.New("invalid report window")
	ErrInvalidRecordFile = errors.New("invalid record file")
	ErrSourceUnavailable = errors.New("record source unavailable")
	ErrPublishFailed     = errors.New("report publication failed")
	ErrRateLimited       = errors.New("rate limit exceeded")
)

// Error represents a structured error with its creation site and additional context
type Error struct {
	// original is the underlying error
	original error

	// message is the error message
	message string

	// fields contains contextual information
	fields map[string]interface{}

	// file and line record where the error was created
	file string
	line int

	// Code is an optional error code for categorization
	Code string
}

func newAt(skip int, original error, message, code string, fields []map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(skip + 1)

	fieldMap := make(map[string]interface{})
	if len(fields) > 0 && fields[0] != nil {
		for k, v := range fields[0] {
			fieldMap[k] = v
		}
	}

	return &Error{
		original: original,
		message:  message,
		fields:   fieldMap,
		file:     file,
		line:     line,
		Code:     code,
	}
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	return newAt(1, errors.New(message), message, "", fields)
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	return newAt(1, err, message, GetErrorCode(err), fields)
}

// WithField adds a single field to the error context
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	return e.WithFields(map[string]interface{}{key: value})
}

// WithFields adds multiple fields to the error context.
// The receiver is left untouched.
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}

	result := *e
	result.fields = make(map[string]interface{}, len(e.fields)+len(fields))
	for k, v := range e.fields {
		result.fields[k] = v
	}
	for k, v := range fields {
		result.fields[k] = v
	}
	return &result
}

// WithCode adds an error code to the error
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}
	result := *e
	result.Code = code
	return &result
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}

	if e.message == "" {
		return e.original.Error()
	}

	// Sentinel constructors already lead with the sentinel text
	if strings.HasPrefix(e.message, e.original.Error()) {
		return e.message
	}

	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}

	parts := strings.Split(e.file, "/")
	filename := parts[len(parts)-1]

	return fmt.Sprintf("%s:%d", filename, e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// GetCode returns the error's code
func (e *Error) GetCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// AsJSON returns the error in JSON-friendly map format
func (e *Error) AsJSON() map[string]interface{} {
	if e == nil {
		return nil
	}

	result := map[string]interface{}{
		"message":  e.Error(),
		"location": e.Location(),
	}

	if e.Code != "" {
		result["code"] = e.Code
	}

	if len(e.fields) > 0 {
		result["context"] = e.fields
	}

	return result
}

// NewNotFound creates a new ErrNotFound error with additional context
func NewNotFound(message string, fields ...map[string]interface{}) *Error {
	return newAt(1, ErrNotFound, message, "NOT_FOUND", fields)
}

// NewInvalidInput creates a new ErrInvalidInput error with additional context
func NewInvalidInput(message string, fields ...map[string]interface{}) *Error {
	return newAt(1, ErrInvalidInput, message, "INVALID_INPUT", fields)
}

// NewInternalError creates a new ErrInternalError with additional context
func NewInternalError(message string, fields ...map[string]interface{}) *Error {
	return newAt(1, ErrInternalError, message, "INTERNAL_ERROR", fields)
}

// NewInvalidDirectory creates a new ErrInvalidDirectory with additional context
func NewInvalidDirectory(details string, fields ...map[string]interface{}) *Error {
	return newAt(1, ErrInvalidDirectory, fmt.Sprintf("invalid number directory: %s", details), "INVALID_DIRECTORY", fields)
}

// NewInvalidWindow creates a new ErrInvalidWindow for the given window label
func NewInvalidWindow(label string, fields ...map[string]interface{}) *Error {
	err := newAt(1, ErrInvalidWindow, fmt.Sprintf("unknown report window: %q", label), "INVALID_WINDOW", fields)
	err.fields["window"] = label
	return err
}

// NewInvalidRecordFile creates a new ErrInvalidRecordFile with additional context
func NewInvalidRecordFile(path, details string, fields ...map[string]interface{}) *Error {
	err := newAt(1, ErrInvalidRecordFile, fmt.Sprintf("invalid record file %s: %s", path, details), "INVALID_RECORD_FILE", fields)
	err.fields["path"] = path
	return err
}

// NewSourceUnavailable wraps a record source failure
func NewSourceUnavailable(cause error, fields ...map[string]interface{}) *Error {
	err := newAt(1, ErrSourceUnavailable, fmt.Sprintf("record source unavailable: %v", cause), "SOURCE_UNAVAILABLE", fields)
	err.fields["cause"] = cause.Error()
	return err
}

// IsErrorType checks if an error is of a specific error type
func IsErrorType(err, target error) bool {
	return errors.Is(err, target)
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetCode()
	}
	return ""
}

// GetErrorFields extracts fields from an error if it's a structured error
func GetErrorFields(err error) map[string]interface{} {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetFields()
	}
	return nil
}

// NewPublishFailed wraps a failure to hand a report to the message broker
func NewPublishFailed(queue string, cause error) *Error {
	err := newAt(1, ErrPublishFailed, fmt.Sprintf("failed to publish report to %s: %v", queue, cause), "PUBLISH_FAILED", nil)
	err.fields["queue"] = queue
	return err
}

// NewRateLimited creates a new ErrRateLimited for a client
func NewRateLimited(clientIP string) *Error {
	err := newAt(1, ErrRateLimited, "rate limit exceeded", "RATE_LIMITED", nil)
	err.fields["client_ip"] = clientIP
	return err
}
