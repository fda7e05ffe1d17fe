package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Status  int // upstream HTTP status, when the error came from a transport
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Status:  appErr.Status,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Status:  appErr.Status,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the code of the outermost AppError in the chain, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && GetCode(err) == code
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"

	CodeAuthMissing      = "AUTH_MISSING"
	CodeTransport        = "TRANSPORT_ERROR"
	CodeSchemaViolation  = "SCHEMA_VIOLATION"
	CodeNoCodeBlock      = "NO_CODE_BLOCK_FOUND"
	CodeSandboxExecution = "SANDBOX_EXECUTION_ERROR"
	CodeTestInFlight     = "TEST_IN_FLIGHT"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s service error", service),
		Cause:   cause,
	}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// AuthMissing is terminal: nothing else works without a credential.
func AuthMissing(message string) *AppError {
	return New(CodeAuthMissing, message)
}

// Transport reports a failed or non-2xx model stream. status is 0 when no
// response was received.
func Transport(status int, reason string, cause error) *AppError {
	msg := "model stream failed"
	if status != 0 {
		msg = fmt.Sprintf("model stream failed (status %d)", status)
	}
	if reason != "" {
		msg += ": " + reason
	}
	return &AppError{
		Code:    CodeTransport,
		Message: msg,
		Status:  status,
		Cause:   cause,
	}
}

func SchemaViolation(message string) *AppError {
	return New(CodeSchemaViolation, message)
}

func NoCodeBlockFound() *AppError {
	return New(CodeNoCodeBlock, "no ```python code block found in the analysis")
}

func SandboxExecution(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeSandboxExecution,
		Message: message,
		Cause:   cause,
	}
}

func TestInFlight(index int) *AppError {
	return New(CodeTestInFlight, fmt.Sprintf("hypothesis %d is already being tested", index))
}
