package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Machine-readable codes carried by every Error.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeTokenExpired   = "TOKEN_EXPIRED"
	CodeTokenInvalid   = "INVALID_TOKEN"
	CodeAuthorization  = "AUTHORIZATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	CodeInternal       = "INTERNAL_SERVER_ERROR"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the application error taxonomy. Every value maps to exactly one
// HTTP status and code; Operational is false only for failures that indicate
// a bug or broken dependency rather than bad input.
type Error struct {
	Status      int
	Code        string
	Message     string
	Details     []FieldError
	Cause       error
	Operational bool
	// Stack is captured for non-operational errors and only ever sent to
	// clients outside production.
	Stack       string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCode returns a copy of e carrying a more specific code.
func (e *Error) WithCode(code string) *Error {
	cp := *e
	cp.Code = code
	return &cp
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

func newError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message, Operational: true}
}

// Validation builds a 400 error with optional field-level details.
func Validation(message string, details ...FieldError) *Error {
	e := newError(http.StatusBadRequest, CodeValidation, message)
	e.Details = details
	return e
}

// Authentication builds a 401 error.
func Authentication(message string) *Error {
	return newError(http.StatusUnauthorized, CodeAuthentication, message)
}

// Authorization builds a 403 error.
func Authorization(message string) *Error {
	return newError(http.StatusForbidden, CodeAuthorization, message)
}

// NotFound builds a 404 error.
func NotFound(message string) *Error {
	return newError(http.StatusNotFound, CodeNotFound, message)
}

// Conflict builds a 409 error.
func Conflict(message string) *Error {
	return newError(http.StatusConflict, CodeConflict, message)
}

// RateLimit builds a 429 error.
func RateLimit(message string) *Error {
	return newError(http.StatusTooManyRequests, CodeRateLimit, message)
}

// Internal builds a non-operational 500 error.
func Internal(message string, cause error) *Error {
	e := newError(http.StatusInternalServerError, CodeInternal, message)
	e.Cause = cause
	e.Operational = false
	e.Stack = string(debug.Stack())
	return e
}

// From normalises any error into the taxonomy. Unknown errors become
// Internal with a message that is safe to show in production.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("Internal server error", err)
}
