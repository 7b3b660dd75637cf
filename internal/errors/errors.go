// Package errors provides the AppError type used across the service to
// carry an HTTP status and a stable error code alongside a message, and a
// Gin middleware that renders it. Grounded on handler/model.go's
// `c.Error(errors.NewBadRequestError(...))` usage pattern.
package errors

import (
	"fmt"
	"net/http"
)

// Kind names the error kinds the core recognises (spec.md §7). These are
// illustrative, not reserved — callers may attach any string.
type Kind string

const (
	KindBackendUnavailable   Kind = "BackendUnavailable"
	KindBackendTimeout       Kind = "BackendTimeout"
	KindBackendProtocolError Kind = "BackendProtocolError"
	KindToolError            Kind = "ToolError"
	KindIterationBudget      Kind = "IterationBudgetExceeded"
	KindClientGone           Kind = "ClientGone"
	KindPersistenceError     Kind = "PersistenceError"
	KindValidationError      Kind = "ValidationError"
	KindInternal             Kind = "InternalError"
)

// AppError is the error type returned by handlers and services alike.
type AppError struct {
	HTTPStatus int    `json:"-"`
	Code       Kind   `json:"code"`
	Message    string `json:"message"`
	cause      error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.cause }

// WithCause attaches an underlying error for logging without changing the
// message surfaced to the client.
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.cause = err
	return &cp
}

func newErr(status int, kind Kind, format string, args ...any) *AppError {
	return &AppError{HTTPStatus: status, Code: kind, Message: fmt.Sprintf(format, args...)}
}

// NewBadRequestError builds a 400 ValidationError.
func NewBadRequestError(format string, args ...any) *AppError {
	return newErr(http.StatusBadRequest, KindValidationError, format, args...)
}

// NewInternalServerError builds a 500 InternalError.
func NewInternalServerError(format string, args ...any) *AppError {
	return newErr(http.StatusInternalServerError, KindInternal, format, args...)
}

// NewNotFoundError builds a 404.
func NewNotFoundError(format string, args ...any) *AppError {
	return newErr(http.StatusNotFound, Kind("NotFound"), format, args...)
}

// NewBackendUnavailableError builds an error for a C1/C2 backend that could
// not be reached at all (spec.md §4.1/§4.2 failure taxonomy).
func NewBackendUnavailableError(backend string, err error) *AppError {
	return newErr(http.StatusBadGateway, KindBackendUnavailable, "backend %s unavailable", backend).WithCause(err)
}

// NewBackendTimeoutError builds an error for a C1/C2 backend call that timed out.
func NewBackendTimeoutError(backend string, err error) *AppError {
	return newErr(http.StatusGatewayTimeout, KindBackendTimeout, "backend %s timed out", backend).WithCause(err)
}

// NewBackendProtocolError builds an error for a C1/C2 backend that returned
// a response the adapter could not parse.
func NewBackendProtocolError(backend string, err error) *AppError {
	return newErr(http.StatusBadGateway, KindBackendProtocolError, "backend %s protocol error", backend).WithCause(err)
}

// NewPersistenceError builds an error for a message-store write failure
// mid-stream (spec.md §7 "PersistenceError").
func NewPersistenceError(err error) *AppError {
	return newErr(http.StatusInternalServerError, KindPersistenceError, "persistence failed").WithCause(err)
}

// As reports whether err is an *AppError, mirroring errors.As's style
// without forcing callers to import the standard errors package just for
// this one type switch.
func As(err error) (*AppError, bool) {
	ae, ok := err.(*AppError)
	return ae, ok
}
