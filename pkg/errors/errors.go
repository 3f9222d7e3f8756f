// Package errors defines the storefront's application error type and the
// sentinels it maps onto HTTP statuses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrGone           = errors.New("gone")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrLoginRequired  = errors.New("login required")
	ErrIncomplete     = errors.New("incomplete selection")
	ErrUpstream       = errors.New("upstream error")
)

// AppError is an error with a machine code, a message safe to show the
// shopper, and the HTTP status it maps to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func newError(status int, code string, sentinel error, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: sentinel}
}

func NotFound(resource, id string) *AppError {
	return newError(http.StatusNotFound, "NOT_FOUND", ErrNotFound,
		fmt.Sprintf("%s with id %s not found", resource, id))
}

func InvalidInput(message string) *AppError {
	return newError(http.StatusBadRequest, "INVALID_INPUT", ErrInvalidInput, message)
}

func Unauthorized(message string) *AppError {
	return newError(http.StatusUnauthorized, "UNAUTHORIZED", ErrUnauthorized, message)
}

// LoginRequired tells the client to send the shopper through sign-in. It is
// a redirect signal rather than a failure.
func LoginRequired(message string) *AppError {
	return newError(http.StatusUnauthorized, "LOGIN_REQUIRED", ErrLoginRequired, message)
}

func Forbidden(message string) *AppError {
	return newError(http.StatusForbidden, "FORBIDDEN", ErrForbidden, message)
}

func Conflict(message string) *AppError {
	return newError(http.StatusConflict, "CONFLICT", ErrConflict, message)
}

func Gone(message string) *AppError {
	return newError(http.StatusGone, "GONE", ErrGone, message)
}

// IncompleteSelection reports a hamper whose fragrance slots are not all
// filled.
func IncompleteSelection(message string) *AppError {
	return newError(http.StatusUnprocessableEntity, "INCOMPLETE_SELECTION", ErrIncomplete, message)
}

func ServiceUnavailable(message string) *AppError {
	return newError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", ErrServiceUnavail, message)
}

// Upstream carries a status and message returned by the storefront API
// unchanged so it can be shown as-is. An empty code becomes UPSTREAM_ERROR.
func Upstream(status int, code, message string) *AppError {
	if code == "" {
		code = "UPSTREAM_ERROR"
	}
	return newError(status, code, ErrUpstream, message)
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return newError(http.StatusInternalServerError, "INTERNAL_ERROR", err, "an internal error occurred")
}

func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// sentinelStatus lists the status of each sentinel, checked in order.
var sentinelStatus = []struct {
	err    error
	status int
}{
	{ErrNotFound, http.StatusNotFound},
	{ErrConflict, http.StatusConflict},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrLoginRequired, http.StatusUnauthorized},
	{ErrForbidden, http.StatusForbidden},
	{ErrGone, http.StatusGone},
	{ErrIncomplete, http.StatusUnprocessableEntity},
	{ErrServiceUnavail, http.StatusServiceUnavailable},
	{ErrUpstream, http.StatusBadGateway},
}

// HTTPStatus returns the status for err: the AppError's own status, else
// that of the first matching sentinel, else 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// MessageOf returns the shopper-facing message of err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
