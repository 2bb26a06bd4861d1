package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/keithlinneman/goals-api/internal/xerrors"
)

// Error is a classified request failure. It is created once, by whichever
// component failed, and consumed once by the Normalizer.
type Error struct {
	// Status is the HTTP status code sent to the client.
	Status int
	// Message is client-facing for operational errors.
	Message string
	// Code is a stable machine-readable identifier, e.g. "not_found".
	Code string
	// Operational is true for anticipated failures whose message is safe to expose.
	Operational bool
	// RetryAfter, when > 0, is sent as a Retry-After header in seconds.
	RetryAfter int

	cause error
	pcs   []uintptr
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s (%d): %v", e.Message, e.Status, e.cause)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

func (e *Error) Unwrap() error { return e.cause }

// StackPCs exposes where the error was created, or the stack of its cause.
func (e *Error) StackPCs() []uintptr {
	if len(e.pcs) > 0 {
		return e.pcs
	}
	type hasStack interface{ StackPCs() []uintptr }
	var hs hasStack
	if e.cause != nil && errors.As(e.cause, &hs) {
		return hs.StackPCs()
	}
	return nil
}

// StatusWord is the "status" field of the response body: "fail" for
// operational client errors, "error" for everything else.
func (e *Error) StatusWord() string {
	if e.Operational && e.Status >= 400 && e.Status < 500 {
		return "fail"
	}
	return "error"
}

// New returns an operational error with the given status and client-facing message.
func New(status int, msg string) *Error {
	return &Error{
		Status:      status,
		Message:     msg,
		Code:        codeFor(status),
		Operational: true,
		pcs:         xerrors.Callers(1),
	}
}

// Newf is New with a formatted message.
func Newf(status int, format string, args ...any) *Error {
	return New(status, fmt.Sprintf(format, args...))
}

// Wrap returns an operational error that keeps err as its cause for logs.
// The client only ever sees msg.
func Wrap(err error, status int, msg string) *Error {
	return &Error{
		Status:      status,
		Message:     msg,
		Code:        codeFor(status),
		Operational: true,
		cause:       xerrors.EnsureTrace(err),
	}
}

// Unexpected marks err as a programming or unanticipated failure.
func Unexpected(err error) *Error {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	return &Error{
		Status:  http.StatusInternalServerError,
		Message: err.Error(),
		Code:    codeFor(http.StatusInternalServerError),
		cause:   xerrors.EnsureTrace(err),
	}
}

func NotFound(url string) *Error {
	return Newf(http.StatusNotFound, "Can't find %s on this server!", url)
}

func BadRequest(msg string) *Error {
	return New(http.StatusBadRequest, msg)
}

func PayloadTooLarge(limit int64) *Error {
	return Newf(http.StatusRequestEntityTooLarge, "request entity too large (limit %d bytes)", limit)
}

// TooManyRequests is the rate limiter's denial. Limits and remaining budget
// are never included in the message.
func TooManyRequests(retryAfter int) *Error {
	e := New(http.StatusTooManyRequests, "Too many requests, please try again later.")
	e.RetryAfter = retryAfter
	return e
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusNotImplemented:
		return "not_implemented"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if status >= 500 {
		return "internal_error"
	}
	return "request_failed"
}
