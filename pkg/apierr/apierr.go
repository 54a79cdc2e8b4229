package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not_found")
	ErrValidation   = errors.New("validation_failed")
	ErrServer       = errors.New("server_error")
	ErrNetwork      = errors.New("network_error")
)

// Error is a classified API failure.
type Error struct {
	Kind    error  // one of the package sentinels
	Status  int    // HTTP status, 0 for transport failures
	Message string // server-provided, user-facing message
	Err     error  // underlying cause, if any
}

// New builds an Error of the given kind.
func New(kind error, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

// Wrap builds an Error that keeps cause in its chain.
func Wrap(kind error, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// FromStatus classifies an unsuccessful HTTP status.
func FromStatus(status int, message string) *Error {
	var kind error
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = ErrUnauthorized
	case status == http.StatusNotFound, status == http.StatusGone:
		kind = ErrNotFound
	case status == http.StatusBadRequest, status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		kind = ErrValidation
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		kind = ErrNetwork
	default:
		kind = ErrServer
	}
	return New(kind, status, message)
}

// FromTransport classifies a failure that happened before any response arrived.
// Timeouts and cancellations are network failures.
func FromTransport(err error) *Error {
	msg := "network request failed"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return Wrap(ErrNetwork, err, msg)
}

// Message returns the user-facing message carried by err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// IsTransient reports whether err is a retryable server or network failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrServer) || errors.Is(err, ErrNetwork)
}
