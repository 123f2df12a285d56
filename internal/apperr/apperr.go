// Package apperr defines the closed error taxonomy shared by the REST API
// and the signaling endpoint. Every error that crosses a process boundary
// carries one of these kinds; clients match on the stable code strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into the closed taxonomy.
type Kind int

const (
	KindValidation Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRoomFull
	KindNotInRoom
	KindRateLimited
	KindInternal
)

// Stable wire codes. Signaling error frames and REST envelopes use these
// verbatim; renaming one is a breaking protocol change.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeInvalidToken   = "INVALID_TOKEN"
	CodeTokenExpired   = "TOKEN_EXPIRED"
	CodeTenantMismatch = "TENANT_MISMATCH"
	CodeNotFound       = "NOT_FOUND"
	CodeAlreadyInRoom  = "ALREADY_IN_ROOM"
	CodeRoomFull       = "ROOM_FULL"
	CodeNotInRoom      = "NOT_IN_ROOM"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternal       = "INTERNAL_ERROR"
)

// Error is the canonical application error. Code is the stable wire string,
// Message is safe to show to a client, and Err (optional) holds the
// underlying cause for logs only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the default code for the kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: defaultCode(kind), Message: message}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// Internal wraps an unexpected fault. The client-visible message is generic;
// the cause stays attached for logging.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}

func defaultCode(kind Kind) string {
	switch kind {
	case KindValidation:
		return CodeInvalidMessage
	case KindUnauthorized:
		return CodeInvalidToken
	case KindForbidden:
		return CodeTenantMismatch
	case KindNotFound:
		return CodeNotFound
	case KindConflict:
		return CodeAlreadyInRoom
	case KindRoomFull:
		return CodeRoomFull
	case KindNotInRoom:
		return CodeNotInRoom
	case KindRateLimited:
		return CodeRateLimited
	default:
		return CodeInternal
	}
}

// HTTPStatus maps a kind to its REST status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindRoomFull:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// From converts any error into an *Error, wrapping unknown errors as
// internal so nothing leaks past a boundary unclassified.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}
