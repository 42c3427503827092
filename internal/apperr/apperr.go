// Package apperr defines the error kinds surfaced to API clients and their HTTP mapping.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the client.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuth
	KindNotAuthenticated
	KindInvalidToken
	KindUpstream
	KindNotFound
	KindTooLarge
)

const internalMessage = "internal server error"

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuth:
		return "auth"
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindInvalidToken:
		return "invalid_token"
	case KindUpstream:
		return "upstream"
	case KindNotFound:
		return "not_found"
	case KindTooLarge:
		return "too_large"
	default:
		return "internal"
	}
}

// Error is an error with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed input.
func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

// Conflict reports a uniqueness violation such as a duplicate email.
func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

// Auth reports rejected credentials.
func Auth(msg string) *Error { return &Error{Kind: KindAuth, Message: msg} }

// NotAuthenticated reports a missing or expired session.
func NotAuthenticated(msg string) *Error { return &Error{Kind: KindNotAuthenticated, Message: msg} }

// InvalidToken reports a reset token that is unknown, used or expired.
func InvalidToken(msg string) *Error { return &Error{Kind: KindInvalidToken, Message: msg} }

// NotFound reports a missing prerequisite.
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

// TooLarge reports an upload over the size limit.
func TooLarge(msg string) *Error { return &Error{Kind: KindTooLarge, Message: msg} }

// Upstream wraps a failure of an external dependency.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// KindOf returns the kind of err, KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusCode maps err onto an HTTP status.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindAuth, KindInvalidToken, KindNotFound:
		return http.StatusBadRequest
	case KindNotAuthenticated:
		return http.StatusUnauthorized
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show a client. Unclassified errors never leak details.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return internalMessage
}
