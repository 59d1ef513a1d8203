// Package apperr defines the error taxonomy shared by the verifier, the
// provider flow and the HTTP handlers. Handlers translate a Kind into a
// status code; details stay in the logs.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindMalformedRequest     Kind = "malformed_request"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindProviderProtocol     Kind = "provider_protocol"
	KindDecryption           Kind = "decryption"
	KindValidation           Kind = "validation"
	KindForbidden            Kind = "forbidden"
	KindAmbiguous            Kind = "ambiguous_identity"
	KindInternal             Kind = "internal"
)

// Error is the application error carried up to the HTTP boundary.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind, so callers can compare against
// the sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// HTTPStatus maps the kind to the status returned by the public endpoints.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindMalformedRequest, KindProviderProtocol, KindDecryption, KindValidation, KindAmbiguous:
		return http.StatusBadRequest
	case KindAuthenticationFailed, KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

var (
	ErrMalformedRequest     = New(KindMalformedRequest, "missing required parameter")
	ErrAuthenticationFailed = New(KindAuthenticationFailed, "authentication failed")
	ErrForbidden            = New(KindForbidden, "identity is deactivated")
)

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
