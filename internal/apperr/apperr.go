package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error for HTTP mapping.
type Kind int

const (
	KindValidation   Kind = iota // missing/malformed required fields -> 400
	KindNotFound                 // unknown user/chat/message -> 404
	KindUnauthorized             // missing/invalid credentials -> 401
	KindPermission               // caller lacks the required role -> 403
	KindStorage                  // underlying datastore failure -> 500
)

// Error carries a kind alongside the message so handlers can map status codes
// without string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Unauthorizedf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

func Permissionf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPermission, Msg: fmt.Sprintf(format, args...)}
}

// Storage wraps a datastore failure. The cause is preserved for logging but
// never serialized to clients.
func Storage(msg string, err error) *Error {
	return &Error{Kind: KindStorage, Msg: msg, Err: err}
}

// KindOf returns the kind of err, defaulting to KindStorage for errors that
// did not originate in this package.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStorage
}

func IsValidation(err error) bool   { return is(err, KindValidation) }
func IsNotFound(err error) bool     { return is(err, KindNotFound) }
func IsUnauthorized(err error) bool { return is(err, KindUnauthorized) }
func IsPermission(err error) bool   { return is(err, KindPermission) }

func is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// HTTPStatus maps an error to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
