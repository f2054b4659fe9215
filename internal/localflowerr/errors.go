// Package localflowerr defines the typed error kinds the transport layer
// maps to stable HTTP status codes and error_code strings.
package localflowerr

import "fmt"

// Kind classifies an Error for transport-layer status mapping.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindInvalidInput Kind = "INVALID_REQUEST"
	KindValidation   Kind = "VALIDATION_ERROR"
	KindUpstream     Kind = "LLM_FAILED"
	KindInternal     Kind = "INTERNAL_ERROR"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
)

// Error is a typed, user-facing error carrying its stable error_code and the
// Kind the transport layer uses to pick an HTTP status.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the stable machine-readable error_code for this error.
func (e *Error) Code() string { return string(e.Kind) }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error     { return newf(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error     { return newf(KindConflict, format, args...) }
func InvalidInput(format string, args ...any) *Error { return newf(KindInvalidInput, format, args...) }
func Validation(format string, args ...any) *Error   { return newf(KindValidation, format, args...) }
func Upstream(format string, args ...any) *Error     { return newf(KindUpstream, format, args...) }
func Internal(format string, args ...any) *Error     { return newf(KindInternal, format, args...) }

// Wrap annotates err with a Kind, preserving it for errors.Is/As.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e, true
	}
	return nil, false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// StatusCode maps a Kind to its HTTP status per the fixed error_code table.
func (k Kind) StatusCode() int {
	switch k {
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindInvalidInput:
		return 400
	case KindValidation:
		return 422
	case KindUnauthorized:
		return 401
	case KindForbidden:
		return 403
	case KindUpstream:
		return 502
	default:
		return 500
	}
}
