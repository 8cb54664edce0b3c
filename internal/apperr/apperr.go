// Package apperr defines the error taxonomy shared across the deployment
// pipeline and the HTTP surface. Handlers map a Kind to a status code and
// a stable machine-readable code; everything else wraps and rethrows.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindBusinessRule
	KindDeployment
	KindCodeAnalysis
	KindFileOperation
)

// Error is the canonical application error. Code is a stable identifier
// safe to expose to clients; Err carries the underlying cause, if any.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error

	// Status overrides the kind's default HTTP mapping when nonzero.
	Status int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error kind to a response status.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindBusinessRule:
		return http.StatusConflict
	case KindDeployment, KindCodeAnalysis, KindFileOperation:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func BusinessRule(code, format string, args ...any) *Error {
	return &Error{Kind: KindBusinessRule, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Forbidden is a business-rule violation that maps to 403 instead of
// 409: ownership checks and private-function key checks.
func Forbidden(code, format string, args ...any) *Error {
	return &Error{Kind: KindBusinessRule, Code: code, Message: fmt.Sprintf(format, args...), Status: http.StatusForbidden}
}

func Deployment(code string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindDeployment, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func CodeAnalysis(code string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindCodeAnalysis, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func FileOperation(code string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindFileOperation, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// As extracts an *Error from any error chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	if ae, ok := As(err); ok {
		return ae.Kind == kind
	}
	return false
}
