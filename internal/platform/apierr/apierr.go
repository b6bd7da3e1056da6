// Package apierr is the engine's error taxonomy. Every failure that crosses a
// component boundary is an *Error carrying a machine-readable Kind and Code;
// callers branch on Kind, humans read the wrapped cause.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	// KindNotFound: a referenced dataset or correlation does not exist.
	KindNotFound Kind = "not_found"
	// KindInvalidInput: malformed parameters, out-of-range scores, or a
	// same-dataset correlation. Never retried.
	KindInvalidInput Kind = "invalid_input"
	// KindConflict: a concurrent mutation collided with this one.
	KindConflict Kind = "conflict"
	// KindTimeout: the caller's deadline expired mid-operation.
	KindTimeout Kind = "timeout"
	// KindDependency: the registry, persistence layer, or event bus is
	// unavailable or throttling. Retryable at the caller's discretion.
	KindDependency Kind = "dependency"
)

type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Code != "" {
		return e.Code
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on Kind: errors.Is(err, &Error{Kind: KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return true
}

func New(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

func NotFound(code string, err error) *Error     { return New(KindNotFound, code, err) }
func InvalidInput(code string, err error) *Error { return New(KindInvalidInput, code, err) }
func Conflict(code string, err error) *Error     { return New(KindConflict, code, err) }
func Timeout(code string, err error) *Error      { return New(KindTimeout, code, err) }
func Dependency(code string, err error) *Error   { return New(KindDependency, code, err) }

// KindOf extracts the Kind from any error chain, or "" when untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf extracts the stable code from any error chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps an error chain to the status the HTTP surface should emit.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
