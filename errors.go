package registry

import (
	"errors"
	"net/http"
	"strings"
)

// Error is the registry error domain type.
//
// Every fallible operation in this module should produce (or wrap, via
// [errors.As]) an *Error at some point in its chain. Components should
// create an Error at the system boundary — a database call, a blob store
// round trip, a subprocess invocation — and intermediate layers should
// prefer fmt.Errorf("%w", ...) over constructing another Error, adding a
// Kind only when the call site has a more specific classification than its
// callee did.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string
}

var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	switch e.Kind {
	case ErrUnauthorized, ErrInvalid, ErrForbidden, ErrNotFound, ErrConflict, ErrBackend:
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("???")
	}
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Op == "" && e.Message == "" {
		b.Reset()
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is] comparisons against an [ErrorKind].
func (e *Error) Is(kind error) bool {
	return errors.Is(e.Kind, kind)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind classifies an Error for HTTP-layer mapping. See spec §7.
type ErrorKind string

// Defined error kinds, mirroring the HTTP status taxonomy.
var (
	ErrUnauthorized = ErrorKind("unauthorized") // missing or invalid credential
	ErrInvalid      = ErrorKind("invalid")      // malformed request, re-publish, last-owner removal
	ErrForbidden    = ErrorKind("forbidden")    // capability bit missing, self-admin-demotion
	ErrNotFound     = ErrorKind("not-found")    // missing crate/version/resource
	ErrConflict     = ErrorKind("conflict")     // e.g. login already taken
	ErrBackend      = ErrorKind("backend")      // storage timeout, subprocess error, unexpected I/O
)

// Error implements error.
func (k ErrorKind) Error() string { return string(k) }

// HTTPStatus returns the status code spec.md §7 assigns to each ErrorKind.
// The download endpoint remaps 401 to 403 itself, per spec.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrInvalid:
		return http.StatusBadRequest
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusRequestTimeout // 408, per spec.md §7
	case ErrBackend:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New constructs an *Error with the given kind, operation name, and message,
// wrapping inner if non-nil.
func New(kind ErrorKind, op, message string, inner error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Inner: inner}
}

// KindOf returns the ErrorKind carried by err, or ErrBackend if err does not
// wrap an *Error. Used by the HTTP layer, which must always produce a status
// code even for an error that escaped a component boundary unclassified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrBackend
}
