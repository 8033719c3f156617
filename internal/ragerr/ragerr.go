// Package ragerr defines the abstract error kinds from spec.md §7 as a
// tagged-variant type instead of the dynamically-typed exceptions the
// source system used, so the HTTP layer maps kinds to status codes
// without string-sniffing error messages.
package ragerr

import (
	"errors"
	"fmt"
)

// Kind is one of the abstract error categories from spec.md §7.
type Kind string

const (
	Auth               Kind = "auth"
	Validation         Kind = "validation"
	NotFound           Kind = "not_found"
	DependencyTransient Kind = "dependency_transient"
	DependencyFatal    Kind = "dependency_fatal"
	MalformedUpstream  Kind = "malformed_upstream"
	Internal           Kind = "internal"
)

// Error wraps a cause with a Kind so callers can branch on category
// without inspecting message text.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's category.
func (e *Error) Kind() Kind { return e.kind }

// New builds a *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap builds a *Error that wraps cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, defaulting to Internal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Internal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Transient reports whether err should be retried with backoff: either a
// DependencyTransient or a MalformedUpstream response, both of which
// spec.md §7 treats as retryable with a bounded attempt budget.
func Transient(err error) bool {
	k := KindOf(err)
	return k == DependencyTransient || k == MalformedUpstream
}
