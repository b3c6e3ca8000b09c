// Package apperr defines the error taxonomy shared across the service.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for handlers and command telemetry.
type Kind string

const (
	// KindNotFound marks unknown chats, partitions or messages.
	KindNotFound Kind = "not_found"
	// KindValidation marks bad input: wrong vector dimension, malformed pagination, bad date range.
	KindValidation Kind = "validation"
	// KindProvider marks embedding provider failures, including token limit violations.
	KindProvider Kind = "provider"
	// KindPersistence marks storage read/write failures.
	KindPersistence Kind = "persistence"
	// KindConcurrency marks rejected starts while another command is running.
	KindConcurrency Kind = "concurrency"
	// KindSource marks upstream chat-source failures.
	KindSource Kind = "source"
)

// Error carries a kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
// Returns nil when err is nil.
func Wrap(kind Kind, msg string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// NotFound reports whether err is a not-found error.
func NotFound(err error) bool { return Is(err, KindNotFound) }

// Validation reports whether err is a validation error.
func Validation(err error) bool { return Is(err, KindValidation) }

// Concurrency reports whether err is a concurrency error.
func Concurrency(err error) bool { return Is(err, KindConcurrency) }

// Is reports whether err (or anything it wraps) carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or an empty Kind for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Detail is the structured form recorded into a command's terminal state
// and returned to API clients.
type Detail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// DetailOf builds a Detail from any error. Untyped errors are reported
// under a generic "error" kind with the raw message.
func DetailOf(err error) Detail {
	if err == nil {
		return Detail{}
	}
	var e *Error
	if errors.As(err, &e) {
		d := Detail{Kind: string(e.Kind), Message: e.Msg}
		if e.Err != nil {
			d.Cause = e.Err.Error()
		}
		return d
	}
	return Detail{Kind: "error", Message: err.Error()}
}
