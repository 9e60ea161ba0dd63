// Package apperr normalizes the five error classes spec.md §7 defines so
// every layer of the pipeline (catalog, auth, crud, triggers) can raise a
// plain Go error and have it surface to the client with the right status
// code, the way the teacher's types.CustomError does for the narrower
// version-conflict case.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries a statusCode the way spec.md §4.7 step 8 requires: string
// errors default to 500, everything raised through this package carries
// its own code.
type Error struct {
	StatusCode int
	Message    string
	Type       string
	Cause      error
}

func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(code int, typ, format string, args ...interface{}) *Error {
	return &Error{StatusCode: code, Type: typ, Message: fmt.Sprintf(format, args...)}
}

// Validation -> 400. Unknown property, bad operator, required field null,
// non-unique natural key.
func Validation(format string, args ...interface{}) *Error {
	return new_(http.StatusBadRequest, "validation", format, args...)
}

// Unauthorized -> 401. Not authorized for the requested action.
func Unauthorized(format string, args ...interface{}) *Error {
	return new_(http.StatusUnauthorized, "authorization", format, args...)
}

// NotFound -> 404. Feather unknown, object missing.
func NotFound(format string, args ...interface{}) *Error {
	return new_(http.StatusNotFound, "notFound", format, args...)
}

// Conflict -> 409. Stale etag, locked record, upsert collision.
func Conflict(format string, args ...interface{}) *Error {
	return new_(http.StatusConflict, "conflict", format, args...)
}

// Internal -> 500. Connection lost, query error, or any unclassified error.
func Internal(cause error) *Error {
	if cause == nil {
		return new_(http.StatusInternalServerError, "internal", "internal error")
	}
	return &Error{StatusCode: http.StatusInternalServerError, Type: "internal", Message: cause.Error(), Cause: cause}
}

// FromTrigger wraps a trigger failure, propagating its status code if it
// already carries one, defaulting to 500 otherwise (spec.md §7).
func FromTrigger(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return new_(http.StatusInternalServerError, "trigger", "%s", err.Error())
}

// StatusCode extracts a response status from any error, defaulting to 500
// for plain errors the way spec.md §4.7 step 8 specifies.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Wrap classifies a generic error as Internal unless it is already typed.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
