// Package apperror defines the error taxonomy shared by services and handlers.
// Inner layers return these; only the HTTP layer turns them into responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

type Error struct {
	Status  int
	Message string
	// Errors maps a dotted field path to its validation messages.
	Errors map[string][]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same status, so callers can write
// errors.Is(err, apperror.ErrNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Status == e.Status
	}
	return false
}

var (
	ErrNotFound     = &Error{Status: http.StatusNotFound, Message: "not found"}
	ErrBadRequest   = &Error{Status: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized = &Error{Status: http.StatusUnauthorized, Message: "unauthorized"}
	ErrForbidden    = &Error{Status: http.StatusForbidden, Message: "forbidden"}
	ErrConflict     = &Error{Status: http.StatusConflict, Message: "conflict"}
	ErrValidation   = &Error{Status: http.StatusUnprocessableEntity, Message: "validation failed"}
)

func NotFound(entity string) *Error {
	return &Error{Status: http.StatusNotFound, Message: entity + " not found"}
}

func BadRequest(format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Status: http.StatusForbidden, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Status: http.StatusConflict, Message: msg}
}

func TooManyRequests(msg string) *Error {
	return &Error{Status: http.StatusTooManyRequests, Message: msg}
}

func Validation(fields map[string][]string) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Message: "validation failed", Errors: fields}
}

func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
}

// FromDB classifies gorm errors. Errors it does not recognise are returned as-is.
func FromDB(err error, entity string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Status: http.StatusNotFound, Message: entity + " not found", Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Status: http.StatusConflict, Message: entity + " already exists", Err: err}
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return &Error{Status: http.StatusBadRequest, Message: entity + " references a missing record", Err: err}
	}
	return err
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
