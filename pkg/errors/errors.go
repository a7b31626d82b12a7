package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the error shape every API response carries. Code is stable and
// machine readable; Status is the HTTP status it maps to.
type Error struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Details []string `json:"details,omitempty"`
	Err     error    `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports a match on Code, so a clone or wrap of ErrNotFound is still
// errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New declares an error kind.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Clone derives an error of the same kind with a different message. An empty
// message keeps the original one.
func Clone(kind *Error, message string) *Error {
	if kind == nil {
		return nil
	}
	clone := *kind
	if message != "" {
		clone.Message = message
	}
	clone.Details = append([]string(nil), kind.Details...)
	return &clone
}

// Wrap derives an error of the given kind that keeps err as its cause.
func Wrap(err error, kind *Error, message string) *Error {
	clone := Clone(kind, message)
	clone.Err = err
	return clone
}

// Internal wraps an unexpected failure. The cause is logged, never rendered.
func Internal(err error, message string) *Error {
	return Wrap(err, ErrInternal, message)
}

// Validation builds a VALIDATION_ERROR listing every violation found.
func Validation(message string, details ...string) *Error {
	return Clone(ErrValidation, message).WithDetails(details...)
}

// WithDetails appends details to e and returns it.
func (e *Error) WithDetails(details ...string) *Error {
	if len(details) > 0 {
		e.Details = append(e.Details, details...)
	}
	return e
}

// Kinds shared across the API.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInvalidState       = New("INVALID_STATE", http.StatusConflict, "operation not allowed in current state")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError returns err as an *Error, treating anything untyped as internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err, ErrInternal.Message)
}
