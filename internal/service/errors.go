package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/karingamassive/membership-service/internal/ratelimit"
	"github.com/karingamassive/membership-service/internal/sidestore"
)

type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindAuthFailure       Kind = "AUTH_FAILURE"
	KindRateLimited       Kind = "RATE_LIMITED"
	KindNotFound          Kind = "NOT_FOUND"
	KindDependencyFailure Kind = "DEPENDENCY_FAILURE"
	KindConflict          Kind = "CONFLICT"
	KindForbidden         Kind = "FORBIDDEN"
)

// FieldErrors maps a request field to the reason it was rejected.
type FieldErrors map[string]string

func (f FieldErrors) add(field, reason string) {
	if _, exists := f[field]; !exists {
		f[field] = reason
	}
}

// Error is the typed failure returned by every service operation.
// Code is a stable machine-readable identifier; Message is safe to show.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Fields     FieldErrors
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func validationError(fields FieldErrors) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: "invalid request", Fields: fields}
}

func authFailure(code, message string, err error) *Error {
	return &Error{Kind: KindAuthFailure, Code: code, Message: message, Err: err}
}

func rateLimited(d ratelimit.Decision) *Error {
	retry := d.RetryAfter
	if retry < time.Second {
		retry = time.Second
	}
	return &Error{Kind: KindRateLimited, Code: "RATE_LIMITED", Message: "too many requests", RetryAfter: retry}
}

func notFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

func dependencyFailure(op string, err error) *Error {
	return &Error{Kind: KindDependencyFailure, Code: "DEPENDENCY_FAILURE", Message: "service temporarily unavailable", Err: fmt.Errorf("%s: %w", op, err)}
}

// IsDependencyError reports whether err came from an unreachable or slow
// dependency rather than from a business rule.
func IsDependencyError(err error) bool {
	return errors.Is(err, sidestore.ErrUnavailable) ||
		errors.Is(err, ratelimit.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
