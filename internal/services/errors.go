// internal/services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/idlabstudio/idlab-backend/internal/store"
)

type ErrorCode string

const (
	CodeInvalidArgument    ErrorCode = "invalid-argument"
	CodeUnauthenticated    ErrorCode = "unauthenticated"
	CodeUnauthorized       ErrorCode = "unauthorized"
	CodeNotFound           ErrorCode = "not-found"
	CodeFailedPrecondition ErrorCode = "failed-precondition"
	CodeExpired            ErrorCode = "expired"
	CodeAlreadyProcessed   ErrorCode = "already-processed"
	CodeInternal           ErrorCode = "internal"
)

// Error is returned by the workflow services. Callers branch on Code; Message
// is safe to show to an authenticated administrator.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

var (
	ErrInvalidArgument    = &Error{Code: CodeInvalidArgument}
	ErrUnauthenticated    = &Error{Code: CodeUnauthenticated}
	ErrUnauthorized       = &Error{Code: CodeUnauthorized}
	ErrNotFound           = &Error{Code: CodeNotFound}
	ErrFailedPrecondition = &Error{Code: CodeFailedPrecondition}
	ErrExpired            = &Error{Code: CodeExpired}
	ErrAlreadyProcessed   = &Error{Code: CodeAlreadyProcessed}
	ErrInternal           = &Error{Code: CodeInternal}
)

func newError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func internalError(message string, err error) *Error {
	return wrapError(CodeInternal, message, err)
}

// CodeOf extracts the code of err, defaulting to internal.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the public message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

// storeError maps a failed read of a single record.
func storeError(entity string, err error) error {
	if store.IsNotFound(err) {
		return wrapError(CodeNotFound, entity+" not found", err)
	}
	return internalError("failed to load "+entity, err)
}

// validationError wraps a validator failure so that handlers can still
// extract the per-field details with errors.As.
func validationError(err error) error {
	return wrapError(CodeInvalidArgument, "validation failed", err)
}
