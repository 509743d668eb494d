// Package apperr defines the machine-readable error taxonomy reported to clients.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code sent on the wire.
type Code string

const (
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeNotOnline          Code = "NOT_ONLINE"
	CodeAlreadyPending     Code = "ALREADY_PENDING"
	CodeNotFound           Code = "NOT_FOUND"
	CodeNotAuthorized      Code = "NOT_AUTHORIZED"
	CodeInvalidGuessLength Code = "INVALID_GUESS_LENGTH"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeBusy               Code = "BUSY"
	CodeInternal           Code = "INTERNAL"
)

// Error is a recoverable domain error carrying a Code.
type Error struct {
	Code    Code
	Message string
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf builds an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Is matches any *Error with the same code, so callers can compare against the
// sentinels below regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthenticated    = New(CodeUnauthenticated, "identity could not be verified")
	ErrNotOnline          = New(CodeNotOnline, "user is not online")
	ErrAlreadyPending     = New(CodeAlreadyPending, "an invite is already pending for this pair")
	ErrNotFound           = New(CodeNotFound, "not found")
	ErrNotAuthorized      = New(CodeNotAuthorized, "not a party to this resource")
	ErrInvalidGuessLength = New(CodeInvalidGuessLength, "guess length does not match keyword")
	ErrInvalidState       = New(CodeInvalidState, "action not allowed in current state")
	ErrInvalidRequest     = New(CodeInvalidRequest, "invalid request")
	ErrBusy               = New(CodeBusy, "too many pending events")
)

// CodeOf returns the Code carried by err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns a client-safe message for err. Foreign errors are not leaked.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
