package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how it is surfaced to the acting user.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindInvalidState Kind = "INVALID_STATE"
	KindExternalIO   Kind = "EXTERNAL_IO"
	KindExpired      Kind = "EXPIRED"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrExternalIO   = &Error{Kind: KindExternalIO}
	ErrExpired      = &Error{Kind: KindExpired}
)

const genericFailure = "Something went wrong while processing that. Please try again in a moment."

// Error is a classified failure carrying a short user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func InvalidState(msg string) error {
	return &Error{Kind: KindInvalidState, Message: msg}
}

func Expired(msg string) error {
	return &Error{Kind: KindExpired, Message: msg}
}

// ExternalIO wraps a failed record-store or platform call.
func ExternalIO(op string, err error) error {
	return &Error{Kind: KindExternalIO, Message: op, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are treated as ExternalIO.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindExternalIO
}

// UserMessage returns the text shown to the acting user for err.
func UserMessage(err error) string {
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind == KindExternalIO || fe.Message == "" {
		return genericFailure
	}
	return fe.Message
}
