package backend

import (
	"errors"
	"fmt"

	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
)

// ErrorKind classifies every non-success answer from the marketplace backend.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindAuth             ErrorKind = "auth"
	KindAmountMismatch   ErrorKind = "amount_mismatch"
	KindAlreadyConfirmed ErrorKind = "already_confirmed"
	KindIntentNotFound   ErrorKind = "intent_not_found"
	KindServer           ErrorKind = "server"
	KindNetwork          ErrorKind = "network"
)

// Error is the classified failure half of a Result.
type Error struct {
	Kind   ErrorKind
	Status int
	Code   string
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("backend %s", e.Kind)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// KindOf returns the backend classification of err, or "" when err did not come from the backend.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) && be != nil {
		return be.Kind
	}
	return ""
}

// Result is either Ok(data) or Err(kind, detail); responses are decoded into it exactly once.
type Result[T any] struct {
	value   T
	failure *Error
}

// Ok wraps a decoded success payload.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Fail wraps a classified failure.
func Fail[T any](failure *Error) Result[T] {
	if failure == nil {
		failure = &Error{Kind: KindServer, Detail: "unclassified failure"}
	}
	return Result[T]{failure: failure}
}

// IsOk reports whether the call succeeded.
func (r Result[T]) IsOk() bool {
	return r.failure == nil
}

// Value is the success payload; zero when the call failed.
func (r Result[T]) Value() T {
	return r.value
}

// Failure is the classified error; nil on success.
func (r Result[T]) Failure() *Error {
	return r.failure
}

// Unpack converts the result into the usual (value, error) pair.
func (r Result[T]) Unpack() (T, error) {
	if r.failure != nil {
		return r.value, r.failure
	}
	return r.value, nil
}

// ToAPIError maps a backend failure onto the coded error surface of the HTTP API.
// Errors that did not come from the backend pass through unchanged.
func ToAPIError(err error) error {
	var be *Error
	if !errors.As(err, &be) || be == nil {
		return err
	}
	code := pkgerrors.CodeDependency
	switch be.Kind {
	case KindValidation:
		code = pkgerrors.CodeValidation
	case KindAuth:
		code = pkgerrors.CodeUnauthorized
	case KindAmountMismatch, KindAlreadyConfirmed:
		code = pkgerrors.CodeStateConflict
	case KindIntentNotFound:
		code = pkgerrors.CodeNotFound
	}
	msg := be.Detail
	if msg == "" {
		msg = "marketplace backend request failed"
	}
	return pkgerrors.Wrap(code, err, msg)
}
