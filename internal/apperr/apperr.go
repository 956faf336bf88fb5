// Package apperr defines the error taxonomy shared by both services.
// Callers branch on Kind, never on error message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound marks a referenced entity as absent, locally or remotely.
	KindNotFound
	// KindValidation marks malformed input: bad windows, non-positive
	// amounts, missing required fields.
	KindValidation
	// KindConflict marks overlapping bookings and duplicate active payments.
	KindConflict
	// KindStateTransition marks an illegal status change.
	KindStateTransition
	// KindRemoteUnavailable marks a failed or timed-out downstream call.
	KindRemoteUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindStateTransition:
		return "state_transition"
	case KindRemoteUnavailable:
		return "remote_unavailable"
	default:
		return "unknown"
	}
}

// Error is a typed error carrying a taxonomy Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(format string, args ...any) *Error {
	return Newf(KindNotFound, format, args...)
}

func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return Newf(KindConflict, format, args...)
}

func StateTransition(format string, args ...any) *Error {
	return Newf(KindStateTransition, format, args...)
}

func RemoteUnavailable(message string, err error) *Error {
	return Wrap(KindRemoteUnavailable, message, err)
}

// KindOf extracts the taxonomy kind from anywhere in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// HTTPStatus maps a kind to the wire status used by both services.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindStateTransition:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindRemoteUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
