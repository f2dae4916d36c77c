package apiclient

import (
	"errors"
	"fmt"
)

// Kind classifies a failed call. Callers branch on Kind, never on status codes.
type Kind int

const (
	// KindUnauthorized means the credential is missing or could not be refreshed.
	// Callers should send the user through re-authentication.
	KindUnauthorized Kind = iota + 1
	// KindForbidden means the credential is valid but lacks privileges.
	KindForbidden
	// KindTransportFailure means no response was received.
	KindTransportFailure
	// KindServerRejected covers every other unsuccessful outcome.
	KindServerRejected
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindTransportFailure:
		return "transport_failure"
	case KindServerRejected:
		return "server_rejected"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinel errors matched by errors.Is against any *Error of the same Kind.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrTransportFailure = errors.New("transport failure")
	ErrServerRejected   = errors.New("server rejected request")
)

// DefaultMessage is used when the server supplies no usable message.
const DefaultMessage = "Request failed"

// Error is the only error type returned by the request verbs.
type Error struct {
	Kind    Kind
	Message string
	// StatusCode is zero for transport failures. Informational only.
	StatusCode int
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's Kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindForbidden:
		return ErrForbidden
	case KindTransportFailure:
		return ErrTransportFailure
	case KindServerRejected:
		return ErrServerRejected
	default:
		return nil
	}
}

// KindOf returns the Kind of err, or zero if err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

func unauthorized(message string, status int, cause error) *Error {
	return &Error{Kind: KindUnauthorized, Message: message, StatusCode: status, Err: cause}
}

func transportFailure(cause error) *Error {
	return &Error{Kind: KindTransportFailure, Message: "request did not complete", Err: cause}
}
