// Package gatewayerr defines the gateway's error taxonomy and maps each
// kind to an HTTP status and an Anthropic-compatible error envelope type.
package gatewayerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the seven error categories the gateway surfaces.
type Kind int

const (
	InvalidRequest Kind = iota
	AuthenticationError
	NotFound
	RateLimit
	UpstreamError
	ServiceUnavailable
	InternalError
)

// envelopeType is the Anthropic-compatible `error.type` string for each Kind.
func (k Kind) envelopeType() string {
	switch k {
	case InvalidRequest:
		return "invalid_request_error"
	case AuthenticationError:
		return "authentication_error"
	case NotFound:
		return "not_found_error"
	case RateLimit:
		return "rate_limit_error"
	case UpstreamError:
		return "upstream_error"
	case ServiceUnavailable:
		return "service_unavailable_error"
	default:
		return "api_error"
	}
}

// Status returns the HTTP status code for the Kind.
func (k Kind) Status() int {
	switch k {
	case InvalidRequest:
		return 400
	case AuthenticationError:
		return 401
	case NotFound:
		return 404
	case RateLimit:
		return 429
	case UpstreamError:
		return 502
	case ServiceUnavailable:
		return 503
	default:
		return 500
	}
}

// Error is the gateway's typed error, carrying a Kind, a human message, and
// an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// EnvelopeType exposes the Anthropic-compatible error.type string.
func (e *Error) EnvelopeType() string { return e.Kind.envelopeType() }

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapErr(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func NewInvalidRequest(format string, args ...any) *Error {
	return newErr(InvalidRequest, format, args...)
}

func NewAuthenticationError(format string, args ...any) *Error {
	return newErr(AuthenticationError, format, args...)
}

func NewNotFound(format string, args ...any) *Error {
	return newErr(NotFound, format, args...)
}

func NewRateLimit(format string, args ...any) *Error {
	return newErr(RateLimit, format, args...)
}

func NewUpstreamError(cause error, format string, args ...any) *Error {
	return wrapErr(UpstreamError, cause, format, args...)
}

func NewServiceUnavailable(format string, args ...any) *Error {
	return newErr(ServiceUnavailable, format, args...)
}

func NewInternalError(cause error, format string, args ...any) *Error {
	return wrapErr(InternalError, cause, format, args...)
}

// Is reports whether err (or something it wraps) is a *Error of kind k.
func Is(err error, k Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == k
	}
	return false
}

func IsInvalidRequest(err error) bool      { return Is(err, InvalidRequest) }
func IsAuthenticationError(err error) bool { return Is(err, AuthenticationError) }
func IsNotFound(err error) bool            { return Is(err, NotFound) }
func IsRateLimit(err error) bool           { return Is(err, RateLimit) }
func IsUpstreamError(err error) bool       { return Is(err, UpstreamError) }
func IsServiceUnavailable(err error) bool  { return Is(err, ServiceUnavailable) }
func IsInternalError(err error) bool       { return Is(err, InternalError) }

// As returns the *Error form of err if it is (or wraps) one, and ok=true.
func As(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
