// Package apperr defines the closed error taxonomy shared by the auth core.
// Errors carry a Kind instead of forming a type hierarchy; callers dispatch
// with KindOf or errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport-level mapping.
type Kind int

const (
	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = iota
	// KindConfiguration marks a missing or invalid required setting.
	// Startup-class fault, never user-facing.
	KindConfiguration
	// KindInvalidToken marks a malformed, forged, or otherwise
	// unverifiable credential.
	KindInvalidToken
	// KindTokenExpired marks a well-signed credential whose expiry passed.
	KindTokenExpired
	// KindAudienceMismatch marks an identity token issued for another client.
	KindAudienceMismatch
	// KindIssuerMismatch marks an identity token from an unexpected issuer.
	KindIssuerMismatch
	// KindNotFound marks a missing subject.
	KindNotFound
	// KindBadRequest marks a valid subject in the wrong state for the
	// requested operation.
	KindBadRequest
	// KindTooManyRequests marks a rate-limited operation. RetryAfter
	// carries the wait in whole seconds.
	KindTooManyRequests
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindInvalidToken:
		return "invalid_token"
	case KindTokenExpired:
		return "token_expired"
	case KindAudienceMismatch:
		return "audience_mismatch"
	case KindIssuerMismatch:
		return "issuer_mismatch"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindTooManyRequests:
		return "too_many_requests"
	default:
		return "internal"
	}
}

// Error is the single error payload used across services.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is set only for KindTooManyRequests, in whole seconds.
	RetryAfter int
	// Err holds the underlying cause, preserved for diagnostics.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// TooManyRequests builds a rate-limit error carrying retry-after seconds.
func TooManyRequests(message string, retryAfter int) *Error {
	return &Error{Kind: KindTooManyRequests, Message: message, RetryAfter: retryAfter}
}

// KindOf extracts the Kind from err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RetryAfterSeconds extracts the retry-after hint from a rate-limit error,
// or 0 if err carries none.
func RetryAfterSeconds(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
