// Package carbideerr implements the cross-component error taxonomy from the
// design's error handling section: a closed set of Kind variants rather than
// free-form strings, so callers can switch on Kind() instead of matching
// error text.
package carbideerr

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind is the closed set of error classifications used across Carbide.
type Kind string

const (
	KindNotFound                Kind = "NotFound"
	KindAlreadyExists           Kind = "AlreadyExists"
	KindConcurrentModification  Kind = "ConcurrentModification"
	KindFailedPrecondition      Kind = "FailedPrecondition"
	KindInvalidArgument         Kind = "InvalidArgument"
	KindResourceExhausted       Kind = "ResourceExhausted"
	KindUnauthorized            Kind = "Unauthorized"
	KindAvoidLockout            Kind = "AvoidLockout"
	KindIntermittentUnauthorized Kind = "IntermittentUnauthorized"
	KindConnectionTimeout       Kind = "ConnectionTimeout"
	KindConnectionRefused       Kind = "ConnectionRefused"
	KindUnreachable             Kind = "Unreachable"
	KindRedfishError            Kind = "RedfishError"
	KindMissingCredentials      Kind = "MissingCredentials"
	KindDpfError                Kind = "DpfError"
	KindInternal                Kind = "Internal"
)

// Error is Carbide's base error type. Every taxonomy error wraps one of
// these so a single type switch recovers Kind, the subject, and the cause.
type Error struct {
	Kind      Kind
	Operation string
	Subject   string // e.g. "Machine:HOST-123", "10.0.0.10", entity id
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	subject := e.Subject
	if subject != "" {
		subject = " " + subject
	}
	if e.Err != nil {
		return fmt.Sprintf("%s%s: %s: %s: %v", e.Operation, subject, e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s%s: %s: %s", e.Operation, subject, e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the reconciler/exploration engine should treat
// this as transient (no state change, try again next iteration) rather than
// fatal.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindConcurrentModification, KindConnectionTimeout, KindConnectionRefused,
		KindUnreachable, KindIntermittentUnauthorized, KindResourceExhausted:
		return true
	case KindDpfError:
		return true // except explicit terminal DPF signals, handled by IsNotReady/terminal checks at call sites
	case KindRedfishError:
		return true // transient unless the BMC signals something structural; callers narrow further
	default:
		return false
	}
}

func new(kind Kind, op, subject, reason string, err error) *Error {
	return &Error{Kind: kind, Operation: op, Subject: subject, Reason: reason, Err: err}
}

func NotFound(op, kind, id string) *Error {
	return new(KindNotFound, op, fmt.Sprintf("%s:%s", kind, id), "entity missing", nil)
}

func AlreadyExists(op, kind, id string) *Error {
	return new(KindAlreadyExists, op, fmt.Sprintf("%s:%s", kind, id), "unique constraint violated", nil)
}

func ConcurrentModification(op, kind, id string, expectedVersion int64) *Error {
	return new(KindConcurrentModification, op, fmt.Sprintf("%s:%s", kind, id),
		fmt.Sprintf("expected version %d", expectedVersion), nil)
}

func FailedPrecondition(op, reason string) *Error {
	return new(KindFailedPrecondition, op, "", reason, nil)
}

func InvalidArgument(op, reason string) *Error {
	return new(KindInvalidArgument, op, "", reason, nil)
}

func ResourceExhausted(op, pool string) *Error {
	return new(KindResourceExhausted, op, pool, "allocation pool empty", nil)
}

func Unauthorized(op, endpoint string) *Error {
	return new(KindUnauthorized, op, endpoint, "BMC credentials rejected", nil)
}

func AvoidLockout(op, endpoint string) *Error {
	return new(KindAvoidLockout, op, endpoint, "refusing retry: credential set unchanged since last Unauthorized", nil)
}

func IntermittentUnauthorized(op, endpoint string, count int) *Error {
	return new(KindIntermittentUnauthorized, op, endpoint, fmt.Sprintf("flap count %d", count), nil)
}

func ConnectionTimeout(op, endpoint string, err error) *Error {
	return new(KindConnectionTimeout, op, endpoint, "timed out", err)
}

func ConnectionRefused(op, endpoint string, err error) *Error {
	return new(KindConnectionRefused, op, endpoint, "connection refused", err)
}

func Unreachable(op, endpoint string, err error) *Error {
	return new(KindUnreachable, op, endpoint, "host unreachable", err)
}

func RedfishError(op, endpoint string, status int, body string) *Error {
	return new(KindRedfishError, op, endpoint, fmt.Sprintf("status=%d body=%s", status, body), nil)
}

func MissingCredentials(op, key string) *Error {
	return new(KindMissingCredentials, op, key, "no secret configured for key", nil)
}

func DpfError(op, reason string, err error) *Error {
	return new(KindDpfError, op, "", reason, err)
}

func Internal(op string, err error) *Error {
	return new(KindInternal, op, "", "programmer error", err)
}

// As is a small convenience wrapper around errors.As for the common case of
// recovering a *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, else KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable classifies any error, including ones that never went through
// this package (plain net.Error / url.Error from the Redfish transport).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := As(err); ok {
		return e.IsRetryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return false
}
