// Package errors defines the structured error type shared by every pipeline
// stage. Errors carry a Kind rather than a concrete type: callers branch on
// the kind to decide between retry, skip, degrade, and abort.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for control-flow decisions.
type Kind string

const (
	// KindTransient covers upstream 5xx, timeouts, and 429. Retryable.
	KindTransient Kind = "transient"
	// KindPermanent covers non-429 4xx, invalid feeds, detected paywalls.
	KindPermanent Kind = "permanent"
	// KindParse covers malformed HTML, empty bodies, under-length text.
	KindParse Kind = "parse"
	// KindDuplicate marks a dedup collision. Not a failure.
	KindDuplicate Kind = "duplicate"
	// KindBudget marks a governor denial. Partial results are allowed.
	KindBudget Kind = "budget"
	// KindValidation marks a malformed caller request.
	KindValidation Kind = "validation"
	// KindRateLimit marks a provider 429 with an explicit retry-after.
	KindRateLimit Kind = "rate_limit"
	// KindFatal marks persistent auth failures and provider outages.
	// The affected service must stop.
	KindFatal Kind = "fatal"
)

// Error is the two-armed result carrier used across stage boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Details holds small key-value context for logs and diagnostics.
	Details map[string]string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors by kind so errors.Is works across wrap layers.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail attaches a key-value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error wrapping a cause. Returns nil when err is nil.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// As is the stdlib errors.As, re-exported so callers importing this package
// do not need a second errors import.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// KindOf extracts the kind from an error chain.
// Unclassified errors report KindTransient: unknown failures are retried
// until the retry budget runs out, then surfaced.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// IsRetryable reports whether the operation may be attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindTransient, KindRateLimit:
		return true
	}
	return false
}

// IsFatal reports whether the owning service should stop.
func IsFatal(err error) bool {
	return KindOf(err) == KindFatal
}
