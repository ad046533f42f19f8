// Package errs implements the scan core's error taxonomy: a small set of
// error kinds, each with a default retry classification, plus the
// Classify dispatcher the orchestrator uses to route a stage failure to
// retry-with-backoff or the dead-letter set.
package errs

import (
	"errors"
	"fmt"
)

// Kind names one of the taxonomy's error categories. These are kinds, not
// concrete error types: callers construct a *Error with the Kind that best
// describes the failure.
type Kind string

const (
	KindFilesystem   Kind = "filesystem"
	KindStorage      Kind = "storage"
	KindProvider     Kind = "provider"
	KindExtraction   Kind = "extraction"
	KindStateConflict Kind = "state_conflict"
	KindInvariant    Kind = "invariant"
)

// Retryability classifies whether a failure should be retried.
type Retryability int

const (
	// Transient failures are retried with backoff up to the configured cap.
	Transient Retryability = iota
	// Permanent failures move the subject straight to the dead-letter set.
	Permanent
)

func (r Retryability) String() string {
	if r == Permanent {
		return "permanent"
	}
	return "transient"
}

// ProviderReason refines a KindProvider error with the provider
// port contract.
type ProviderReason string

const (
	ProviderNetworkTimeout ProviderReason = "network_timeout"
	ProviderRateLimited    ProviderReason = "rate_limited"
	ProviderNotFound       ProviderReason = "not_found"
	ProviderMalformed      ProviderReason = "malformed"
)

// Error is the taxonomy's concrete error type. Code and Message are
// user-visible (stable, no secrets); Cause is the wrapped underlying error
// retained for logs only.
type Error struct {
	Kind     Kind
	Reason   ProviderReason // only meaningful when Kind == KindProvider
	Code     string
	Message  string
	Op       string
	Cause    error
	retry    Retryability
	retrySet bool
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// ErrorKind returns the kind as a string for logging/diagnostics.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// Retryable reports whether this error's own classification is Transient,
// honoring an explicit override before falling back to the kind default.
func (e *Error) Retryable() bool {
	if e.retrySet {
		return e.retry == Transient
	}
	return defaultRetryability(e.Kind, e.Reason) == Transient
}

func defaultRetryability(kind Kind, reason ProviderReason) Retryability {
	switch kind {
	case KindFilesystem:
		return Transient
	case KindStorage:
		return Transient
	case KindProvider:
		switch reason {
		case ProviderNetworkTimeout, ProviderRateLimited:
			return Transient
		case ProviderNotFound, ProviderMalformed:
			return Permanent
		default:
			return Transient
		}
	case KindExtraction:
		return Transient
	case KindStateConflict:
		return Transient
	case KindInvariant:
		return Permanent
	default:
		return Permanent
	}
}

// New constructs a taxonomy error with the kind's default retry classification.
func New(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// NewProvider constructs a KindProvider error with an explicit reason,
// which drives its retry classification.
func NewProvider(reason ProviderReason, op, message string, cause error) *Error {
	return &Error{Kind: KindProvider, Reason: reason, Op: op, Message: message, Cause: cause}
}

// NewStorage constructs a KindStorage error, overriding the default
// Transient classification to Permanent for schema/constraint
// failures.
func NewStorage(op, message string, cause error, permanent bool) *Error {
	e := &Error{Kind: KindStorage, Op: op, Message: message, Cause: cause}
	if permanent {
		e.retry = Permanent
		e.retrySet = true
	}
	return e
}

// Classify extracts the taxonomy Kind and Retryability for any error,
// defaulting unrecognized errors to a Permanent Invariant so that unknown
// failure modes dead-letter loudly rather than retry forever.
func Classify(err error) (Kind, Retryability) {
	var te *Error
	if errors.As(err, &te) {
		if te.retrySet {
			return te.Kind, te.retry
		}
		return te.Kind, defaultRetryability(te.Kind, te.Reason)
	}
	return KindInvariant, Permanent
}

// IsRetryable is a convenience wrapper around Classify.
func IsRetryable(err error) bool {
	_, retry := Classify(err)
	return retry == Transient
}
