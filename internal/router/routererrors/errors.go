// Package routererrors defines the kind-tagged error type returned by every
// router component, so callers can branch on failure category without
// string-matching error text.
package routererrors

import (
	"errors"
	"fmt"
)

// Kind classifies a RouterError for programmatic handling.
type Kind string

// Error kinds returned by the router's components.
const (
	KindNoCapableAgent        Kind = "no_capable_agent"
	KindAllBreakersOpen       Kind = "all_breakers_open"
	KindRoutingTimeout        Kind = "routing_timeout"
	KindInsufficientData      Kind = "insufficient_data"
	KindOutcomeNotFound       Kind = "outcome_not_found"
	KindOptimizationUnderflow Kind = "optimization_underflow"
	KindPersistenceUnavailable Kind = "persistence_unavailable"
	KindInternal              Kind = "internal_error"
)

// RouterError is the structured error returned by router components. It
// carries the failing operation, a classification, whether the caller
// should retry, and a free-form context bag for logging.
type RouterError struct {
	Kind      Kind
	Op        string
	Err       error
	Retryable bool
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *RouterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap exposes the wrapped error so errors.Is/errors.As can traverse it.
func (e *RouterError) Unwrap() error {
	return e.Err
}

// WithContext attaches a key/value pair to the error's context bag,
// returning the same error for chaining.
func (e *RouterError) WithContext(key string, value interface{}) *RouterError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New constructs a RouterError of the given kind for operation op, wrapping
// err (which may be nil).
func New(kind Kind, op string, err error) *RouterError {
	return &RouterError{
		Kind:      kind,
		Op:        op,
		Err:       err,
		Retryable: isRetryable(kind),
	}
}

// isRetryable returns the default retry policy for a given kind; a caller
// may still override Retryable on the returned error.
func isRetryable(kind Kind) bool {
	switch kind {
	case KindPersistenceUnavailable, KindRoutingTimeout:
		return true
	default:
		return false
	}
}

// Is reports whether err is a *RouterError with the given kind. It is the
// preferred way to branch on error category, and works through wrapped
// errors via errors.As.
func Is(err error, kind Kind) bool {
	var re *RouterError
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// IsNoCapableAgent reports whether err is a KindNoCapableAgent RouterError.
func IsNoCapableAgent(err error) bool { return Is(err, KindNoCapableAgent) }

// IsAllBreakersOpen reports whether err is a KindAllBreakersOpen RouterError.
func IsAllBreakersOpen(err error) bool { return Is(err, KindAllBreakersOpen) }

// IsRoutingTimeout reports whether err is a KindRoutingTimeout RouterError.
func IsRoutingTimeout(err error) bool { return Is(err, KindRoutingTimeout) }

// IsInsufficientData reports whether err is a KindInsufficientData RouterError.
func IsInsufficientData(err error) bool { return Is(err, KindInsufficientData) }

// IsOutcomeNotFound reports whether err is a KindOutcomeNotFound RouterError.
func IsOutcomeNotFound(err error) bool { return Is(err, KindOutcomeNotFound) }

// IsOptimizationUnderflow reports whether err is a KindOptimizationUnderflow RouterError.
func IsOptimizationUnderflow(err error) bool { return Is(err, KindOptimizationUnderflow) }

// IsPersistenceUnavailable reports whether err is a KindPersistenceUnavailable RouterError.
func IsPersistenceUnavailable(err error) bool { return Is(err, KindPersistenceUnavailable) }

// IsInternal reports whether err is a KindInternal RouterError.
func IsInternal(err error) bool { return Is(err, KindInternal) }

// Retryable reports whether err, if a RouterError, is marked retryable.
func Retryable(err error) bool {
	var re *RouterError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}
