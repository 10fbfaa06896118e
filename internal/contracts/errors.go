package contracts

import (
	"errors"
	"fmt"
)

// ValidationKind classifies submission rejections.
type ValidationKind string

const (
	// UnknownField: a selection requested a field the source does not declare.
	UnknownField ValidationKind = "UNKNOWN_FIELD"
	// MissingRequiredParam: a source parameter has no binding.
	MissingRequiredParam ValidationKind = "MISSING_REQUIRED_PARAM"
	// DisallowedSyntax: factor code uses a construct outside the allow-list.
	DisallowedSyntax ValidationKind = "DISALLOWED_SYNTAX"
	// DisallowedIdentifier: factor code references a capability or global
	// outside the allow-list.
	DisallowedIdentifier ValidationKind = "DISALLOWED_IDENTIFIER"
	// BadContract: factor code does not declare the required factor(data, params) function.
	BadContract ValidationKind = "BAD_CONTRACT"
	// UnknownSource: a selection names a source the catalog does not contain.
	UnknownSource ValidationKind = "UNKNOWN_SOURCE"
)

// ValidationError is a security or contract violation. It is rejected
// before any execution and never partially applied.
type ValidationError struct {
	Kind ValidationKind `json:"kind"`
	Name string         `json:"name"` // offending field/param/identifier
	Msg  string         `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Name, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// FetchErrorKind separates retryable from terminal fetch failures.
type FetchErrorKind string

const (
	FetchTransient FetchErrorKind = "TRANSIENT" // timeouts, 5xx-equivalent
	FetchPermanent FetchErrorKind = "PERMANENT" // 4xx-equivalent, schema mismatch
)

// FetchError wraps a failure from the external data layer.
type FetchError struct {
	Kind   FetchErrorKind
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s [%s]: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient fetch failure.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchTransient
}

// ExecutionErrorKind classifies sandbox failures. All are per-factor and
// non-fatal to a run.
type ExecutionErrorKind string

const (
	ExecTimeout           ExecutionErrorKind = "TIMEOUT"
	ExecRuntime           ExecutionErrorKind = "RUNTIME"
	ExecContractViolation ExecutionErrorKind = "CONTRACT_VIOLATION"
)

// ExecutionError wraps a sandboxed execution failure.
type ExecutionError struct {
	Kind     ExecutionErrorKind
	FactorID string
	Code     string // entity, when the unit is per entity
	Msg      string
}

func (e *ExecutionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("execute factor %s for %s [%s]: %s", e.FactorID, e.Code, e.Kind, e.Msg)
	}
	return fmt.Sprintf("execute factor %s [%s]: %s", e.FactorID, e.Kind, e.Msg)
}

// OrchestrationError is fatal to a run: the output would be meaningless.
type OrchestrationError struct {
	Msg string
}

func (e *OrchestrationError) Error() string {
	return e.Msg
}

// NewOrchestrationError builds a fatal run error with a specific message.
func NewOrchestrationError(format string, args ...interface{}) *OrchestrationError {
	return &OrchestrationError{Msg: fmt.Sprintf(format, args...)}
}
