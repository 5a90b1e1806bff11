package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for editcheck operations.
var (
	// ErrUnknownFunction indicates a rule names a condition or function missing from the library.
	ErrUnknownFunction = errors.New("unknown condition function")

	// ErrMalformedRule indicates a rule tree that does not match any node variant.
	ErrMalformedRule = errors.New("malformed rule tree")

	// ErrPathTooDeep indicates a property path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("property path exceeds maximum depth")

	// ErrFieldNotFound indicates a path segment could not be resolved in one context.
	ErrFieldNotFound = errors.New("field not found")

	// ErrUnresolvedArgument indicates no context in the chain resolved an argument path.
	ErrUnresolvedArgument = errors.New("unresolved rule argument")

	// ErrRuleSpec marks errors caused by the rule definition rather than the filing.
	ErrRuleSpec = errors.New("rule specification error")

	// ErrConnectivity indicates an external lookup dependency could not be reached.
	ErrConnectivity = errors.New("lookup service unreachable")

	// ErrCanceled indicates the caller aborted a validation run.
	ErrCanceled = errors.New("validation run canceled")

	// ErrDuplicateFunction indicates a function name registered twice in a library.
	ErrDuplicateFunction = errors.New("condition function already registered")
)

// UnresolvedArgumentError carries the path that failed to resolve.
type UnresolvedArgumentError struct {
	Path string
}

func (e *UnresolvedArgumentError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnresolvedArgument, e.Path)
}

// Is reports ErrUnresolvedArgument equivalence for errors.Is.
func (e *UnresolvedArgumentError) Is(target error) bool {
	return target == ErrUnresolvedArgument
}

// RuleSpecError attributes a rule-definition failure to an edit.
type RuleSpecError struct {
	EditID string
	Err    error
}

func (e *RuleSpecError) Error() string {
	return fmt.Sprintf("edit %s: %s: %v", e.EditID, ErrRuleSpec, e.Err)
}

// Is reports ErrRuleSpec equivalence for errors.Is.
func (e *RuleSpecError) Is(target error) bool {
	return target == ErrRuleSpec
}

func (e *RuleSpecError) Unwrap() error {
	return e.Err
}

// IsRuleSpec reports whether err stems from a malformed rule definition.
func IsRuleSpec(err error) bool {
	return errors.Is(err, ErrRuleSpec) ||
		errors.Is(err, ErrUnresolvedArgument) ||
		errors.Is(err, ErrMalformedRule) ||
		errors.Is(err, ErrUnknownFunction) ||
		errors.Is(err, ErrPathTooDeep)
}
