// Package errors defines the structured error taxonomy of the Talaria SDK.
//
// The node core translates numeric middleware return codes into the typed
// errors below so callers can branch on failure class with errors.As and
// still see the middleware's own diagnostics.
package errors

import (
	"errors"
	"fmt"

	"github.com/wavemesh/talaria/pkg/middleware"
)

var (
	// ErrContextShutdown indicates the shared context was shut down before
	// or during the operation.
	ErrContextShutdown = errors.New("context already shut down")

	// ErrGuardConditionUnavailable indicates the notify guard condition has
	// been invalidated and can no longer be triggered.
	ErrGuardConditionUnavailable = errors.New("notify guard condition unavailable")

	// ErrNodeClosed indicates an operation was attempted on a closed node.
	ErrNodeClosed = errors.New("node already closed")
)

// InitError wraps a middleware return code from a failed resource
// initialization, together with the middleware's error-state snapshot.
type InitError struct {
	// Op describes the operation that failed.
	Op string

	// Ret is the middleware return code.
	Ret middleware.Ret

	// State is the middleware's error snapshot taken at failure time.
	State middleware.ErrorState
}

// Error implements the error interface.
func (e *InitError) Error() string {
	if e.State.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Ret, e.State.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Ret)
}

// NewInitError creates an InitError for the given operation and code.
func NewInitError(op string, ret middleware.Ret, state middleware.ErrorState) *InitError {
	return &InitError{Op: op, Ret: ret, State: state}
}

// InvalidNodeNameError reports a node name rejected by the middleware's
// validator, with the rule that was violated and where.
type InvalidNodeNameError struct {
	// NodeName is the offending name.
	NodeName string

	// Reason is the validator's description of the violated rule.
	Reason string

	// InvalidIndex is the byte offset of the first invalid character.
	InvalidIndex int
}

// Error implements the error interface.
func (e *InvalidNodeNameError) Error() string {
	return fmt.Sprintf("invalid node name %q: %s (at byte %d)", e.NodeName, e.Reason, e.InvalidIndex)
}

// InvalidNamespaceError reports a namespace rejected by the middleware's
// validator, with the rule that was violated and where.
type InvalidNamespaceError struct {
	// Namespace is the offending namespace.
	Namespace string

	// Reason is the validator's description of the violated rule.
	Reason string

	// InvalidIndex is the byte offset of the first invalid character.
	InvalidIndex int
}

// Error implements the error interface.
func (e *InvalidNamespaceError) Error() string {
	return fmt.Sprintf("invalid namespace %q: %s (at byte %d)", e.Namespace, e.Reason, e.InvalidIndex)
}

// ValidationError indicates the validator collaborator itself failed, as
// opposed to returning a negative verdict.
type ValidationError struct {
	// Op describes the validation that was attempted.
	Op string

	// Ret is the validator's return code.
	Ret middleware.Ret

	// State is the middleware's error snapshot taken at failure time.
	State middleware.ErrorState
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.State.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Ret, e.State.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Ret)
}

// InconsistencyError indicates the validator and the initializer disagreed:
// the name or namespace passed standalone validation but node initialization
// rejected it anyway. This should be unreachable; it is reported loudly
// rather than resolved silently in either direction.
type InconsistencyError struct {
	// What identifies the disputed input ("node name" or "namespace").
	What string

	// Value is the disputed input.
	Value string
}

// Error implements the error interface.
func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%s %q passed validation but was rejected by node initialization", e.What, e.Value)
}

// ResolveError wraps a failed topic or service name resolution.
type ResolveError struct {
	// Name is the name that failed to resolve.
	Name string

	// Ret is the middleware return code.
	Ret middleware.Ret

	// State is the middleware's error snapshot taken at failure time.
	State middleware.ErrorState
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	if e.State.Message != "" {
		return fmt.Sprintf("failed to resolve name %q: %s: %s", e.Name, e.Ret, e.State.Message)
	}
	return fmt.Sprintf("failed to resolve name %q: %s", e.Name, e.Ret)
}

// IsInvalidNodeName checks whether an error is an InvalidNodeNameError.
func IsInvalidNodeName(err error) bool {
	var target *InvalidNodeNameError
	return errors.As(err, &target)
}

// IsInvalidNamespace checks whether an error is an InvalidNamespaceError.
func IsInvalidNamespace(err error) bool {
	var target *InvalidNamespaceError
	return errors.As(err, &target)
}

// IsInconsistency checks whether an error is an InconsistencyError.
func IsInconsistency(err error) bool {
	var target *InconsistencyError
	return errors.As(err, &target)
}
