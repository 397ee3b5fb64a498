// Package actorerr defines the typed error taxonomy surfaced across the
// actor runtime, supervision engine, and distribution layer. Every
// exported operation that can fail returns one of these errors (wrapped
// with errors.Is/errors.As support) instead of panicking across a
// package boundary.
package actorerr

import (
	"fmt"
)

// Kind identifies the broad category of an Error, independent of the
// dynamic details carried in Reason/Cause.
type Kind string

const (
	KindLifecycle    Kind = "lifecycle"
	KindCall         Kind = "call"
	KindSupervisor   Kind = "supervisor"
	KindRegistry     Kind = "registry"
	KindDistribution Kind = "distribution"
)

// Sentinel reasons. Callers match on these with errors.Is.
var (
	ErrInitializationError = &Error{Kind: KindLifecycle, Reason: "InitializationError"}
	ErrTerminated          = &Error{Kind: KindLifecycle, Reason: "Terminated"}
	ErrNoProcess           = &Error{Kind: KindLifecycle, Reason: "NoProcess"}

	ErrTimeout      = &Error{Kind: KindCall, Reason: "Timeout"}
	ErrNoConnection = &Error{Kind: KindCall, Reason: "NoConnection"}

	ErrDuplicateChild      = &Error{Kind: KindSupervisor, Reason: "DuplicateChild"}
	ErrChildNotFound       = &Error{Kind: KindSupervisor, Reason: "ChildNotFound"}
	ErrMaxRestartsExceeded = &Error{Kind: KindSupervisor, Reason: "MaxRestartsExceeded"}

	ErrNameInUse          = &Error{Kind: KindRegistry, Reason: "NameInUse"}
	ErrGlobalNameConflict = &Error{Kind: KindRegistry, Reason: "GlobalNameConflict"}
	ErrGlobalNameNotFound = &Error{Kind: KindRegistry, Reason: "GlobalNameNotFound"}

	ErrHandshakeFailed  = &Error{Kind: KindDistribution, Reason: "HandshakeFailed"}
	ErrUnknownNode      = &Error{Kind: KindDistribution, Reason: "UnknownNode"}
	ErrBehaviorNotFound = &Error{Kind: KindDistribution, Reason: "BehaviorNotFound"}
)

// Error is the concrete error type returned by the runtime. Reason is a
// stable string discriminant; Cause, when set, is the underlying error
// (a user panic value turned into an error, a transport error, etc).
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on Kind+Reason while ignoring Cause, so a
// wrapped CalleeError still compares equal to a bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// Wrap returns a copy of sentinel carrying cause, preserving Kind/Reason
// for errors.Is comparisons.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Reason: sentinel.Reason, Cause: cause}
}

// CalleeError wraps an arbitrary payload returned (or panicked) from a
// handleCall callback and reported back to the caller unchanged.
func CalleeError(payload interface{}) *Error {
	return &Error{Kind: KindCall, Reason: "CalleeError", Cause: fmt.Errorf("%v", payload)}
}

// New builds a fresh Error of the given kind/reason with an optional
// formatted cause, for cases not covered by the sentinels above (e.g. a
// CalleeError with an attached causal chain from user code).
func New(kind Kind, reason string, causeFmt string, args ...interface{}) *Error {
	var cause error
	if causeFmt != "" {
		cause = fmt.Errorf(causeFmt, args...)
	}
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}
