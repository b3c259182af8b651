// Package evgerr defines the supervisor's error taxonomy: a small set of
// sentinel kinds that every package wraps its errors around, so a caller
// can classify a failure with errors.Is/errors.As without needing to
// import the originating package.
package evgerr

import "fmt"

// Kind is one of the error categories below.
type Kind string

const (
	// KindInvalidConfig covers malformed YAML, a missing "main" service, or a
	// cyclic dependency graph. Fatal at launch, merge-aborting at merge time.
	KindInvalidConfig Kind = "InvalidConfig"

	// KindLifecycleFailure covers a subprocess non-zero exit or lifecycle
	// timeout. Always handled locally by the service state machine.
	KindLifecycleFailure Kind = "LifecycleFailure"

	// KindValidationFailure covers an aggregated INVALID/TIMEOUT verdict from
	// a component's ValidateConfiguration capability during a merge.
	KindValidationFailure Kind = "ValidationFailure"

	// KindTimeout covers any deadline exceeded; the Context field says which.
	KindTimeout Kind = "Timeout"

	// KindResourceExhaustion covers disk-full / unwritable-root conditions
	// encountered while persisting a committed mutation.
	KindResourceExhaustion Kind = "ResourceExhaustion"

	// KindInternal covers bugs: the service that hit one is marked BROKEN.
	KindInternal Kind = "Internal"
)

// Error is the concrete error type carrying a Kind, a human message, an
// optional wrapped cause, and optional context (service name, merge id, ...).
type Error struct {
	Kind    Kind
	Context string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Context, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Context, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, evgerr.InvalidConfig) etc. work against a bare Kind
// sentinel, by comparing Kind fields rather than identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && t.Context == "" && t.Cause == nil {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func newKind(k Kind) *Error { return &Error{Kind: k} }

// Sentinels for errors.Is comparisons, e.g. errors.Is(err, evgerr.InvalidConfig).
var (
	InvalidConfig      = newKind(KindInvalidConfig)
	LifecycleFailure   = newKind(KindLifecycleFailure)
	ValidationFailure  = newKind(KindValidationFailure)
	Timeout            = newKind(KindTimeout)
	ResourceExhaustion = newKind(KindResourceExhaustion)
	Internal           = newKind(KindInternal)
)

// New constructs a new *Error of the given kind.
func New(kind Kind, context, message string) *Error {
	return &Error{Kind: kind, Context: context, Message: message}
}

// Wrap constructs a new *Error of the given kind around a cause.
func Wrap(kind Kind, context, message string, cause error) *Error {
	return &Error{Kind: kind, Context: context, Message: message, Cause: cause}
}
