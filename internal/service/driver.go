package service

import "context"

// ValidationVerdict is the result of a ValidateConfiguration capability
// call.
type ValidationVerdict int

const (
	Valid ValidationVerdict = iota
	Invalid
	ValidationTimeout
)

// Driver is the capability set "Dynamic dispatch / inheritance
// of Service" design note replaces class inheritance with: a tag
// (ExternalDriver or BuiltinDriver) plus this one interface, rather than a
// base class and a subprocess subclass.
type Driver interface {
	// Install runs once per NEW entry. Returning nil advances the
	// component to INSTALLED; a non-nil error bumps error_count and sends
	// it to ERRORED.
	Install(ctx context.Context) error

	// Startup runs once per STARTING entry, after all HARD dependencies are
	// RUNNING.
	Startup(ctx context.Context) error

	// Run is the long-lived step entered once Startup succeeds; it blocks
	// until the component is asked to stop or it exits on its own. A nil
	// return with no stop request moves the component to FINISHED; a
	// non-nil error sends it to ERRORED.
	Run(ctx context.Context) error

	// Shutdown runs once per STOPPING entry and must return once the
	// component has released its resources.
	Shutdown(ctx context.Context) error

	// Recover runs in place of Startup when STARTING is re-entered after an
	// ERRORED state with a nonzero error_count for the current lifecycle
	// generation.
	Recover(ctx context.Context) error

	// Validate implements the optional ValidateConfiguration capability.
	// Drivers that don't support live validation accept every proposal by
	// returning Valid; drivers that do support it return Valid/Invalid
	// synchronously. The merger calls it once per merge and treats an
	// error, a non-Valid verdict, or no answer within notify_timeout as a
	// rejection.
	Validate(ctx context.Context, proposed map[string]interface{}) (ValidationVerdict, error)
}

// SkipPredicate evaluates a lifecycle step's skipif expression. A true
// result marks the step successful without running it; an error means the
// predicate itself was malformed and the component must go straight to
// ERRORED.
type SkipPredicate func(ctx context.Context) (skip bool, err error)
