package service

import (
	"time"

	"k8s.io/client-go/util/workqueue"
)

// newBackoff returns a per-component exponential backoff calculator with
// base 1s and cap 30s. It is keyed by an arbitrary string (the caller uses
// the lifecycle step name, e.g. "install" or "startup", so install and
// startup failures are tracked on independent curves for the same
// component).
func newBackoff() workqueue.TypedRateLimiter[string] {
	return workqueue.NewTypedItemExponentialFailureRateLimiter[string](time.Second, 30*time.Second)
}
