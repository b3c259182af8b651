// Package builtin holds components that ship inside the supervisor binary
// rather than as external-process scripts, each exposed as a
// service.BuiltinFuncs table.
package builtin

import (
	"context"
	"time"

	"evergreen/internal/configtree"
	"evergreen/internal/service"
)

// Heartbeat periodically writes a timestamp under /system/heartbeat so an
// external observer polling the Config Tree can tell the supervisor
// process is alive and making progress, independent of any one
// component's health.
type Heartbeat struct {
	Tree     *configtree.Tree
	Interval time.Duration
}

// Driver returns the BuiltinDriver for this component, defaulting a
// non-positive Interval to 30s. Install, Startup and Shutdown have nothing
// to do; Run ticks until cancelled.
func (h *Heartbeat) Driver() *service.BuiltinDriver {
	if h.Interval <= 0 {
		h.Interval = 30 * time.Second
	}
	return service.NewBuiltinDriver(service.BuiltinFuncs{
		Run: h.run,
	})
}

func (h *Heartbeat) run(ctx context.Context) error {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	h.beat()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *Heartbeat) beat() {
	_, _ = h.Tree.Write("/system/heartbeat", time.Now().Unix(), h.Tree.Now())
}
