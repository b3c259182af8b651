package supervisor

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"evergreen/pkg/logging"
)

// NotifySystemd wires sd_notify READY=1 to OnReady and, if the watchdog
// interval is set in the unit file, pings WATCHDOG=1 on half that interval
// until ctx is cancelled. A no-op when not running under systemd (both
// daemon calls report unsupported and are ignored, matching go-systemd's
// documented "safe to call unconditionally" contract).
func (s *Supervisor) NotifySystemd(ctx context.Context) {
	s.OnReady(func() {
		if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			logging.Warn("supervisor", "sd_notify ready failed: %v", err)
		} else if ok {
			logging.Info("supervisor", "notified systemd READY=1")
		}
	})

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					logging.Warn("supervisor", "sd_notify watchdog failed: %v", err)
				}
			}
		}
	}()
}
