// Package logging provides a structured logging system for the supervisor daemon
// and its CLI companion.
//
// # Architecture
//
// Logging is built on log/slog. A single package-level logger is configured once
// at startup via Init, then used through subsystem-tagged helpers (Debug, Info,
// Warn, Error) so every log line carries a "subsystem" attribute identifying the
// component that emitted it (e.g. "supervisor", "service:webapp", "merger").
//
// # Sinks
//
//   - stdout/stderr: structured text via slog.TextHandler (default).
//   - file: same handler, appending to the file named by log.storeName,
//     opened at Init (no rotation).
//   - journal: forwards records to the systemd journal (github.com/coreos/go-systemd/v22/journal)
//     when the agent runs under a .service unit; falls back to stdout if the
//     journal socket is unavailable, matching systemd's own fallback behavior.
//
// Sink and level are controlled by the CLI/env keys log.level, log.fmt,
// log.store, and log.storeName.
package logging
