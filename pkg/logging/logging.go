package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

// Level defines the severity of a log entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps the log.level configuration value to a Level.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Store names the configured log.store sink.
type Store string

const (
	StoreStdout  Store = "stdout"
	StoreFile    Store = "file"
	StoreJournal Store = "journal"
)

var defaultLogger *slog.Logger
var journalSink bool

// Init configures the package-level logger. Called once at agent startup from
// the values of -log, log.level, log.store and log.storeName.
func Init(store Store, storeName string, level Level) error {
	opts := &slog.HandlerOptions{Level: level.slogLevel()}

	if store == StoreJournal {
		if journal.Enabled() {
			journalSink = true
			defaultLogger = slog.New(slog.NewTextHandler(io.Discard, opts))
			slog.SetDefault(defaultLogger)
			return nil
		}
		// journal socket unavailable: fall back to stdout, matching systemd's own behavior.
		store = StoreStdout
	}

	var out io.Writer = os.Stdout
	if store == StoreFile {
		if storeName == "" {
			return fmt.Errorf("log.storeName is required when log.store=file")
		}
		f, err := os.OpenFile(storeName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", storeName, err)
		}
		out = f
	}

	journalSink = false
	defaultLogger = slog.New(slog.NewTextHandler(out, opts))
	slog.SetDefault(defaultLogger)
	return nil
}

func init() {
	// Safe default so packages can log before Init runs (e.g. flag parsing errors).
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func logInternal(level Level, subsystem string, err error, messageFmt string, args ...interface{}) {
	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	if journalSink {
		vars := map[string]string{"SUBSYSTEM": subsystem}
		if err != nil {
			vars["ERROR"] = err.Error()
		}
		_ = journal.Send(msg, journalPriority(level), vars)
		return
	}

	if defaultLogger == nil || !defaultLogger.Enabled(context.Background(), level.slogLevel()) {
		return
	}

	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	defaultLogger.LogAttrs(context.Background(), level.slogLevel(), msg, attrs...)
}

func journalPriority(l Level) journal.Priority {
	switch l {
	case LevelDebug:
		return journal.PriDebug
	case LevelWarn:
		return journal.PriWarning
	case LevelError:
		return journal.PriErr
	default:
		return journal.PriInfo
	}
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// Transition logs a service state transition, the one log shape
// requires to be present for every transition: (service, old, new, cause?).
func Transition(service, old, new string, cause error) {
	if cause != nil {
		logInternal(LevelInfo, "transition", cause, "%s: %s -> %s (%v)", service, old, new, cause)
		return
	}
	logInternal(LevelInfo, "transition", nil, "%s: %s -> %s", service, old, new)
}
