// Package logging provides the zerolog-based structured logger shared by
// every runtime component (server runtime, supervisor, transport,
// membership). It replaces ad-hoc fmt.Printf/log.Printf calls with a
// single leveled, JSON-by-default logger configured once at process
// startup.
package logging

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the global logger.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Default: info.
	Level string
	// Format is "json" or "console". Default: json.
	Format string
	// Caller includes the calling file:line in each entry.
	Caller bool
}

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Init configures the global logger. Safe to call more than once (tests
// typically call it with console output before each suite).
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var w = os.Stderr
	var out zerolog.ConsoleWriter
	useConsole := strings.EqualFold(cfg.Format, "console")

	base := zerolog.New(w).With().Timestamp()
	if cfg.Caller {
		base = base.Caller()
	}

	if useConsole {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		l := zerolog.New(out).With().Timestamp().Logger()
		if cfg.Caller {
			l = l.With().Caller().Logger()
		}
		logger = l
		return
	}

	logger = base.Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the current global logger. Components that need to attach
// static fields (e.g. "node", "component") should call
// Get().With().Str(...).Logger() once and keep the result.
func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Component returns a child logger tagged with a "component" field,
// the pattern every runtime package uses at construction time.
func Component(name string) zerolog.Logger {
	return Get().With().Str("component", name).Logger()
}
