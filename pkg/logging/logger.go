// Package logging configures zerolog for the bookshelf service.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Service is attached to every event as "service" when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Output:  os.Stderr,
		Service: "bookshelf",
	}
}

// ConfigFor builds a Config from raw settings, keeping the defaults for the rest.
func ConfigFor(level string, pretty bool) Config {
	cfg := DefaultConfig()
	cfg.Level = LogLevel(strings.ToLower(level))
	cfg.Pretty = pretty
	return cfg
}

// Setup configures the global zerolog logger and returns it.
// Durations are logged in milliseconds.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.DurationFieldUnit = time.Millisecond

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ValidLevel reports whether s names a known log level.
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// NewLogger creates a logger for component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForCategory scopes base to one category.
func ForCategory(base zerolog.Logger, category string) zerolog.Logger {
	return base.With().Str("category", category).Logger()
}

// Log Level Guidelines:
//
// Debug: cache hits/misses, conditional requests, cursor moves after a refill,
// individual consumes.
//
// Info: warm summaries, empty provider pages (cursor held), categories
// registered at runtime, server startup/shutdown.
//
// Warn: per-category refill failures, partial warms, retry attempts, cache
// errors that fall back to a direct request.
//
// Error: requests failed after retries, startup and configuration errors.
//
// Context Fields:
//   - category: normalized category name
//   - offset, next_offset: provider window start before and after a refill
//   - page_size: requested window size
//   - records: records returned or buffered
//   - duration: request or refill duration (ms)
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network, decode
//   - etag, ttl: conditional request and cache entry details
