// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogLevel selects the level when no explicit level is configured
const EnvLogLevel = "QEM_LOG_LEVEL"

// Options controls logger construction
type Options struct {
	App     string
	Level   string
	Out     io.Writer
	NoColor bool
	JSON    bool
}

var configureOnce sync.Once

// Init builds the logger and installs it as the global zerolog logger
func Init(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor,
		}
	}

	level := opts.Level
	if level == "" {
		level = os.Getenv(EnvLogLevel)
	}

	logger := zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Str("app", opts.App).Logger()
	log.Logger = logger
	return logger
}

// ConfigureTests installs a quiet logger once per test binary
func ConfigureTests() {
	configureOnce.Do(func() {
		Init(Options{App: "test", Level: "warn", NoColor: true})
	})
}

// ParseLevel maps a level name to zerolog, defaulting to info
func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child of the global logger tagged with a component name
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
