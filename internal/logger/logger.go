package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger behavior.
type Config struct {
	Verbose   bool   // pretty output for development
	Level     string // debug|info|warn|error
	Component string // component name stamped on every line
	Out       io.Writer
	TimeFunc  func() time.Time // injected for deterministic tests
}

// Setup returns a component-scoped zerolog logger. Every line carries a
// timestamp and the "component" field.
func Setup(cfg Config) zerolog.Logger {
	if cfg.Out == nil {
		cfg.Out = os.Stderr
	}
	if cfg.TimeFunc == nil {
		cfg.TimeFunc = time.Now
	}
	if cfg.Component == "" {
		cfg.Component = "fakemq"
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFunc = cfg.TimeFunc

	var w io.Writer = cfg.Out
	if cfg.Verbose {
		w = zerolog.ConsoleWriter{
			Out:        cfg.Out,
			TimeFormat: time.RFC3339Nano,
		}
	}

	return zerolog.New(w).Level(parseLevel(cfg.Level)).With().
		Timestamp().
		Str("component", cfg.Component).
		Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
