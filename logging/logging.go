// Package logging constructs the loggers handed to the store and the plan
// runner. All engine logging is structured key/value logging; components
// receive a log.Logger and never write to the console directly.
package logging

import (
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Format selects the log line encoding.
type Format string

const (
	FormatLogfmt Format = "logfmt"
	FormatJSON   Format = "json"
)

// Config describes a logger. The zero value logs nothing.
type Config struct {
	// Level is the minimum severity to emit: "debug", "info", "warn",
	// "error". Empty disables logging.
	Level  string
	Format Format
	// Writer overrides the destination; defaults to stderr.
	Writer io.Writer
}

// New builds a leveled, timestamped logger from the config.
func New(cfg Config) log.Logger {
	if cfg.Level == "" {
		return log.NewNopLogger()
	}
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	var logger log.Logger
	if cfg.Format == FormatJSON {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}
	logger = level.NewFilter(logger, levelOption(cfg.Level))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func levelOption(l string) level.Option {
	switch l {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
