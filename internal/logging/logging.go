/*
Package logging builds the engine's shared *slog.Logger the way
main.go in the teacher service builds its logger: JSON handler,
AddSource, a ReplaceAttr that trims source paths to basename and
formats timestamps as RFC3339Nano, rotated with lumberjack.
*/
package logging

import (
	"log/slog"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// rotation defaults, copied from the teacher's lumberjackLogger literal.
const (
	maxSizeMB  = 128
	maxAgeDays = 28
)

// New builds a logger writing JSON-formatted records to logDirectory/<name>.log,
// rotated by lumberjack. progName is attached to every record as "prog".
func New(logDirectory, progName, level string) (*slog.Logger, *lumberjack.Logger) {
	replacer := func(_ []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source, ok := a.Value.Any().(*slog.Source)
			if ok {
				source.File = filepath.Base(source.File)
			}
		}
		if a.Key == slog.TimeKey {
			return slog.String("time", a.Value.Time().Format(time.RFC3339Nano))
		}
		return a
	}

	logfile := filepath.Join(logDirectory, progName+".log")
	lumberjackLogger := &lumberjack.Logger{
		Filename: logfile,
		MaxSize:  maxSizeMB,
		MaxAge:   maxAgeDays,
		Compress: true,
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(ParseLevel(level))

	logger := slog.New(slog.NewJSONHandler(lumberjackLogger, &slog.HandlerOptions{
		Level:       logLevel,
		AddSource:   true,
		ReplaceAttr: replacer,
	}).WithAttrs([]slog.Attr{slog.String("prog", progName)}))

	return logger, lumberjackLogger
}

// ParseLevel parses a log level name, defaulting to info for anything
// unrecognized — matching the teacher's parseLogLevel.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug", "Debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "Warn", "WARN":
		return slog.LevelWarn
	case "error", "Error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OrDefault returns logger if non-nil, else slog.Default() — used by
// engine components that accept an injected logger.
func OrDefault(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
