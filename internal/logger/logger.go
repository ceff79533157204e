// Package logger provides structured logging with file and console output.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New creates a logger at level writing to stdout and, when logFile is set, to
// that file in append mode. format "json" writes raw JSON lines to stdout,
// anything else uses the console writer; the file always gets JSON.
func New(level, logFile, format string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.DurationFieldUnit = time.Millisecond

	var stdout io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	if format == "json" {
		stdout = os.Stdout
	}
	writers := []io.Writer{stdout}

	var file *os.File
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, err
		}
		file, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "carfeed").
		Caller().
		Logger()

	return &Logger{Logger: zl, file: file}, nil
}

// Close closes the log file, if any. Close on a child logger is a no-op.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Global is the global logger instance for convenience.
var Global *Logger

// Init initializes the global logger.
func Init(level, logFile, format string) error {
	l, err := New(level, logFile, format)
	if err != nil {
		return err
	}
	Global = l
	return nil
}

// Get returns the global logger.
// Returns a no-op logger if not initialized.
func Get() *Logger {
	if Global == nil {
		return Nop()
	}
	return Global
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// With returns a child logger carrying the given channel and run id fields.
func (l *Logger) With(channel, runID string) *Logger {
	child := l.Logger.With().Str("channel", channel)
	if runID != "" {
		child = child.Str("run_id", runID)
	}
	return &Logger{Logger: child.Logger()}
}
