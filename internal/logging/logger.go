// Package logging is the zerolog setup shared by every subsystem.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger that hands out tagged children.
type Logger struct {
	zl zerolog.Logger
}

// Options picks a root logger's level, console style and optional file.
type Options struct {
	Level string
	Style string // "pretty" (default) or "json"
	File  string // JSON lines appended next to the console output
}

func consoleWriter(style string) io.Writer {
	if style == "json" {
		return os.Stderr
	}
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}

// New returns a root logger writing to w, or pretty stderr when w is nil.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = consoleWriter("pretty")
	}
	return &Logger{zl: zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()}
}

// Open builds the server's root logger. The closer is never nil.
func Open(opts Options) (*Logger, io.Closer, error) {
	console := consoleWriter(opts.Style)
	if opts.File == "" {
		return New(console, opts.Level), io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return New(zerolog.MultiLevelWriter(console, f), opts.Level), f, nil
}

// Nop discards everything. Tests and one-shot CLI probes use it.
func Nop() *Logger { return &Logger{zl: zerolog.Nop()} }

// Sub tags a child with the subsystem it logs for, e.g. "gateway".
func (l *Logger) Sub(subsystem string) *Logger { return l.With("subsystem", subsystem) }

// With tags a child with one more string field, e.g. a connection id.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

func (l *Logger) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// parseLevel maps config names onto zerolog levels. "silent" disables
// output; anything unrecognised is info.
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "silent" {
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" || lvl == zerolog.NoLevel || lvl > zerolog.FatalLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
