// Package logging configures the application's structured logger and extracts per-job import logs.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxAgeDays = 30
	defaultMaxBackups = 10
	defaultMaxSizeMB  = 50
)

// Config holds the configuration for creating a Logger.
type Config struct {
	// Console receives console output. Defaults to os.Stderr.
	Console io.Writer

	// ConsoleLevel is the minimum level written to Console.
	ConsoleLevel slog.Level

	// Dir is the directory for the application log file. No file is written when empty.
	Dir string

	// FileLevel is the minimum level written to the log file.
	FileLevel slog.Level

	// MaxAgeDays is how long rotated files are kept. Default is 30.
	MaxAgeDays int

	// MaxBackups is the number of rotated files kept. Default is 10.
	MaxBackups int

	// MaxSizeMB is the size at which the file is rotated. Default is 50.
	MaxSizeMB int

	// Now returns the current time, used to name the log file. Defaults to time.Now.
	Now func() time.Time
}

// Logger is a slog.Logger that writes to the console and, optionally, a rotating file.
type Logger struct {
	*slog.Logger

	file *lumberjack.Logger
}

// New creates a Logger. The file is named APP_<YYYYMMDD_HHMMSS>.log.
func New(cfg Config) (*Logger, error) {
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: cfg.ConsoleLevel}),
	}

	var file *lumberjack.Logger
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, "APP_"+now().Format("20060102_150405")+".log"),
			MaxAge:     orDefault(cfg.MaxAgeDays, defaultMaxAgeDays),
			MaxBackups: orDefault(cfg.MaxBackups, defaultMaxBackups),
			MaxSize:    orDefault(cfg.MaxSizeMB, defaultMaxSizeMB),
		}
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: cfg.FileLevel}))
	}

	return &Logger{Logger: slog.New(&fanout{handlers: handlers}), file: file}, nil
}

// FilePath returns the application log file, or "" when logging to the console only.
func (l *Logger) FilePath() string {
	if l.file == nil {
		return ""
	}
	return l.file.Filename
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel parses debug, info, warn or error, ignoring case. An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// fanout sends each record to every handler that accepts its level.
type fanout struct {
	handlers []slog.Handler
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h.WithAttrs(attrs))
	}
	return &fanout{handlers: handlers}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h.WithGroup(name))
	}
	return &fanout{handlers: handlers}
}
