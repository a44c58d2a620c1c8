// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package logging configures structured logging for the GTP binaries.
//
// The logger is a log/slog logger that writes to stderr, to a dated JSON
// file, or both. Stdout is never used: the adapter's stdout carries the GTP
// stream.
//
//	┌───────────────────────────────────────────┐
//	│                 Logger                    │
//	│  ┌──────────────┐   ┌──────────────────┐  │
//	│  │ stderr       │   │ log file (JSON)  │  │
//	│  │ text or JSON │   │ optional         │  │
//	│  └──────────────┘   └──────────────────┘  │
//	└───────────────────────────────────────────┘
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelDebug,
//	    LogDir:  "~/.aleutian/logs",
//	    Service: "gtpadapter",
//	})
//	defer logger.Close()
//	client := gtp.NewClient(ch, gtp.WithLogger(logger.Slog()))
//
// # Thread Safety
//
// Logger is safe for concurrent use.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level is a log severity. Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug includes protocol traffic and engine stderr.
	LevelDebug Level = iota

	// LevelInfo is engine start and exit, adapter readiness.
	LevelInfo

	// LevelWarn is recoverable trouble: malformed responses, failed syncs.
	LevelWarn

	// LevelError is failures that end a command or the process.
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR" or "UNKNOWN".
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

// ParseLevel parses a level name, case-insensitively. "warning" is
// accepted for Warn.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures a Logger. The zero value logs Info and above to stderr
// as text.
type Config struct {
	// Level is the minimum level. Default LevelInfo.
	Level Level

	// LogDir enables a JSON log file "{Service}_{YYYY-MM-DD}.log" in this
	// directory, created with 0750 if missing. "~" is expanded.
	LogDir string

	// Service is added to every record as "service".
	Service string

	// JSON selects JSON instead of text for the stream output. The file
	// is always JSON.
	JSON bool

	// Quiet disables the stream output.
	Quiet bool

	// Output replaces stderr as the stream output.
	Output io.Writer
}

// =============================================================================
// Logger
// =============================================================================

// Logger wraps a slog.Logger and the log file it may own.
type Logger struct {
	slog   *slog.Logger
	config Config
	file   *os.File
	owner  bool
	mu     sync.Mutex
}

// New creates a logger. A log directory that cannot be created or opened
// is skipped and reported on the stream output.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	var handlers []slog.Handler
	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	logger := &Logger{config: config, owner: true}
	var fileErr error
	if config.LogDir != "" {
		logger.file, fileErr = openLogFile(config.LogDir, config.Service)
		if fileErr == nil {
			handlers = append(handlers, slog.NewJSONHandler(logger.file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(out, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}
	logger.slog = slog.New(handler)

	if fileErr != nil {
		logger.slog.Warn("File logging disabled",
			slog.String("dir", config.LogDir),
			slog.String("error", fileErr.Error()),
		)
	}
	return logger
}

// Default returns an Info logger on stderr for service "gtp".
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "gtp"})
}

func openLogFile(dir, service string) (*os.File, error) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if service == "" {
		service = "gtp"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Debug logs at Debug level.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at Info level.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at Warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at Error level.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child logger with extra attributes. The child shares the
// log file; only the parent closes it.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
		file:   l.file,
	}
}

// Slog returns the underlying slog.Logger for library packages.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close syncs and closes the log file, if this logger owns one.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil || !l.owner {
		return nil
	}
	f := l.file
	l.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// =============================================================================
// Multi-Handler
// =============================================================================

// multiHandler fans records out to several handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
