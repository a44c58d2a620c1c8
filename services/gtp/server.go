// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gtp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler executes one command and returns the success body. A returned
// error becomes a failure response; for *CommandError the Message is used
// verbatim, otherwise err.Error().
type Handler func(ctx context.Context, cmd Command) (string, error)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProtocolVersion sets the value answered by protocol_version.
func WithProtocolVersion(v int) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is a GTP command dispatcher.
//
// Description:
//
//	Reads command lines, skips blank and comment lines, strips an
//	optional numeric id, runs the registered handler and writes the
//	framed response with the id echoed. Handlers run one at a time on
//	the Serve goroutine. After quit the loop ends once its response is
//	written.
//
//	protocol_version, list_commands, help, known_command and quit are
//	registered by default and may be replaced.
//
// Thread Safety:
//
//	Register, Unregister and RequestQuit are safe for concurrent use,
//	including from handlers.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	logger  *slog.Logger
	version int
	quit    atomic.Bool
}

// NewServer creates a server with the built-in commands.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		logger:   slog.Default(),
		version:  2,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Register("protocol_version", func(context.Context, Command) (string, error) {
		return strconv.Itoa(s.version), nil
	})
	list := func(context.Context, Command) (string, error) {
		return strings.Join(s.Commands(), "\n"), nil
	}
	s.Register("list_commands", list)
	s.Register("help", list)
	s.Register("known_command", func(_ context.Context, cmd Command) (string, error) {
		if err := cmd.CheckArgs(1, 1); err != nil {
			return "", err
		}
		return strconv.FormatBool(s.IsRegistered(cmd.Args[0])), nil
	})
	s.Register("quit", func(context.Context, Command) (string, error) {
		s.RequestQuit()
		return "", nil
	})
	return s
}

// Register adds or replaces the handler for name.
func (s *Server) Register(name string, h Handler) {
	s.mu.Lock()
	s.handlers[name] = h
	s.mu.Unlock()
}

// Unregister removes the handler for name.
func (s *Server) Unregister(name string) {
	s.mu.Lock()
	delete(s.handlers, name)
	s.mu.Unlock()
}

// IsRegistered reports whether name has a handler.
func (s *Server) IsRegistered(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.handlers[name]
	return ok
}

// Commands returns the registered names, sorted.
func (s *Server) Commands() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequestQuit ends Serve after the current response.
func (s *Server) RequestQuit() {
	s.quit.Store(true)
}

// QuitRequested reports whether quit was requested.
func (s *Server) QuitRequested() bool {
	return s.quit.Load()
}

// Serve runs the command loop until quit, end of input or ctx is done.
//
// Outputs:
//
//	error - nil after quit or end of input; ctx.Err() on cancellation;
//	  otherwise the read or write failure
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	s.quit.Store(false)
	lines := newLineReader(r)
	defer lines.stop()
	bw := bufio.NewWriter(w)

	for {
		raw, err := lines.next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if lines.err != nil {
					return fmt.Errorf("read command: %w", lines.err)
				}
				return nil
			}
			return err
		}

		line := NormalizeLine(raw)
		if IsComment(line) {
			continue
		}
		cmd, err := ParseCommand(line)
		if errors.Is(err, ErrEmptyCommand) {
			continue
		}

		var ok bool
		var body string
		if err != nil {
			body = "invalid command"
		} else {
			ok, body = s.dispatch(ctx, cmd)
		}

		if _, err := bw.WriteString(FormatResponse(ok, cmd.ID, body)); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if s.quit.Load() {
			return nil
		}
	}
}

// dispatch runs the handler for cmd.
func (s *Server) dispatch(ctx context.Context, cmd Command) (bool, string) {
	s.mu.RLock()
	h, found := s.handlers[cmd.Name]
	s.mu.RUnlock()
	if !found {
		serverCommands.WithLabelValues("unknown", "failed").Inc()
		return false, "unknown command"
	}

	ctx, span := tracer.Start(ctx, "Server.Dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("gtp.command", cmd.Name),
			attribute.Int("gtp.args", len(cmd.Args)),
		),
	)
	start := time.Now()
	body, err := h(ctx, cmd)
	serverLatency.WithLabelValues(cmd.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		serverCommands.WithLabelValues(cmd.Name, "failed").Inc()
		endSpan(span, err, attribute.Bool("gtp.success", false))
		msg := failureMessage(err)
		s.logger.Debug("GTP command failed",
			slog.String("command", cmd.Line),
			slog.String("error", msg),
		)
		return false, msg
	}
	serverCommands.WithLabelValues(cmd.Name, "ok").Inc()
	endSpan(span, nil, attribute.Bool("gtp.success", true))
	return true, body
}

// failureMessage picks the failure body for err.
func failureMessage(err error) string {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}
