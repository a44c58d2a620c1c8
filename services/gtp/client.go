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

	"github.com/AleutianAI/AleutianGTP/services/gtp/board"
)

// =============================================================================
// OPTIONS
// =============================================================================

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver installs a traffic observer. It also receives engine stderr
// if the channel carries one.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		if o != nil {
			c.observer = o
			c.observed = true
		}
	}
}

// WithEngineName sets the name used in errors, logs and metrics.
func WithEngineName(name string) ClientOption {
	return func(c *Client) {
		c.engine = name
	}
}

// WithDefaultTimeout bounds every exchange whose context has no deadline.
func WithDefaultTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithSignalInterrupt makes Interrupt use the channel's out-of-band signal
// instead of the "# interrupt" comment line.
func WithSignalInterrupt(enabled bool) ClientOption {
	return func(c *Client) {
		c.signalInterrupt = enabled
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client sends GTP commands to one engine.
//
// Description:
//
//	Exactly one command is in flight at a time. Execute blocks until a
//	complete response frame arrives, the stream ends, or ctx is done. A
//	deadline or cancellation abandons the read; because the engine is
//	then mid-response, the connection is marked dead. Dead is permanent.
//
// Thread Safety:
//
//	Safe for concurrent use. Concurrent calls are serialized. Interrupt
//	may be called while another goroutine is blocked in Execute.
type Client struct {
	ch              Channel
	engine          string
	logger          *slog.Logger
	observer        Observer
	observed        bool
	timeout         time.Duration
	signalInterrupt bool

	mu   sync.Mutex // held for a whole exchange
	dead atomic.Bool

	version   atomic.Int32
	stateMu   sync.RWMutex
	supported map[string]bool
}

// NewClient creates a client on ch. The protocol version is 1 until
// QueryProtocolVersion says otherwise.
func NewClient(ch Channel, opts ...ClientOption) *Client {
	c := &Client{
		ch:        ch,
		logger:    slog.Default(),
		observer:  nopObserver{},
		supported: make(map[string]bool),
	}
	if named, ok := ch.(interface{ Name() string }); ok {
		c.engine = named.Name()
	}
	c.version.Store(1)
	for _, opt := range opts {
		opt(c)
	}
	// Without an observer the channel keeps its own stderr logging.
	if src, ok := ch.(stderrSource); ok && c.observed {
		src.setStderrFunc(c.observer.StderrReceived)
	}
	return c
}

// Execute sends one command and returns its response.
//
// Description:
//
//	A "?" response is returned as a Response with OK false and a nil
//	error. Errors are reserved for local and transport failures.
//
// Inputs:
//
//	ctx - Bounds the wait for the response. Cancellation kills the
//	  connection.
//	cmd - One command line without newline and without id.
//
// Errors:
//
//	ErrEmptyCommand - cmd is empty or a comment; nothing is sent
//	ErrInvalidCommand - cmd contains a newline; nothing is sent
//	ErrEngineDied - the engine is or became dead
//	ErrWrite - the write failed; the engine is now dead
//	ErrTimeout - the deadline passed; the engine is now dead
//	ErrInterrupted - ctx was cancelled; the engine is now dead
//	ErrProtocolFormat - malformed status line; the engine stays alive
func (c *Client) Execute(ctx context.Context, cmd string) (Response, error) {
	if ctx == nil {
		return Response{}, fmt.Errorf("ctx must not be nil")
	}
	line := strings.TrimSpace(cmd)
	if IsComment(line) {
		return Response{}, ErrEmptyCommand
	}
	if strings.ContainsAny(line, "\r\n") {
		return Response{}, fmt.Errorf("%w: %q contains a newline", ErrInvalidCommand, line)
	}
	if !c.IsAlive() {
		return Response{}, c.deadError("send")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.IsAlive() {
		return Response{}, c.deadError("send")
	}

	if c.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}

	name, _, _ := strings.Cut(line, " ")
	ctx, span := startCommandSpan(ctx, name, c.engine)
	start := time.Now()

	resp, err := c.exchange(ctx, line, name)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case !resp.OK:
		outcome = "failed"
	}
	recordCommand(ctx, name, c.engine, time.Since(start), outcome)
	endSpan(span, err,
		attribute.String("gtp.outcome", outcome),
		attribute.Int("gtp.response_bytes", len(resp.Body)),
	)
	return resp, err
}

// exchange writes line and reads one frame. Caller holds c.mu.
func (c *Client) exchange(ctx context.Context, line, name string) (Response, error) {
	if err := c.ch.WriteLine(line); err != nil {
		if errors.Is(err, ErrInvalidCommand) {
			return Response{}, err
		}
		c.kill(ctx, "write", err)
		return Response{}, &EngineError{Op: "write", Engine: c.engine, Cause: err}
	}
	c.observer.CommandSent(line)

	resp, raw, err := readFrame(func() (string, error) {
		return c.ch.ReadLine(ctx)
	})
	if err == nil {
		c.observer.ResponseReceived(raw, !resp.OK)
		return resp, nil
	}

	switch {
	case errors.Is(err, ErrProtocolFormat):
		c.observer.ResponseReceived(raw, true)
		c.logger.Warn("Malformed GTP response",
			slog.String("engine", c.engine),
			slog.String("command", name),
			slog.String("line", raw),
		)
		return Response{}, fmt.Errorf("%s: %w", name, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		c.kill(ctx, "eof", err)
		return Response{}, &EngineError{Op: "read", Engine: c.engine, Cause: ErrEngineDied}
	case errors.Is(err, context.DeadlineExceeded):
		c.kill(ctx, "timeout", err)
		return Response{}, &EngineError{Op: "read", Engine: c.engine, Cause: fmt.Errorf("%w: %s", ErrTimeout, name)}
	case errors.Is(err, context.Canceled):
		c.kill(ctx, "interrupted", err)
		return Response{}, &EngineError{Op: "read", Engine: c.engine, Cause: fmt.Errorf("%w: %s", ErrInterrupted, name)}
	default:
		c.kill(ctx, "read", err)
		return Response{}, &EngineError{Op: "read", Engine: c.engine, Cause: fmt.Errorf("%w: %w", ErrEngineDied, err)}
	}
}

// Send sends a command and returns the success body.
//
// Errors:
//
//	*CommandError - the engine answered "?"
//	otherwise as Execute
func (c *Client) Send(ctx context.Context, cmd string) (string, error) {
	resp, err := c.Execute(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", &CommandError{Command: strings.TrimSpace(cmd), Message: resp.Body}
	}
	return resp.Body, nil
}

// SendWithTimeout is Send with a relative deadline. A timeout <= 0 waits
// indefinitely.
func (c *Client) SendWithTimeout(cmd string, timeout time.Duration) (string, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.Send(ctx, cmd)
}

// =============================================================================
// DISCOVERY
// =============================================================================

// QueryProtocolVersion sends protocol_version.
//
// Description:
//
//	A "?" response leaves the version at 1; many engines lack the
//	command.
//
// Errors:
//
//	ErrUnsupportedProtocol - the engine answered something other than 1 or 2
//	transport errors as Execute
func (c *Client) QueryProtocolVersion(ctx context.Context) error {
	resp, err := c.Execute(ctx, "protocol_version")
	if err != nil {
		return err
	}
	if !resp.OK {
		return nil
	}
	body := strings.TrimSpace(resp.Body)
	v, err := strconv.Atoi(body)
	if err != nil || (v != 1 && v != 2) {
		return fmt.Errorf("%w: %q", ErrUnsupportedProtocol, body)
	}
	c.version.Store(int32(v))
	return nil
}

// QuerySupportedCommands sends list_commands (help under version 1) and
// remembers the result for IsSupported.
func (c *Client) QuerySupportedCommands(ctx context.Context) error {
	cmd := "list_commands"
	if c.ProtocolVersion() == 1 {
		cmd = "help"
	}
	body, err := c.Send(ctx, cmd)
	if err != nil {
		return err
	}
	supported := make(map[string]bool)
	for _, line := range strings.Split(body, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			supported[name] = true
		}
	}
	c.stateMu.Lock()
	c.supported = supported
	c.stateMu.Unlock()
	return nil
}

// IsSupported reports whether the engine listed name.
func (c *Client) IsSupported(name string) bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.supported[name]
}

// SupportedCommands returns the listed commands, sorted.
func (c *Client) SupportedCommands() []string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	out := make([]string, 0, len(c.supported))
	for name := range c.supported {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ProtocolVersion returns 1 or 2.
func (c *Client) ProtocolVersion() int {
	return int(c.version.Load())
}

// EngineName returns the engine name.
func (c *Client) EngineName() string {
	return c.engine
}

// =============================================================================
// VERSION-SPECIFIC COMMANDS
// =============================================================================

// CommandGenmove returns "genmove black" or, under version 1,
// "genmove_black".
func (c *Client) CommandGenmove(color board.Color) string {
	if c.ProtocolVersion() == 1 {
		return "genmove_" + color.String()
	}
	return "genmove " + color.String()
}

// CommandPlay returns "play black D4" or, under version 1, "black D4".
func (c *Client) CommandPlay(m board.Move) string {
	if c.ProtocolVersion() == 1 {
		return m.String()
	}
	return "play " + m.String()
}

// CommandBoardsize returns "boardsize <size>".
func (c *Client) CommandBoardsize(size int) string {
	return "boardsize " + strconv.Itoa(size)
}

// CommandClearBoard returns "clear_board", or "" under version 1 where
// boardsize clears the board.
func (c *Client) CommandClearBoard(_ int) string {
	if c.ProtocolVersion() == 1 {
		return ""
	}
	return "clear_board"
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Interrupt asks the engine to finish the running command early.
//
// Description:
//
//	Advisory; the pending Execute still reads the response normally.
//	With WithSignalInterrupt the channel signal is used (SIGINT for
//	processes). Otherwise engines listing gogui-interrupt get a
//	"# interrupt" comment line, which keeps the framing intact.
//
// Errors:
//
//	ErrInterruptUnsupported - neither mechanism is available
func (c *Client) Interrupt() error {
	if c.signalInterrupt {
		return c.ch.Interrupt()
	}
	if c.IsSupported("gogui-interrupt") {
		return c.ch.WriteLine("# interrupt")
	}
	return ErrInterruptUnsupported
}

// IsAlive reports whether commands can still be sent.
func (c *Client) IsAlive() bool {
	return !c.dead.Load() && c.ch.IsAlive()
}

// Close marks the client dead and closes the channel. It does not send
// quit.
func (c *Client) Close(ctx context.Context) error {
	c.dead.Store(true)
	return c.ch.Close(ctx)
}

// kill marks the connection dead once and records why.
func (c *Client) kill(ctx context.Context, reason string, cause error) {
	if !c.dead.CompareAndSwap(false, true) {
		return
	}
	recordEngineDeath(ctx, c.engine, reason)
	c.logger.Warn("Engine connection is dead",
		slog.String("engine", c.engine),
		slog.String("reason", reason),
		slog.String("error", cause.Error()),
	)
}

func (c *Client) deadError(op string) error {
	return &EngineError{Op: op, Engine: c.engine, Cause: ErrEngineDied}
}
