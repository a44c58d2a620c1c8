// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package adapter sits between a GTP controller and a GTP engine.
//
// The adapter answers the controller as a gtp.Server and drives the engine
// through a gtp.Client. It keeps its own board; every state-changing
// command is applied to that board first and the engine is then brought
// in line by a gtp.Synchronizer. Commands that do not change the position
// are forwarded verbatim.
//
//	client := gtp.NewClient(channel)
//	a, err := adapter.New(ctx, client, adapter.Config{Size: 19, Version1: true})
//	if err != nil {
//	    return err
//	}
//	return a.Serve(ctx, os.Stdin, os.Stdout)
package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianGTP/services/gtp"
	"github.com/AleutianAI/AleutianGTP/services/gtp/board"
)

// Config configures an Adapter.
type Config struct {
	// Size is the initial board size. Zero means 19.
	Size int

	// Version1 makes the adapter speak protocol version 1 to the
	// controller: black, white, genmove_black and genmove_white instead of
	// play and genmove, and protocol_version answers 1.
	Version1 bool

	// FillPasses inserts passes so the engine sees alternating colors.
	FillPasses bool

	// Lowercase lowercases points in genmove responses.
	Lowercase bool

	// Name overrides the engine's answer to name.
	Name string

	// Logger receives adapter logs. Nil means slog.Default().
	Logger *slog.Logger
}

// stateCommands change the engine's position. They are never forwarded
// verbatim.
var stateCommands = map[string]bool{
	"play":                true,
	"black":               true,
	"white":               true,
	"genmove":             true,
	"genmove_black":       true,
	"genmove_white":       true,
	"undo":                true,
	"gg-undo":             true,
	"boardsize":           true,
	"clear_board":         true,
	"set_free_handicap":   true,
	"place_free_handicap": true,
	"fixed_handicap":      true,
	"loadsgf":             true,
	"gogui-setup":         true,
	"gogui-setup_player":  true,
	"quit":                true,
}

// localCommands are answered by the adapter's own server.
var localCommands = map[string]bool{
	"protocol_version": true,
	"list_commands":    true,
	"help":             true,
	"known_command":    true,
}

// Adapter is a protocol adapter around one engine.
//
// Thread Safety:
//
//	Handlers run on the Serve goroutine. Board may be called from any
//	goroutine.
type Adapter struct {
	id     string
	cfg    Config
	logger *slog.Logger
	client *gtp.Client
	server *gtp.Server
	sync   *gtp.Synchronizer

	mu    sync.Mutex
	board *board.Board
}

// New connects the adapter to the engine behind client.
//
// Description:
//
//	Queries the engine's protocol version and command list, registers a
//	forwarding handler for every engine command that does not change the
//	position, registers the adapter's own handlers for the ones that do,
//	and synchronizes the engine to an empty board of cfg.Size.
//
// Errors:
//
//	gtp.ErrUnsupportedProtocol - the engine speaks neither version 1 nor 2
//	board.ErrInvalidSize - cfg.Size is out of range
//	transport errors from the engine
//	*gtp.CommandError - the engine refused the initial board
func New(ctx context.Context, client *gtp.Client, cfg Config) (*Adapter, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	if cfg.Size == 0 {
		cfg.Size = 19
	}
	b, err := board.New(cfg.Size)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		id:     uuid.NewString(),
		cfg:    cfg,
		client: client,
		board:  b,
	}
	a.logger = logger.With(
		slog.String("adapter_id", a.id),
		slog.String("engine", client.EngineName()),
	)

	if err := client.QueryProtocolVersion(ctx); err != nil {
		return nil, fmt.Errorf("query protocol version: %w", err)
	}
	if err := client.QuerySupportedCommands(ctx); err != nil {
		if gtp.IsTransportError(err) {
			return nil, fmt.Errorf("query supported commands: %w", err)
		}
		a.logger.Warn("Engine did not list its commands", slog.String("error", err.Error()))
	}

	version := 2
	if cfg.Version1 {
		version = 1
	}
	a.server = gtp.NewServer(
		gtp.WithServerLogger(a.logger),
		gtp.WithProtocolVersion(version),
	)
	a.sync = gtp.NewSynchronizer(client,
		gtp.WithFillPasses(cfg.FillPasses),
		gtp.WithSyncLogger(a.logger),
	)
	a.registerForwarded()
	a.registerOverrides()

	if err := a.sync.Synchronize(ctx, b.Snapshot()); err != nil {
		return nil, fmt.Errorf("initial synchronization: %w", err)
	}
	a.logger.Info("Adapter ready",
		slog.Int("engine_protocol", client.ProtocolVersion()),
		slog.Int("protocol", version),
		slog.Int("size", cfg.Size),
		slog.Int("commands", len(a.server.Commands())),
	)
	return a, nil
}

// Serve answers the controller until quit, end of input or ctx is done.
func (a *Adapter) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	return a.server.Serve(ctx, r, w)
}

// Server returns the controller-facing dispatcher.
func (a *Adapter) Server() *gtp.Server {
	return a.server
}

// Board returns the adapter's position.
func (a *Adapter) Board() board.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.board.Snapshot()
}

// Close closes the engine connection.
func (a *Adapter) Close(ctx context.Context) error {
	return a.client.Close(ctx)
}

// =============================================================================
// REGISTRATION
// =============================================================================

func (a *Adapter) registerForwarded() {
	for _, name := range a.client.SupportedCommands() {
		if stateCommands[name] || localCommands[name] {
			continue
		}
		a.server.Register(name, a.alive(a.forward))
	}

	// Map the deprecated analyze spelling onto whichever one the engine has.
	analyze := ""
	switch {
	case a.client.IsSupported("gogui-analyze_commands"):
		analyze = "gogui-analyze_commands"
	case a.client.IsSupported("gogui_analyze_commands"):
		analyze = "gogui_analyze_commands"
	}
	if analyze != "" {
		h := a.alive(a.forwardAs(analyze))
		a.server.Register("gogui-analyze_commands", h)
		a.server.Register("gogui_analyze_commands", h)
	}
}

func (a *Adapter) registerOverrides() {
	if a.cfg.Version1 {
		a.server.Register("black", a.alive(a.cmdPlayColor(board.Black)))
		a.server.Register("white", a.alive(a.cmdPlayColor(board.White)))
		a.server.Register("genmove_black", a.alive(a.cmdGenmoveColor(board.Black)))
		a.server.Register("genmove_white", a.alive(a.cmdGenmoveColor(board.White)))
	} else {
		a.server.Register("play", a.alive(a.cmdPlay))
		a.server.Register("genmove", a.alive(a.cmdGenmove))
	}
	a.server.Register("undo", a.alive(a.cmdUndo))
	a.server.Register("gg-undo", a.alive(a.cmdGGUndo))
	a.server.Register("boardsize", a.alive(a.cmdBoardsize))
	a.server.Register("clear_board", a.alive(a.cmdClearBoard))
	a.server.Register("komi", a.alive(a.cmdKomi))
	a.server.Register("set_free_handicap", a.alive(a.cmdSetFreeHandicap))
	a.server.Register("place_free_handicap", a.alive(a.cmdPlaceFreeHandicap))
	a.server.Register("fixed_handicap", a.alive(a.cmdFixedHandicap))
	a.server.Register("loadsgf", a.alive(a.cmdLoadsgf))
	a.server.Register("gogui-adapter-showboard", a.cmdShowboard)
	if !a.client.IsSupported("showboard") {
		a.server.Register("showboard", a.cmdShowboard)
	}
	if a.cfg.Name != "" {
		name := a.cfg.Name
		a.server.Register("name", func(context.Context, gtp.Command) (string, error) {
			return name, nil
		})
	}
	a.server.Register("quit", a.cmdQuit)
}

// alive fails commands once the engine is gone.
func (a *Adapter) alive(h gtp.Handler) gtp.Handler {
	return func(ctx context.Context, cmd gtp.Command) (string, error) {
		if !a.client.IsAlive() {
			return "", gtp.Failure(gtp.DeadEngineMessage)
		}
		return h(ctx, cmd)
	}
}

// forward sends the command line to the engine unchanged.
func (a *Adapter) forward(ctx context.Context, cmd gtp.Command) (string, error) {
	body, err := a.client.Send(ctx, cmd.Line)
	if err != nil {
		return "", a.engineFailure(err)
	}
	return body, nil
}

// forwardAs sends the command's arguments under another name.
func (a *Adapter) forwardAs(name string) gtp.Handler {
	return func(ctx context.Context, cmd gtp.Command) (string, error) {
		line := name
		if len(cmd.Args) > 0 {
			line += " " + cmd.ArgString()
		}
		body, err := a.client.Send(ctx, line)
		if err != nil {
			return "", a.engineFailure(err)
		}
		return body, nil
	}
}

// engineFailure turns an engine error into the controller's failure text.
func (a *Adapter) engineFailure(err error) error {
	var ce *gtp.CommandError
	if errors.As(err, &ce) {
		return gtp.Failure("%s", ce.Message)
	}
	if !a.client.IsAlive() {
		return gtp.Failure(gtp.DeadEngineMessage)
	}
	return gtp.Failure("%s", err.Error())
}
