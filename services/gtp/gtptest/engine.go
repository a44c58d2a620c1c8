// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gtptest provides an in-memory GTP engine for tests.
//
// The engine is a gtp.Server on pipes with a real board behind it. It
// records every line it receives so tests can assert on the exact commands
// a client, synchronizer or adapter sent.
//
//	e := gtptest.New(t, gtptest.WithGenmoveReplies("D4"))
//	client := e.Client()
//	_, err := client.Send(ctx, "genmove black")
//	assert.Equal(t, []string{"genmove black"}, e.Commands())
package gtptest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianGTP/services/gtp"
	"github.com/AleutianAI/AleutianGTP/services/gtp/board"
)

// Option configures an Engine.
type Option func(*Engine)

// WithVersion makes the engine speak protocol version 1: protocol_version
// answers 1, moves use black/white and genmove_black/genmove_white, and
// there is no clear_board.
func WithVersion(v int) Option {
	return func(e *Engine) {
		e.version = v
	}
}

// WithoutCommands removes commands after the defaults are registered.
func WithoutCommands(names ...string) Option {
	return func(e *Engine) {
		e.without = append(e.without, names...)
	}
}

// WithGenmoveReplies queues genmove answers. "resign" and "pass" are
// allowed. Without queued replies genmove passes.
func WithGenmoveReplies(replies ...string) Option {
	return func(e *Engine) {
		e.replies = append(e.replies, replies...)
	}
}

// WithGGUndo adds gg-undo, which takes back several moves at once.
func WithGGUndo() Option {
	return func(e *Engine) {
		e.ggUndo = true
	}
}

// WithHandler registers an extra or replacement command.
func WithHandler(name string, h gtp.Handler) Option {
	return func(e *Engine) {
		e.extra = append(e.extra, namedHandler{name, h})
	}
}

type namedHandler struct {
	name string
	h    gtp.Handler
}

// Engine is a scripted in-memory GTP engine.
//
// Thread Safety:
//
//	Accessors are safe to call while the engine serves.
type Engine struct {
	srv     *gtp.Server
	version int
	ggUndo  bool
	without []string
	extra   []namedHandler

	mu       sync.Mutex
	board    *board.Board
	replies  []string
	komi     string
	received []string
	partial  []byte

	toEngine   *io.PipeWriter
	fromEngine *io.PipeWriter
	ch         *gtp.StreamChannel
	done       chan struct{}
	closeOnce  sync.Once
}

// New starts an engine on a 19x19 board. It is closed when the test ends.
func New(t testing.TB, opts ...Option) *Engine {
	t.Helper()
	b, err := board.New(19)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	e := &Engine{
		version: 2,
		board:   b,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.srv = gtp.NewServer(gtp.WithProtocolVersion(e.version))
	e.registerDefaults()
	for _, nh := range e.extra {
		e.srv.Register(nh.name, nh.h)
	}
	for _, name := range e.without {
		e.srv.Unregister(name)
	}

	cmdR, cmdW := io.Pipe()
	respR, respW := io.Pipe()
	e.toEngine = cmdW
	e.fromEngine = respW
	e.ch = gtp.NewStreamChannel(respR, cmdW)

	go func() {
		defer close(e.done)
		_ = e.srv.Serve(context.Background(), &recorder{r: cmdR, e: e}, respW)
		_ = respW.Close()
		_ = cmdR.Close()
	}()

	t.Cleanup(e.Close)
	return e
}

// Channel returns the client side of the engine.
func (e *Engine) Channel() *gtp.StreamChannel {
	return e.ch
}

// Client returns a new client on the engine's channel.
func (e *Engine) Client(opts ...gtp.ClientOption) *gtp.Client {
	return gtp.NewClient(e.ch, opts...)
}

// Server returns the engine's dispatcher for custom handlers.
func (e *Engine) Server() *gtp.Server {
	return e.srv
}

// Commands returns the command lines received so far, comments excluded.
func (e *Engine) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, line := range e.received {
		if !gtp.IsComment(line) {
			out = append(out, line)
		}
	}
	return out
}

// Lines returns every non-empty line received, comments included.
func (e *Engine) Lines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.received...)
}

// ResetLog forgets the received lines.
func (e *Engine) ResetLog() {
	e.mu.Lock()
	e.received = nil
	e.mu.Unlock()
}

// Position returns the engine's board.
func (e *Engine) Position() board.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Snapshot()
}

// Moves returns the engine's moves as "black D4" strings.
func (e *Engine) Moves() []string {
	snap := e.Position()
	out := make([]string, len(snap.Moves))
	for i, m := range snap.Moves {
		out[i] = m.String()
	}
	return out
}

// Komi returns the last komi received.
func (e *Engine) Komi() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.komi
}

// Kill makes the engine vanish: its output ends and input is discarded.
func (e *Engine) Kill() {
	_ = e.fromEngine.Close()
	_ = e.toEngine.CloseWithError(io.ErrClosedPipe)
}

// Close ends the engine and waits for its goroutine. A handler that is
// still running must return first.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		_ = e.toEngine.Close()
		_ = e.fromEngine.Close()
		<-e.done
	})
}

// =============================================================================
// COMMANDS
// =============================================================================

func (e *Engine) registerDefaults() {
	e.srv.Register("name", constant("FakeEngine"))
	e.srv.Register("version", constant("1.0"))
	e.srv.Register("boardsize", e.cmdBoardsize)
	e.srv.Register("komi", e.cmdKomi)
	e.srv.Register("undo", e.cmdUndo)
	e.srv.Register("set_free_handicap", e.cmdSetFreeHandicap)
	if e.ggUndo {
		e.srv.Register("gg-undo", e.cmdGGUndo)
	}
	e.srv.Register("place_free_handicap", e.cmdPlaceFreeHandicap)

	if e.version == 1 {
		e.srv.Register("black", e.cmdPlayColor(board.Black))
		e.srv.Register("white", e.cmdPlayColor(board.White))
		e.srv.Register("genmove_black", e.cmdGenmoveColor(board.Black))
		e.srv.Register("genmove_white", e.cmdGenmoveColor(board.White))
		return
	}
	e.srv.Register("clear_board", e.cmdClearBoard)
	e.srv.Register("play", e.cmdPlay)
	e.srv.Register("genmove", e.cmdGenmove)
}

func constant(s string) gtp.Handler {
	return func(context.Context, gtp.Command) (string, error) {
		return s, nil
	}
}

func (e *Engine) cmdBoardsize(_ context.Context, cmd gtp.Command) (string, error) {
	size, err := cmd.Int(0)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.board.Init(size); err != nil {
		return "", gtp.Failure("unacceptable size")
	}
	return "", nil
}

func (e *Engine) cmdClearBoard(context.Context, gtp.Command) (string, error) {
	e.mu.Lock()
	e.board.Clear()
	e.mu.Unlock()
	return "", nil
}

func (e *Engine) cmdKomi(_ context.Context, cmd gtp.Command) (string, error) {
	if _, err := cmd.Float(0); err != nil {
		return "", gtp.Failure("syntax error")
	}
	e.mu.Lock()
	e.komi = cmd.Args[0]
	e.mu.Unlock()
	return "", nil
}

func (e *Engine) cmdUndo(context.Context, gtp.Command) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.board.Undo() {
		return "", gtp.Failure("cannot undo")
	}
	return "", nil
}

func (e *Engine) cmdGGUndo(_ context.Context, cmd gtp.Command) (string, error) {
	n := 1
	if len(cmd.Args) > 0 {
		var err error
		if n, err = cmd.Int(0); err != nil || n < 0 {
			return "", gtp.Failure("invalid argument")
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.board.MoveCount() < n {
		return "", gtp.Failure("cannot undo")
	}
	e.board.UndoN(n)
	return "", nil
}

func (e *Engine) cmdPlay(ctx context.Context, cmd gtp.Command) (string, error) {
	if err := cmd.CheckArgs(2, 2); err != nil {
		return "", err
	}
	c, err := cmd.Color(0)
	if err != nil {
		return "", err
	}
	return e.play(c, cmd.Args[1])
}

func (e *Engine) cmdPlayColor(c board.Color) gtp.Handler {
	return func(_ context.Context, cmd gtp.Command) (string, error) {
		if err := cmd.CheckArgs(1, 1); err != nil {
			return "", err
		}
		return e.play(c, cmd.Args[0])
	}
}

func (e *Engine) play(c board.Color, vertex string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := gtp.ParsePoint(vertex, e.board.Size())
	if err != nil {
		return "", gtp.Failure("invalid coordinate")
	}
	m := board.Pass(c)
	if p != nil {
		m = board.Play(c, *p)
	}
	if err := e.board.Play(m); err != nil {
		return "", gtp.Failure("illegal move")
	}
	return "", nil
}

func (e *Engine) cmdGenmove(ctx context.Context, cmd gtp.Command) (string, error) {
	c, err := cmd.Color(0)
	if err != nil {
		return "", err
	}
	return e.genmove(c)
}

func (e *Engine) cmdGenmoveColor(c board.Color) gtp.Handler {
	return func(context.Context, gtp.Command) (string, error) {
		return e.genmove(c)
	}
}

func (e *Engine) genmove(c board.Color) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	reply := "pass"
	if len(e.replies) > 0 {
		reply = e.replies[0]
		e.replies = e.replies[1:]
	}
	if strings.EqualFold(reply, "resign") {
		return reply, nil
	}
	p, err := gtp.ParsePoint(reply, e.board.Size())
	if err != nil {
		return reply, nil
	}
	m := board.Pass(c)
	if p != nil {
		m = board.Play(c, *p)
	}
	if err := e.board.Play(m); err != nil {
		return "", gtp.Failure("scripted move %s is illegal", reply)
	}
	return reply, nil
}

func (e *Engine) cmdSetFreeHandicap(_ context.Context, cmd gtp.Command) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pts, err := gtp.ParsePointList(cmd.ArgString(), e.board.Size())
	if err != nil {
		return "", gtp.Failure("invalid coordinate")
	}
	stones := make([]board.Move, 0, len(pts))
	for _, p := range pts {
		if p == nil {
			return "", gtp.Failure("pass not allowed")
		}
		stones = append(stones, board.Play(board.Black, *p))
	}
	if err := e.board.Setup(stones, board.White); err != nil {
		return "", gtp.Failure("%s", err.Error())
	}
	return "", nil
}

func (e *Engine) cmdPlaceFreeHandicap(_ context.Context, cmd gtp.Command) (string, error) {
	n, err := cmd.Int(0)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pts, err := board.HandicapPoints(e.board.Size(), n)
	if err != nil {
		return "", gtp.Failure("invalid handicap")
	}
	stones := make([]board.Move, len(pts))
	names := make([]string, len(pts))
	for i, p := range pts {
		stones[i] = board.Play(board.Black, p)
		names[i] = p.String()
	}
	if err := e.board.Setup(stones, board.White); err != nil {
		return "", gtp.Failure("%s", err.Error())
	}
	return strings.Join(names, " "), nil
}

// =============================================================================
// RECORDING
// =============================================================================

// recorder logs complete lines as the server reads them.
type recorder struct {
	r io.Reader
	e *Engine
}

func (r *recorder) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.e.record(p[:n])
	}
	if errors.Is(err, io.ErrClosedPipe) {
		err = io.EOF
	}
	return n, err
}

func (e *Engine) record(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.partial = append(e.partial, data...)
	for {
		i := strings.IndexByte(string(e.partial), '\n')
		if i < 0 {
			return
		}
		line := gtp.NormalizeLine(string(e.partial[:i]))
		e.partial = e.partial[i+1:]
		if line != "" {
			e.received = append(e.received, line)
		}
	}
}
