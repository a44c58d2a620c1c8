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
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianGTP/services/gtp/board"
)

// SyncEngine is what the Synchronizer needs from an engine. *Client
// implements it.
type SyncEngine interface {
	Send(ctx context.Context, cmd string) (string, error)
	IsSupported(name string) bool
	CommandPlay(m board.Move) string
	CommandBoardsize(size int) string
	CommandClearBoard(size int) string
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithFillPasses makes the synchronizer insert passes so that transmitted
// colors alternate. See FillPasses.
func WithFillPasses(enabled bool) SyncOption {
	return func(s *Synchronizer) {
		s.fillPasses = enabled
	}
}

// WithSyncLogger sets the synchronizer logger.
func WithSyncLogger(logger *slog.Logger) SyncOption {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// syncState is what the engine is believed to hold. moves are the
// transmitted moves, fill passes included.
type syncState struct {
	size   int
	setup  []board.Move
	toMove board.Color
	moves  []board.Move
}

func (st *syncState) setupSnapshot() board.Snapshot {
	return board.Snapshot{Size: st.size, Setup: st.setup, ToMove: st.toMove}
}

// Synchronizer keeps an engine's position equal to a target position.
//
// Description:
//
//	Remembers the position last transmitted. Synchronize keeps the common
//	move prefix, undoes the rest and plays the new moves. A different
//	board size or setup, a missing undo command, or an undo the engine
//	refuses triggers a full replay: boardsize, clear_board (version 2),
//	setup stones, all moves.
//
//	On failure the remembered state is left as it was before the call
//	and the next call does a full replay, since the engine may have
//	received part of the batch.
//
// Thread Safety:
//
//	Safe for concurrent use; calls are serialized.
type Synchronizer struct {
	engine     SyncEngine
	fillPasses bool
	logger     *slog.Logger

	mu        sync.Mutex
	state     *syncState
	outOfSync bool
}

// NewSynchronizer creates a synchronizer with no remembered state.
func NewSynchronizer(e SyncEngine, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		engine: e,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FillPasses returns moves with a pass inserted before every move whose
// color equals the previous move's color. Before the first move, the
// previous color is the one not to move after setup.
//
// The result depends only on toMove and moves, and the expansion of a
// prefix is a prefix of the expansion.
func FillPasses(toMove board.Color, moves []board.Move) []board.Move {
	out := make([]board.Move, 0, len(moves))
	prev := toMove.Opponent()
	for _, m := range moves {
		if m.Color == prev {
			out = append(out, board.Pass(m.Color.Opponent()))
		}
		out = append(out, m)
		prev = m.Color
	}
	return out
}

// Synchronize brings the engine to target.
//
// Errors:
//
//	*CommandError - the engine rejected a command
//	transport errors from the engine
func (s *Synchronizer) Synchronize(ctx context.Context, target board.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	moves := target.Moves
	if s.fillPasses {
		moves = FillPasses(target.ToMove, moves)
	}
	next := &syncState{
		size:   target.Size,
		setup:  target.Clone().Setup,
		toMove: target.ToMove,
		moves:  board.Snapshot{Moves: moves}.Clone().Moves,
	}

	mode, err := s.synchronize(ctx, next)
	status := "ok"
	if err != nil {
		status = "error"
		s.outOfSync = true
		s.logger.Warn("Engine synchronization failed",
			slog.String("mode", mode),
			slog.String("error", err.Error()),
		)
	}
	syncRuns.WithLabelValues(mode, status).Inc()
	if err != nil {
		return err
	}
	s.state = next
	s.outOfSync = false
	return nil
}

func (s *Synchronizer) synchronize(ctx context.Context, next *syncState) (string, error) {
	cur := s.state
	if cur == nil || s.outOfSync || cur.size != next.size ||
		!cur.setupSnapshot().SetupEqual(next.setupSnapshot()) {
		return "full", s.fullReplay(ctx, next)
	}

	prefix := commonPrefix(cur.moves, next.moves)
	excess := len(cur.moves) - prefix
	if excess == 0 && prefix == len(next.moves) {
		return "noop", nil
	}
	if excess > 0 {
		undone, err := s.undo(ctx, excess)
		if err != nil {
			return "incremental", err
		}
		if !undone {
			return "full", s.fullReplay(ctx, next)
		}
	}
	return "incremental", s.play(ctx, next.moves[prefix:])
}

// undo takes back n moves. It returns false without error when the engine
// cannot undo that far, which calls for a full replay.
func (s *Synchronizer) undo(ctx context.Context, n int) (bool, error) {
	if n > 1 && s.engine.IsSupported("gg-undo") {
		if err := s.send(ctx, "undo", "gg-undo "+strconv.Itoa(n)); err != nil {
			return false, refusedOrFatal(err)
		}
		return true, nil
	}
	if !s.engine.IsSupported("undo") {
		return false, nil
	}
	for i := 0; i < n; i++ {
		if err := s.send(ctx, "undo", "undo"); err != nil {
			return false, refusedOrFatal(err)
		}
	}
	return true, nil
}

// refusedOrFatal turns a refused undo into a full replay request.
func refusedOrFatal(err error) error {
	var ce *CommandError
	if errors.As(err, &ce) {
		return nil
	}
	return err
}

func (s *Synchronizer) fullReplay(ctx context.Context, next *syncState) error {
	if err := s.send(ctx, "boardsize", s.engine.CommandBoardsize(next.size)); err != nil {
		return err
	}
	if clear := s.engine.CommandClearBoard(next.size); clear != "" {
		if err := s.send(ctx, "clear_board", clear); err != nil {
			return err
		}
	}
	if err := s.sendSetup(ctx, next); err != nil {
		return err
	}
	return s.play(ctx, next.moves)
}

// sendSetup transmits setup stones with gogui-setup, set_free_handicap for
// all-black setups, or one play per stone.
func (s *Synchronizer) sendSetup(ctx context.Context, next *syncState) error {
	if len(next.setup) == 0 {
		return nil
	}

	if s.engine.IsSupported("gogui-setup") {
		var sb strings.Builder
		sb.WriteString("gogui-setup")
		for _, m := range next.setup {
			sb.WriteString(" " + m.Color.Letter() + " " + m.Vertex())
		}
		if err := s.send(ctx, "setup", sb.String()); err != nil {
			return err
		}
		if s.engine.IsSupported("gogui-setup_player") {
			return s.send(ctx, "setup", "gogui-setup_player "+next.toMove.Letter())
		}
		return nil
	}

	if allColor(next.setup, board.Black) && s.engine.IsSupported("set_free_handicap") {
		var sb strings.Builder
		sb.WriteString("set_free_handicap")
		for _, m := range next.setup {
			sb.WriteString(" " + m.Vertex())
		}
		return s.send(ctx, "setup", sb.String())
	}

	for _, m := range next.setup {
		if err := s.send(ctx, "setup", s.engine.CommandPlay(m)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) play(ctx context.Context, moves []board.Move) error {
	for _, m := range moves {
		if err := s.send(ctx, "play", s.engine.CommandPlay(m)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) send(ctx context.Context, kind, cmd string) error {
	syncCommands.WithLabelValues(kind).Inc()
	if _, err := s.engine.Send(ctx, cmd); err != nil {
		return fmt.Errorf("synchronize: %w", err)
	}
	return nil
}

// PrepareGenmove transmits the fill pass the engine needs before it is
// asked to move for c, if fill passes are enabled and the last transmitted
// move was also c's. Call after Synchronize.
func (s *Synchronizer) PrepareGenmove(ctx context.Context, c board.Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fillPasses || s.state == nil || s.outOfSync {
		return nil
	}
	prev := s.state.toMove.Opponent()
	if n := len(s.state.moves); n > 0 {
		prev = s.state.moves[n-1].Color
	}
	if prev != c {
		return nil
	}
	pass := board.Pass(c.Opponent())
	if err := s.send(ctx, "play", s.engine.CommandPlay(pass)); err != nil {
		s.outOfSync = true
		return err
	}
	s.state.moves = append(s.state.moves, pass)
	return nil
}

// UpdateAfterGenmove records m as known to the engine without sending it.
// Without prior state it does nothing; the next Synchronize replays.
func (s *Synchronizer) UpdateAfterGenmove(m board.Move) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return
	}
	s.state.moves = append(s.state.moves, board.Snapshot{Moves: []board.Move{m}}.Clone().Moves...)
}

// State returns the remembered position, fill passes included. ok is false
// if there is none or the last synchronization failed.
func (s *Synchronizer) State() (board.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return board.Snapshot{}, false
	}
	snap := board.Snapshot{
		Size:   s.state.size,
		Setup:  s.state.setup,
		ToMove: s.state.toMove,
		Moves:  s.state.moves,
	}.Clone()
	return snap, !s.outOfSync
}

// Reset forgets the remembered state. The next Synchronize replays fully.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.state = nil
	s.outOfSync = false
	s.mu.Unlock()
}

func commonPrefix(a, b []board.Move) int {
	n := 0
	for n < len(a) && n < len(b) && a[n].Equal(b[n]) {
		n++
	}
	return n
}

func allColor(ms []board.Move, c board.Color) bool {
	for _, m := range ms {
		if m.Color != c {
			return false
		}
	}
	return true
}
