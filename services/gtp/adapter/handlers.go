// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianGTP/services/gtp"
	"github.com/AleutianAI/AleutianGTP/services/gtp/board"
	"github.com/AleutianAI/AleutianGTP/services/gtp/sgf"
)

// =============================================================================
// POSITION CHANGES
// =============================================================================

// change applies fn to the board and synchronizes the engine. If either
// step fails the board is restored.
func (a *Adapter) change(ctx context.Context, fn func(b *board.Board) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	before := a.board.Snapshot()
	if err := fn(a.board); err != nil {
		a.restore(before)
		return err
	}
	if err := a.sync.Synchronize(ctx, a.board.Snapshot()); err != nil {
		a.restore(before)
		return a.engineFailure(err)
	}
	return nil
}

// restore reloads before into the board. Caller holds a.mu.
func (a *Adapter) restore(before board.Snapshot) {
	if err := a.board.Load(before); err != nil {
		a.logger.Error("Cannot restore board", slog.String("error", err.Error()))
	}
}

func (a *Adapter) cmdPlay(ctx context.Context, cmd gtp.Command) (string, error) {
	if err := cmd.CheckArgs(2, 2); err != nil {
		return "", err
	}
	c, err := cmd.Color(0)
	if err != nil {
		return "", err
	}
	return "", a.play(ctx, c, cmd.Args[1])
}

func (a *Adapter) cmdPlayColor(c board.Color) gtp.Handler {
	return func(ctx context.Context, cmd gtp.Command) (string, error) {
		if err := cmd.CheckArgs(1, 1); err != nil {
			return "", err
		}
		return "", a.play(ctx, c, cmd.Args[0])
	}
}

func (a *Adapter) play(ctx context.Context, c board.Color, vertex string) error {
	return a.change(ctx, func(b *board.Board) error {
		p, err := gtp.ParsePoint(vertex, b.Size())
		if err != nil {
			return gtp.Failure("invalid point %s", vertex)
		}
		m := board.Pass(c)
		if p != nil {
			if b.Get(*p) != board.Empty {
				return gtp.Failure("point is occupied")
			}
			m = board.Play(c, *p)
		}
		if err := b.Play(m); err != nil {
			return gtp.Failure("%s", err.Error())
		}
		return nil
	})
}

func (a *Adapter) cmdUndo(ctx context.Context, cmd gtp.Command) (string, error) {
	if err := cmd.CheckArgs(0, 0); err != nil {
		return "", err
	}
	return "", a.change(ctx, func(b *board.Board) error {
		if !b.Undo() {
			return gtp.Failure("cannot undo")
		}
		return nil
	})
}

// cmdGGUndo takes back n moves, default 1, at most the moves played.
func (a *Adapter) cmdGGUndo(ctx context.Context, cmd gtp.Command) (string, error) {
	if err := cmd.CheckArgs(0, 1); err != nil {
		return "", err
	}
	n := 1
	if len(cmd.Args) == 1 {
		v, err := cmd.Int(0)
		if err != nil || v < 0 {
			return "", gtp.Failure("invalid argument")
		}
		n = v
	}
	return "", a.change(ctx, func(b *board.Board) error {
		b.UndoN(n)
		return nil
	})
}

func (a *Adapter) cmdBoardsize(ctx context.Context, cmd gtp.Command) (string, error) {
	if err := cmd.CheckArgs(1, 1); err != nil {
		return "", err
	}
	size, err := cmd.Int(0)
	if err != nil {
		return "", err
	}
	return "", a.change(ctx, func(b *board.Board) error {
		if err := b.Init(size); err != nil {
			return gtp.Failure("unacceptable size")
		}
		return nil
	})
}

func (a *Adapter) cmdClearBoard(ctx context.Context, cmd gtp.Command) (string, error) {
	if err := cmd.CheckArgs(0, 0); err != nil {
		return "", err
	}
	return "", a.change(ctx, func(b *board.Board) error {
		b.Clear()
		return nil
	})
}

// =============================================================================
// GENMOVE
// =============================================================================

func (a *Adapter) cmdGenmove(ctx context.Context, cmd gtp.Command) (string, error) {
	if err := cmd.CheckArgs(1, 1); err != nil {
		return "", err
	}
	c, err := cmd.Color(0)
	if err != nil {
		return "", err
	}
	return a.genmove(ctx, c)
}

func (a *Adapter) cmdGenmoveColor(c board.Color) gtp.Handler {
	return func(ctx context.Context, cmd gtp.Command) (string, error) {
		if err := cmd.CheckArgs(0, 0); err != nil {
			return "", err
		}
		return a.genmove(ctx, c)
	}
}

// genmove asks the engine for a move and records it without retransmitting.
// "resign" is returned unchanged and leaves the board alone.
func (a *Adapter) genmove(ctx context.Context, c board.Color) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.sync.Synchronize(ctx, a.board.Snapshot()); err != nil {
		return "", a.engineFailure(err)
	}
	if err := a.sync.PrepareGenmove(ctx, c); err != nil {
		return "", a.engineFailure(err)
	}
	body, err := a.client.Send(ctx, a.client.CommandGenmove(c))
	if err != nil {
		return "", a.engineFailure(err)
	}
	reply := strings.TrimSpace(body)
	if reply == "" {
		// The engine may have moved without saying where.
		a.sync.Reset()
		return "", fmt.Errorf("genmove: %w", gtp.ErrEmptyResponse)
	}
	if strings.EqualFold(reply, "resign") {
		return reply, nil
	}

	p, err := gtp.ParsePoint(reply, a.board.Size())
	if err != nil {
		// The engine moved but we cannot tell where.
		a.sync.Reset()
		return "", gtp.Failure("invalid response to genmove: %s", reply)
	}
	m := board.Pass(c)
	if p != nil {
		m = board.Play(c, *p)
	}
	if err := a.board.Play(m); err != nil {
		a.sync.Reset()
		return "", gtp.Failure("engine played illegal move %s", reply)
	}
	a.sync.UpdateAfterGenmove(m)

	out := gtp.PointString(p)
	if a.cfg.Lowercase {
		out = strings.ToLower(out)
	}
	return out, nil
}

// =============================================================================
// KOMI
// =============================================================================

func (a *Adapter) cmdKomi(ctx context.Context, cmd gtp.Command) (string, error) {
	if err := cmd.CheckArgs(1, 1); err != nil {
		return "", err
	}
	if _, err := cmd.Float(0); err != nil {
		return "", gtp.Failure("invalid komi")
	}
	return "", a.sendKomi(ctx, cmd.Args[0])
}

func (a *Adapter) sendKomi(ctx context.Context, value string) error {
	if !a.client.IsSupported("komi") {
		return nil
	}
	if _, err := a.client.Send(ctx, "komi "+value); err != nil {
		return a.engineFailure(err)
	}
	return nil
}

// =============================================================================
// HANDICAP
// =============================================================================

func (a *Adapter) cmdSetFreeHandicap(ctx context.Context, cmd gtp.Command) (string, error) {
	if err := cmd.CheckArgs(1, -1); err != nil {
		return "", err
	}
	return "", a.change(ctx, func(b *board.Board) error {
		if !b.IsEmpty() {
			return gtp.Failure("board not empty")
		}
		pts, err := gtp.ParsePointList(cmd.ArgString(), b.Size())
		if err != nil {
			return gtp.Failure("invalid point")
		}
		return setupBlack(b, pts)
	})
}

// cmdPlaceFreeHandicap lets the engine choose the points if it can, and
// uses the standard points otherwise.
func (a *Adapter) cmdPlaceFreeHandicap(ctx context.Context, cmd gtp.Command) (string, error) {
	if err := cmd.CheckArgs(1, 1); err != nil {
		return "", err
	}
	n, err := cmd.Int(0)
	if err != nil {
		return "", err
	}
	if !a.client.IsSupported("place_free_handicap") {
		return a.fixedHandicap(ctx, n)
	}

	var placed []*board.Point
	err = a.change(ctx, func(b *board.Board) error {
		if !b.IsEmpty() {
			return gtp.Failure("board not empty")
		}
		body, err := a.client.Send(ctx, "place_free_handicap "+strconv.Itoa(n))
		if err != nil {
			return a.engineFailure(err)
		}
		pts, err := gtp.ParsePointList(body, b.Size())
		if err != nil {
			return gtp.Failure("invalid response to place_free_handicap: %s", body)
		}
		placed = pts
		return setupBlack(b, pts)
	})
	if err != nil {
		return "", err
	}
	return pointList(placed), nil
}

func (a *Adapter) cmdFixedHandicap(ctx context.Context, cmd gtp.Command) (string, error) {
	if err := cmd.CheckArgs(1, 1); err != nil {
		return "", err
	}
	n, err := cmd.Int(0)
	if err != nil {
		return "", err
	}
	return a.fixedHandicap(ctx, n)
}

func (a *Adapter) fixedHandicap(ctx context.Context, n int) (string, error) {
	var placed []*board.Point
	err := a.change(ctx, func(b *board.Board) error {
		if !b.IsEmpty() {
			return gtp.Failure("board not empty")
		}
		pts, err := board.HandicapPoints(b.Size(), n)
		if err != nil || n < 2 {
			return gtp.Failure("%s", board.ErrInvalidHandicap.Error())
		}
		for i := range pts {
			placed = append(placed, &pts[i])
		}
		return setupBlack(b, placed)
	})
	if err != nil {
		return "", err
	}
	return pointList(placed), nil
}

// setupBlack places black setup stones; white moves next.
func setupBlack(b *board.Board, pts []*board.Point) error {
	stones := make([]board.Move, 0, len(pts))
	for _, p := range pts {
		if p == nil {
			return gtp.Failure("pass is not a handicap stone")
		}
		stones = append(stones, board.Play(board.Black, *p))
	}
	if err := b.Setup(stones, board.White); err != nil {
		if errors.Is(err, board.ErrOccupied) {
			return gtp.Failure("repeated handicap point")
		}
		return gtp.Failure("%s", err.Error())
	}
	return nil
}

func pointList(pts []*board.Point) string {
	names := make([]string, len(pts))
	for i, p := range pts {
		names[i] = gtp.PointString(p)
	}
	return strings.Join(names, " ")
}

// =============================================================================
// LOADSGF
// =============================================================================

// cmdLoadsgf loads "loadsgf <file> [move_number]": the position before
// move_number is played, or the whole main line.
func (a *Adapter) cmdLoadsgf(ctx context.Context, cmd gtp.Command) (string, error) {
	if err := cmd.CheckArgs(1, 2); err != nil {
		return "", err
	}
	limit := -1
	if len(cmd.Args) == 2 {
		n, err := cmd.Int(1)
		if err != nil || n < 1 {
			return "", gtp.Failure("invalid move number")
		}
		limit = n - 1
	}
	game, err := sgf.ReadFile(cmd.Args[0])
	if err != nil {
		return "", gtp.Failure("cannot load file: %s", err.Error())
	}
	snap := game.Snapshot(limit)

	err = a.change(ctx, func(b *board.Board) error {
		if err := b.Load(snap); err != nil {
			return gtp.Failure("invalid game record: %s", err.Error())
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if game.Komi != nil {
		if err := a.sendKomi(ctx, strconv.FormatFloat(*game.Komi, 'f', -1, 64)); err != nil {
			return "", err
		}
	}
	a.logger.Debug("Loaded game record",
		slog.String("file", cmd.Args[0]),
		slog.Int("moves", len(snap.Moves)),
	)
	return "", nil
}

// =============================================================================
// MISC
// =============================================================================

func (a *Adapter) cmdShowboard(context.Context, gtp.Command) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return "\n" + a.board.String(), nil
}

// cmdQuit forwards quit if the engine is alive, closes it and ends Serve.
func (a *Adapter) cmdQuit(ctx context.Context, _ gtp.Command) (string, error) {
	if a.client.IsAlive() {
		if _, err := a.client.Send(ctx, "quit"); err != nil {
			a.logger.Debug("Engine did not answer quit", slog.String("error", err.Error()))
		}
	}
	if err := a.client.Close(ctx); err != nil {
		a.logger.Warn("Closing engine failed", slog.String("error", err.Error()))
	}
	a.server.RequestQuit()
	return "", nil
}
