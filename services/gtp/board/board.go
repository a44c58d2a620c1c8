// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package board

import (
	"fmt"
	"strings"
)

// played records what is needed to take a move back.
type played struct {
	move     Move
	captured []Point
	suicide  []Point
	toMove   Color
}

// Board is a mutable Go position with move history.
//
// Description:
//
//	Applies moves with captures (suicide removes the played group), keeps
//	setup stones separate from moves, and supports undo. The zero value is
//	not usable; call New.
//
// Thread Safety:
//
//	Not safe for concurrent use. The adapter owns its board exclusively.
type Board struct {
	size        int
	grid        []Color
	setup       []Move
	setupToMove Color
	history     []played
	toMove      Color
}

// New creates an empty board of the given size with black to move.
func New(size int) (*Board, error) {
	b := &Board{}
	if err := b.Init(size); err != nil {
		return nil, err
	}
	return b, nil
}

// Init clears the board and sets a new size.
func (b *Board) Init(size int) error {
	if size < 1 || size > MaxSize {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	b.size = size
	b.grid = make([]Color, size*size)
	b.setup = nil
	b.setupToMove = Black
	b.history = nil
	b.toMove = Black
	return nil
}

// Clear empties the board keeping its size.
func (b *Board) Clear() {
	_ = b.Init(b.size)
}

// Size returns the board size.
func (b *Board) Size() int {
	return b.size
}

// ToMove returns the player to move.
func (b *Board) ToMove() Color {
	return b.toMove
}

// MoveCount returns the number of moves played since setup.
func (b *Board) MoveCount() int {
	return len(b.history)
}

// Get returns the color at p, or Empty for points off the board.
func (b *Board) Get(p Point) Color {
	if !p.OnBoard(b.size) {
		return Empty
	}
	return b.grid[b.index(p)]
}

// Play applies m. Passes only switch the player to move.
//
// Errors:
//
//	ErrOutOfBoard - point outside the board
//	ErrOccupied - point already holds a stone
func (b *Board) Play(m Move) error {
	if m.Color != Black && m.Color != White {
		return fmt.Errorf("%w: %v", ErrInvalidColor, m.Color)
	}
	rec := played{move: m, toMove: b.toMove}
	if m.Point != nil {
		p := *m.Point
		if !p.OnBoard(b.size) {
			return fmt.Errorf("%w: %s", ErrOutOfBoard, p)
		}
		if b.Get(p) != Empty {
			return ErrOccupied
		}
		b.set(p, m.Color)
		opp := m.Color.Opponent()
		for _, n := range b.neighbors(p) {
			if b.Get(n) == opp && !b.hasLiberty(n) {
				rec.captured = append(rec.captured, b.removeGroup(n)...)
			}
		}
		if !b.hasLiberty(p) {
			rec.suicide = b.removeGroup(p)
		}
	}
	b.history = append(b.history, rec)
	b.toMove = m.Color.Opponent()
	return nil
}

// Undo takes back the last move. It returns false if no move was played.
func (b *Board) Undo() bool {
	if len(b.history) == 0 {
		return false
	}
	rec := b.history[len(b.history)-1]
	b.history = b.history[:len(b.history)-1]
	if rec.move.Point != nil {
		for _, p := range rec.suicide {
			b.set(p, rec.move.Color)
		}
		b.set(*rec.move.Point, Empty)
		opp := rec.move.Color.Opponent()
		for _, p := range rec.captured {
			b.set(p, opp)
		}
	}
	b.toMove = rec.toMove
	return true
}

// UndoN takes back up to n moves and returns how many were undone.
func (b *Board) UndoN(n int) int {
	undone := 0
	for undone < n && b.Undo() {
		undone++
	}
	return undone
}

// Setup places setup stones and sets the player to move.
//
// Description:
//
//	Setup stones belong to the position before the first move. Setup is
//	rejected once a move has been played.
//
// Errors:
//
//	ErrNotEmpty - moves were already played
//	ErrPassSetup - a setup entry has no point
//	ErrOutOfBoard, ErrOccupied - invalid placement
func (b *Board) Setup(stones []Move, toMove Color) error {
	if len(b.history) > 0 {
		return ErrNotEmpty
	}
	for _, s := range stones {
		if s.Point == nil {
			return ErrPassSetup
		}
		if s.Color != Black && s.Color != White {
			return fmt.Errorf("%w: %v", ErrInvalidColor, s.Color)
		}
		if !s.Point.OnBoard(b.size) {
			return fmt.Errorf("%w: %s", ErrOutOfBoard, *s.Point)
		}
		if b.Get(*s.Point) != Empty {
			return ErrOccupied
		}
	}
	for _, s := range stones {
		b.set(*s.Point, s.Color)
	}
	b.setup = append(b.setup, cloneMoves(stones)...)
	if toMove == Black || toMove == White {
		b.setupToMove = toMove
		b.toMove = toMove
	}
	return nil
}

// IsEmpty reports whether no stones and no moves are on the board.
func (b *Board) IsEmpty() bool {
	if len(b.history) > 0 || len(b.setup) > 0 {
		return false
	}
	for _, c := range b.grid {
		if c != Empty {
			return false
		}
	}
	return true
}

// Snapshot returns a value copy of the position.
func (b *Board) Snapshot() Snapshot {
	moves := make([]Move, len(b.history))
	for i, rec := range b.history {
		moves[i] = rec.move
	}
	return Snapshot{
		Size:   b.size,
		Setup:  cloneMoves(b.setup),
		ToMove: b.setupToMove,
		Moves:  cloneMoves(moves),
	}
}

// Load replaces the position with s by replaying it.
func (b *Board) Load(s Snapshot) error {
	if err := b.Init(s.Size); err != nil {
		return err
	}
	if err := b.Setup(s.Setup, s.ToMove); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	for i, m := range s.Moves {
		if err := b.Play(m); err != nil {
			return fmt.Errorf("move %d (%s): %w", i+1, m, err)
		}
	}
	return nil
}

// String renders the board with coordinates, top row first.
func (b *Board) String() string {
	var sb strings.Builder
	header := func() {
		sb.WriteString("   ")
		for x := 0; x < b.size; x++ {
			label := Pt(x, 0).String()
			sb.WriteString(" ")
			sb.WriteString(label[:1])
		}
		sb.WriteString("\n")
	}
	header()
	for y := b.size - 1; y >= 0; y-- {
		fmt.Fprintf(&sb, "%2d ", y+1)
		for x := 0; x < b.size; x++ {
			switch b.Get(Pt(x, y)) {
			case Black:
				sb.WriteString(" X")
			case White:
				sb.WriteString(" O")
			default:
				sb.WriteString(" .")
			}
		}
		fmt.Fprintf(&sb, " %2d\n", y+1)
	}
	header()
	return sb.String()
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (b *Board) index(p Point) int {
	return p.Y*b.size + p.X
}

func (b *Board) set(p Point, c Color) {
	b.grid[b.index(p)] = c
}

func (b *Board) neighbors(p Point) []Point {
	out := make([]Point, 0, 4)
	for _, d := range [4]Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		n := Pt(p.X+d.X, p.Y+d.Y)
		if n.OnBoard(b.size) {
			out = append(out, n)
		}
	}
	return out
}

// group returns the stones connected to p including p.
func (b *Board) group(p Point) []Point {
	c := b.Get(p)
	seen := map[Point]bool{p: true}
	stack := []Point{p}
	var out []Point
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		for _, n := range b.neighbors(cur) {
			if !seen[n] && b.Get(n) == c {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return out
}

func (b *Board) hasLiberty(p Point) bool {
	for _, s := range b.group(p) {
		for _, n := range b.neighbors(s) {
			if b.Get(n) == Empty {
				return true
			}
		}
	}
	return false
}

func (b *Board) removeGroup(p Point) []Point {
	stones := b.group(p)
	for _, s := range stones {
		b.set(s, Empty)
	}
	return stones
}
