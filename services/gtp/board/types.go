// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package board is the Go board model consumed by the GTP adapter.
//
// It is intentionally narrow: apply a move, undo, place setup stones, report
// the board size and take value snapshots. Scoring and rule variants are not
// modelled here.
package board

import (
	"errors"
	"fmt"
	"strings"
)

// MaxSize is the largest board size expressible in GTP point notation.
const MaxSize = 25

// Sentinel errors for board operations.
var (
	// ErrOccupied indicates a stone was played on a non-empty point.
	ErrOccupied = errors.New("point is occupied")

	// ErrOutOfBoard indicates a point outside the current board.
	ErrOutOfBoard = errors.New("point is off the board")

	// ErrInvalidSize indicates a board size outside 1..MaxSize.
	ErrInvalidSize = errors.New("invalid board size")

	// ErrInvalidHandicap indicates no standard handicap exists for a count.
	ErrInvalidHandicap = errors.New("Invalid number of handicap stones")

	// ErrNotEmpty indicates setup was attempted after moves were played.
	ErrNotEmpty = errors.New("board not empty")

	// ErrInvalidColor indicates an unparseable color argument.
	ErrInvalidColor = errors.New("invalid color")

	// ErrPassSetup indicates a pass was given where a stone is required.
	ErrPassSetup = errors.New("setup stone cannot be a pass")
)

// =============================================================================
// COLOR
// =============================================================================

// Color is the content of a point or the player of a move.
type Color int

const (
	// Empty is an unoccupied point. It is never the color of a move.
	Empty Color = iota

	// Black is the first player.
	Black

	// White is the second player.
	White
)

// String returns the long GTP spelling ("black", "white", "empty").
func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

// Letter returns the one-letter GTP spelling ("b", "w").
func (c Color) Letter() string {
	switch c {
	case Black:
		return "b"
	case White:
		return "w"
	default:
		return "e"
	}
}

// Opponent returns the other player. Empty maps to Empty.
func (c Color) Opponent() Color {
	switch c {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

// ParseColor parses "b", "black", "w" or "white" in any case.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(s) {
	case "b", "black":
		return Black, nil
	case "w", "white":
		return White, nil
	default:
		return Empty, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
}

// =============================================================================
// POINT
// =============================================================================

// Point is a board intersection. X is the column from the left, Y the row
// from the bottom, both zero-based.
type Point struct {
	X int
	Y int
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y int) Point {
	return Point{X: x, Y: y}
}

// String returns GTP notation, e.g. Point{3, 3} -> "D4". The column letter
// I is skipped.
func (p Point) String() string {
	letter := 'A' + rune(p.X)
	if p.X >= 8 {
		letter++
	}
	return fmt.Sprintf("%c%d", letter, p.Y+1)
}

// OnBoard reports whether p lies on a board of the given size.
func (p Point) OnBoard(size int) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < size && p.Y < size
}

// =============================================================================
// MOVE
// =============================================================================

// Move is a colored point. A nil Point is a pass.
type Move struct {
	Color Color
	Point *Point
}

// Play returns a stone move of color c at p.
func Play(c Color, p Point) Move {
	return Move{Color: c, Point: &p}
}

// Pass returns a pass move of color c.
func Pass(c Color) Move {
	return Move{Color: c}
}

// IsPass reports whether m is a pass.
func (m Move) IsPass() bool {
	return m.Point == nil
}

// Equal compares color and point by value.
func (m Move) Equal(o Move) bool {
	if m.Color != o.Color {
		return false
	}
	if m.Point == nil || o.Point == nil {
		return m.Point == nil && o.Point == nil
	}
	return *m.Point == *o.Point
}

// Vertex returns the GTP vertex of the move ("D4" or "PASS").
func (m Move) Vertex() string {
	if m.Point == nil {
		return "PASS"
	}
	return m.Point.String()
}

// String returns "<color> <vertex>", e.g. "black D4".
func (m Move) String() string {
	return m.Color.String() + " " + m.Vertex()
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a value copy of a game position: setup stones placed before
// the first move, the player to move after setup, and the moves since.
type Snapshot struct {
	Size   int
	Setup  []Move
	ToMove Color
	Moves  []Move
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Size:   s.Size,
		Setup:  cloneMoves(s.Setup),
		ToMove: s.ToMove,
		Moves:  cloneMoves(s.Moves),
	}
}

// SetupEqual reports whether both snapshots have the same setup stones in
// the same order and the same player to move after setup.
func (s Snapshot) SetupEqual(o Snapshot) bool {
	return s.ToMove == o.ToMove && movesEqual(s.Setup, o.Setup)
}

func cloneMoves(ms []Move) []Move {
	if ms == nil {
		return nil
	}
	out := make([]Move, len(ms))
	for i, m := range ms {
		out[i] = m
		if m.Point != nil {
			p := *m.Point
			out[i].Point = &p
		}
	}
	return out
}

func movesEqual(a, b []Move) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
