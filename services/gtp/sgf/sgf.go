// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sgf reads the main line of an SGF game record.
//
// Only what loadsgf needs is extracted: board size, komi, setup stones, the
// player to move after setup, and the moves of the first variation.
package sgf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianGTP/services/gtp/board"
)

// DefaultSize is the board size when SZ is absent.
const DefaultSize = 19

// Sentinel errors for SGF reading.
var (
	// ErrSyntax indicates malformed SGF text.
	ErrSyntax = errors.New("sgf syntax error")

	// ErrUnsupported indicates valid SGF this reader does not handle.
	ErrUnsupported = errors.New("unsupported sgf")
)

// Game is the main line of a game record.
type Game struct {
	// Size is the board size (SZ).
	Size int

	// Komi is the KM value, or nil if absent.
	Komi *float64

	// Setup holds AB and AW stones placed before the first move.
	Setup []board.Move

	// ToMove is the player to move after setup.
	ToMove board.Color

	// Moves are the B and W moves of the first variation.
	Moves []board.Move
}

// ReadFile opens and parses an SGF file.
func ReadFile(path string) (*Game, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses the first game tree of an SGF collection.
//
// Errors:
//
//	ErrSyntax - the text is not well-formed SGF
//	ErrUnsupported - non-square boards, sizes above board.MaxSize, or setup
//	  stones after the first move
func Read(r io.Reader) (*Game, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	p := &parser{data: data}
	p.skipSpace()
	nodes, err := p.tree(true)
	if err != nil {
		return nil, err
	}
	return build(nodes)
}

// Snapshot returns the position after at most limit moves. A limit below
// zero keeps all moves.
func (g *Game) Snapshot(limit int) board.Snapshot {
	moves := g.Moves
	if limit >= 0 && limit < len(moves) {
		moves = moves[:limit]
	}
	return board.Snapshot{
		Size:   g.Size,
		Setup:  append([]board.Move(nil), g.Setup...),
		ToMove: g.ToMove,
		Moves:  append([]board.Move(nil), moves...),
	}.Clone()
}

// =============================================================================
// PARSER
// =============================================================================

type property struct {
	id     string
	values []string
}

type node []property

type parser struct {
	data []byte
	pos  int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) peek() byte {
	if p.pos >= len(p.data) {
		return 0
	}
	return p.data[p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

// tree parses "(" sequence {tree} ")". Only the first child of each tree is
// kept when keep is true.
func (p *parser) tree(keep bool) ([]node, error) {
	if p.peek() != '(' {
		return nil, p.errorf("expected '('")
	}
	p.pos++
	p.skipSpace()

	var nodes []node
	for p.peek() == ';' {
		p.pos++
		n, err := p.node()
		if err != nil {
			return nil, err
		}
		if keep {
			nodes = append(nodes, n)
		}
		p.skipSpace()
	}
	if len(nodes) == 0 && keep {
		return nil, p.errorf("empty game tree")
	}

	first := true
	for p.peek() == '(' {
		sub, err := p.tree(keep && first)
		if err != nil {
			return nil, err
		}
		if keep && first {
			nodes = append(nodes, sub...)
		}
		first = false
		p.skipSpace()
	}

	if p.peek() != ')' {
		return nil, p.errorf("expected ')'")
	}
	p.pos++
	return nodes, nil
}

func (p *parser) node() (node, error) {
	var n node
	for {
		p.skipSpace()
		c := p.peek()
		if c < 'A' || c > 'Z' {
			if c >= 'a' && c <= 'z' {
				return nil, p.errorf("lowercase property identifier")
			}
			return n, nil
		}
		start := p.pos
		for p.pos < len(p.data) {
			b := p.data[p.pos]
			if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') {
				p.pos++
				continue
			}
			break
		}
		// FF[3] allows lowercase letters inside identifiers; they carry no
		// meaning.
		id := strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' {
				return -1
			}
			return r
		}, string(p.data[start:p.pos]))

		p.skipSpace()
		if p.peek() != '[' {
			return nil, p.errorf("property %s has no value", id)
		}
		prop := property{id: id}
		for p.peek() == '[' {
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			prop.values = append(prop.values, v)
			p.skipSpace()
		}
		n = append(n, prop)
	}
}

func (p *parser) value() (string, error) {
	p.pos++ // '['
	var sb strings.Builder
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		switch c {
		case '\\':
			p.pos++
			if p.pos < len(p.data) {
				sb.WriteByte(p.data[p.pos])
			}
		case ']':
			p.pos++
			return sb.String(), nil
		default:
			sb.WriteByte(c)
		}
		p.pos++
	}
	return "", p.errorf("unterminated value")
}

// =============================================================================
// CONVERSION
// =============================================================================

func build(nodes []node) (*Game, error) {
	g := &Game{Size: DefaultSize}
	var toMove board.Color

	// SZ must be known before any point can be converted.
	for _, prop := range nodes[0] {
		if prop.id == "SZ" {
			size, err := parseSize(prop.values[0])
			if err != nil {
				return nil, err
			}
			g.Size = size
		}
	}

	for i, n := range nodes {
		for _, prop := range n {
			switch prop.id {
			case "KM":
				km, err := strconv.ParseFloat(strings.TrimSpace(prop.values[0]), 64)
				if err != nil {
					return nil, fmt.Errorf("%w: invalid komi %q", ErrSyntax, prop.values[0])
				}
				g.Komi = &km
			case "PL":
				c, err := board.ParseColor(strings.TrimSpace(prop.values[0]))
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
				}
				toMove = c
			case "AB", "AW":
				if len(g.Moves) > 0 {
					return nil, fmt.Errorf("%w: setup stones in node %d after moves", ErrUnsupported, i)
				}
				c := board.Black
				if prop.id == "AW" {
					c = board.White
				}
				for _, v := range prop.values {
					pts, err := parsePoints(v, g.Size)
					if err != nil {
						return nil, err
					}
					for _, pt := range pts {
						g.Setup = append(g.Setup, board.Play(c, pt))
					}
				}
			case "B", "W":
				c := board.Black
				if prop.id == "W" {
					c = board.White
				}
				pt, err := parseMove(prop.values[0], g.Size)
				if err != nil {
					return nil, err
				}
				if pt == nil {
					g.Moves = append(g.Moves, board.Pass(c))
				} else {
					g.Moves = append(g.Moves, board.Play(c, *pt))
				}
			case "SZ":
				if i > 0 {
					return nil, fmt.Errorf("%w: SZ outside root node", ErrUnsupported)
				}
			}
		}
	}

	switch {
	case toMove != board.Empty:
		g.ToMove = toMove
	case len(g.Moves) > 0:
		g.ToMove = g.Moves[0].Color
	case len(g.Setup) > 0 && allBlack(g.Setup):
		g.ToMove = board.White
	default:
		g.ToMove = board.Black
	}
	return g, nil
}

func parseSize(v string) (int, error) {
	v = strings.TrimSpace(v)
	if cols, rows, ok := strings.Cut(v, ":"); ok {
		if cols != rows {
			return 0, fmt.Errorf("%w: non-square board %s", ErrUnsupported, v)
		}
		v = cols
	}
	size, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid size %q", ErrSyntax, v)
	}
	if size < 1 || size > board.MaxSize {
		return 0, fmt.Errorf("%w: board size %d", ErrUnsupported, size)
	}
	return size, nil
}

// parseMove converts a move value. Empty values, and "tt" on boards up to
// 19, are passes.
func parseMove(v string, size int) (*board.Point, error) {
	if v == "" || (v == "tt" && size <= 19) {
		return nil, nil
	}
	pt, err := parsePoint(v, size)
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

// parsePoints converts a point or a compressed "aa:cc" rectangle.
func parsePoints(v string, size int) ([]board.Point, error) {
	from, to, ok := strings.Cut(v, ":")
	if !ok {
		pt, err := parsePoint(v, size)
		if err != nil {
			return nil, err
		}
		return []board.Point{pt}, nil
	}
	a, err := parsePoint(from, size)
	if err != nil {
		return nil, err
	}
	b, err := parsePoint(to, size)
	if err != nil {
		return nil, err
	}
	var pts []board.Point
	for y := min(a.Y, b.Y); y <= max(a.Y, b.Y); y++ {
		for x := min(a.X, b.X); x <= max(a.X, b.X); x++ {
			pts = append(pts, board.Pt(x, y))
		}
	}
	return pts, nil
}

// parsePoint converts "dd" style coordinates. SGF rows count from the top.
func parsePoint(v string, size int) (board.Point, error) {
	if len(v) != 2 {
		return board.Point{}, fmt.Errorf("%w: invalid point %q", ErrSyntax, v)
	}
	x := int(v[0] - 'a')
	row := int(v[1] - 'a')
	pt := board.Pt(x, size-1-row)
	if v[0] < 'a' || v[1] < 'a' || !pt.OnBoard(size) {
		return board.Point{}, fmt.Errorf("%w: point %q off %dx%d board", ErrSyntax, v, size, size)
	}
	return pt, nil
}

func allBlack(ms []board.Move) bool {
	for _, m := range ms {
		if m.Color != board.Black {
			return false
		}
	}
	return true
}
