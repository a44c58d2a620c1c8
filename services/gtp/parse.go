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
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianGTP/services/gtp/board"
)

// ParsePoint parses GTP point notation.
//
// Description:
//
//	Case-insensitive. "pass" returns nil. The column letter skips I; the
//	row is 1-based from the bottom. A size of 0 checks against
//	board.MaxSize only.
//
// Errors:
//
//	ErrInvalidPoint - malformed text or a point off the board
func ParsePoint(s string, size int) (*board.Point, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "pass" {
		return nil, nil
	}
	if size <= 0 {
		size = board.MaxSize
	}
	if len(s) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPoint, s)
	}
	letter := s[0]
	if letter < 'a' || letter > 'z' || letter == 'i' {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPoint, s)
	}
	x := int(letter - 'a')
	if letter > 'i' {
		x--
	}
	row, err := strconv.Atoi(s[1:])
	if err != nil || strings.HasPrefix(s[1:], "+") || strings.HasPrefix(s[1:], "-") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPoint, s)
	}
	p := board.Pt(x, row-1)
	if !p.OnBoard(size) {
		return nil, fmt.Errorf("%w: %q is off a %dx%d board", ErrInvalidPoint, s, size, size)
	}
	return &p, nil
}

// ParsePointList parses whitespace-separated points in order. Passes are
// nil entries.
func ParsePointList(s string, size int) ([]*board.Point, error) {
	fields := strings.Fields(s)
	out := make([]*board.Point, 0, len(fields))
	for _, f := range fields {
		p, err := ParsePoint(f, size)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// PointString returns the GTP notation of p, "PASS" for nil.
func PointString(p *board.Point) string {
	if p == nil {
		return "PASS"
	}
	return p.String()
}

// ParseStringBoard parses a size x size board of tokens.
//
// Description:
//
//	If title is not empty, parsing starts after the first line consisting
//	of "<title>:". The grid lists rows from the top row down, left to
//	right. The literal token "" is an empty cell. The result is indexed
//	[x][y] in board coordinates, so the first token is [0][size-1].
//
// Errors:
//
//	ErrBoardFormat - the title line is missing or there are too few tokens
func ParseStringBoard(s, title string, size int) ([][]string, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: size %d", ErrBoardFormat, size)
	}
	text, err := afterTitle(s, title)
	if err != nil {
		return nil, err
	}
	tokens := strings.Fields(text)
	if len(tokens) < size*size {
		return nil, fmt.Errorf("%w: need %d values, got %d", ErrBoardFormat, size*size, len(tokens))
	}

	grid := make([][]string, size)
	for x := range grid {
		grid[x] = make([]string, size)
	}
	for i := 0; i < size*size; i++ {
		row, x := i/size, i%size
		tok := tokens[i]
		if tok == `""` {
			tok = ""
		}
		grid[x][size-1-row] = tok
	}
	return grid, nil
}

// ParseDoubleBoard is ParseStringBoard with numeric cells.
//
// Errors:
//
//	ErrBoardFormat - as ParseStringBoard
//	ErrNumberFormat - a cell is not a number
func ParseDoubleBoard(s, title string, size int) ([][]float64, error) {
	cells, err := ParseStringBoard(s, title, size)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, size)
	for x := range cells {
		out[x] = make([]float64, size)
		for y, cell := range cells[x] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q at %s", ErrNumberFormat, cell, board.Pt(x, y))
			}
			out[x][y] = v
		}
	}
	return out, nil
}

// afterTitle returns the text following the "<title>:" line.
func afterTitle(s, title string) (string, error) {
	if title == "" {
		return s, nil
	}
	want := title + ":"
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == want {
			return strings.Join(lines[i+1:], "\n"), nil
		}
	}
	return "", fmt.Errorf("%w: missing %q", ErrBoardFormat, want)
}
