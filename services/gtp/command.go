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

// =============================================================================
// COMMAND
// =============================================================================

// Command is one parsed request line.
type Command struct {
	// Line is the normalized line without the id.
	Line string

	// Name is the command name. Never empty.
	Name string

	// Args are the argument tokens in order.
	Args []string

	// ID is the numeric id, or nil if the request had none. An id of 0 is
	// distinct from no id.
	ID *int
}

// NormalizeLine applies GTP preprocessing to one input line.
//
// Description:
//
//	Control characters other than tab are removed, tabs become spaces,
//	runs of spaces collapse to one and the result is trimmed.
func NormalizeLine(line string) string {
	var sb strings.Builder
	sb.Grow(len(line))
	space := false
	for _, r := range line {
		switch {
		case r == '\t' || r == ' ' || r == '\n':
			space = true
			continue
		case r < 32 || r == 127:
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// IsComment reports whether a normalized line is empty or a comment.
func IsComment(line string) bool {
	return line == "" || strings.HasPrefix(line, "#")
}

// ParseCommand parses a request line.
//
// Description:
//
//	Normalizes the line and strips a leading decimal id. The id is kept as
//	a pointer so that "0 name" and "name" stay distinguishable.
//
// Errors:
//
//	ErrEmptyCommand - the line is empty, a comment, or only an id
func ParseCommand(line string) (Command, error) {
	line = NormalizeLine(line)
	if IsComment(line) {
		return Command{}, ErrEmptyCommand
	}

	var cmd Command
	fields := strings.Split(line, " ")
	if isDecimal(fields[0]) {
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return Command{}, fmt.Errorf("%w: id %q out of range", ErrInvalidCommand, fields[0])
		}
		cmd.ID = &id
		fields = fields[1:]
		if len(fields) == 0 {
			return Command{}, ErrEmptyCommand
		}
	}

	cmd.Name = fields[0]
	cmd.Args = fields[1:]
	cmd.Line = strings.Join(fields, " ")
	return cmd, nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// =============================================================================
// ARGUMENT HELPERS
// =============================================================================

// ArgString returns the argument line after the command name.
func (c Command) ArgString() string {
	return strings.Join(c.Args, " ")
}

// CheckArgs fails unless the command has between min and max arguments.
// A max below zero means unbounded.
func (c Command) CheckArgs(min, max int) error {
	n := len(c.Args)
	if n < min || (max >= 0 && n > max) {
		if min == max {
			switch min {
			case 0:
				return Failure("no arguments allowed")
			case 1:
				return Failure("need argument")
			}
			return Failure("need %d arguments", min)
		}
		return Failure("invalid number of arguments")
	}
	return nil
}

// Int returns argument i as an integer.
func (c Command) Int(i int) (int, error) {
	if i >= len(c.Args) {
		return 0, Failure("missing argument")
	}
	n, err := strconv.Atoi(c.Args[i])
	if err != nil {
		return 0, Failure("argument %d must be an integer", i+1)
	}
	return n, nil
}

// Float returns argument i as a float.
func (c Command) Float(i int) (float64, error) {
	if i >= len(c.Args) {
		return 0, Failure("missing argument")
	}
	f, err := strconv.ParseFloat(c.Args[i], 64)
	if err != nil {
		return 0, Failure("argument %d must be a number", i+1)
	}
	return f, nil
}

// Color returns argument i as a color.
func (c Command) Color(i int) (board.Color, error) {
	if i >= len(c.Args) {
		return board.Empty, Failure("missing color argument")
	}
	col, err := board.ParseColor(c.Args[i])
	if err != nil {
		return board.Empty, Failure("invalid color argument")
	}
	return col, nil
}

// Point returns argument i as a point, nil for a pass.
func (c Command) Point(i, size int) (*board.Point, error) {
	if i >= len(c.Args) {
		return nil, Failure("missing point argument")
	}
	p, err := ParsePoint(c.Args[i], size)
	if err != nil {
		return nil, Failure("invalid point %s", c.Args[i])
	}
	return p, nil
}
