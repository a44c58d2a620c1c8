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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGTP/services/gtp/board"
)

func TestNormalizeLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "play black D4", "play black D4"},
		{"runs of spaces", "  play   black\t\tD4  ", "play black D4"},
		{"control characters", "pl\x01ay black\x7f D4\r", "play black D4"},
		{"empty", " \t ", ""},
		{"comment kept", "# hello  world", "# hello world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLine(tt.in))
		})
	}
}

func TestParseCommand(t *testing.T) {
	t.Run("without id", func(t *testing.T) {
		cmd, err := ParseCommand("play  black D4")
		require.NoError(t, err)
		assert.Nil(t, cmd.ID)
		assert.Equal(t, "play", cmd.Name)
		assert.Equal(t, []string{"black", "D4"}, cmd.Args)
		assert.Equal(t, "play black D4", cmd.Line)
	})

	t.Run("with id", func(t *testing.T) {
		cmd, err := ParseCommand("12 genmove w")
		require.NoError(t, err)
		require.NotNil(t, cmd.ID)
		assert.Equal(t, 12, *cmd.ID)
		assert.Equal(t, "genmove", cmd.Name)
		assert.Equal(t, "genmove w", cmd.Line)
	})

	t.Run("id zero is distinct from no id", func(t *testing.T) {
		cmd, err := ParseCommand("0 name")
		require.NoError(t, err)
		require.NotNil(t, cmd.ID)
		assert.Equal(t, 0, *cmd.ID)
	})

	t.Run("no arguments", func(t *testing.T) {
		cmd, err := ParseCommand("name")
		require.NoError(t, err)
		assert.Empty(t, cmd.Args)
	})

	t.Run("empty and comments", func(t *testing.T) {
		for _, line := range []string{"", "   ", "# comment", "7"} {
			_, err := ParseCommand(line)
			assert.ErrorIs(t, err, ErrEmptyCommand, "line %q", line)
		}
	})

	t.Run("id out of range", func(t *testing.T) {
		_, err := ParseCommand("99999999999999999999999 name")
		assert.ErrorIs(t, err, ErrInvalidCommand)
	})
}

func TestCommand_ArgumentHelpers(t *testing.T) {
	cmd, err := ParseCommand("x 19 6.5 white c3 pass")
	require.NoError(t, err)

	n, err := cmd.Int(0)
	require.NoError(t, err)
	assert.Equal(t, 19, n)

	f, err := cmd.Float(1)
	require.NoError(t, err)
	assert.InDelta(t, 6.5, f, 1e-9)

	c, err := cmd.Color(2)
	require.NoError(t, err)
	assert.Equal(t, board.White, c)

	p, err := cmd.Point(3, 19)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, board.Pt(2, 2), *p)

	p, err = cmd.Point(4, 19)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = cmd.Int(2)
	assert.Error(t, err)
	_, err = cmd.Color(9)
	assert.Error(t, err)

	assert.Equal(t, "19 6.5 white c3 pass", cmd.ArgString())
}

func TestCommand_CheckArgs(t *testing.T) {
	cmd, err := ParseCommand("boardsize")
	require.NoError(t, err)

	err = cmd.CheckArgs(1, 1)
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "need argument", ce.Message)

	assert.NoError(t, cmd.CheckArgs(0, -1))
	cmd.Args = []string{"a", "b", "c"}
	assert.Error(t, cmd.CheckArgs(0, 2))
	assert.NoError(t, cmd.CheckArgs(1, -1))
}
