// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sgf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGTP/services/gtp/board"
)

func TestRead_MainLine(t *testing.T) {
	src := `(;GM[1]FF[4]SZ[9]KM[6.5]
  ;B[cc];W[gg]
  (;B[dd];W[]
  )(;B[ee]))`

	g, err := Read(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 9, g.Size)
	require.NotNil(t, g.Komi)
	assert.InDelta(t, 6.5, *g.Komi, 1e-9)
	assert.Equal(t, board.Black, g.ToMove)

	want := []board.Move{
		board.Play(board.Black, board.Pt(2, 6)),
		board.Play(board.White, board.Pt(6, 2)),
		board.Play(board.Black, board.Pt(3, 5)),
		board.Pass(board.White),
	}
	assert.Equal(t, want, g.Moves)
}

func TestRead_Setup(t *testing.T) {
	src := `(;SZ[19]AB[dp][pd]AW[qq];W[cc])`

	g, err := Read(strings.NewReader(src))
	require.NoError(t, err)

	require.Len(t, g.Setup, 3)
	assert.Equal(t, board.Play(board.Black, board.Pt(3, 3)), g.Setup[0])
	assert.Equal(t, "D4", g.Setup[0].Point.String())
	assert.Equal(t, "Q16", g.Setup[1].Point.String())
	assert.Equal(t, board.White, g.Setup[2].Color)
	assert.Equal(t, board.White, g.ToMove, "first move decides the player to move")
}

func TestRead_HandicapWithoutMoves(t *testing.T) {
	g, err := Read(strings.NewReader(`(;SZ[19]HA[2]AB[dp][pd])`))
	require.NoError(t, err)
	assert.Equal(t, board.White, g.ToMove)
	assert.Nil(t, g.Komi)
}

func TestRead_PlayerProperty(t *testing.T) {
	g, err := Read(strings.NewReader(`(;SZ[9]AB[cc]PL[B])`))
	require.NoError(t, err)
	assert.Equal(t, board.Black, g.ToMove)
}

func TestRead_CompressedPoints(t *testing.T) {
	g, err := Read(strings.NewReader(`(;SZ[5]AB[aa:bb])`))
	require.NoError(t, err)
	assert.Len(t, g.Setup, 4)
}

func TestRead_PassAsTT(t *testing.T) {
	g, err := Read(strings.NewReader(`(;SZ[19];B[tt];W[aa])`))
	require.NoError(t, err)
	require.Len(t, g.Moves, 2)
	assert.True(t, g.Moves[0].IsPass())
	assert.Equal(t, "A19", g.Moves[1].Point.String())
}

func TestRead_EscapedComment(t *testing.T) {
	g, err := Read(strings.NewReader(`(;SZ[9]C[a \] tricky ; comment (];B[aa])`))
	require.NoError(t, err)
	assert.Len(t, g.Moves, 1)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		err  error
	}{
		{"no tree", `;B[aa]`, ErrSyntax},
		{"unterminated", `(;B[aa`, ErrSyntax},
		{"unclosed tree", `(;B[aa]`, ErrSyntax},
		{"off board", `(;SZ[5];B[zz])`, ErrSyntax},
		{"non square", `(;SZ[9:13])`, ErrUnsupported},
		{"too large", `(;SZ[26])`, ErrUnsupported},
		{"late setup", `(;SZ[9];B[aa];AW[bb])`, ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.src))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestGame_Snapshot(t *testing.T) {
	g, err := Read(strings.NewReader(`(;SZ[9]AB[ee];W[aa];B[bb];W[cc])`))
	require.NoError(t, err)

	all := g.Snapshot(-1)
	assert.Len(t, all.Moves, 3)

	two := g.Snapshot(2)
	assert.Len(t, two.Moves, 2)
	assert.Len(t, two.Setup, 1)
	assert.Equal(t, 9, two.Size)

	b, err := board.New(9)
	require.NoError(t, err)
	require.NoError(t, b.Load(two))
	assert.Equal(t, board.White, b.ToMove())
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.sgf")
	require.NoError(t, os.WriteFile(path, []byte(`(;SZ[13];B[dd])`), 0o644))

	g, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 13, g.Size)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.sgf"))
	assert.Error(t, err)
}
