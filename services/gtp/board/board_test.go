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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoard(t *testing.T, size int) *Board {
	t.Helper()
	b, err := New(size)
	require.NoError(t, err)
	return b
}

func TestNew_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1, 26} {
		_, err := New(size)
		assert.ErrorIs(t, err, ErrInvalidSize, "size %d", size)
	}
}

func TestPoint_String(t *testing.T) {
	tests := []struct {
		p    Point
		want string
	}{
		{Pt(0, 0), "A1"},
		{Pt(3, 3), "D4"},
		{Pt(7, 0), "H1"},
		{Pt(8, 0), "J1"},
		{Pt(18, 18), "T19"},
		{Pt(24, 24), "Z25"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.String())
		})
	}
}

func TestParseColor(t *testing.T) {
	for _, s := range []string{"b", "B", "black", "BLACK"} {
		c, err := ParseColor(s)
		require.NoError(t, err)
		assert.Equal(t, Black, c)
	}
	for _, s := range []string{"w", "White"} {
		c, err := ParseColor(s)
		require.NoError(t, err)
		assert.Equal(t, White, c)
	}
	_, err := ParseColor("red")
	assert.ErrorIs(t, err, ErrInvalidColor)
}

func TestBoard_PlayAndToMove(t *testing.T) {
	b := newBoard(t, 9)

	require.NoError(t, b.Play(Play(Black, Pt(3, 3))))
	assert.Equal(t, Black, b.Get(Pt(3, 3)))
	assert.Equal(t, White, b.ToMove())
	assert.Equal(t, 1, b.MoveCount())

	require.NoError(t, b.Play(Pass(White)))
	assert.Equal(t, Black, b.ToMove())
	assert.Equal(t, 2, b.MoveCount())
}

func TestBoard_PlayOccupied(t *testing.T) {
	b := newBoard(t, 9)
	require.NoError(t, b.Play(Play(Black, Pt(2, 2))))

	err := b.Play(Play(White, Pt(2, 2)))
	assert.ErrorIs(t, err, ErrOccupied)
	assert.Equal(t, "point is occupied", err.Error())
	assert.Equal(t, 1, b.MoveCount(), "failed move must not be recorded")
	assert.Equal(t, White, b.ToMove())
}

func TestBoard_PlayOffBoard(t *testing.T) {
	b := newBoard(t, 9)
	err := b.Play(Play(Black, Pt(9, 0)))
	assert.ErrorIs(t, err, ErrOutOfBoard)
}

func TestBoard_CaptureAndUndo(t *testing.T) {
	b := newBoard(t, 9)
	// White stone at A1 captured by black B1 + A2.
	moves := []Move{
		Play(Black, Pt(1, 0)),
		Play(White, Pt(0, 0)),
		Play(Black, Pt(0, 1)),
	}
	for _, m := range moves {
		require.NoError(t, b.Play(m))
	}
	assert.Equal(t, Empty, b.Get(Pt(0, 0)), "white stone should be captured")

	require.True(t, b.Undo())
	assert.Equal(t, White, b.Get(Pt(0, 0)), "undo restores captured stone")
	assert.Equal(t, Empty, b.Get(Pt(0, 1)))
	assert.Equal(t, Black, b.ToMove())
}

func TestBoard_Suicide(t *testing.T) {
	b := newBoard(t, 9)
	require.NoError(t, b.Play(Play(Black, Pt(1, 0))))
	require.NoError(t, b.Play(Pass(White)))
	require.NoError(t, b.Play(Play(Black, Pt(0, 1))))

	require.NoError(t, b.Play(Play(White, Pt(0, 0))))
	assert.Equal(t, Empty, b.Get(Pt(0, 0)), "suicide stone is removed")

	require.True(t, b.Undo())
	assert.Equal(t, Empty, b.Get(Pt(0, 0)))
	assert.Equal(t, White, b.ToMove())
}

func TestBoard_UndoN(t *testing.T) {
	b := newBoard(t, 9)
	require.NoError(t, b.Play(Play(Black, Pt(0, 0))))
	require.NoError(t, b.Play(Play(White, Pt(1, 1))))

	assert.Equal(t, 2, b.UndoN(5), "undo is bounded by moves played")
	assert.False(t, b.Undo())
	assert.True(t, b.IsEmpty())
}

func TestBoard_Setup(t *testing.T) {
	b := newBoard(t, 19)
	stones := []Move{Play(Black, Pt(3, 3)), Play(Black, Pt(15, 15))}
	require.NoError(t, b.Setup(stones, White))
	assert.Equal(t, White, b.ToMove())
	assert.Equal(t, Black, b.Get(Pt(15, 15)))
	assert.Equal(t, 0, b.MoveCount())

	snap := b.Snapshot()
	assert.Len(t, snap.Setup, 2)
	assert.Equal(t, White, snap.ToMove)

	require.NoError(t, b.Play(Play(White, Pt(10, 10))))
	assert.ErrorIs(t, b.Setup(stones, White), ErrNotEmpty)
}

func TestBoard_SetupRejectsPass(t *testing.T) {
	b := newBoard(t, 9)
	assert.ErrorIs(t, b.Setup([]Move{Pass(Black)}, White), ErrPassSetup)
}

func TestBoard_SnapshotIsACopy(t *testing.T) {
	b := newBoard(t, 9)
	require.NoError(t, b.Play(Play(Black, Pt(4, 4))))
	snap := b.Snapshot()

	require.NoError(t, b.Play(Play(White, Pt(5, 5))))
	*snap.Moves[0].Point = Pt(0, 0)

	assert.Len(t, snap.Moves, 1)
	assert.Equal(t, Black, b.Get(Pt(4, 4)))
}

func TestBoard_Load(t *testing.T) {
	src := newBoard(t, 13)
	require.NoError(t, src.Setup([]Move{Play(Black, Pt(3, 3))}, White))
	require.NoError(t, src.Play(Play(White, Pt(9, 9))))
	require.NoError(t, src.Play(Pass(Black)))

	dst := newBoard(t, 9)
	require.NoError(t, dst.Load(src.Snapshot()))
	assert.Equal(t, 13, dst.Size())
	assert.Equal(t, src.Snapshot(), dst.Snapshot())
	assert.Equal(t, White, dst.ToMove())
}

func TestMove_Equal(t *testing.T) {
	assert.True(t, Play(Black, Pt(1, 2)).Equal(Play(Black, Pt(1, 2))))
	assert.False(t, Play(Black, Pt(1, 2)).Equal(Play(White, Pt(1, 2))))
	assert.True(t, Pass(White).Equal(Pass(White)))
	assert.False(t, Pass(White).Equal(Play(White, Pt(0, 0))))
}

func TestSnapshot_SetupEqual(t *testing.T) {
	base := Snapshot{
		Size:   9,
		Setup:  []Move{Play(Black, Pt(2, 2)), Play(Black, Pt(6, 6))},
		ToMove: White,
	}
	same := base.Clone()
	same.Moves = []Move{Play(White, Pt(4, 4))}
	assert.True(t, base.SetupEqual(same), "moves do not count")

	other := base.Clone()
	other.ToMove = Black
	assert.False(t, base.SetupEqual(other))

	reordered := base.Clone()
	reordered.Setup[0], reordered.Setup[1] = reordered.Setup[1], reordered.Setup[0]
	assert.False(t, base.SetupEqual(reordered))

	assert.False(t, base.SetupEqual(Snapshot{ToMove: White}))
}

func TestHandicapPoints(t *testing.T) {
	t.Run("19x19 nine stones", func(t *testing.T) {
		pts, err := HandicapPoints(19, 9)
		require.NoError(t, err)
		assert.Len(t, pts, 9)
		assert.Contains(t, pts, Pt(9, 9))
		assert.Contains(t, pts, Pt(3, 3))
		assert.Contains(t, pts, Pt(15, 15))
	})

	t.Run("19x19 four stones", func(t *testing.T) {
		pts, err := HandicapPoints(19, 4)
		require.NoError(t, err)
		assert.ElementsMatch(t, []Point{Pt(3, 3), Pt(15, 15), Pt(3, 15), Pt(15, 3)}, pts)
	})

	t.Run("9x9 uses third line", func(t *testing.T) {
		pts, err := HandicapPoints(9, 2)
		require.NoError(t, err)
		assert.Equal(t, []Point{Pt(2, 2), Pt(6, 6)}, pts)
	})

	t.Run("odd counts take the center", func(t *testing.T) {
		pts, err := HandicapPoints(19, 5)
		require.NoError(t, err)
		assert.Len(t, pts, 5)
		assert.Contains(t, pts, Pt(9, 9))
	})

	t.Run("zero stones", func(t *testing.T) {
		pts, err := HandicapPoints(19, 0)
		require.NoError(t, err)
		assert.Empty(t, pts)
	})

	t.Run("invalid", func(t *testing.T) {
		cases := [][2]int{{19, 1}, {19, 10}, {5, 2}, {10, 5}}
		for _, c := range cases {
			_, err := HandicapPoints(c[0], c[1])
			assert.True(t, errors.Is(err, ErrInvalidHandicap), "size %d n %d", c[0], c[1])
		}
	})
}
