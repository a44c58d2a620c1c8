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

// MaxHandicap is the largest standard fixed handicap.
const MaxHandicap = 9

// HandicapPoints returns the standard handicap points for n stones.
//
// Description:
//
//	Uses the star points: the 4-4 points on boards of 13 and larger, the
//	3-3 points on boards 7 to 12. Five or more stones need a center line,
//	which only odd boards of size 9 and larger have. n == 0 returns an
//	empty list.
//
// Errors:
//
//	ErrInvalidHandicap - the size has no standard placement for n
func HandicapPoints(size, n int) ([]Point, error) {
	if n == 0 {
		return []Point{}, nil
	}
	if n < 2 || n > MaxHandicap {
		return nil, ErrInvalidHandicap
	}

	line1, line2, line3 := -1, -1, -1
	switch {
	case size >= 13:
		line1 = 3
		line3 = size - 4
	case size >= 7:
		line1 = 2
		line3 = size - 3
	}
	if size >= 9 && size%2 != 0 {
		line2 = size / 2
	}
	if line1 < 0 {
		return nil, ErrInvalidHandicap
	}
	if n > 4 && line2 < 0 {
		return nil, ErrInvalidHandicap
	}

	points := make([]Point, 0, n)
	points = append(points, Pt(line1, line1))
	if n >= 2 {
		points = append(points, Pt(line3, line3))
	}
	if n >= 3 {
		points = append(points, Pt(line1, line3))
	}
	if n >= 4 {
		points = append(points, Pt(line3, line1))
	}
	rest := n
	if rest >= 5 && rest%2 != 0 {
		points = append(points, Pt(line2, line2))
		rest--
	}
	if rest >= 6 {
		points = append(points, Pt(line1, line2), Pt(line3, line2))
	}
	if rest >= 8 {
		points = append(points, Pt(line2, line1), Pt(line2, line3))
	}
	return points, nil
}
