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
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int {
	return &n
}

func TestFormatResponse(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
		id   *int
		body string
		want string
	}{
		{"success", true, nil, "D4", "= D4\n\n"},
		{"failure with id", false, intPtr(3), "unknown command", "?3 unknown command\n\n"},
		{"empty body", true, nil, "", "= \n\n"},
		{"trailing newlines", true, intPtr(0), "a\n\n\n", "=0 a\n\n"},
		{"multi-line", true, nil, "a\nb", "= a\nb\n\n"},
		{"inner blank line", true, nil, "a\n\nb", "= a\n \nb\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatResponse(tt.ok, tt.id, tt.body))
		})
	}
}

func TestReadResponse(t *testing.T) {
	t.Run("skips blank lines before the frame", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("\n\n= D4\n\n"))
		resp, err := ReadResponse(r)
		require.NoError(t, err)
		assert.True(t, resp.OK)
		assert.Nil(t, resp.ID)
		assert.Equal(t, "D4", resp.Body)
	})

	t.Run("multi-line failure with id", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("?42 first\nsecond\r\n\r\n"))
		resp, err := ReadResponse(r)
		require.NoError(t, err)
		assert.False(t, resp.OK)
		require.NotNil(t, resp.ID)
		assert.Equal(t, 42, *resp.ID)
		assert.Equal(t, "first\nsecond", resp.Body)
	})

	t.Run("id without body", func(t *testing.T) {
		resp, err := ReadResponse(bufio.NewReader(strings.NewReader("=5\n\n")))
		require.NoError(t, err)
		require.NotNil(t, resp.ID)
		assert.Equal(t, 5, *resp.ID)
		assert.Empty(t, resp.Body)
	})

	t.Run("consecutive frames", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("= a\n\n= b\n\n"))
		first, err := ReadResponse(r)
		require.NoError(t, err)
		second, err := ReadResponse(r)
		require.NoError(t, err)
		assert.Equal(t, "a", first.Body)
		assert.Equal(t, "b", second.Body)
	})

	t.Run("malformed status line", func(t *testing.T) {
		for _, in := range []string{"hello\n\n", "=\n\n", "=x\n\n"} {
			_, err := ReadResponse(bufio.NewReader(strings.NewReader(in)))
			assert.ErrorIs(t, err, ErrProtocolFormat, "input %q", in)
		}
	})

	t.Run("malformed line returns before the terminator", func(t *testing.T) {
		calls := 0
		_, raw, err := readFrame(func() (string, error) {
			calls++
			if calls > 1 {
				t.Fatal("read past the malformed status line")
			}
			return "garbage", nil
		})
		assert.ErrorIs(t, err, ErrProtocolFormat)
		assert.Equal(t, "garbage", raw)
	})

	t.Run("end of stream", func(t *testing.T) {
		_, err := ReadResponse(bufio.NewReader(strings.NewReader("")))
		assert.ErrorIs(t, err, io.EOF)

		_, err = ReadResponse(bufio.NewReader(strings.NewReader("= partial\n")))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestFraming_RoundTrip(t *testing.T) {
	bodies := []string{"", "D4", "  leading spaces", "a b c", "line1\nline2\nline3"}
	ids := []*int{nil, intPtr(0), intPtr(17)}
	for _, ok := range []bool{true, false} {
		for _, id := range ids {
			for _, body := range bodies {
				frame := FormatResponse(ok, id, body)
				resp, err := ReadResponse(bufio.NewReader(strings.NewReader(frame)))
				require.NoError(t, err, "frame %q", frame)
				assert.Equal(t, ok, resp.OK)
				assert.Equal(t, id, resp.ID)
				assert.Equal(t, body, resp.Body)
			}
		}
	}
}
