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
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Response is one parsed response frame.
type Response struct {
	// OK is true for "=" and false for "?".
	OK bool

	// ID is the echoed id, or nil if none.
	ID *int

	// Body is the response text without status, id and terminator.
	// Multi-line bodies keep their inner newlines.
	Body string
}

// FormatResponse renders a complete response frame.
//
// Description:
//
//	Writes the status character, the id if present, one space and the
//	body. Trailing newlines of the body are dropped so that the frame ends
//	with exactly one blank line; empty inner lines become a single space.
func FormatResponse(ok bool, id *int, body string) string {
	body = strings.TrimRight(body, "\n")
	for strings.Contains(body, "\n\n") {
		body = strings.ReplaceAll(body, "\n\n", "\n \n")
	}
	var sb strings.Builder
	if ok {
		sb.WriteByte('=')
	} else {
		sb.WriteByte('?')
	}
	if id != nil {
		sb.WriteString(strconv.Itoa(*id))
	}
	sb.WriteByte(' ')
	sb.WriteString(body)
	sb.WriteString("\n\n")
	return sb.String()
}

// ReadResponse reads one response frame from r.
//
// Errors:
//
//	ErrProtocolFormat - the first non-blank line is not a status line
//	io.ErrUnexpectedEOF - the stream ended inside a frame
//	io.EOF - the stream ended before a frame started
func ReadResponse(r *bufio.Reader) (Response, error) {
	resp, _, err := readFrame(func() (string, error) {
		line, err := r.ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			return trimEOL(line), nil
		}
		return trimEOL(line), err
	})
	return resp, err
}

// readFrame assembles a frame from successive lines. next returns io.EOF
// when the stream has ended. raw is the frame text as received, for
// observers.
func readFrame(next func() (string, error)) (Response, string, error) {
	var line string
	var err error
	for {
		line, err = next()
		if err != nil {
			return Response{}, "", err
		}
		if strings.TrimSpace(line) != "" {
			break
		}
	}

	resp, body, err := parseStatusLine(line)
	if err != nil {
		// Fail at once: the engine may never send the blank line.
		return Response{}, line, err
	}

	raw := []string{line}
	lines := []string{body}
	for {
		line, err = next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return Response{}, strings.Join(raw, "\n"), err
		}
		if line == "" {
			break
		}
		raw = append(raw, line)
		lines = append(lines, line)
	}
	resp.Body = strings.Join(lines, "\n")
	return resp, strings.Join(raw, "\n"), nil
}

// parseStatusLine splits "=12 body" into status, id and first body line.
func parseStatusLine(line string) (Response, string, error) {
	if len(line) < 2 || (line[0] != '=' && line[0] != '?') {
		return Response{}, "", fmt.Errorf("%w: %q", ErrProtocolFormat, line)
	}
	resp := Response{OK: line[0] == '='}

	rest := line[1:]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end > 0 {
		id, err := strconv.Atoi(rest[:end])
		if err != nil {
			return Response{}, "", fmt.Errorf("%w: bad id in %q", ErrProtocolFormat, line)
		}
		resp.ID = &id
		rest = rest[end:]
	}
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return Response{}, "", fmt.Errorf("%w: %q", ErrProtocolFormat, line)
	}
	if rest != "" {
		rest = rest[1:]
	}
	return resp, rest, nil
}

// trimEOL strips a trailing "\n" or "\r\n".
func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
