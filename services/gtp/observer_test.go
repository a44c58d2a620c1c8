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
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func debugLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogObserver_Traffic(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogObserver(debugLogger(&buf), 0, 0)

	o.CommandSent("genmove black")
	o.ResponseReceived("= D4\n\n", false)
	o.StderrReceived("thinking...\n")
	o.StderrReceived("\n")

	out := buf.String()
	assert.Contains(t, out, `command="genmove black"`)
	assert.Contains(t, out, "failed=false")
	assert.Contains(t, out, "text=thinking...")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}

func TestLogObserver_RateLimitsStderr(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogObserver(debugLogger(&buf), 1e-9, 2)

	for i := 0; i < 5; i++ {
		o.StderrReceived("noise")
	}
	assert.Equal(t, int64(3), o.Dropped())
	assert.Equal(t, 2, strings.Count(buf.String(), "engine stderr"))

	o.limiter.SetLimit(rate.Inf)
	o.StderrReceived("last")
	assert.Contains(t, buf.String(), "dropped=3")
	assert.Zero(t, o.Dropped())
}
