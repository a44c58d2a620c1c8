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
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Observer receives side-channel notifications from a Client.
//
// Calls happen on the goroutine doing the I/O and must not block. They never
// influence the protocol.
type Observer interface {
	// CommandSent is called after a command line was written.
	CommandSent(cmd string)

	// ResponseReceived is called with the raw response frame.
	ResponseReceived(raw string, failed bool)

	// StderrReceived is called with each chunk of engine stderr.
	StderrReceived(text string)
}

// LogObserver logs protocol traffic and engine stderr.
//
// Description:
//
//	Commands and responses are logged at debug level. Stderr lines are
//	logged at debug level through a token bucket; lines over the limit
//	are dropped and their count is reported with the next logged line.
//
// Thread Safety:
//
//	Safe for concurrent use.
type LogObserver struct {
	logger  *slog.Logger
	limiter *rate.Limiter
	dropped atomic.Int64
}

// NewLogObserver creates a LogObserver. perSecond <= 0 disables the stderr
// limit.
func NewLogObserver(logger *slog.Logger, perSecond float64, burst int) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &LogObserver{
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// CommandSent implements Observer.
func (o *LogObserver) CommandSent(cmd string) {
	o.logger.Debug("gtp send", slog.String("command", cmd))
}

// ResponseReceived implements Observer.
func (o *LogObserver) ResponseReceived(raw string, failed bool) {
	o.logger.Debug("gtp receive",
		slog.String("response", raw),
		slog.Bool("failed", failed),
	)
}

// StderrReceived implements Observer.
func (o *LogObserver) StderrReceived(text string) {
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return
	}
	if !o.limiter.Allow() {
		o.dropped.Add(1)
		return
	}
	if n := o.dropped.Swap(0); n > 0 {
		o.logger.Debug("engine stderr",
			slog.String("text", text),
			slog.Int64("dropped", n),
		)
		return
	}
	o.logger.Debug("engine stderr", slog.String("text", text))
}

// Dropped returns the number of stderr lines dropped and not yet reported.
func (o *LogObserver) Dropped() int64 {
	return o.dropped.Load()
}

// nopObserver is used when no observer is configured.
type nopObserver struct{}

func (nopObserver) CommandSent(string)            {}
func (nopObserver) ResponseReceived(string, bool) {}
func (nopObserver) StderrReceived(string)         {}
