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
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// Channel is a line transport to one engine.
//
// Description:
//
//	Writes and reads are independent. Reads are never concurrent; the
//	Client serializes them. Once the read side reaches end of stream the
//	channel is dead and WriteLine fails without I/O.
type Channel interface {
	// WriteLine writes text followed by a newline.
	WriteLine(text string) error

	// ReadLine blocks for the next line without its terminator. It returns
	// io.EOF once the stream has ended, or ctx.Err() if ctx is done first.
	ReadLine(ctx context.Context) (string, error)

	// IsAlive reports whether the channel can still carry commands.
	IsAlive() bool

	// Interrupt signals the engine out of band, if the transport can.
	Interrupt() error

	// Close releases the transport.
	Close(ctx context.Context) error
}

// stderrSource is implemented by channels that carry a diagnostic stream.
type stderrSource interface {
	setStderrFunc(fn func(text string))
}

// =============================================================================
// LINE READER
// =============================================================================

// lineReader reads lines from r in a background goroutine so that a blocked
// read can be abandoned with a context.
type lineReader struct {
	lines    chan string
	done     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
	err      error // set before done is closed
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{
		lines: make(chan string, 64),
		done:  make(chan struct{}),
		quit:  make(chan struct{}),
	}
	go lr.run(r)
	return lr
}

func (lr *lineReader) run(r io.Reader) {
	defer close(lr.done)
	defer close(lr.lines)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			select {
			case lr.lines <- trimEOL(line):
			case <-lr.quit:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				lr.err = err
			}
			return
		}
	}
}

// next returns the next line, io.EOF at end of stream, or ctx.Err().
func (lr *lineReader) next(ctx context.Context) (string, error) {
	select {
	case line, ok := <-lr.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// stop releases the goroutine if it is blocked delivering a line nobody
// will read.
func (lr *lineReader) stop() {
	lr.quitOnce.Do(func() { close(lr.quit) })
}

// ended reports whether the stream has ended. Buffered lines may remain.
func (lr *lineReader) ended() bool {
	select {
	case <-lr.done:
		return true
	default:
		return false
	}
}

// =============================================================================
// STREAM CHANNEL
// =============================================================================

// StreamChannel is a Channel over an arbitrary reader/writer pair.
//
// Description:
//
//	Used for in-process engines, pipes and tests. ProcessChannel builds on
//	it for child processes.
//
// Thread Safety:
//
//	WriteLine, Interrupt and IsAlive are safe for concurrent use. ReadLine
//	must be called from one goroutine at a time.
type StreamChannel struct {
	reader    *lineReader
	w         io.WriteCloser
	writeMu   sync.Mutex
	dead      atomic.Bool
	interrupt func() error
	closeOnce sync.Once
}

// ChannelOption configures a StreamChannel.
type ChannelOption func(*StreamChannel)

// WithInterruptFunc sets the out-of-band interrupt used by Interrupt.
func WithInterruptFunc(fn func() error) ChannelOption {
	return func(c *StreamChannel) {
		c.interrupt = fn
	}
}

// NewStreamChannel creates a channel reading responses from r and writing
// commands to w. Reading starts immediately.
func NewStreamChannel(r io.Reader, w io.WriteCloser, opts ...ChannelOption) *StreamChannel {
	c := &StreamChannel{
		reader: newLineReader(r),
		w:      w,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WriteLine writes text and a newline.
//
// Errors:
//
//	ErrEngineDied - the channel is already dead; nothing is written
//	ErrWrite - the write failed; the channel is now dead
func (c *StreamChannel) WriteLine(text string) error {
	if !c.IsAlive() {
		return ErrEngineDied
	}
	if strings.ContainsAny(text, "\r\n") {
		return fmt.Errorf("%w: line contains a newline", ErrInvalidCommand)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := io.WriteString(c.w, text+"\n"); err != nil {
		c.dead.Store(true)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if f, ok := c.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			c.dead.Store(true)
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}
	return nil
}

// ReadLine returns the next line. End of stream marks the channel dead.
func (c *StreamChannel) ReadLine(ctx context.Context) (string, error) {
	line, err := c.reader.next(ctx)
	if errors.Is(err, io.EOF) {
		c.dead.Store(true)
	}
	return line, err
}

// IsAlive reports whether the channel has not failed and its output has not
// ended.
func (c *StreamChannel) IsAlive() bool {
	if c.dead.Load() {
		return false
	}
	if c.reader.ended() {
		c.dead.Store(true)
		return false
	}
	return true
}

// Interrupt calls the configured interrupt function.
func (c *StreamChannel) Interrupt() error {
	if c.interrupt == nil {
		return ErrInterruptUnsupported
	}
	return c.interrupt()
}

// Close closes the write side. The engine sees end of input.
func (c *StreamChannel) Close(_ context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.dead.Store(true)
		c.writeMu.Lock()
		err = c.w.Close()
		c.writeMu.Unlock()
		c.reader.stop()
	})
	return err
}
