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
	"errors"
	"fmt"
)

// Sentinel errors for GTP operations.
var (
	// ErrSpawn indicates the engine process could not be started.
	ErrSpawn = errors.New("engine could not be started")

	// ErrWrite indicates writing a command to the engine failed.
	ErrWrite = errors.New("engine write failed")

	// ErrEngineDied indicates the engine closed its output. The connection
	// is dead permanently.
	ErrEngineDied = errors.New("engine is dead")

	// ErrProtocolFormat indicates a response without a valid status line.
	// The connection stays alive.
	ErrProtocolFormat = errors.New("invalid gtp response")

	// ErrTimeout indicates no response arrived before the deadline.
	ErrTimeout = errors.New("engine timeout")

	// ErrInterrupted indicates the wait for a response was abandoned.
	ErrInterrupted = errors.New("engine command interrupted")

	// ErrInterruptUnsupported indicates the engine offers no way to
	// interrupt a running command.
	ErrInterruptUnsupported = errors.New("engine does not support interrupt")

	// ErrUnsupportedProtocol indicates protocol_version returned a value
	// other than 1 or 2.
	ErrUnsupportedProtocol = errors.New("unsupported gtp protocol version")

	// ErrEmptyCommand indicates an empty or comment-only command.
	ErrEmptyCommand = errors.New("empty command")

	// ErrInvalidCommand indicates a command that cannot be sent as one line.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrEmptyResponse indicates a response body was required but empty.
	ErrEmptyResponse = errors.New("empty response")

	// ErrInvalidPoint indicates unparseable point notation.
	ErrInvalidPoint = errors.New("invalid point")

	// ErrBoardFormat indicates a malformed board response.
	ErrBoardFormat = errors.New("invalid board response")

	// ErrNumberFormat indicates a non-numeric token in a numeric board.
	ErrNumberFormat = errors.New("invalid number")
)

// DeadEngineMessage is the failure body returned to controllers once the
// engine connection is dead.
const DeadEngineMessage = "Engine is dead."

// CommandError is a GTP failure response ("?").
//
// It never affects the connection state. Servers write Message verbatim as
// the failure body.
type CommandError struct {
	// Command is the command line that failed. May be empty for errors
	// raised by local handlers.
	Command string

	// Message is the failure body.
	Message string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Command == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// Failure returns a CommandError carrying only a message.
func Failure(format string, args ...any) *CommandError {
	return &CommandError{Message: fmt.Sprintf(format, args...)}
}

// EngineError wraps a transport failure with the operation and engine.
//
// Use errors.Is against the sentinel errors: errors.Is(err, ErrEngineDied).
type EngineError struct {
	// Op is the failing operation ("spawn", "write", "read", "send").
	Op string

	// Engine is the engine name, usually the executable.
	Engine string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Engine == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("engine %s: %s: %v", e.Engine, e.Op, e.Cause)
}

// Unwrap returns the cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// IsTransportError reports whether err invalidates the connection: the
// engine died, a write failed, a timeout fired or a read was abandoned.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrEngineDied) ||
		errors.Is(err, ErrWrite) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrInterrupted)
}
