// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gtp implements both sides of the Go Text Protocol.
//
// GTP is a line-oriented request/response protocol used to drive Go engines
// running as child processes. A request is one line, optionally prefixed by a
// numeric id; a response starts with "=" (success) or "?" (failure), echoes
// the id and ends with a blank line.
//
// # Architecture
//
//	controller ──► Server ──► handlers (adapter logic) ──► Client ──► Channel ──► engine
//	                 ▲                                                          │
//	                 └──────────────── framed responses ◄───────────────────────┘
//
// # Components
//
//   - Channel: line transport. ProcessChannel owns an engine process and
//     drains its stderr; StreamChannel runs over any reader/writer pair.
//   - Client: one command in flight at a time, with timeout and
//     cancellation, protocol version and supported command discovery.
//   - Server: command dispatcher with optional id echo and built-in
//     protocol_version, list_commands, known_command and quit.
//   - Synchronizer: sends the fewest boardsize/clear_board/undo/play/setup
//     commands that bring an engine to a target position.
//   - ParsePoint, ParsePointList, ParseStringBoard, ParseDoubleBoard:
//     response body parsers.
//
// # Error Model
//
// Transport failures (ErrEngineDied, ErrWrite, ErrTimeout, ErrInterrupted)
// permanently kill a Client; every later call fails without I/O. A "?"
// response is data: Execute returns it as a Response with OK false, Send
// returns it as a *CommandError. ErrProtocolFormat fails only the current
// call.
//
// # Example
//
//	ch, err := gtp.StartProcess(ctx, gtp.ProcessConfig{Command: "gnugo", Args: []string{"--mode", "gtp"}})
//	if err != nil {
//	    return err
//	}
//	client := gtp.NewClient(ch)
//	defer client.Close(context.Background())
//
//	if err := client.QueryProtocolVersion(ctx); err != nil {
//	    return err
//	}
//	move, err := client.Send(ctx, client.CommandGenmove(board.Black))
package gtp
