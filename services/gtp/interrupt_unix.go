// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package gtp

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// signalInterrupt sends SIGINT to the engine process.
func (p *ProcessChannel) signalInterrupt() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return ErrInterruptUnsupported
	}
	if err := unix.Kill(p.cmd.Process.Pid, unix.SIGINT); err != nil {
		return fmt.Errorf("send SIGINT to %s: %w", p.name, err)
	}
	return nil
}
