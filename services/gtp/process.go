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
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultKillGrace is how long Close waits for the engine to exit after
// closing its input before killing it.
const DefaultKillGrace = 5 * time.Second

// ProcessConfig describes an engine process.
type ProcessConfig struct {
	// Command is the executable, looked up in PATH.
	Command string

	// Args are the command line arguments.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE entries added to the environment.
	Env []string

	// Name identifies the engine in logs and errors. Defaults to the base
	// name of Command.
	Name string

	// KillGrace overrides DefaultKillGrace.
	KillGrace time.Duration

	// Logger receives lifecycle logs. Nil means slog.Default().
	Logger *slog.Logger
}

// ProcessChannel is a Channel to an engine child process.
//
// Description:
//
//	Stdin and stdout carry GTP. Stderr is drained continuously by its
//	own goroutine so the engine never blocks on a full pipe; each line
//	goes to the stderr handler installed by the Client, or is logged at
//	debug level.
//
// Thread Safety:
//
//	Same as StreamChannel.
type ProcessChannel struct {
	*StreamChannel

	name      string
	sessionID string
	cmdLine   string
	grace     time.Duration
	logger    *slog.Logger

	cmd        *exec.Cmd
	cancel     context.CancelFunc
	stderrDone chan struct{}
	stderrFn   atomic.Pointer[func(string)]

	waitOnce sync.Once
	waitDone chan struct{}
	waitErr  error
}

// StartProcess launches an engine.
//
// Description:
//
//	The process lives until Close, independent of ctx cancellation. ctx
//	values (trace context) are kept for the process lifetime.
//
// Errors:
//
//	ErrSpawn - the executable was not found or could not be started
func StartProcess(ctx context.Context, cfg ProcessConfig) (*ProcessChannel, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if cfg.Command == "" {
		return nil, &EngineError{Op: "spawn", Cause: fmt.Errorf("%w: empty command", ErrSpawn)}
	}
	name := cfg.Name
	if name == "" {
		name = filepath.Base(cfg.Command)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := cfg.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	spawnErr := func(err error) error {
		recordEngineSpawn(ctx, name, false)
		return &EngineError{Op: "spawn", Engine: name, Cause: fmt.Errorf("%w: %w", ErrSpawn, err)}
	}

	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, spawnErr(err)
	}

	p := &ProcessChannel{
		name:       name,
		sessionID:  uuid.NewString(),
		cmdLine:    strings.Join(append([]string{cfg.Command}, cfg.Args...), " "),
		grace:      grace,
		stderrDone: make(chan struct{}),
		waitDone:   make(chan struct{}),
	}
	p.logger = logger.With(
		slog.String("engine", name),
		slog.String("session_id", p.sessionID),
	)

	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.cmd = exec.CommandContext(procCtx, path, cfg.Args...)
	p.cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		p.cmd.Env = append(os.Environ(), cfg.Env...)
	}

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, spawnErr(fmt.Errorf("stdin pipe: %w", err))
	}
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, spawnErr(fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, spawnErr(fmt.Errorf("stderr pipe: %w", err))
	}

	if err := p.cmd.Start(); err != nil {
		cancel()
		return nil, spawnErr(err)
	}
	recordEngineSpawn(ctx, name, true)

	p.StreamChannel = NewStreamChannel(stdout, stdin, WithInterruptFunc(p.signalInterrupt))
	go p.drainStderr(stderr)

	p.logger.Info("Started engine",
		slog.String("command", p.cmdLine),
		slog.Int("pid", p.cmd.Process.Pid),
	)
	return p, nil
}

// Name returns the engine name.
func (p *ProcessChannel) Name() string {
	return p.name
}

// SessionID returns the id attached to this process in logs.
func (p *ProcessChannel) SessionID() string {
	return p.sessionID
}

// CommandLine returns the command line used to launch the engine.
func (p *ProcessChannel) CommandLine() string {
	return p.cmdLine
}

// Pid returns the process id.
func (p *ProcessChannel) Pid() int {
	return p.cmd.Process.Pid
}

// Close closes the engine's input and waits for it to exit.
//
// Description:
//
//	The engine gets the grace period (or until ctx is done) to exit on
//	its own, then it is killed. Waits for the stderr drain to finish.
//	Safe to call more than once.
func (p *ProcessChannel) Close(ctx context.Context) error {
	_ = p.StreamChannel.Close(ctx)

	go p.wait()

	timer := time.NewTimer(p.grace)
	defer timer.Stop()
	select {
	case <-p.waitDone:
	case <-timer.C:
		p.logger.Warn("Engine did not exit, killing it", slog.Duration("grace", p.grace))
		_ = p.cmd.Process.Kill()
		<-p.waitDone
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
		<-p.waitDone
	}
	p.cancel()
	<-p.stderrDone

	var exitErr *exec.ExitError
	if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) {
		return &EngineError{Op: "wait", Engine: p.name, Cause: p.waitErr}
	}
	p.logger.Info("Engine exited", slog.Int("exit_code", p.cmd.ProcessState.ExitCode()))
	return nil
}

func (p *ProcessChannel) wait() {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		close(p.waitDone)
	})
}

func (p *ProcessChannel) setStderrFunc(fn func(text string)) {
	p.stderrFn.Store(&fn)
}

// drainStderr forwards stderr line by line until the pipe closes.
func (p *ProcessChannel) drainStderr(r io.Reader) {
	defer close(p.stderrDone)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if fn := p.stderrFn.Load(); fn != nil {
				(*fn)(line)
			} else {
				p.logger.Debug("engine stderr", slog.String("text", trimEOL(line)))
			}
		}
		if err != nil {
			return
		}
	}
}
