// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianGTP/cmd/gtpadapter/config"
	"github.com/AleutianAI/AleutianGTP/pkg/logging"
	"github.com/AleutianAI/AleutianGTP/pkg/telemetry"
	"github.com/AleutianAI/AleutianGTP/services/gtp"
	"github.com/AleutianAI/AleutianGTP/services/gtp/adapter"
)

// stderrPerSecond and stderrBurst throttle engine stderr in the log.
const (
	stderrPerSecond = 50
	stderrBurst     = 200
)

type options struct {
	configPath string

	size            int
	version1        bool
	fillPasses      bool
	lowercase       bool
	name            string
	timeout         time.Duration
	signalInterrupt bool

	logLevel    string
	logJSON     bool
	logDir      string
	metricsAddr string
	traceStdout bool
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "gtpadapter [flags] -- engine [engine args...]",
		Short: "Protocol adapter between a GTP controller and a GTP engine",
		Long: `gtpadapter speaks GTP on stdin and stdout and drives a GTP engine
child process. It keeps its own board, replays it into the engine with
undo where possible, translates protocol version 1 commands and fills in
the commands an engine lacks.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	bindFlags(cmd, &opts)
	return cmd
}

func bindFlags(cmd *cobra.Command, opts *options) {
	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	f.IntVar(&opts.size, "size", 19, "initial board size")
	f.BoolVar(&opts.version1, "version1", false, "speak protocol version 1 to the controller")
	f.BoolVar(&opts.fillPasses, "fill-passes", false, "insert passes so the engine sees alternating colors")
	f.BoolVar(&opts.lowercase, "lowercase", false, "lowercase points in genmove responses")
	f.StringVar(&opts.name, "name", "", "answer to the name command")
	f.DurationVar(&opts.timeout, "timeout", 0, "timeout for each engine command (0 waits forever)")
	f.BoolVar(&opts.signalInterrupt, "signal-interrupt", false, "interrupt the engine with SIGINT")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	f.BoolVar(&opts.logJSON, "log-json", false, "log JSON instead of text")
	f.StringVar(&opts.logDir, "log-dir", "", "also write JSON logs to this directory")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	f.BoolVar(&opts.traceStdout, "trace-stdout", false, "export spans to stderr")
}

// resolveConfig loads the file and lets changed flags and the engine
// command line override it.
func resolveConfig(cmd *cobra.Command, opts options, args []string) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}

	f := cmd.Flags()
	if f.Changed("size") {
		cfg.Adapter.Size = opts.size
	}
	if f.Changed("version1") {
		cfg.Adapter.Version1 = opts.version1
	}
	if f.Changed("fill-passes") {
		cfg.Adapter.FillPasses = opts.fillPasses
	}
	if f.Changed("lowercase") {
		cfg.Adapter.Lowercase = opts.lowercase
	}
	if f.Changed("name") {
		cfg.Adapter.Name = opts.name
	}
	if f.Changed("timeout") {
		cfg.Engine.Timeout = opts.timeout
	}
	if f.Changed("signal-interrupt") {
		cfg.Engine.SignalInterrupt = opts.signalInterrupt
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if f.Changed("log-json") {
		cfg.Logging.JSON = &opts.logJSON
	}
	if f.Changed("log-dir") {
		cfg.Logging.Dir = opts.logDir
	}
	if f.Changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = opts.metricsAddr
	}
	if f.Changed("trace-stdout") {
		cfg.Telemetry.TraceStdout = opts.traceStdout
	}

	engineArgs := args
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		engineArgs = args[dash:]
	}
	if len(engineArgs) > 0 {
		cfg.Engine.Command = engineArgs[0]
		cfg.Engine.Args = engineArgs[1:]
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger builds the process logger. Without an explicit format it logs
// text to a terminal and JSON otherwise.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	jsonOut := !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())
	if cfg.JSON != nil {
		jsonOut = *cfg.JSON
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "gtpadapter",
		JSON:    jsonOut,
		Output:  os.Stderr,
	}), nil
}

func telemetryConfig(cfg config.TelemetryConfig) telemetry.Config {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = "gtpadapter"
	switch {
	case cfg.OTLPEndpoint != "":
		tcfg.TraceExporter = "otlp"
		tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	case cfg.TraceStdout:
		tcfg.TraceExporter = "stdout"
	}
	if cfg.MetricsAddr != "" {
		tcfg.MetricExporter = "prometheus"
	}
	tcfg.Output = os.Stderr
	return tcfg
}

func run(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Slog()

	shutdown, err := telemetry.Init(ctx, telemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	proc, err := gtp.StartProcess(ctx, gtp.ProcessConfig{
		Command:   cfg.Engine.Command,
		Args:      cfg.Engine.Args,
		Dir:       cfg.Engine.Dir,
		Env:       cfg.Engine.Env,
		Name:      cfg.Engine.Name,
		KillGrace: cfg.Engine.KillGrace,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	client := gtp.NewClient(proc,
		gtp.WithLogger(log),
		gtp.WithObserver(gtp.NewLogObserver(log.With(slog.String("session_id", proc.SessionID())), stderrPerSecond, stderrBurst)),
		gtp.WithDefaultTimeout(cfg.Engine.Timeout),
		gtp.WithSignalInterrupt(cfg.Engine.SignalInterrupt),
	)
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.KillGrace+time.Second)
		defer cancel()
		_ = client.Close(cctx)
	}()

	a, err := adapter.New(ctx, client, adapter.Config{
		Size:       cfg.Adapter.Size,
		Version1:   cfg.Adapter.Version1,
		FillPasses: cfg.Adapter.FillPasses,
		Lowercase:  cfg.Adapter.Lowercase,
		Name:       cfg.Adapter.Name,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	return serve(ctx, log, cfg.Telemetry.MetricsAddr, a, client)
}

// serve runs the GTP loop and, if addr is set, the HTTP endpoints. Both
// stop when the controller quits or ctx is done.
func serve(ctx context.Context, log *slog.Logger, addr string, a *adapter.Adapter, client *gtp.Client) error {
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, loopDone := context.WithCancel(gctx)

	g.Go(func() error {
		defer loopDone()
		err := a.Serve(loopCtx, os.Stdin, os.Stdout)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			log.Info("Interrupted, shutting down")
			return nil
		}
		return err
	})

	if addr != "" {
		srv := newHTTPServer(addr, newRouter(metricsHandler(), client.IsAlive))
		g.Go(func() error {
			log.Info("Serving metrics", slog.String("addr", addr))
			return listen(srv)
		})
		g.Go(func() error {
			<-loopCtx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}
