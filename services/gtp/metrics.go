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
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for GTP operations.
var (
	tracer = otel.Tracer("aleutian.gtp")
	meter  = otel.Meter("aleutian.gtp")
)

// =============================================================================
// OTEL METRICS (client side)
// =============================================================================

var (
	commandLatency metric.Float64Histogram
	commandTotal   metric.Int64Counter
	engineSpawns   metric.Int64Counter
	engineDeaths   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		commandLatency, err = meter.Float64Histogram(
			"gtp_command_duration_seconds",
			metric.WithDescription("Round trip time of GTP commands sent to engines"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		commandTotal, err = meter.Int64Counter(
			"gtp_command_total",
			metric.WithDescription("Total number of GTP commands sent to engines"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		engineSpawns, err = meter.Int64Counter(
			"gtp_engine_spawns_total",
			metric.WithDescription("Total number of engine process starts"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		engineDeaths, err = meter.Int64Counter(
			"gtp_engine_deaths_total",
			metric.WithDescription("Total number of engine connections marked dead"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startCommandSpan creates a span for one client round trip.
func startCommandSpan(ctx context.Context, name, engine string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Client.Execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gtp.command", name),
			attribute.String("gtp.engine", engine),
		),
	)
}

// endSpan records the outcome on a span and ends it.
func endSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// recordCommand records metrics for a client round trip. outcome is "ok",
// "failed" (a "?" response) or "error".
func recordCommand(ctx context.Context, name, engine string, duration time.Duration, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("command", name),
		attribute.String("engine", engine),
		attribute.String("outcome", outcome),
	)
	commandLatency.Record(ctx, duration.Seconds(), attrs)
	commandTotal.Add(ctx, 1, attrs)
}

func recordEngineSpawn(ctx context.Context, engine string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	engineSpawns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.Bool("success", success),
	))
}

func recordEngineDeath(ctx context.Context, engine, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	engineDeaths.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("reason", reason),
	))
}

// =============================================================================
// PROMETHEUS METRICS (server side)
// =============================================================================

var (
	// serverCommands counts dispatched controller commands.
	// Labels: command (registered name or "unknown"), status (ok, failed)
	serverCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gtp",
		Subsystem: "server",
		Name:      "commands_total",
		Help:      "Total controller commands dispatched",
	}, []string{"command", "status"})

	// serverLatency measures handler run time.
	// Labels: command
	serverLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gtp",
		Subsystem: "server",
		Name:      "handler_duration_seconds",
		Help:      "Controller command handler latency in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"command"})

	// syncRuns counts Synchronize calls.
	// Labels: mode (noop, incremental, full), status (ok, error)
	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gtp",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Total synchronizations by mode",
	}, []string{"mode", "status"})

	// syncCommands counts commands sent by the synchronizer.
	// Labels: kind (boardsize, clear_board, undo, play, setup)
	syncCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gtp",
		Subsystem: "sync",
		Name:      "commands_total",
		Help:      "Total commands sent to engines by the synchronizer",
	}, []string{"kind"})
)
