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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGTP/cmd/gtpadapter/config"
)

// resolve parses args like the real command and returns the resulting
// configuration without starting anything.
func resolve(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	var opts options
	var cfg config.Config
	cmd := &cobra.Command{
		Use:           "gtpadapter",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = resolveConfig(cmd, opts, args)
			return err
		},
	}
	bindFlags(cmd, &opts)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return cfg, err
}

func TestResolveConfig_EngineAfterDash(t *testing.T) {
	cfg, err := resolve(t, "--size", "9", "--fill-passes", "--", "gnugo", "--mode", "gtp")
	require.NoError(t, err)
	assert.Equal(t, "gnugo", cfg.Engine.Command)
	assert.Equal(t, []string{"--mode", "gtp"}, cfg.Engine.Args)
	assert.Equal(t, 9, cfg.Adapter.Size)
	assert.True(t, cfg.Adapter.FillPasses)
	assert.Nil(t, cfg.Logging.JSON)
}

func TestResolveConfig_MissingEngine(t *testing.T) {
	_, err := resolve(t, "--size", "9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Command")
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gtpadapter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  command: leela
  timeout: 10s
adapter:
  size: 13
  lowercase: true
logging:
  level: warn
`), 0o600))

	cfg, err := resolve(t, "--config", path, "--size", "19", "--log-json", "--timeout", "1m")
	require.NoError(t, err)
	assert.Equal(t, "leela", cfg.Engine.Command)
	assert.Equal(t, 19, cfg.Adapter.Size)
	assert.True(t, cfg.Adapter.Lowercase)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, time.Minute, cfg.Engine.Timeout)
	require.NotNil(t, cfg.Logging.JSON)
	assert.True(t, *cfg.Logging.JSON)
}

func TestResolveConfig_InvalidSize(t *testing.T) {
	_, err := resolve(t, "--size", "30", "--", "gnugo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Size")
}

func TestTelemetryConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	tcfg := telemetryConfig(config.TelemetryConfig{})
	assert.Equal(t, "none", tcfg.TraceExporter)
	assert.Equal(t, "none", tcfg.MetricExporter)

	tcfg = telemetryConfig(config.TelemetryConfig{MetricsAddr: ":9090", TraceStdout: true})
	assert.Equal(t, "stdout", tcfg.TraceExporter)
	assert.Equal(t, "prometheus", tcfg.MetricExporter)

	tcfg = telemetryConfig(config.TelemetryConfig{OTLPEndpoint: "collector:4317", TraceStdout: true})
	assert.Equal(t, "otlp", tcfg.TraceExporter)
	assert.Equal(t, "collector:4317", tcfg.OTLPEndpoint)
}

func TestNewLogger_Level(t *testing.T) {
	_, err := newLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)

	jsonOut := true
	logger, err := newLogger(config.LoggingConfig{Level: "debug", JSON: &jsonOut})
	require.NoError(t, err)
	assert.NoError(t, logger.Close())
}
