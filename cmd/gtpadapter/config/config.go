// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package config loads the gtpadapter configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the gtpadapter configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Adapter   AdapterConfig   `yaml:"adapter"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig describes the engine child process.
type EngineConfig struct {
	// Command is the engine executable.
	Command string `yaml:"command" validate:"required"`

	Args []string `yaml:"args"`
	Dir  string   `yaml:"dir"`

	// Env holds extra KEY=VALUE entries.
	Env []string `yaml:"env" validate:"dive,contains=="`

	// Timeout bounds every engine command. Zero waits forever.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// KillGrace is how long the engine may take to exit after quit.
	KillGrace time.Duration `yaml:"kill_grace" validate:"gte=0"`

	// Name identifies the engine in logs. Defaults to the command's base name.
	Name string `yaml:"name"`

	// SignalInterrupt interrupts the engine with SIGINT.
	SignalInterrupt bool `yaml:"signal_interrupt"`
}

// AdapterConfig mirrors adapter.Config.
type AdapterConfig struct {
	Size       int    `yaml:"size" validate:"gte=1,lte=25"`
	Version1   bool   `yaml:"version1"`
	FillPasses bool   `yaml:"fill_passes"`
	Lowercase  bool   `yaml:"lowercase"`
	Name       string `yaml:"name"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`

	// JSON forces the output format. Nil picks text on a terminal and
	// JSON otherwise.
	JSON *bool `yaml:"json"`

	// Dir enables file logging.
	Dir string `yaml:"dir"`
}

// TelemetryConfig configures pkg/telemetry.
type TelemetryConfig struct {
	// MetricsAddr serves /metrics and /healthz when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`

	// TraceStdout exports spans to stderr.
	TraceStdout bool `yaml:"trace_stdout"`

	// OTLPEndpoint exports spans over OTLP gRPC.
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// DefaultConfig returns the configuration used when no file is given.
// It does not validate: the engine command has no default.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			KillGrace: 2 * time.Second,
		},
		Adapter: AdapterConfig{
			Size: 19,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over DefaultConfig. An empty path returns the
// defaults.
//
// The result is not validated; flags may still fill in missing values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s: failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
