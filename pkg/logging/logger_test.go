// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.toSlogLevel(); got != tt.want {
				t.Errorf("toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" Warn ", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Service: "gtpadapter", Output: &buf})
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("engine started", "pid", 42)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message logged at info level: %q", out)
	}
	for _, want := range []string{"engine started", "pid=42", "service=gtpadapter"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, JSON: true, Output: &buf})
	logger.Debug("gtp send", "command", "genmove black")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v: %q", err, buf.String())
	}
	if record["msg"] != "gtp send" || record["command"] != "genmove black" {
		t.Errorf("unexpected record %v", record)
	}
}

func TestNew_QuietWithoutFileFallsBack(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Quiet: true, Output: &buf})
	logger.Warn("still visible")
	if !strings.Contains(buf.String(), "still visible") {
		t.Errorf("quiet logger without a file dropped output")
	}
}

func TestNew_FileLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "gtp", Output: &buf})

	logger.With("engine", "gnugo").Info("to both")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	name := filepath.Join(dir, "gtp_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if !strings.Contains(string(data), `"engine":"gnugo"`) {
		t.Errorf("file %q missing attribute", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("stream output missing message")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNew_BadLogDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0600); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	logger := New(Config{LogDir: filepath.Join(file, "logs"), Output: &buf})
	defer logger.Close()

	if !strings.Contains(buf.String(), "File logging disabled") {
		t.Errorf("missing warning, got %q", buf.String())
	}
}

func TestLogger_WithDoesNotCloseParentFile(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	child := logger.With("k", "v")
	if err := child.Close(); err != nil {
		t.Fatalf("child Close() error = %v", err)
	}
	logger.Info("parent still writes")
	if err := logger.Close(); err != nil {
		t.Fatalf("parent Close() error = %v", err)
	}
}

func TestSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})
	logger.Slog().Info("direct", slog.Int("n", 1))
	if !strings.Contains(buf.String(), "n=1") {
		t.Errorf("Slog() output %q", buf.String())
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		in   string
		want string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"~", home},
		{"/var/log", "/var/log"},
		{"rel/path", "rel/path"},
		{"~user/logs", "~user/logs"},
	}
	for _, tt := range tests {
		if got := expandPath(tt.in); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
