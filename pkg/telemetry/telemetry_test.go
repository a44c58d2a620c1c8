// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	cfg := DefaultConfig()

	if cfg.ServiceName != "aleutian-gtp" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "aleutian-gtp")
	}
	if cfg.TraceExporter != "none" {
		t.Errorf("TraceExporter = %q, want %q", cfg.TraceExporter, "none")
	}
	if cfg.MetricExporter != "none" {
		t.Errorf("MetricExporter = %q, want %q", cfg.MetricExporter, "none")
	}
}

func TestDefaultConfig_Environment(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	cfg := DefaultConfig()

	if cfg.TraceExporter != "stdout" {
		t.Errorf("TraceExporter = %q, want %q", cfg.TraceExporter, "stdout")
	}
	if cfg.OTLPEndpoint != "collector:4317" {
		t.Errorf("OTLPEndpoint = %q, want %q", cfg.OTLPEndpoint, "collector:4317")
	}
}

func TestInit_NilContext(t *testing.T) {
	_, err := Init(nil, Config{TraceExporter: "none", MetricExporter: "none"})
	if !errors.Is(err, ErrNilContext) {
		t.Errorf("Init(nil, cfg) error = %v, want %v", err, ErrNilContext)
	}
}

func TestInit_NoopExporter(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: "none", MetricExporter: "none"})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin", MetricExporter: "none"})
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("trace exporter error = %v, want %v", err, ErrUnknownExporter)
	}

	_, err = Init(context.Background(), Config{TraceExporter: "none", MetricExporter: "statsd"})
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("metric exporter error = %v, want %v", err, ErrUnknownExporter)
	}
}

func TestInit_StdoutTraceExporter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout"
	cfg.MetricExporter = "none"
	cfg.Output = &buf

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "test-span")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), "test-span") {
		t.Errorf("exporter output does not contain the span: %q", buf.String())
	}
}

func TestInit_PrometheusExporter(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: "none", MetricExporter: "prometheus"})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	handler := MetricsHandler()
	if handler == nil {
		t.Fatal("MetricsHandler() = nil")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output is missing the default collectors")
	}
}
