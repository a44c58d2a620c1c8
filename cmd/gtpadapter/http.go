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
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianGTP/pkg/telemetry"
)

func init() {
	// Stdout carries GTP.
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = os.Stderr
	gin.DefaultErrorWriter = os.Stderr
}

// metricsHandler serves the default registry, which holds both the
// promauto collectors and the OpenTelemetry bridge.
func metricsHandler() http.Handler {
	if h := telemetry.MetricsHandler(); h != nil {
		return h
	}
	return promhttp.Handler()
}

// newRouter serves /metrics and /healthz. alive reports whether the
// engine connection is usable.
func newRouter(metrics http.Handler, alive func() bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware("gtpadapter"))

	r.GET("/metrics", gin.WrapH(metrics))
	r.GET("/healthz", func(c *gin.Context) {
		if !alive() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "engine dead"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
