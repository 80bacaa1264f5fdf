// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
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
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/VeracityAI/VeracityFOSS/services/assess"
	"github.com/VeracityAI/VeracityFOSS/services/assess/config"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the assessment API server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	assess.EnsureFileLimit()

	shutdownTelemetry, err := assess.SetupObservability(ctx, cfg.Observability, "veracity-assess")
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	svc, err := assess.NewService(ctx, assess.ServiceOptions{Config: cfg})
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Shutdown(); err != nil {
			slog.Warn("Service shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if debugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("veracity-assess"))
	if debugMode {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	assess.RegisterRoutes(v1, assess.NewHandlers(svc))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Hot-reload: scan tuning applies to future runs; everything else
	// (addresses, providers, stores) needs a restart.
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(next *config.Config) {
				svc.ApplyScanConfig(next.Scan)
				slog.Info("Scan tuning updated for future runs")
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("Config watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Assessment API listening", slog.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(drainCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	}
}
