// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assess

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sys/unix"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/VeracityAI/VeracityFOSS/services/assess/config"
)

// SetupObservability installs the global tracer and meter providers.
//
// Description:
//
//	Traces go to an OTLP collector over gRPC when an endpoint is
//	configured, to stdout otherwise. Metrics are always exposed to the
//	Prometheus registry (scraped via /metrics); an optional stdout
//	reader can be enabled for local debugging. W3C trace context
//	propagation is installed so upstream trace IDs flow through the
//	gin middleware into phase spans.
//
// Inputs:
//   - ctx: Used for exporter construction.
//   - cfg: The observability section of the service config.
//   - serviceName: Stamped on every span and metric as service.name.
//
// Outputs:
//   - func(context.Context) error: Shutdown; flushes pending telemetry.
//   - error: Exporter construction failure.
func SetupObservability(ctx context.Context, cfg config.ObservabilityConfig, serviceName string) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)

	var (
		traceExp sdktrace.SpanExporter
		err      error
	)
	if cfg.OTLPEndpoint != "" {
		conn, dialErr := grpc.NewClient(cfg.OTLPEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			return nil, fmt.Errorf("assess: dialing OTLP collector: %w", dialErr)
		}
		traceExp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("assess: creating OTLP trace exporter: %w", err)
		}
		slog.Info("Traces exporting to OTLP collector", slog.String("endpoint", cfg.OTLPEndpoint))
	} else {
		traceExp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("assess: creating stdout trace exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	promReader, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("assess: creating prometheus exporter: %w", err)
	}
	meterOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promReader),
	}
	if cfg.StdoutMetrics {
		metricExp, expErr := stdoutmetric.New()
		if expErr != nil {
			return nil, fmt.Errorf("assess: creating stdout metric exporter: %w", expErr)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(30*time.Second)),
		))
	}
	mp := sdkmetric.NewMeterProvider(meterOpts...)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		if err := mp.Shutdown(ctx); err != nil {
			return err
		}
		return tp.Shutdown(ctx)
	}
	return shutdown, nil
}

// minOpenFiles is what badger plus a busy scan wave comfortably need.
const minOpenFiles = 4096

// EnsureFileLimit raises the soft open-file limit toward the hard
// limit when it is below minOpenFiles. Badger in particular degrades
// confusingly under a tight default.
func EnsureFileLimit() {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		slog.Warn("Could not read open-file limit", slog.String("error", err.Error()))
		return
	}
	if lim.Cur >= minOpenFiles {
		return
	}

	want := lim
	want.Cur = minOpenFiles
	if want.Cur > want.Max {
		want.Cur = want.Max
	}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &want); err != nil {
		slog.Warn("Could not raise open-file limit",
			slog.Uint64("current", lim.Cur),
			slog.Uint64("wanted", want.Cur),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("Raised open-file limit",
		slog.Uint64("from", lim.Cur),
		slog.Uint64("to", want.Cur))
}
