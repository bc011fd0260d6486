// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracing installs the global OpenTelemetry tracer provider.
// Export is opt-in: with no endpoint configured the global provider
// stays the no-op default and spans cost nothing.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/bureau-foundation/inviter/lib/config"
	"github.com/bureau-foundation/inviter/lib/version"
)

// ShutdownFunc flushes pending spans. It is safe to call when Setup
// installed nothing.
type ShutdownFunc func(context.Context) error

// Setup exports spans to cfg.Endpoint over OTLP/HTTP. The caller
// defers the returned shutdown.
func Setup(ctx context.Context, cfg config.TracingConfig) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if cfg.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
		otlptracehttp.WithHeaders(map[string]string{"User-Agent": version.UserAgent()}),
	)
	if err != nil {
		return noop, fmt.Errorf("creating OTLP exporter for %s: %w", cfg.Endpoint, err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "inviter"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version.Version),
	))
	if err != nil {
		return noop, fmt.Errorf("building trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return provider.Shutdown, nil
}
