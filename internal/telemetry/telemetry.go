// Package telemetry wires the §10 ambient tracing/logging providers: a
// tracer provider exported via stdout during development (no OTLP
// network exporter — Marlin is an embeddable library with no implied
// external collector endpoint), a logger provider bridged from slog,
// and the otelecho middleware that produces one span per request on the
// hosting Echo.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/labstack/echo/v4"

	otelecho "go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config selects how the providers are wired.
type Config struct {
	ServiceName string

	// Writer receives the stdout-exported spans during development. A
	// nil Writer disables the trace exporter entirely, leaving the
	// tracer provider a no-op sink — the right choice outside local
	// development since there's no collector to forward to.
	Writer io.Writer
}

// Providers bundles the constructed tracer/logger providers and a ready
// slog.Logger whose records flow through the logger provider.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	LoggerProvider *sdklog.LoggerProvider
	Logger         *slog.Logger
	Tracer         trace.Tracer
}

// New builds the tracer and logger providers and installs the tracer
// provider as the global one, since the Echo middleware reads
// otel.Tracer() rather than a passed-in provider.
func New(cfg Config) (*Providers, error) {
	tp, err := newTracerProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)

	lp := sdklog.NewLoggerProvider()
	logger := slog.New(otelslog.NewHandler(cfg.ServiceName, otelslog.WithLoggerProvider(lp)))

	return &Providers{
		TracerProvider: tp,
		LoggerProvider: lp,
		Logger:         logger,
		Tracer:         tp.Tracer(cfg.ServiceName),
	}, nil
}

func newTracerProvider(cfg Config) (*sdktrace.TracerProvider, error) {
	if cfg.Writer == nil {
		return sdktrace.NewTracerProvider(), nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("new stdout trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter)), nil
}

// EchoMiddleware returns the per-request span middleware to install on
// the hosting Echo instance.
func EchoMiddleware(serviceName string) echo.MiddlewareFunc {
	return otelecho.Middleware(serviceName)
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if err := p.TracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: tracer provider shutdown: %w", err)
	}
	if err := p.LoggerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: logger provider shutdown: %w", err)
	}
	return nil
}
