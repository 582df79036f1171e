// Package metrics is the §10 ambient metrics surface: pool gauges, RM
// session count, SSE stream/chunk counts, pipeline request/latency, and
// security pass/fail counters, exported through an OpenTelemetry meter
// backed by the Prometheus exporter and served on /metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics owns the meter provider and every instrument the pipeline,
// pool, RM machine, SSE registry, and security validator report through.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	poolCurrent atomic.Int64
	poolBusy    atomic.Int64
	poolMin     atomic.Int64
	poolMax     atomic.Int64

	rmSessions atomic.Int64
	sseStreams atomic.Int64

	sseChunksTotal        metric.Int64Counter
	pipelineRequestsTotal metric.Int64Counter
	pipelineLatency       metric.Float64Histogram
	securityPassTotal     metric.Int64Counter
	securityFailTotal     metric.Int64Counter
}

// New builds a Metrics instance instrumented under serviceName and
// returns it alongside the http.Handler to mount at /metrics.
func New(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: new prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(serviceName)

	m := &Metrics{provider: provider, meter: meter}
	if err := m.registerInstruments(); err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

func (m *Metrics) registerInstruments() error {
	var err error

	_, err = m.meter.Int64ObservableGauge("marlin.pool.current",
		metric.WithDescription("current worker pool thread count"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.poolCurrent.Load())
			return nil
		}))
	if err != nil {
		return fmt.Errorf("metrics: pool.current: %w", err)
	}

	_, err = m.meter.Int64ObservableGauge("marlin.pool.busy",
		metric.WithDescription("worker pool threads currently running a job"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.poolBusy.Load())
			return nil
		}))
	if err != nil {
		return fmt.Errorf("metrics: pool.busy: %w", err)
	}

	_, err = m.meter.Int64ObservableGauge("marlin.pool.min",
		metric.WithDescription("worker pool configured minimum thread count"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.poolMin.Load())
			return nil
		}))
	if err != nil {
		return fmt.Errorf("metrics: pool.min: %w", err)
	}

	_, err = m.meter.Int64ObservableGauge("marlin.pool.max",
		metric.WithDescription("worker pool configured maximum thread count"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.poolMax.Load())
			return nil
		}))
	if err != nil {
		return fmt.Errorf("metrics: pool.max: %w", err)
	}

	_, err = m.meter.Int64ObservableGauge("marlin.rm.active_sessions",
		metric.WithDescription("active WS-ReliableMessaging sessions"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.rmSessions.Load())
			return nil
		}))
	if err != nil {
		return fmt.Errorf("metrics: rm.active_sessions: %w", err)
	}

	_, err = m.meter.Int64ObservableGauge("marlin.sse.active_streams",
		metric.WithDescription("active server-sent event streams"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.sseStreams.Load())
			return nil
		}))
	if err != nil {
		return fmt.Errorf("metrics: sse.active_streams: %w", err)
	}

	if m.sseChunksTotal, err = m.meter.Int64Counter("marlin.sse.chunks_total",
		metric.WithDescription("total SSE data chunks sent")); err != nil {
		return fmt.Errorf("metrics: sse.chunks_total: %w", err)
	}

	if m.pipelineRequestsTotal, err = m.meter.Int64Counter("marlin.pipeline.requests_total",
		metric.WithDescription("pipeline requests processed, by site and status class")); err != nil {
		return fmt.Errorf("metrics: pipeline.requests_total: %w", err)
	}

	if m.pipelineLatency, err = m.meter.Float64Histogram("marlin.pipeline.latency_seconds",
		metric.WithDescription("pipeline request latency, by site and status class"),
		metric.WithUnit("s")); err != nil {
		return fmt.Errorf("metrics: pipeline.latency_seconds: %w", err)
	}

	if m.securityPassTotal, err = m.meter.Int64Counter("marlin.security.pass_total",
		metric.WithDescription("security validations that succeeded")); err != nil {
		return fmt.Errorf("metrics: security.pass_total: %w", err)
	}

	if m.securityFailTotal, err = m.meter.Int64Counter("marlin.security.fail_total",
		metric.WithDescription("security validations that failed")); err != nil {
		return fmt.Errorf("metrics: security.fail_total: %w", err)
	}

	return nil
}

// SetPoolGauges updates the worker pool's observable gauges. Called by
// the engine's periodic metrics sampler on the pool's heartbeat.
func (m *Metrics) SetPoolGauges(current, busy, min, max int) {
	m.poolCurrent.Store(int64(current))
	m.poolBusy.Store(int64(busy))
	m.poolMin.Store(int64(min))
	m.poolMax.Store(int64(max))
}

// SetRMActiveSessions reports the RM machine's current session count.
func (m *Metrics) SetRMActiveSessions(n int) {
	m.rmSessions.Store(int64(n))
}

// SetSSEActiveStreams reports the SSE registry's current stream count.
func (m *Metrics) SetSSEActiveStreams(n int) {
	m.sseStreams.Store(int64(n))
}

// AddSSEChunks increments the total chunks-sent counter by n.
func (m *Metrics) AddSSEChunks(ctx context.Context, n int64) {
	m.sseChunksTotal.Add(ctx, n)
}

// statusClass buckets an HTTP status into its "2xx"/"4xx"/... class,
// keeping cardinality low the way request-count metrics conventionally
// do for per-status labels.
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// RecordPipelineRequest records one finished pipeline run: request
// count and latency, labeled by site name and status class.
func (m *Metrics) RecordPipelineRequest(ctx context.Context, site string, status int, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("site", site),
		attribute.String("status_class", statusClass(status)),
	)
	m.pipelineRequestsTotal.Add(ctx, 1, attrs)
	m.pipelineLatency.Record(ctx, seconds, attrs)
}

// RecordSecurityResult increments the pass or fail counter.
func (m *Metrics) RecordSecurityResult(ctx context.Context, passed bool) {
	if passed {
		m.securityPassTotal.Add(ctx, 1)
		return
	}
	m.securityFailTotal.Add(ctx, 1)
}

// Shutdown flushes and stops the underlying meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if err := m.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}
	return nil
}
