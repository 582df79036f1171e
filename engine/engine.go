// Package engine wires every component into a runnable embeddable
// server: New() builds the collaborators and mounts the reactor,
// Sites()/Registry() let a host application register sites and its own
// pluggable modules before Init() starts background work, and Run() blocks
// serving HTTP(S) until SIGINT/SIGTERM drives a graceful Shutdown().
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/edwig/marlin/core/ports"
	"github.com/edwig/marlin/core/registry"
	"github.com/edwig/marlin/internal/config"
	"github.com/edwig/marlin/internal/metrics"
	"github.com/edwig/marlin/internal/pool"
	"github.com/edwig/marlin/internal/reactor"
	"github.com/edwig/marlin/internal/rm"
	"github.com/edwig/marlin/internal/security"
	"github.com/edwig/marlin/internal/site"
	"github.com/edwig/marlin/internal/sse"
	"github.com/edwig/marlin/internal/telemetry"
)

// Engine wraps every collaborator and manages the embeddable server's
// lifecycle. Usage: New() -> Sites().Register(...)/Registry().Register(...)
// overrides -> Init() -> Run().
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	echo   *echo.Echo
	reg    *registry.Registry

	pool      *pool.Pool
	sites     *site.Registry
	pipeline  *site.Pipeline
	rmMachine *rm.Machine
	streams   *sse.Registry
	validator *security.Validator
	reactor   *reactor.Reactor

	metrics   *metrics.Metrics
	telemetry *telemetry.Providers
}

// New loads configuration and constructs every collaborator, wiring the
// ten-step pipeline (C6) on top of the worker pool (C1), site registry
// (C5), RM machine (C7), SSE registry (C8), security validator (C9) and
// fault emitter (C10), and mounts the reactor's catch-all route (plus
// /metrics when metrics are enabled). It does not start background work —
// call Init for that, after registering any sites/overrides.
func New(ctx context.Context) (*Engine, error) {
	logger := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var traceWriter *os.File
	if cfg.Observability.TracingStdout {
		traceWriter = os.Stdout
	}
	var tp *telemetry.Providers
	if traceWriter != nil {
		tp, err = telemetry.New(telemetry.Config{ServiceName: "marlin", Writer: traceWriter})
	} else {
		tp, err = telemetry.New(telemetry.Config{ServiceName: "marlin"})
	}
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	var mtr *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.Observability.MetricsEnabled {
		mtr, metricsHandler, err = metrics.New("marlin")
		if err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	codec := ports.NewEnvelopeCodec()

	workPool := pool.New(pool.Config{
		MinThreads: cfg.Server.MinThreads,
		MaxThreads: cfg.Server.MaxThreads,
		QueueDepth: cfg.Server.QueueLength,
		Logger:     logger,
	})

	sites := site.NewRegistry()
	rmMachine := rm.NewMachine(codec)
	streams := sse.NewRegistry(sse.Config{Logger: logger})
	validator := security.NewValidator(codec, nil)

	pipeline := &site.Pipeline{
		Security: validator,
		Reliable: rmMachine,
		RMFault:  rmMachine,
		Logger:   logger,
	}
	// Pipeline.Metrics takes a non-nil *metrics.Metrics only: assigning a
	// nil *Metrics to the MetricsRecorder interface field would make it
	// compare non-nil and panic on first use.
	if mtr != nil {
		pipeline.Metrics = mtr
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(telemetry.EchoMiddleware("marlin"))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				logger.Error("request",
					slog.String("method", v.Method), slog.String("uri", v.URI),
					slog.Int("status", v.Status), slog.Duration("latency", v.Latency),
					slog.String("remote_ip", v.RemoteIP), slog.String("error", v.Error.Error()))
			} else {
				logger.Info("request",
					slog.String("method", v.Method), slog.String("uri", v.URI),
					slog.Int("status", v.Status), slog.Duration("latency", v.Latency),
					slog.String("remote_ip", v.RemoteIP))
			}
			return nil
		},
	}))

	react := reactor.New(reactor.Config{
		Registry:       sites,
		Pool:           workPool,
		Pipeline:       pipeline,
		SSE:            streams,
		Logger:         logger,
		StreamingLimit: cfg.Server.StreamingLimit,
	})

	if mtr != nil && metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(metricsHandler))
	}
	e.Any("/*", react.Handle)

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		echo:      e,
		reg:       registry.New(logger),
		pool:      workPool,
		sites:     sites,
		pipeline:  pipeline,
		rmMachine: rmMachine,
		streams:   streams,
		validator: validator,
		reactor:   react,
		metrics:   mtr,
		telemetry: tp,
	}, nil
}

// Sites returns the site registry for registering Sites before Init.
func (e *Engine) Sites() *site.Registry { return e.sites }

// Registry returns the module registry, for a host application to
// register its own pluggable modules before Init.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Pool returns the underlying worker pool.
func (e *Engine) Pool() *pool.Pool { return e.pool }

// Echo returns the hosting Echo instance for route/middleware extensions.
func (e *Engine) Echo() *echo.Echo { return e.echo }

// Logger returns the configured logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// RMMachine returns the RM session machine, for diagnostics or manual
// session inspection.
func (e *Engine) RMMachine() *rm.Machine { return e.rmMachine }

// Streams returns the SSE registry, for send_event-style broadcasting
// from outside the pipeline.
func (e *Engine) Streams() *sse.Registry { return e.streams }

// Validator returns the current security validator.
func (e *Engine) Validator() *security.Validator { return e.validator }

// SetPasswordLookup installs the UsernameToken password resolver. Call
// before Init; a nil lookup (the default) disables UsernameToken
// verification entirely.
func (e *Engine) SetPasswordLookup(lookup security.PasswordLookup) {
	e.validator = security.NewValidator(ports.NewEnvelopeCodec(), lookup)
	e.pipeline.Security = e.validator
}

// metricsSampleInterval is how often the pool/RM/SSE gauges refresh.
const metricsSampleInterval = 5 * time.Second

// sampleMetrics feeds the §10 gauges from their live collaborators. It
// runs on the pool's shared heartbeat rather than its own ticker.
func (e *Engine) sampleMetrics() {
	e.metrics.SetPoolGauges(e.pool.CurrentThreads(), e.pool.BusyThreads(), e.pool.MinThreads(), e.pool.MaxThreads())
	e.metrics.SetRMActiveSessions(e.rmMachine.Count())
	e.metrics.SetSSEActiveStreams(e.streams.Count())
}

// Init starts the worker pool, initializes any registered modules, and
// is the last step before Run. Call after registering sites/overrides.
func (e *Engine) Init(ctx context.Context) error {
	e.pool.Run()
	if e.metrics != nil {
		e.pool.Heartbeat().Start(e.sampleMetrics, metricsSampleInterval)
	}
	if err := e.reg.InitAll(ctx); err != nil {
		return fmt.Errorf("initialize modules: %w", err)
	}
	return nil
}

// Run starts the HTTP(S) server and blocks until SIGINT/SIGTERM, then
// performs a graceful Shutdown.
func (e *Engine) Run(ctx context.Context) error {
	addr := e.cfg.Server.Address()

	go func() {
		e.logger.Info("starting server", slog.String("address", addr))
		if err := e.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	e.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// Shutdown drains and stops every component: the registered modules, the
// reactor's throttle cleaner, the worker pool, telemetry providers, and
// finally the HTTP server itself.
func (e *Engine) Shutdown(ctx context.Context) error {
	if err := e.reg.ShutdownAll(ctx); err != nil {
		e.logger.Error("module shutdown error", slog.String("error", err.Error()))
	}

	e.reactor.Stop()

	if err := e.pool.Shutdown(ctx); err != nil {
		e.logger.Error("pool shutdown error", slog.String("error", err.Error()))
	}

	if err := e.telemetry.Shutdown(ctx); err != nil {
		e.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	if err := e.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("echo shutdown: %w", err)
	}
	return nil
}
