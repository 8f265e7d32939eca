package cli

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"labcore/internal/blob"
	"labcore/internal/config"
	"labcore/internal/core"
	"labcore/internal/resolvers"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// app is one wired engine: store, blobs, service and its observers.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	svc       *core.Service
	resolvers *resolvers.Resolvers
	blobs     blob.Store

	// metrics serves the selected exporter; nil when metrics are off.
	metrics http.Handler
	closers []func(context.Context) error
}

// openApp loads the configuration and opens everything it names. Diagnostics
// go to errOut.
func openApp(ctx context.Context, opts *RootOptions, errOut io.Writer) (*app, error) {
	cfg, err := config.LoadWith(opts.ConfigPath, opts.Lookup)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	a := &app{cfg: cfg, logger: config.NewLogger(cfg.Log, errOut)}
	if err := a.open(ctx, errOut); err != nil {
		_ = a.Close(context.WithoutCancel(ctx))
		return nil, WrapExitError(ExitCommandError, "open labcore", err)
	}
	return a, nil
}

func (a *app) open(ctx context.Context, errOut io.Writer) error {
	store, err := core.OpenDocumentStore(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, store.Close)

	blobs, err := core.OpenBlobStore(ctx, a.cfg.Blob)
	if err != nil {
		return err
	}
	a.blobs = blobs

	svcOpts := []core.Option{core.WithLogger(a.logger), core.WithBlobStore(blobs)}
	switch a.cfg.Metrics.Exporter {
	case "expvar":
		svcOpts = append(svcOpts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")))
		a.metrics = expvar.Handler()
	case "prometheus":
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return err
		}
		svcOpts = append(svcOpts, core.WithMetricsRecorder(rec))
		a.metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	switch a.cfg.Metrics.Tracer {
	case "json":
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(errOut)))
	case "otel":
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(errOut))
		if err != nil {
			return fmt.Errorf("create span exporter: %w", err)
		}
		provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		a.closers = append(a.closers, provider.Shutdown)
		svcOpts = append(svcOpts, core.WithTracer(core.NewOTelTracer(provider)))
	}
	if a.cfg.Activity.Enabled {
		log := core.NewActivityLog(store.Activity(),
			core.WithActivityQueueSize(a.cfg.Activity.QueueSize),
			core.WithActivityLogger(a.logger))
		log.Start()
		a.closers = append(a.closers, log.Stop)
		svcOpts = append(svcOpts, core.WithActivityRecorder(log))
	}

	a.svc = core.NewService(store, svcOpts...)
	a.resolvers = resolvers.New(a.svc)
	return nil
}

// Close releases resources in reverse order of opening.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp opens the engine for the duration of fn and attaches the actor.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Actor != "" {
		ctx = core.ContextWithActor(ctx, opts.Actor)
	}
	a, err := openApp(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Close(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn("close labcore", "error", err)
	}
	return runErr
}
