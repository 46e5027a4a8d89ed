// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bureau-foundation/iostream/lib/clock"
	"github.com/bureau-foundation/iostream/lib/config"
	"github.com/bureau-foundation/iostream/lib/ingest"
	"github.com/bureau-foundation/iostream/lib/logging"
	"github.com/bureau-foundation/iostream/lib/metrics"
	"github.com/bureau-foundation/iostream/lib/process"
	"github.com/bureau-foundation/iostream/lib/retention"
	"github.com/bureau-foundation/iostream/lib/service"
	"github.com/bureau-foundation/iostream/lib/stream"
	"github.com/bureau-foundation/iostream/lib/upstream"
	"github.com/bureau-foundation/iostream/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errExit) {
			return
		}
		process.Fatal(programName, err)
	}
}

func run(args []string) error {
	cfg, err := parseOptions(args, os.Stderr, os.Getenv)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// daemon is the wired set of components behind one listener.
type daemon struct {
	store      *retention.Store
	loop       *ingest.Loop
	dispatcher *stream.Dispatcher
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
}

func newDaemon(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*daemon, error) {
	policy, err := ingest.ParseErrorPolicy(cfg.OnParseError)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	daemonMetrics := metrics.New(registry)

	store := retention.New(cfg.Window)
	daemonMetrics.RegisterStore(store)

	loop := ingest.New(ingest.Config{
		Store:  store,
		Clock:  clk,
		Policy: policy,
		Logger: logger.With("component", "ingest"),
	})
	daemonMetrics.RegisterIngest(loop)

	dispatcher := stream.NewDispatcher(stream.DispatcherConfig{
		Store:        store,
		Clock:        clk,
		WriteTimeout: cfg.WriteTimeout.Std(),
		PingInterval: cfg.PingInterval.Std(),
		Metrics:      daemonMetrics,
		Logger:       logger.With("component", "stream"),
	})

	return &daemon{
		store:      store,
		loop:       loop,
		dispatcher: dispatcher,
		registry:   registry,
		metrics:    daemonMetrics,
	}, nil
}

func (d *daemon) handler(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/history", &stream.HistoryHandler{
		Store:   d.store,
		Metrics: d.metrics,
		Logger:  logger,
	})
	mux.Handle("/healthz", &stream.HealthHandler{Store: d.store, Ingest: d.loop})
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	mux.Handle("/", d.dispatcher)
	return mux
}

// serve runs upstream, ingest, and the HTTP server until ctx ends or
// any of them fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	iotopPath, err := cfg.ResolveIotopPath()
	if err != nil {
		return err
	}

	d, err := newDaemon(cfg, clock.Real(), logger)
	if err != nil {
		return err
	}

	logger.Info("iostreamd starting",
		"version", version.Info(),
		"listen", cfg.Listen,
		"iotop_path", iotopPath,
		"window_seconds", cfg.Window,
		"on_parse_error", d.loop.Policy(),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:    cfg.Listen,
		Handler:    d.handler(logger.With("component", "http")),
		OnShutdown: d.dispatcher.Close,
		Logger:     logger.With("component", "http"),
	})
	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(ctx) }()

	// A bind failure must stop startup before iotop is spawned.
	select {
	case <-server.Ready():
	case err := <-serveDone:
		return err
	case <-ctx.Done():
		return <-serveDone
	}

	sampler, err := upstream.Start(ctx, upstream.Config{
		Path:   iotopPath,
		Logger: logger.With("component", "upstream"),
	})
	if err != nil {
		cancel()
		return errors.Join(err, <-serveDone)
	}
	defer sampler.Stop()

	ingestDone := make(chan error, 1)
	go func() { ingestDone <- d.loop.Run(ctx, sampler) }()

	select {
	case err := <-ingestDone:
		if err != nil {
			logger.Error("ingest stopped", "error", err)
			cancel()
			return errors.Join(err, <-serveDone)
		}
		// Cancelled: fall through to the server's own shutdown.
		return <-serveDone
	case err := <-serveDone:
		cancel()
		return errors.Join(err, <-ingestDone)
	}
}
