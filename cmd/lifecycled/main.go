// Package main is the long-running host for the lifecycle engine. It wires
// the engine from configuration, serves the ops endpoints and runs the three
// periodic jobs until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/core"
)

// shutdownTimeout bounds the ops server drain after the engine has stopped.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("lifecycle engine starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"timezone", cfg.Lifecycle.Timezone,
		"transport", cfg.Notify.Transport,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := app.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	comps, err := app.Build(ctx, cfg, pool, nil, logger)
	if err != nil {
		return fmt.Errorf("wiring engine: %w", err)
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Error("failed to release engine resources", "error", err)
		}
	}()

	srv, err := core.NewServer(cfg.Observability.OpsAddr, logger)
	if err != nil {
		return fmt.Errorf("creating ops server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{
		core.DatabaseProbe{DB: pool},
		core.NotifierProbe{Breaker: comps.Breaker},
	}
	srv.Runner = comps.Engine
	srv.Metrics = comps.MetricsHandler
	srv.MountRoutes()

	if err := comps.Engine.Start(); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")

		if drained := comps.Engine.Stop(); !drained {
			logger.Warn("engine stopped with tasks still in flight")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("lifecycle engine stopped cleanly")
	return nil
}
