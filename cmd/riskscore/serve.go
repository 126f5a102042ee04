// Riskscore - Rule-based transaction fraud risk scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/osprey-riskscore/internal/api"
	"github.com/opensource-finance/osprey-riskscore/internal/bus"
	"github.com/opensource-finance/osprey-riskscore/internal/cache"
	"github.com/opensource-finance/osprey-riskscore/internal/domain"
	"github.com/opensource-finance/osprey-riskscore/internal/metrics"
	"github.com/opensource-finance/osprey-riskscore/internal/pipeline"
	"github.com/opensource-finance/osprey-riskscore/internal/repository"
	"github.com/opensource-finance/osprey-riskscore/internal/scoring"
	"github.com/opensource-finance/osprey-riskscore/internal/telemetry"
	"github.com/opensource-finance/osprey-riskscore/internal/worker"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := domain.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	setupLogger(os.Stdout, cfg.Logging)

	slog.Info("starting riskscore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Error("failed to flush traces", "error", err)
		}
	}()
	slog.Info("tracing initialized", "enabled", cfg.Tracing.Enabled, "endpoint", cfg.Tracing.Endpoint)

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	m := metrics.New()
	p := &pipeline.Pipeline{
		Scorer:     scoring.NewScorer(nil),
		Repo:       repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Metrics:    m,
		Workers:    cfg.Scoring.Workers,
		TopN:       cfg.Scoring.TopN,
		SummaryTTL: cfg.Cache.SummaryTTL,
	}

	asyncWorker := worker.NewWorker(busImpl, p.Scorer, m)
	if err := asyncWorker.Start(worker.Config{TenantIDs: cfg.Scoring.Tenants}); err != nil {
		return fmt.Errorf("failed to start async worker: %w", err)
	}

	srv := api.NewServer(cfg.Server, p, api.Options{
		Version: Version,
		Tenants: cfg.Scoring.Tenants,
		Worker:  asyncWorker,
	})
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("riskscore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
	}

	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("riskscore shutdown complete")
	return serveErr
}
