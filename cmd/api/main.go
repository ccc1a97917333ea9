package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/streamhub/pkbattle/src/app/battles"
	infra "github.com/streamhub/pkbattle/src/infra/battle"
	"github.com/streamhub/pkbattle/src/infra/config"
	"github.com/streamhub/pkbattle/src/infra/live"
	"github.com/streamhub/pkbattle/src/infra/logging"
	"github.com/streamhub/pkbattle/src/infra/metrics"
	"github.com/streamhub/pkbattle/src/infra/retention"
	"github.com/streamhub/pkbattle/src/infra/sink"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	baseCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(baseCtx, cfg, logger); err != nil {
		logger.Fatal("pk battle api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sinks := sink.Multi{}
	if cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		results := sink.NewPostgresSink(pool)
		if err := results.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		sinks = append(sinks, results)
	}
	if cfg.Sink.WebhookURL != "" {
		sinks = append(sinks, sink.NewWebhookSink(cfg.Sink.WebhookURL, cfg.Sink.WebhookAPIKey))
	}
	resolutions := sink.NewAsyncSink(sinks, logger, cfg.Sink.QueueSize, cfg.Sink.Workers)
	defer resolutions.Close()

	store := infra.NewMemoryStore()
	clock := clockwork.NewRealClock()
	hub := live.NewHub(logger, clock)
	battleService := battles.NewService(store,
		battles.WithClock(clock),
		battles.WithLogger(logger),
		battles.WithMetrics(metrics.NewEngine(registry)),
		battles.WithSink(resolutions),
		battles.WithListener(hub),
		battles.WithDurationPolicy(battles.DurationPolicy{
			Default: cfg.Battle.DefaultDuration,
			Max:     cfg.Battle.MaxDuration,
		}),
	)
	defer battleService.Close()

	sweeper, err := retention.NewSweeper(store, clock, logger, cfg.Battle.Retention, cfg.Battle.SweepInterval)
	if err != nil {
		return fmt.Errorf("retention sweeper: %w", err)
	}
	sweeper.Start()
	defer func() {
		if err := sweeper.Stop(); err != nil {
			logger.Warn("retention sweeper stop", zap.Error(err))
		}
	}()

	server := NewServer(ServerConfig{
		Logger:        logger,
		BattleService: battleService,
		Hub:           hub,
		Registry:      registry,
	})
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("pk battle api listening", zap.String("addr", cfg.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}
