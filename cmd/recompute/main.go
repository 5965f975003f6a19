// Package main is the entry point for the score recompute service.
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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/forklore/placescore/internal/cache"
	"github.com/forklore/placescore/internal/config"
	"github.com/forklore/placescore/internal/db"
	"github.com/forklore/placescore/internal/health"
	"github.com/forklore/placescore/internal/jobs"
	"github.com/forklore/placescore/internal/middleware"
	"github.com/forklore/placescore/internal/notify"
	"github.com/forklore/placescore/internal/recompute"
	"github.com/forklore/placescore/internal/store"
	"github.com/forklore/placescore/internal/tracing"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	once := flag.Bool("once", false, "run a single recompute and exit")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Placescore Recompute Service")
		fmt.Println()
		fmt.Println("Usage: recompute [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// A missing .env file is fine; the environment may already be set.
	envErr := godotenv.Load()

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("failed to load .env file", "error", envErr)
	}
	logSummary(logger, cfg)
	cfg.Scoring.LogOverrides(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, cfg, logger, *once)
	stop()
	if err != nil {
		logger.Error("recompute service failed", "error", err)
		os.Exit(1)
	}
	logger.Info("recompute service stopped")
}

func logSummary(logger *slog.Logger, cfg *config.Config) {
	attrs := make([]any, 0, 2*len(cfg.LogSummary()))
	for k, v := range cfg.LogSummary() {
		attrs = append(attrs, k, v)
	}
	logger.Info("configuration loaded", attrs...)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, once bool) error {
	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:    "placescore-recompute",
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   cfg.TracingInsecure,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down tracing", "error", err)
		}
	}()

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		return err
	}
	defer conn.Close()

	mentions, err := store.NewMentionRepository(conn, store.Options{Logger: logger, Communities: cfg.Communities})
	if err != nil {
		return err
	}
	aggregates, err := store.NewAggregateRepository(conn, store.AggregateOptions{Logger: logger, RefreshViews: cfg.RefreshViews})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	recomputeMetrics := recompute.NewMetrics()
	if err := recomputeMetrics.Register(registry); err != nil {
		return fmt.Errorf("register recompute metrics: %w", err)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		return fmt.Errorf("register job metrics: %w", err)
	}

	jobCfg := recompute.JobConfig{
		Interval:   cfg.RecomputeInterval,
		Timeout:    cfg.RecomputeTimeout,
		RunOnStart: true,
		Params:     cfg.Scoring,
		Workers:    cfg.Workers,
		Logger:     logger,
		Metrics:    recomputeMetrics,
		JobMetrics: jobMetrics,
	}
	checkers := map[string]health.Checker{
		"database": health.NewDBChecker(conn),
	}

	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		jobCfg.Cache = cache.New(client, cache.Config{Logger: logger})
		checkers["redis"] = health.NewRedisChecker(client)
		logger.Info("aggregate cache enabled")
	}

	if cfg.NATSURL != "" {
		nc, err := notify.Connect(notify.Config{URL: cfg.NATSURL, Logger: logger})
		if err != nil {
			return err
		}
		defer nc.Close()
		jobCfg.Publisher = notify.NewNATSPublisher(nc, cfg.NATSSubject, logger)
		checkers["nats"] = health.NewNATSChecker(nc)
		logger.Info("snapshot notifications enabled")
	}

	if cfg.OpsPort > 0 {
		handlers := health.NewHandlers(health.HandlersConfig{Checkers: checkers, Logger: logger})
		server := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.OpsPort),
			Handler:      health.NewRouter(handlers, health.MetricsHandler(registry), logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("starting ops server", "port", cfg.OpsPort)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("ops server forced to shutdown", "error", err)
			}
		}()
	}

	job := recompute.NewJob(jobCfg, mentions, aggregates)

	if once {
		_, err := job.RunNow(ctx)
		return err
	}

	if err := job.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	logger.Info("shutting down recompute job...")
	job.Stop()
	return nil
}
