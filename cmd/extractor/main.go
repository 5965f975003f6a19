// Package main is the entry point for the mention extractor.
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

	"github.com/forklore/placescore/internal/config"
	"github.com/forklore/placescore/internal/db"
	"github.com/forklore/placescore/internal/extract"
	"github.com/forklore/placescore/internal/health"
	"github.com/forklore/placescore/internal/ingest"
	"github.com/forklore/placescore/internal/jobs"
	"github.com/forklore/placescore/internal/middleware"
	"github.com/forklore/placescore/internal/resolve"
	"github.com/forklore/placescore/internal/store"
	"github.com/forklore/placescore/internal/tracing"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Resolver modes.
const (
	resolverPostgres = "postgres"
	resolverMemory   = "memory"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	resolverMode := flag.String("resolver", resolverPostgres, "name resolution: postgres (pg_trgm queries) or memory (in-process trigram index)")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Placescore Mention Extractor")
		fmt.Println()
		fmt.Println("Usage: extractor [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}
	if *resolverMode != resolverPostgres && *resolverMode != resolverMemory {
		fmt.Fprintf(os.Stderr, "unknown resolver %q\n", *resolverMode)
		os.Exit(2)
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, cfg, logger, *resolverMode)
	stop()
	if err != nil {
		logger.Error("mention extraction failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, resolverMode string) error {
	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:    "placescore-extractor",
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

	texts, err := store.NewTextRepository(conn, store.Options{Logger: logger, Communities: cfg.Communities})
	if err != nil {
		return err
	}
	mentions, err := store.NewMentionRepository(conn, store.Options{Logger: logger})
	if err != nil {
		return err
	}

	var resolver resolve.Resolver
	switch resolverMode {
	case resolverMemory:
		places, err := resolve.LoadPlaces(ctx, conn)
		if err != nil {
			return err
		}
		resolver = resolve.NewTrigramIndex(places, cfg.MatchThreshold)
		logger.Info("built in-memory trigram index", "places", len(places))
	default:
		resolver = resolve.NewPostgresResolver(conn, resolve.PostgresConfig{
			Threshold:     cfg.MatchThreshold,
			RatePerSecond: cfg.ResolveRatePerSecond,
		})
	}

	registry := prometheus.NewRegistry()
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		return fmt.Errorf("register job metrics: %w", err)
	}

	if cfg.OpsPort > 0 {
		handlers := health.NewHandlers(health.HandlersConfig{
			Checkers: map[string]health.Checker{"database": health.NewDBChecker(conn)},
			Logger:   logger,
		})
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
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	job, err := ingest.New(ingest.Config{
		BatchSize:  cfg.ExtractBatchSize,
		Extractor:  extract.NewExtractor(extract.HeuristicTagger{}),
		Resolver:   resolver,
		Logger:     logger,
		JobMetrics: jobMetrics,
	}, texts, mentions)
	if err != nil {
		return err
	}

	report, err := job.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("extraction pass finished",
		"texts", report.Texts,
		"mentions", report.Mentions,
		"inserted", report.Inserted,
		"skipped", report.Skipped)
	mentions.Stats().LogSummary(logger, store.TableMentions)
	return nil
}
