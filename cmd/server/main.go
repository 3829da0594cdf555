// Package main provides the entry point for the research registry HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/research-registry-service/internal/bibliometrics"
	"github.com/helixir/research-registry-service/internal/bibliometrics/openalex"
	"github.com/helixir/research-registry-service/internal/bibliometrics/scopus"
	"github.com/helixir/research-registry-service/internal/config"
	"github.com/helixir/research-registry-service/internal/database"
	"github.com/helixir/research-registry-service/internal/dedup"
	"github.com/helixir/research-registry-service/internal/importer"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/internal/outbox"
	"github.com/helixir/research-registry-service/internal/registry"
	"github.com/helixir/research-registry-service/internal/repository"
	httpserver "github.com/helixir/research-registry-service/internal/server/http"
	"github.com/helixir/research-registry-service/internal/storage"
	"github.com/helixir/research-registry-service/internal/temporal"
	"github.com/helixir/research-registry-service/migrations"
)

const serviceName = "research-registry-service"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("research-registry-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		if err := migrate(db, logger); err != nil {
			return err
		}
	}

	metrics := observability.NewMetrics("research_registry")
	store := repository.NewPgStore(db)
	files := storage.NewOS(cfg.Storage, metrics, logger)

	svc := registry.NewService(store, logger,
		registry.WithMetrics(metrics),
		registry.WithFileStore(files),
		registry.WithComparator(dedup.NewComparator(cfg.Import.NameThreshold, cfg.Import.TitleThreshold)),
		registry.WithEmitter(outbox.NewEmitter(outbox.EmitterConfig{ServiceName: serviceName})),
	)
	imp := importer.New(svc, metrics, logger)

	refresher := bibliometrics.NewRefresher(store, []bibliometrics.Source{
		scopus.New(scopus.Config{
			BaseURL:   cfg.Bibliometrics.Scopus.BaseURL,
			APIKey:    cfg.Bibliometrics.Scopus.APIKey,
			Timeout:   cfg.Bibliometrics.Scopus.Timeout,
			RateLimit: cfg.Bibliometrics.Scopus.RateLimit,
			Enabled:   cfg.Bibliometrics.Scopus.Enabled,
		}),
		openalex.New(openalex.Config{
			BaseURL:   cfg.Bibliometrics.OpenAlex.BaseURL,
			Email:     cfg.Bibliometrics.OpenAlex.Mailto,
			Timeout:   cfg.Bibliometrics.OpenAlex.Timeout,
			RateLimit: cfg.Bibliometrics.OpenAlex.RateLimit,
			Enabled:   cfg.Bibliometrics.OpenAlex.Enabled,
		}),
	}, logger,
		bibliometrics.WithConcurrency(cfg.Bibliometrics.Concurrency),
		bibliometrics.WithMetrics(metrics),
	)

	deps := httpserver.Deps{
		Registry:  svc,
		Importer:  imp,
		Refresher: refresher,
		Files:     files,
		DB:        db,
		Imports: httpserver.ImportDefaults{
			JournalPolicy:    importer.VenuePolicy(strings.ToLower(cfg.Import.JournalPolicy)),
			ConferencePolicy: importer.VenuePolicy(strings.ToLower(cfg.Import.ConferencePolicy)),
			Similarity:       cfg.Import.SimilarityMatching,
			AllowDuplicates:  !cfg.Import.RejectDuplicates,
		},
	}

	// Background jobs need Temporal. Without it the job routes answer 503.
	if cfg.Temporal.Enabled {
		clientCfg := temporal.ClientConfigFrom(cfg.Temporal, logger)
		temporalClient, err := temporal.NewClient(clientCfg)
		if err != nil {
			return fmt.Errorf("connect to temporal: %w", err)
		}
		jobs := temporal.NewJobsClient(temporalClient, clientCfg, logger)
		defer jobs.Close()
		deps.Jobs = jobs
		logger.Info().
			Str("host_port", cfg.Temporal.HostPort).
			Str("namespace", cfg.Temporal.Namespace).
			Msg("temporal client connected")
	}

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    5 * time.Minute, // Long timeout for SSE streaming.
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		MaxImportBytes:  cfg.Server.MaxImportBytes,
	}
	httpSrv := httpserver.NewServer(httpCfg, deps, logger)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 3)

	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Msg("HTTP REST API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Relay outbox events to Kafka.
	if cfg.Kafka.Enabled {
		publisher := outbox.NewKafkaPublisher(cfg.Kafka)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close kafka publisher")
			}
		}()
		relay := outbox.NewRelay(db, publisher, cfg.Outbox, metrics, logger)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("outbox relay error: %w", err)
			}
		}()
	}

	// Refresh bibliometric indicators on schedule.
	var scheduler *bibliometrics.Scheduler
	if cfg.Bibliometrics.Schedule != "" {
		scheduler, err = bibliometrics.NewScheduler(refresher, cfg.Bibliometrics.Schedule, 0, logger)
		if err != nil {
			return fmt.Errorf("create indicator scheduler: %w", err)
		}
		scheduler.Start()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Bool("jobs", deps.Jobs != nil).Bool("kafka", cfg.Kafka.Enabled).
		Msg("research-registry-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down research-registry-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("indicator refresh still running at shutdown")
		}
	}

	logger.Info().Msg("research-registry-service shutdown complete")
	return nil
}

func migrate(db *database.DB, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, migrations.FS, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
