// Package main provides the entry point for the research registry Temporal worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/helixir/research-registry-service/internal/config"
	"github.com/helixir/research-registry-service/internal/database"
	"github.com/helixir/research-registry-service/internal/dedup"
	"github.com/helixir/research-registry-service/internal/importer"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/internal/outbox"
	"github.com/helixir/research-registry-service/internal/registry"
	"github.com/helixir/research-registry-service/internal/repository"
	"github.com/helixir/research-registry-service/internal/storage"
	"github.com/helixir/research-registry-service/internal/temporal"
	"github.com/helixir/research-registry-service/internal/temporal/activities"
	"github.com/helixir/research-registry-service/internal/temporal/workflows"
)

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
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("research-registry-service worker starting")

	if !cfg.Temporal.Enabled {
		return errors.New("temporal is disabled (RESREG_TEMPORAL_ENABLED=false); the worker has nothing to do")
	}

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

	metrics := observability.NewMetrics("research_registry_worker")
	svc := registry.NewService(repository.NewPgStore(db), logger,
		registry.WithMetrics(metrics),
		registry.WithFileStore(storage.NewOS(cfg.Storage, metrics, logger)),
		registry.WithComparator(dedup.NewComparator(cfg.Import.NameThreshold, cfg.Import.TitleThreshold)),
		registry.WithEmitter(outbox.NewEmitter(outbox.EmitterConfig{ServiceName: "research-registry-worker"})),
	)
	imp := importer.New(svc, metrics, logger)

	// Connect to Temporal.
	temporalClient, err := temporal.NewClient(temporal.ClientConfigFrom(cfg.Temporal, logger))
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer temporalClient.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	manager, err := temporal.NewWorkerManager(temporalClient, temporal.WorkerConfigFrom(cfg.Temporal), logger)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	// Workflows are registered under the names the jobs client starts them by.
	manager.RegisterWorkflow(temporal.WorkflowBibliographyImport, workflows.BibliographyImportWorkflow)
	manager.RegisterWorkflow(temporal.WorkflowDuplicateScan, workflows.DuplicateScanWorkflow)
	manager.RegisterActivity(activities.NewImportActivities(imp))
	manager.RegisterActivity(activities.NewDedupActivities(svc))

	logger.Info().
		Str("task_queue", manager.TaskQueue()).
		Strs("workflows", manager.Workflows()).
		Msg("research-registry-service worker is ready")

	if err := manager.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker error: %w", err)
	}

	logger.Info().Msg("research-registry-service worker shutdown complete")
	return nil
}
