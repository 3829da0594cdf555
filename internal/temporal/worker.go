package temporal

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/research-registry-service/internal/config"
)

// WorkerConfig contains configuration for the jobs worker.
type WorkerConfig struct {
	// TaskQueue is the name of the task queue to poll.
	TaskQueue string

	// MaxConcurrentActivityExecutionSize is the maximum concurrent activity executions.
	// Default: 20
	MaxConcurrentActivityExecutionSize int

	// MaxConcurrentWorkflowTaskExecutionSize is the maximum concurrent workflow task executions.
	// Default: 10
	MaxConcurrentWorkflowTaskExecutionSize int
}

// WorkerConfigFrom builds a WorkerConfig from the service configuration.
func WorkerConfigFrom(cfg config.TemporalConfig) WorkerConfig {
	return WorkerConfig{
		TaskQueue:                              cfg.TaskQueue,
		MaxConcurrentActivityExecutionSize:     cfg.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.MaxConcurrentWorkflowTasks,
	}
}

// workerOptionsFromConfig builds worker.Options from WorkerConfig, applying
// defaults for zero-valued fields.
func workerOptionsFromConfig(cfg WorkerConfig) worker.Options {
	options := worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.MaxConcurrentActivityExecutionSize,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.MaxConcurrentWorkflowTaskExecutionSize,
	}
	if options.MaxConcurrentActivityExecutionSize <= 0 {
		options.MaxConcurrentActivityExecutionSize = 20
	}
	if options.MaxConcurrentWorkflowTaskExecutionSize <= 0 {
		options.MaxConcurrentWorkflowTaskExecutionSize = 10
	}
	return options
}

// WorkerManager owns a Temporal worker and the registrations made on it.
type WorkerManager struct {
	worker     worker.Worker
	taskQueue  string
	workflows  []string
	activities int
	logger     zerolog.Logger
}

// NewWorkerManager creates a worker polling cfg.TaskQueue.
func NewWorkerManager(c client.Client, cfg WorkerConfig, logger zerolog.Logger) (*WorkerManager, error) {
	if cfg.TaskQueue == "" {
		return nil, fmt.Errorf("task queue is required")
	}
	return &WorkerManager{
		worker:    worker.New(c, cfg.TaskQueue, workerOptionsFromConfig(cfg)),
		taskQueue: cfg.TaskQueue,
		logger:    logger.With().Str("component", "jobs_worker").Str("task_queue", cfg.TaskQueue).Logger(),
	}, nil
}

// RegisterWorkflow registers a workflow function under name.
func (m *WorkerManager) RegisterWorkflow(name string, fn any) {
	m.worker.RegisterWorkflowWithOptions(fn, workflow.RegisterOptions{Name: name})
	m.workflows = append(m.workflows, name)
}

// RegisterActivity registers an activity struct or function.
func (m *WorkerManager) RegisterActivity(a any) {
	m.worker.RegisterActivity(a)
	m.activities++
}

// Workflows returns the names of the registered workflows.
func (m *WorkerManager) Workflows() []string {
	return append([]string(nil), m.workflows...)
}

// TaskQueue returns the configured task queue name.
func (m *WorkerManager) TaskQueue() string {
	return m.taskQueue
}

// Start runs the worker until ctx is cancelled or the worker fails.
func (m *WorkerManager) Start(ctx context.Context) error {
	m.logger.Info().Strs("workflows", m.workflows).Int("activities", m.activities).Msg("jobs worker starting")
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.worker.Run(worker.InterruptCh())
	}()

	select {
	case <-ctx.Done():
		m.worker.Stop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Stop stops the worker gracefully.
func (m *WorkerManager) Stop() {
	m.worker.Stop()
}
