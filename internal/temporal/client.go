package temporal

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"

	"github.com/helixir/research-registry-service/internal/config"
	"github.com/helixir/research-registry-service/internal/observability"
)

// Signal and query names shared by the server and the workflows.
const (
	// SignalCancel asks a running import to stop after its current chunk.
	SignalCancel = "cancel"

	// QueryProgress answers with the job's progress value.
	QueryProgress = "progress"
)

const (
	// DefaultWorkflowExecutionTimeout is the maximum time a job is allowed to run.
	DefaultWorkflowExecutionTimeout = 2 * time.Hour

	// DefaultHealthCheckTimeout bounds the readiness probe against Temporal.
	DefaultHealthCheckTimeout = 5 * time.Second
)

// ClientConfig contains configuration for the Temporal client.
type ClientConfig struct {
	HostPort  string
	Namespace string
	TaskQueue string

	// TLS is applied when Enabled is set.
	TLS config.TemporalTLSConfig

	// ImportChunkSize is used for import jobs that do not pick their own.
	ImportChunkSize int

	HealthCheckTimeout time.Duration

	// Logger receives the SDK's own log lines. Nil keeps the SDK default.
	Logger log.Logger
}

// ClientConfigFrom builds a ClientConfig from the service configuration.
func ClientConfigFrom(cfg config.TemporalConfig, logger zerolog.Logger) ClientConfig {
	return ClientConfig{
		HostPort:        cfg.HostPort,
		Namespace:       cfg.Namespace,
		TaskQueue:       cfg.TaskQueue,
		TLS:             cfg.TLS,
		ImportChunkSize: cfg.ImportChunkSize,
		Logger:          observability.NewTemporalLogger(logger),
	}
}

// NewClient dials the Temporal frontend.
func NewClient(cfg ClientConfig) (client.Client, error) {
	options := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    cfg.Logger,
	}
	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("configure TLS: %w", err)
	}
	if tlsConfig != nil {
		options.ConnectionOptions = client.ConnectionOptions{TLS: tlsConfig}
	}

	c, err := client.Dial(options)
	if err != nil {
		return nil, fmt.Errorf("create Temporal client: %w", err)
	}
	return c, nil
}

// buildTLSConfig returns nil when TLS is disabled.
func buildTLSConfig(cfg config.TemporalTLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	tlsConfig := &tls.Config{ServerName: cfg.ServerName, MinVersion: tls.VersionTLS12}

	if cfg.CertPath != "" && cfg.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if cfg.CACertPath != "" {
		pem, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CACertPath)
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// JobsClient starts registry jobs and reports their progress.
type JobsClient struct {
	mu                 sync.RWMutex
	client             client.Client
	taskQueue          string
	chunkSize          int
	healthCheckTimeout time.Duration
	logger             zerolog.Logger
	closed             bool
}

// NewJobsClient creates a JobsClient over an existing Temporal client.
func NewJobsClient(c client.Client, cfg ClientConfig, logger zerolog.Logger) *JobsClient {
	healthTimeout := cfg.HealthCheckTimeout
	if healthTimeout == 0 {
		healthTimeout = DefaultHealthCheckTimeout
	}
	return &JobsClient{
		client:             c,
		taskQueue:          cfg.TaskQueue,
		chunkSize:          cfg.ImportChunkSize,
		healthCheckTimeout: healthTimeout,
		logger:             logger.With().Str("component", "jobs_client").Logger(),
	}
}

// Close closes the underlying Temporal client connection.
func (c *JobsClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && !c.closed {
		c.client.Close()
		c.closed = true
	}
}

func (c *JobsClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// TaskQueue returns the queue jobs are started on.
func (c *JobsClient) TaskQueue() string {
	return c.taskQueue
}

// Health checks the connection to the Temporal server.
func (c *JobsClient) Health(ctx context.Context) error {
	if c.isClosed() {
		return &TemporalError{Op: "Health", Kind: ErrClientClosed}
	}
	checkCtx, cancel := context.WithTimeout(ctx, c.healthCheckTimeout)
	defer cancel()

	if _, err := c.client.CheckHealth(checkCtx, &client.CheckHealthRequest{}); err != nil {
		return wrapTemporalError("Health", err, "", "")
	}
	return nil
}

// StartImport starts a BibliographyImportWorkflow and returns the job id.
func (c *JobsClient) StartImport(ctx context.Context, input ImportJobInput) (string, error) {
	if input.ImportID == "" {
		input.ImportID = uuid.New().String()
	}
	if input.ChunkSize == 0 {
		input.ChunkSize = c.chunkSize
	}
	return c.start(ctx, "StartImport", importJobPrefix+input.ImportID, WorkflowBibliographyImport, input)
}

// StartDuplicateScan starts a DuplicateScanWorkflow and returns the job id.
func (c *JobsClient) StartDuplicateScan(ctx context.Context) (string, error) {
	input := DuplicateScanInput{ScanID: uuid.New().String()}
	return c.start(ctx, "StartDuplicateScan", duplicateScanJobPrefix+input.ScanID, WorkflowDuplicateScan, input)
}

func (c *JobsClient) start(ctx context.Context, op, workflowID, workflowType string, input any) (string, error) {
	if c.isClosed() {
		return "", &TemporalError{Op: op, Kind: ErrClientClosed, WorkflowID: workflowID}
	}

	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                c.taskQueue,
		WorkflowExecutionTimeout: DefaultWorkflowExecutionTimeout,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	run, err := c.client.ExecuteWorkflow(ctx, options, workflowType, input)
	if err != nil {
		return "", wrapTemporalError(op, err, workflowID, "")
	}

	logger := observability.WithWorkflowContext(observability.FromContext(ctx, c.logger), workflowID, run.GetRunID())
	logger.Info().Str("workflow_type", workflowType).Msg("job started")
	return workflowID, nil
}

// Cancel signals a running import to stop. Entries already stored stay.
func (c *JobsClient) Cancel(ctx context.Context, jobID string) error {
	if c.isClosed() {
		return &TemporalError{Op: "Cancel", Kind: ErrClientClosed, WorkflowID: jobID}
	}
	if kind, ok := KindOf(jobID); !ok || kind != JobKindImport {
		return &TemporalError{Op: "Cancel", Kind: ErrWorkflowNotFound, WorkflowID: jobID}
	}
	if err := c.client.SignalWorkflow(ctx, jobID, "", SignalCancel, nil); err != nil {
		return wrapTemporalError("Cancel", err, jobID, "")
	}
	return nil
}

// Job describes a job and, when its workflow answers, its progress.
func (c *JobsClient) Job(ctx context.Context, jobID string) (*JobStatus, error) {
	if c.isClosed() {
		return nil, &TemporalError{Op: "Job", Kind: ErrClientClosed, WorkflowID: jobID}
	}
	kind, ok := KindOf(jobID)
	if !ok {
		return nil, &TemporalError{Op: "Job", Kind: ErrWorkflowNotFound, WorkflowID: jobID}
	}

	resp, err := c.client.DescribeWorkflowExecution(ctx, jobID, "")
	if err != nil {
		return nil, wrapTemporalError("Job", err, jobID, "")
	}
	info := resp.GetWorkflowExecutionInfo()
	status := &JobStatus{
		ID:        jobID,
		Kind:      kind,
		Status:    statusName(info.GetStatus()),
		StartTime: info.GetStartTime().AsTime(),
	}
	if info.GetCloseTime() != nil {
		closed := info.GetCloseTime().AsTime()
		status.CloseTime = &closed
	}

	var progress any = &DuplicateScanProgress{}
	if kind == JobKindImport {
		progress = &ImportProgress{}
	}
	if err := c.queryProgress(ctx, jobID, progress); err != nil {
		// A job whose worker is down still has a status.
		logger := observability.FromContext(ctx, c.logger)
		logger.Warn().Err(err).Str("workflow_id", jobID).Msg("progress query failed")
		return status, nil
	}
	status.Progress = progress
	return status, nil
}

func (c *JobsClient) queryProgress(ctx context.Context, jobID string, into any) error {
	resp, err := c.client.QueryWorkflow(ctx, jobID, "", QueryProgress)
	if err != nil {
		return wrapTemporalError("QueryProgress", err, jobID, "")
	}
	if err := resp.Get(into); err != nil {
		return &TemporalError{Op: "QueryProgress", Kind: ErrQueryFailed, WorkflowID: jobID, Err: err}
	}
	return nil
}

// statusName turns WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW into
// "continued_as_new".
func statusName(s enumspb.WorkflowExecutionStatus) string {
	name := s.String()
	out := make([]byte, 0, len(name)+4)
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch >= 'A' && ch <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			ch += 'a' - 'A'
		}
		out = append(out, ch)
	}
	return string(out)
}
