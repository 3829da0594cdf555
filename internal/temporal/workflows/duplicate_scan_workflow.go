package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	jobs "github.com/helixir/research-registry-service/internal/temporal"
	"github.com/helixir/research-registry-service/internal/temporal/activities"
)

// DuplicateScanWorkflow clusters the registered persons that likely denote
// the same researcher. The scan reads only; merging stays a user decision.
func DuplicateScanWorkflow(ctx workflow.Context, input jobs.DuplicateScanInput) (*jobs.DuplicateScanProgress, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting duplicate scan", "scanID", input.ScanID)

	progress := &jobs.DuplicateScanProgress{
		ScanID:   input.ScanID,
		Stage:    jobs.StageScanning,
		Clusters: [][]jobs.ClusterMember{},
	}
	if err := workflow.SetQueryHandler(ctx, jobs.QueryProgress, func() (*jobs.DuplicateScanProgress, error) {
		return progress, nil
	}); err != nil {
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	scanCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    1 * time.Minute,
			MaximumAttempts:    3,
		},
	})

	var dedupAct *activities.DedupActivities
	var out activities.FindDuplicateClustersOutput
	if err := workflow.ExecuteActivity(scanCtx, dedupAct.FindDuplicateClusters, input).Get(ctx, &out); err != nil {
		progress.Stage = jobs.StageFailed
		progress.Error = err.Error()
		return progress, err
	}

	progress.Clusters = out.Clusters
	progress.Stage = jobs.StageCompleted
	logger.Info("duplicate scan completed", "scanID", input.ScanID, "persons", out.Persons, "clusters", len(out.Clusters))
	return progress, nil
}
