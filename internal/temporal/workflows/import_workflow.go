// Package workflows defines the Temporal workflows behind the registry jobs.
package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	jobs "github.com/helixir/research-registry-service/internal/temporal"
	"github.com/helixir/research-registry-service/internal/temporal/activities"
)

// BibliographyImportWorkflow imports a bibliography in chunks of entries.
//
// The workflow proceeds through the following stages:
//  1. Parse: count the entries; a file that does not parse fails the job.
//  2. Import: store the entries chunk by chunk, each chunk in one activity.
//
// The progress query answers with the counts so far, and the final value is
// also the workflow result. Entries that fail are collected, never fatal. A
// chunk whose activity fails reports all of its entries as failed and the
// import moves on to the next chunk.
func BibliographyImportWorkflow(ctx workflow.Context, input jobs.ImportJobInput) (*jobs.ImportProgress, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting bibliography import", "importID", input.ImportID, "format", input.Format)

	progress := &jobs.ImportProgress{
		ImportID: input.ImportID,
		Stage:    jobs.StagePending,
		Imported: []int64{},
	}
	if err := workflow.SetQueryHandler(ctx, jobs.QueryProgress, func() (*jobs.ImportProgress, error) {
		return progress, nil
	}); err != nil {
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	cancelCtx, cancelFunc := workflow.WithCancel(ctx)
	signalCh := workflow.GetSignalChannel(ctx, jobs.SignalCancel)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		signalCh.Receive(gCtx, nil)
		logger.Info("received cancel signal")
		cancelFunc()
	})

	var importAct *activities.ImportActivities

	parseCtx := workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
		StartToCloseTimeout: 1 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})
	// Entries are stored one transaction each; re-running a chunk would
	// report its stored entries as duplicates, so chunks are not retried.
	chunkCtx := workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    1 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	// Stage 1: parse.
	progress.Stage = jobs.StageParsing
	var parsed activities.ParseBibliographyOutput
	err := workflow.ExecuteActivity(parseCtx, importAct.ParseBibliography, activities.ParseBibliographyInput{
		Format:  input.Format,
		Content: input.Content,
	}).Get(ctx, &parsed)
	if err != nil {
		return failImport(progress, err)
	}
	progress.Total = parsed.Total

	// Stage 2: import chunk by chunk.
	progress.Stage = jobs.StageImporting
	size := input.ChunkSize
	if size <= 0 {
		size = jobs.DefaultImportChunkSize
	}
	options := input.Options
	options.Selection = DeduplicateStrings(options.Selection)

	for start := 0; start < parsed.Total; start += size {
		end := min(start+size, parsed.Total)

		var out activities.ImportChunkOutput
		err := workflow.ExecuteActivity(chunkCtx, importAct.ImportChunk, activities.ImportChunkInput{
			ImportID: input.ImportID,
			Format:   input.Format,
			Content:  input.Content,
			Options:  options,
			Start:    start,
			End:      end,
		}).Get(ctx, &out)
		if cancelCtx.Err() != nil {
			progress.Processed = start
			return failImport(progress, cancelCtx.Err())
		}
		if err != nil {
			logger.Error("import chunk failed", "start", start, "end", end, "error", err)
			for i := start; i < end; i++ {
				progress.Failures = append(progress.Failures, jobs.EntryFailure{
					Index: i,
					Key:   keyAt(parsed.Keys, i),
					Kind:  "internal",
					Error: err.Error(),
				})
			}
		} else {
			progress.Imported = append(progress.Imported, out.Imported...)
			progress.Skipped = append(progress.Skipped, out.Skipped...)
			progress.Failures = append(progress.Failures, out.Failures...)
		}
		progress.Processed = end
	}

	progress.Stage = jobs.StageCompleted
	logger.Info("bibliography import completed",
		"importID", input.ImportID,
		"total", progress.Total,
		"imported", len(progress.Imported),
		"failed", len(progress.Failures),
	)
	return progress, nil
}

func failImport(progress *jobs.ImportProgress, err error) (*jobs.ImportProgress, error) {
	progress.Stage = jobs.StageFailed
	progress.Error = err.Error()
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		progress.Error = appErr.Message()
	}
	return progress, err
}

func keyAt(keys []string, i int) string {
	if i < len(keys) {
		return keys[i]
	}
	return ""
}
