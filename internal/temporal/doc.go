// Package temporal runs the long registry operations as Temporal jobs.
//
// Two jobs exist. An import job stores a bibliography file chunk by chunk
// and reports how far it got; a duplicate scan job clusters the registered
// persons. Each job is a workflow whose id doubles as the job id
// ("import-<uuid>", "duplicate-scan-<uuid>"), and each answers the
// "progress" query with its running counts, which are also its result.
//
// # Starting jobs
//
// The HTTP server uses a JobsClient and starts workflows by name, so it never
// imports the workflows package:
//
//	c, err := temporal.NewClient(temporal.ClientConfig{
//	    HostPort:  "localhost:7233",
//	    Namespace: "research-registry",
//	    TaskQueue: "research-registry-jobs",
//	})
//	jobsClient := temporal.NewJobsClient(c, cfg, logger)
//	jobID, err := jobsClient.StartImport(ctx, temporal.ImportJobInput{
//	    Format:  importer.FormatBibTeX,
//	    Content: raw,
//	})
//	status, err := jobsClient.Job(ctx, jobID)
//
// # Hosting jobs
//
// The worker process registers the workflows under the names above and the
// activity structs of the activities package:
//
//	wm, err := temporal.NewWorkerManager(c, temporal.WorkerConfigFrom(cfg.Temporal), logger)
//	wm.RegisterWorkflow(temporal.WorkflowBibliographyImport, workflows.BibliographyImportWorkflow)
//	wm.RegisterWorkflow(temporal.WorkflowDuplicateScan, workflows.DuplicateScanWorkflow)
//	wm.RegisterActivity(activities.NewImportActivities(imp))
//	wm.RegisterActivity(activities.NewDedupActivities(svc))
//	err = wm.Start(ctx)
//
// Errors from the Temporal service are wrapped in *TemporalError, whose Kind
// is one of the sentinel errors of this package.
package temporal
