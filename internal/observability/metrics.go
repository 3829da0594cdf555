package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the research registry service.
// Metrics are organized by subsystem: imports, reconciliation, duplicates,
// merges, bibliometrics, outbox and file storage. All counters and histograms
// are registered via promauto with the default Prometheus registry.
type Metrics struct {
	// ImportsStarted counts bibliography imports started, labeled by format.
	ImportsStarted *prometheus.CounterVec

	// ImportsCompleted counts imports that attempted every entry, labeled by format.
	ImportsCompleted *prometheus.CounterVec

	// ImportEntries counts imported entries, labeled by format and outcome (imported, failed, skipped).
	ImportEntries *prometheus.CounterVec

	// ImportDuration observes import duration in seconds, labeled by format.
	ImportDuration *prometheus.HistogramVec

	// PersonsCreated counts persons created while resolving free-text authors.
	PersonsCreated prometheus.Counter

	// AuthorResolutions counts author token resolutions, labeled by how they matched (id, exact, similar, created).
	AuthorResolutions *prometheus.CounterVec

	// Reconciliations counts authorship reconciliations that changed rows.
	Reconciliations prometheus.Counter

	// DuplicateScans counts duplicate detection passes.
	DuplicateScans prometheus.Counter

	// DuplicateClusters observes the number of clusters found per pass.
	DuplicateClusters prometheus.Histogram

	// DuplicateScanDuration observes duplicate detection duration in seconds.
	DuplicateScanDuration prometheus.Histogram

	// MergesCompleted counts completed person merges.
	MergesCompleted prometheus.Counter

	// MergesFailed counts merges rolled back.
	MergesFailed prometheus.Counter

	// MergedRows counts relationship rows repointed by merges, labeled by relation.
	MergedRows *prometheus.CounterVec

	// BibliometricRequests counts platform lookups, labeled by platform and outcome.
	BibliometricRequests *prometheus.CounterVec

	// BibliometricDuration observes platform lookup duration in seconds, labeled by platform.
	BibliometricDuration *prometheus.HistogramVec

	// OutboxPublished counts events published to Kafka.
	OutboxPublished prometheus.Counter

	// OutboxFailed counts events whose publication failed.
	OutboxFailed prometheus.Counter

	// FileOperations counts file storage operations, labeled by operation and outcome.
	FileOperations *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Imports
		ImportsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_started_total",
			Help:      "Total number of bibliography imports started",
		}, []string{"format"}),
		ImportsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_completed_total",
			Help:      "Total number of bibliography imports completed",
		}, []string{"format"}),
		ImportEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_entries_total",
			Help:      "Total number of bibliography entries processed by outcome",
		}, []string{"format", "outcome"}),
		ImportDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Duration of bibliography imports in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"format"}),

		// Authors
		PersonsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persons_created_total",
			Help:      "Total number of persons created from free-text authors",
		}),
		AuthorResolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "author_resolutions_total",
			Help:      "Total number of author resolutions by match kind",
		}, []string{"match"}),
		Reconciliations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorship_reconciliations_total",
			Help:      "Total number of authorship reconciliations that changed rows",
		}),

		// Duplicates
		DuplicateScans: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_scans_total",
			Help:      "Total number of duplicate person scans",
		}),
		DuplicateClusters: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duplicate_clusters",
			Help:      "Number of duplicate clusters found per scan",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500},
		}),
		DuplicateScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duplicate_scan_duration_seconds",
			Help:      "Duration of duplicate person scans in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
		}),

		// Merges
		MergesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_completed_total",
			Help:      "Total number of person merges completed",
		}),
		MergesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_failed_total",
			Help:      "Total number of person merges rolled back",
		}),
		MergedRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merged_rows_total",
			Help:      "Total number of relationship rows repointed by merges",
		}, []string{"relation"}),

		// Bibliometrics
		BibliometricRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bibliometric_requests_total",
			Help:      "Total number of bibliometric platform lookups by outcome",
		}, []string{"platform", "outcome"}),
		BibliometricDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bibliometric_request_duration_seconds",
			Help:      "Duration of bibliometric platform lookups in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform"}),

		// Outbox
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Total number of outbox events published",
		}),
		OutboxFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_failed_total",
			Help:      "Total number of outbox events that failed to publish",
		}),

		// Files
		FileOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_operations_total",
			Help:      "Total number of file storage operations by outcome",
		}, []string{"operation", "outcome"}),
	}
}

// RecordImportStarted records that an import has started.
func (m *Metrics) RecordImportStarted(format string) {
	m.ImportsStarted.WithLabelValues(format).Inc()
}

// RecordImportCompleted records the outcome of an import.
func (m *Metrics) RecordImportCompleted(format string, imported, failed, skipped int, duration time.Duration) {
	m.ImportsCompleted.WithLabelValues(format).Inc()
	m.ImportEntries.WithLabelValues(format, "imported").Add(float64(imported))
	m.ImportEntries.WithLabelValues(format, "failed").Add(float64(failed))
	m.ImportEntries.WithLabelValues(format, "skipped").Add(float64(skipped))
	m.ImportDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordAuthorResolution records how an author token was resolved.
func (m *Metrics) RecordAuthorResolution(match string) {
	m.AuthorResolutions.WithLabelValues(match).Inc()
	if match == "created" {
		m.PersonsCreated.Inc()
	}
}

// RecordReconciliation records a reconciliation that changed rows.
func (m *Metrics) RecordReconciliation() {
	m.Reconciliations.Inc()
}

// RecordDuplicateScan records a completed duplicate detection pass.
func (m *Metrics) RecordDuplicateScan(clusters int, duration time.Duration) {
	m.DuplicateScans.Inc()
	m.DuplicateClusters.Observe(float64(clusters))
	m.DuplicateScanDuration.Observe(duration.Seconds())
}

// RecordMerge records a completed merge and the rows it moved per relation.
func (m *Metrics) RecordMerge(moved map[string]int) {
	m.MergesCompleted.Inc()
	for relation, n := range moved {
		m.MergedRows.WithLabelValues(relation).Add(float64(n))
	}
}

// RecordMergeFailed records a merge that was rolled back.
func (m *Metrics) RecordMergeFailed() {
	m.MergesFailed.Inc()
}

// RecordBibliometricRequest records a platform lookup.
func (m *Metrics) RecordBibliometricRequest(platform string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.BibliometricRequests.WithLabelValues(platform, outcome).Inc()
	m.BibliometricDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

// RecordOutboxPublished records events published to Kafka.
func (m *Metrics) RecordOutboxPublished(count int) {
	m.OutboxPublished.Add(float64(count))
}

// RecordOutboxFailed records events that failed to publish.
func (m *Metrics) RecordOutboxFailed(count int) {
	m.OutboxFailed.Add(float64(count))
}

// RecordFileOperation records a file storage operation.
func (m *Metrics) RecordFileOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.FileOperations.WithLabelValues(operation, outcome).Inc()
}
