package temporal

import (
	"strings"
	"time"

	"github.com/helixir/research-registry-service/internal/importer"
)

// Workflow type names. The server starts workflows by name so it never
// imports the workflows package.
const (
	WorkflowBibliographyImport = "BibliographyImportWorkflow"
	WorkflowDuplicateScan      = "DuplicateScanWorkflow"
)

// Workflow id prefixes. A job id is the workflow id.
const (
	importJobPrefix        = "import-"
	duplicateScanJobPrefix = "duplicate-scan-"
)

// DefaultImportChunkSize is the number of entries one import activity
// stores before the workflow updates its progress.
const DefaultImportChunkSize = 25

// JobKind names the kind of asynchronous job.
type JobKind string

const (
	JobKindImport        JobKind = "import"
	JobKindDuplicateScan JobKind = "duplicate_scan"
)

// JobStage is the coarse state reported by the progress query.
type JobStage string

const (
	StagePending   JobStage = "pending"
	StageParsing   JobStage = "parsing"
	StageImporting JobStage = "importing"
	StageScanning  JobStage = "scanning"
	StageCompleted JobStage = "completed"
	StageFailed    JobStage = "failed"
)

// ImportJobInput starts a BibliographyImportWorkflow.
type ImportJobInput struct {
	ImportID  string          `json:"import_id"`
	Format    importer.Format `json:"format"`
	Content   string          `json:"content"`
	Options   ImportOptions   `json:"options"`
	ChunkSize int             `json:"chunk_size,omitempty"`
}

// ImportOptions is the serializable subset of importer.Options.
type ImportOptions struct {
	Selection          []string             `json:"selection,omitempty"`
	ExpectedKind       string               `json:"expected_kind,omitempty"`
	JournalPolicy      importer.VenuePolicy `json:"journal_policy,omitempty"`
	ConferencePolicy   importer.VenuePolicy `json:"conference_policy,omitempty"`
	Similarity         bool                 `json:"similarity,omitempty"`
	RequireKnownMember bool                 `json:"require_known_member,omitempty"`
	AllowDuplicates    bool                 `json:"allow_duplicates,omitempty"`
}

// EntryFailure describes one entry an import could not store.
type EntryFailure struct {
	Index int    `json:"index"`
	Key   string `json:"key,omitempty"`
	Title string `json:"title,omitempty"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// ImportProgress is answered by the progress query of an import job and is
// also its final result.
type ImportProgress struct {
	ImportID  string         `json:"import_id"`
	Stage     JobStage       `json:"stage"`
	Total     int            `json:"total"`
	Processed int            `json:"processed"`
	Imported  []int64        `json:"imported"`
	Skipped   []string       `json:"skipped,omitempty"`
	Failures  []EntryFailure `json:"failures,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// DuplicateScanInput starts a DuplicateScanWorkflow.
type DuplicateScanInput struct {
	ScanID string `json:"scan_id"`
}

// ClusterMember is one person of a duplicate cluster.
type ClusterMember struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	ORCID    string `json:"orcid,omitempty"`
}

// DuplicateScanProgress is answered by the progress query of a scan job and
// is also its final result.
type DuplicateScanProgress struct {
	ScanID   string            `json:"scan_id"`
	Stage    JobStage          `json:"stage"`
	Clusters [][]ClusterMember `json:"clusters"`
	Error    string            `json:"error,omitempty"`
}

// JobStatus combines the execution state of a job with its progress.
type JobStatus struct {
	ID        string     `json:"id"`
	Kind      JobKind    `json:"kind"`
	Status    string     `json:"status"`
	StartTime time.Time  `json:"start_time"`
	CloseTime *time.Time `json:"close_time,omitempty"`
	Progress  any        `json:"progress,omitempty"`
}

// KindOf derives the job kind from a job id.
func KindOf(jobID string) (JobKind, bool) {
	switch {
	case strings.HasPrefix(jobID, importJobPrefix) && len(jobID) > len(importJobPrefix):
		return JobKindImport, true
	case strings.HasPrefix(jobID, duplicateScanJobPrefix) && len(jobID) > len(duplicateScanJobPrefix):
		return JobKindDuplicateScan, true
	}
	return "", false
}
