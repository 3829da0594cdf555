// Package activities provides the Temporal activities behind the registry
// jobs.
//
// Activity inputs and outputs are serializable structs that cross the
// Temporal serialization boundary. All fields must be exported for JSON
// serialization by the Temporal SDK's default data converter.
package activities

import (
	"github.com/helixir/research-registry-service/internal/importer"
	jobs "github.com/helixir/research-registry-service/internal/temporal"
)

// ParseBibliographyInput contains the content to parse.
type ParseBibliographyInput struct {
	Format  importer.Format
	Content string
}

// ParseBibliographyOutput reports the entries found in the content.
type ParseBibliographyOutput struct {
	// Total is the number of entries, including the ones that will fail.
	Total int
	// Keys are the entry keys in file order. Entries without a key have "".
	Keys []string
}

// ImportChunkInput selects a window of entries to store.
type ImportChunkInput struct {
	ImportID string
	Format   importer.Format
	Content  string
	Options  jobs.ImportOptions

	// Start and End bound the entry indexes, End excluded.
	Start int
	End   int
}

// ImportChunkOutput contains the outcome of one window.
type ImportChunkOutput struct {
	// Imported holds the new publication ids in entry order.
	Imported []int64
	// Skipped holds the keys of unselected entries.
	Skipped []string
	// Failures lists the entries that were not stored.
	Failures []jobs.EntryFailure
}

// FindDuplicateClustersOutput contains the clusters found by a scan.
type FindDuplicateClustersOutput struct {
	Persons  int
	Clusters [][]jobs.ClusterMember
}
