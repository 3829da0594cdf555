package activities

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/importer"
	jobs "github.com/helixir/research-registry-service/internal/temporal"
)

// Application error types returned by the import activities. Both are
// non-retryable: the same content fails the same way on every attempt.
const (
	ErrTypeParse   = "ParseError"
	ErrTypeInvalid = "InvalidImport"
)

// ImportActivities runs bibliography imports on behalf of
// BibliographyImportWorkflow.
type ImportActivities struct {
	importer *importer.Importer
}

// NewImportActivities creates ImportActivities backed by im.
func NewImportActivities(im *importer.Importer) *ImportActivities {
	return &ImportActivities{importer: im}
}

// ParseBibliography parses the content once to learn how many entries it
// holds. Nothing is stored.
func (a *ImportActivities) ParseBibliography(ctx context.Context, input ParseBibliographyInput) (*ParseBibliographyOutput, error) {
	logger := activity.GetLogger(ctx)

	parser, err := importer.ParserFor(input.Format)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalid, err)
	}
	entries, err := parser.Parse(strings.NewReader(input.Content))
	if err != nil {
		logger.Warn("bibliography does not parse", "format", input.Format, "error", err)
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeParse, err)
	}

	keys := make([]string, len(entries))
	for i := range entries {
		keys[i] = entries[i].Key
	}
	logger.Info("bibliography parsed", "format", input.Format, "entries", len(entries))
	return &ParseBibliographyOutput{Total: len(entries), Keys: keys}, nil
}

// ImportChunk stores the entries [Start, End) of the content. Entries that
// fail are reported in the output, not as an activity error. The activity
// heartbeats the index of every entry it finishes.
func (a *ImportActivities) ImportChunk(ctx context.Context, input ImportChunkInput) (*ImportChunkOutput, error) {
	logger := activity.GetLogger(ctx)

	opts, err := importerOptions(input.Options)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalid, err)
	}
	opts.ImportID = input.ImportID
	opts.Window = importer.Window{Start: input.Start, End: input.End}
	opts.Progress = func(index, _ int) {
		activity.RecordHeartbeat(ctx, index)
	}

	result, err := a.importer.ImportString(ctx, input.Format, input.Content, opts)
	var batchErr *domain.BatchError
	if err != nil && !errors.As(err, &batchErr) {
		if errors.Is(err, domain.ErrInvalidInput) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeParse, err)
		}
		return nil, fmt.Errorf("import entries %d-%d: %w", input.Start, input.End, err)
	}

	out := &ImportChunkOutput{
		Imported: result.Imported,
		Skipped:  result.Skipped,
	}
	for _, f := range result.Failures {
		out.Failures = append(out.Failures, jobs.EntryFailure{
			Index: f.Index,
			Key:   f.Key,
			Title: f.Title,
			Kind:  domain.ErrorKind(f.Err),
			Error: f.Err.Error(),
		})
	}

	logger.Info("import chunk completed",
		"importID", input.ImportID,
		"start", input.Start,
		"end", input.End,
		"imported", len(out.Imported),
		"failed", len(out.Failures),
	)
	return out, nil
}

func importerOptions(o jobs.ImportOptions) (importer.Options, error) {
	opts := importer.Options{
		Selection:          o.Selection,
		JournalPolicy:      o.JournalPolicy,
		ConferencePolicy:   o.ConferencePolicy,
		Similarity:         o.Similarity,
		RequireKnownMember: o.RequireKnownMember,
		AllowDuplicates:    o.AllowDuplicates,
	}
	if o.ExpectedKind != "" {
		kind := domain.PublicationType(o.ExpectedKind)
		if !kind.IsValid() {
			return opts, domain.NewValidationError("expected_kind", fmt.Sprintf("unknown publication type %q", o.ExpectedKind))
		}
		opts.ExpectedKind = kind
	}
	return opts, nil
}
