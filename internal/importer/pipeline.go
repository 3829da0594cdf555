// Package importer loads bibliography files (BibTeX, RIS) into the registry.
//
// Every entry is stored in its own transaction: the publication row, any
// venue created for it, the authors resolved for it and their authorships
// either all commit or all roll back. A failing entry never stops the batch;
// failures are collected and returned together once every entry has been
// attempted.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/internal/registry"
	"github.com/helixir/research-registry-service/internal/repository"
)

// VenuePolicy decides what happens when an entry names an unknown journal or
// conference.
type VenuePolicy string

const (
	// VenueCreate registers the missing venue on the fly.
	VenueCreate VenuePolicy = "create"
	// VenueFail fails the entry with a not found error.
	VenueFail VenuePolicy = "fail"
)

// ProgressFunc is called after each entry with the 1-based index of the
// entry and the number of entries in the file.
type ProgressFunc func(index, total int)

// Options controls an import run.
type Options struct {
	// ImportID identifies the run in events and logs. Generated when empty.
	ImportID string

	// Selection restricts the import to the listed entry keys. Empty
	// imports everything.
	Selection []string

	// ExpectedKind, when set, is the kind or kind family every entry must
	// belong to. An entry's own declared kind takes precedence.
	ExpectedKind domain.PublicationType

	JournalPolicy    VenuePolicy
	ConferencePolicy VenuePolicy

	// Similarity enables fuzzy author matching.
	Similarity bool

	// RequireKnownMember fails entries none of whose authors belongs to a
	// registered organization.
	RequireKnownMember bool

	// AllowDuplicates stores entries whose DOI or title matches an existing
	// publication instead of failing them.
	AllowDuplicates bool

	// Window restricts the run to a slice of the parsed entries. Entries
	// outside it are neither stored nor reported. The zero value covers the
	// whole file.
	Window Window

	Progress ProgressFunc
}

// Window is a half-open range [Start, End) of entry indexes. End <= 0 means
// the end of the file.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (w Window) bounds(n int) (int, int) {
	lo, hi := max(w.Start, 0), w.End
	if hi <= 0 || hi > n {
		hi = n
	}
	return min(lo, hi), hi
}

// BatchResult is the outcome of an import run.
type BatchResult struct {
	ImportID string               `json:"import_id"`
	Format   Format               `json:"format"`
	Total    int                  `json:"total"`
	Imported []int64              `json:"imported"`
	Skipped  []string             `json:"skipped,omitempty"`
	Failures []*domain.EntryError `json:"-"`
}

// Importer runs bibliography imports against the registry.
type Importer struct {
	registry *registry.Service
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// New creates an importer. metrics may be nil.
func New(svc *registry.Service, metrics *observability.Metrics, logger zerolog.Logger) *Importer {
	return &Importer{
		registry: svc,
		metrics:  metrics,
		logger:   logger.With().Str("component", "importer").Logger(),
	}
}

// Import parses raw as format and stores its entries. The result lists the
// ids of the stored publications in file order. When any entry failed the
// returned error is a *domain.BatchError naming every failed entry, and the
// result is still complete. Parse errors of the file as a whole are returned
// before anything is stored.
func (im *Importer) Import(ctx context.Context, format Format, raw io.Reader, opts Options) (*BatchResult, error) {
	parser, err := ParserFor(format)
	if err != nil {
		return nil, err
	}
	entries, err := parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	return im.ImportEntries(ctx, format, entries, opts)
}

// ImportString is Import for in-memory content.
func (im *Importer) ImportString(ctx context.Context, format Format, raw string, opts Options) (*BatchResult, error) {
	return im.Import(ctx, format, strings.NewReader(raw), opts)
}

// ImportEntries stores already parsed entries.
func (im *Importer) ImportEntries(ctx context.Context, format Format, entries []domain.PrePublication, opts Options) (*BatchResult, error) {
	start := time.Now()
	if opts.ImportID == "" {
		opts.ImportID = uuid.New().String()
	}
	result := &BatchResult{
		ImportID: opts.ImportID,
		Format:   format,
		Total:    len(entries),
		Imported: []int64{},
	}
	logger := observability.WithImportContext(observability.FromContext(ctx, im.logger), string(format), len(entries)).
		With().Str("import_id", opts.ImportID).Logger()
	if im.metrics != nil {
		im.metrics.RecordImportStarted(string(format))
	}

	selected := make(map[string]bool, len(opts.Selection))
	for _, key := range opts.Selection {
		selected[key] = true
	}

	lo, hi := opts.Window.bounds(len(entries))
	for i := lo; i < hi; i++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("import interrupted after %d of %d entries: %w", i, len(entries), err)
		}
		pre := &entries[i]
		if len(selected) > 0 && !selected[pre.Key] {
			result.Skipped = append(result.Skipped, pre.Key)
		} else if id, err := im.importEntry(ctx, pre, opts); err != nil {
			logger.Warn().Err(err).Str("key", pre.Key).Msg("entry not imported")
			result.Failures = append(result.Failures, &domain.EntryError{Index: i, Key: pre.Key, Title: pre.Title(), Err: err})
		} else {
			result.Imported = append(result.Imported, id)
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(entries))
		}
	}

	if len(result.Imported)+len(result.Failures) > 0 {
		if err := im.writeEvent(ctx, result); err != nil {
			logger.Error().Err(err).Msg("failed to write import event")
		}
	}
	if im.metrics != nil {
		im.metrics.RecordImportCompleted(string(format), len(result.Imported), len(result.Failures), len(result.Skipped), time.Since(start))
	}
	logger.Info().
		Int("imported", len(result.Imported)).
		Int("failed", len(result.Failures)).
		Int("skipped", len(result.Skipped)).
		Dur("duration", time.Since(start)).
		Msg("import completed")

	if len(result.Failures) > 0 {
		return result, &domain.BatchError{Operation: "import " + string(format), Failures: result.Failures}
	}
	return result, nil
}

// importEntry stores one entry in its own transaction and returns the new
// publication id.
func (im *Importer) importEntry(ctx context.Context, pre *domain.PrePublication, opts Options) (int64, error) {
	pub := pre.Publication
	if pub == nil {
		return 0, domain.NewValidationError("entry", "no publication data")
	}
	if err := pub.Validate(); err != nil {
		return 0, err
	}
	expected := pre.ExpectedKind
	if expected == "" {
		expected = opts.ExpectedKind
	}
	if expected != "" {
		if !expected.IsValid() {
			return 0, domain.NewValidationError("expected_kind", fmt.Sprintf("unknown publication type %q", expected))
		}
		if !pub.Kind.IsCompatibleWith(expected) {
			return 0, domain.NewTypeMismatchError(expected, pub.Kind)
		}
	}

	var id int64
	err := im.registry.Store().WithTx(ctx, func(r repository.Repos) error {
		if !opts.AllowDuplicates {
			if err := im.checkDuplicate(ctx, r, pub); err != nil {
				return err
			}
		}
		if err := attachVenue(ctx, r, pre, opts); err != nil {
			return err
		}
		if err := r.Publications.Create(ctx, pub); err != nil {
			return fmt.Errorf("store publication: %w", err)
		}
		authors, err := im.registry.AttachAuthors(ctx, r, pub.ID, pre.TemporaryAuthors, registry.AuthorOptions{
			Resolve:            registry.ResolveOptions{Similarity: opts.Similarity},
			RequireKnownMember: opts.RequireKnownMember,
		})
		if err != nil {
			return fmt.Errorf("attach authors: %w", err)
		}
		if len(authors) == 0 {
			return domain.NewBusinessRuleError("authors_required", "publication has no author")
		}
		id = pub.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// checkDuplicate fails when a publication with the same DOI or a similar
// title is already stored.
func (im *Importer) checkDuplicate(ctx context.Context, r repository.Repos, pub *domain.Publication) error {
	if pub.DOI != "" {
		existing, err := r.Publications.FindByDOI(ctx, pub.DOI)
		switch {
		case err == nil:
			return domain.NewAlreadyExistsError("publication", fmt.Sprintf("%d (doi %s)", existing.ID, pub.DOI))
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("look up doi: %w", err)
		}
	}
	candidates, err := r.Publications.FindTitleCandidates(ctx, pub.Title, pub.Year())
	if err != nil {
		return fmt.Errorf("look up title: %w", err)
	}
	cmp := im.registry.Comparator()
	for _, c := range candidates {
		if cmp.IsSimilarTitle(c.Title, pub.Title) {
			return domain.NewAlreadyExistsError("publication", strconv.FormatInt(c.ID, 10))
		}
	}
	return nil
}

// attachVenue points the publication at the journal or conference the entry
// names, creating it when the policy allows.
func attachVenue(ctx context.Context, r repository.Repos, pre *domain.PrePublication, opts Options) error {
	pub := pre.Publication
	switch {
	case pre.JournalName != "" || pre.JournalISSN != "":
		j, err := r.Venues.FindJournal(ctx, pre.JournalName, pre.JournalISSN)
		if errors.Is(err, domain.ErrNotFound) {
			if opts.JournalPolicy != VenueCreate || strings.TrimSpace(pre.JournalName) == "" {
				return domain.NewNotFoundError("journal", first(pre.JournalName, pre.JournalISSN))
			}
			j = &domain.Journal{Name: pre.JournalName, ISSN: pre.JournalISSN}
			err = r.Venues.CreateJournal(ctx, j)
		}
		if err != nil {
			return fmt.Errorf("journal %q: %w", pre.JournalName, err)
		}
		pub.SetJournalID(j.ID)
	case pre.ConferenceName != "":
		c, err := r.Venues.FindConference(ctx, pre.ConferenceName)
		if errors.Is(err, domain.ErrNotFound) {
			if opts.ConferencePolicy != VenueCreate {
				return domain.NewNotFoundError("conference", pre.ConferenceName)
			}
			c = &domain.Conference{Name: pre.ConferenceName}
			err = r.Venues.CreateConference(ctx, c)
		}
		if err != nil {
			return fmt.Errorf("conference %q: %w", pre.ConferenceName, err)
		}
		pub.SetConferenceID(c.ID)
	}
	return nil
}

// writeEvent records the publications.imported event of a run.
func (im *Importer) writeEvent(ctx context.Context, result *BatchResult) error {
	event, err := im.registry.Emitter().PublicationsImported(ctx, result.ImportID, domain.PublicationsImportedPayload{
		Format:         string(result.Format),
		PublicationIDs: result.Imported,
		Failed:         len(result.Failures),
	})
	if err != nil {
		return err
	}
	return im.registry.Store().WithTx(ctx, func(r repository.Repos) error {
		return r.Events.Insert(ctx, event)
	})
}
