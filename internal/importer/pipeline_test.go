package importer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/internal/registry"
	"github.com/helixir/research-registry-service/internal/repository/repotest"
)

func newTestImporter(t *testing.T, metrics *observability.Metrics) (*Importer, *repotest.Store) {
	t.Helper()
	store := repotest.NewStore()
	svc := registry.NewService(store, zerolog.Nop(), registry.WithMetrics(metrics))
	return New(svc, metrics, zerolog.Nop()), store
}

func mustJournal(t *testing.T, store *repotest.Store, name string) *domain.Journal {
	t.Helper()
	j := &domain.Journal{Name: name}
	require.NoError(t, store.Repos().Venues.CreateJournal(context.Background(), j))
	return j
}

const threeArticles = `
@article{one,
  author  = {Ada Lovelace and Charles Babbage},
  title   = {Notes on the Analytical Engine},
  journal = {Scientific Memoirs},
  year    = {1843}
}
@article{two,
  author  = {Alan Turing},
  title   = {Computing Machinery and Intelligence},
  journal = {Mind},
  year    = {1950}
}
@article{three,
  author  = {Lovelace, Ada},
  title   = {Poetical Science},
  journal = {Scientific Memoirs},
  year    = {1844}
}
`

func TestImport_PartialSuccess(t *testing.T) {
	ctx := context.Background()
	m := observability.NewMetrics("test_importer_partial")
	im, store := newTestImporter(t, m)
	memoirs := mustJournal(t, store, "Scientific Memoirs")

	var progress [][2]int
	result, err := im.ImportString(ctx, FormatBibTeX, threeArticles, Options{
		JournalPolicy: VenueFail,
		Progress:      func(i, total int) { progress = append(progress, [2]int{i, total}) },
	})

	var batchErr *domain.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, []string{"Computing Machinery and Intelligence"}, batchErr.Titles())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "two", batchErr.Failures[0].Key)

	require.NotNil(t, result)
	require.Len(t, result.Imported, 2)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)

	first, err := im.registry.GetPublication(ctx, result.Imported[0])
	require.NoError(t, err)
	assert.Equal(t, "Notes on the Analytical Engine", first.Publication.Title)
	assert.Equal(t, memoirs.ID, first.Publication.JournalID())
	require.Len(t, first.Authors, 2)
	assert.Equal(t, []int{0, 1}, store.Ranks(first.Publication.ID))

	third, err := im.registry.GetPublication(ctx, result.Imported[1])
	require.NoError(t, err)
	require.Len(t, third.Authors, 1)
	assert.Equal(t, first.Authors[0].ID, third.Authors[0].ID, "the same author is resolved, not duplicated")

	persons, publications, _ := store.Counts()
	assert.Equal(t, 2, persons, "nothing of the failed entry is kept")
	assert.Equal(t, 2, publications)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypePublicationsImported, events[0].EventType)
	assert.Equal(t, result.ImportID, events[0].AggregateID)
	var payload domain.PublicationsImportedPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, result.Imported, payload.PublicationIDs)
	assert.Equal(t, 1, payload.Failed)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ImportEntries.WithLabelValues("bibtex", "imported")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ImportEntries.WithLabelValues("bibtex", "failed")))
}

func TestImport_CreatesVenuesWhenAllowed(t *testing.T) {
	ctx := context.Background()
	im, store := newTestImporter(t, nil)

	result, err := im.ImportString(ctx, FormatBibTeX, threeArticles, Options{JournalPolicy: VenueCreate})
	require.NoError(t, err)
	require.Len(t, result.Imported, 3)

	mind, err := store.Repos().Venues.FindJournal(ctx, "mind", "")
	require.NoError(t, err)
	snap, err := im.registry.GetPublication(ctx, result.Imported[1])
	require.NoError(t, err)
	assert.Equal(t, mind.ID, snap.Publication.JournalID())
}

func TestImport_Conference(t *testing.T) {
	ctx := context.Background()
	im, _ := newTestImporter(t, nil)
	const bib = `@inproceedings{k, author = {Grace Hopper}, title = {Compilers}, booktitle = {ACM Meeting}, year = {1952}}`

	_, err := im.ImportString(ctx, FormatBibTeX, bib, Options{ConferencePolicy: VenueFail})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	result, err := im.ImportString(ctx, FormatBibTeX, bib, Options{ConferencePolicy: VenueCreate})
	require.NoError(t, err)
	snap, err := im.registry.GetPublication(ctx, result.Imported[0])
	require.NoError(t, err)
	require.NotNil(t, snap.Conference)
	assert.Equal(t, "ACM Meeting", snap.Conference.Name)
}

func TestImport_Selection(t *testing.T) {
	im, store := newTestImporter(t, nil)
	mustJournal(t, store, "Scientific Memoirs")

	result, err := im.ImportString(context.Background(), FormatBibTeX, threeArticles, Options{Selection: []string{"one", "three"}})
	require.NoError(t, err, "the unselected entry with an unknown journal is never attempted")
	assert.Len(t, result.Imported, 2)
	assert.Equal(t, []string{"two"}, result.Skipped)
}

func TestImport_Window(t *testing.T) {
	im, store := newTestImporter(t, nil)
	mustJournal(t, store, "Scientific Memoirs")

	var seen []int
	result, err := im.ImportString(context.Background(), FormatBibTeX, threeArticles, Options{
		Window:   Window{Start: 2},
		Progress: func(i, total int) { seen = append(seen, i) },
	})
	require.NoError(t, err, "entries before the window are never attempted")
	assert.Len(t, result.Imported, 1)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, []int{3}, seen)

	result, err = im.ImportString(context.Background(), FormatBibTeX, threeArticles, Options{Window: Window{Start: 5, End: 9}})
	require.NoError(t, err)
	assert.Empty(t, result.Imported)
}

func TestImport_TypeMismatch(t *testing.T) {
	const bib = `
@inproceedings{conf, author = {Grace Hopper}, title = {Compilers}, booktitle = {ACM Meeting}, year = {1952}}
@book{declared, author = {Donald Knuth}, title = {The Art of Computer Programming}, year = {1968}, pubtype = {article}}
`
	im, store := newTestImporter(t, nil)

	result, err := im.ImportString(context.Background(), FormatBibTeX, bib, Options{
		ExpectedKind:     domain.TypeArticle,
		ConferencePolicy: VenueCreate,
	})
	var batchErr *domain.BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Failures, 2)
	assert.Empty(t, result.Imported)

	var mismatch *domain.TypeMismatchError
	require.ErrorAs(t, batchErr.Failures[0], &mismatch)
	assert.Equal(t, domain.TypeArticle, mismatch.Expected)
	assert.Equal(t, domain.TypeConferencePaper, mismatch.Actual)

	require.ErrorAs(t, batchErr.Failures[1], &mismatch)
	assert.Equal(t, domain.TypeBook, mismatch.Actual)

	_, publications, _ := store.Counts()
	assert.Zero(t, publications)

	result, err = im.ImportString(context.Background(), FormatBibTeX, bib, Options{
		ExpectedKind:     domain.TypeProceedings,
		ConferencePolicy: VenueCreate,
	})
	require.ErrorAs(t, err, &batchErr)
	assert.Len(t, result.Imported, 1, "the proceedings family admits conference papers")
	assert.Equal(t, []string{"The Art of Computer Programming"}, batchErr.Titles())
}

func TestImport_EntryWithoutAuthorsIsRolledBack(t *testing.T) {
	im, store := newTestImporter(t, nil)
	const bib = `@book{anon, title = {Anonymous Work}, publisher = {Nobody}, year = {1900}}`

	result, err := im.ImportString(context.Background(), FormatBibTeX, bib, Options{})
	assert.ErrorIs(t, err, domain.ErrBusinessRule)
	assert.Empty(t, result.Imported)

	persons, publications, authorships := store.Counts()
	assert.Zero(t, persons)
	assert.Zero(t, publications)
	assert.Zero(t, authorships)
}

func TestImport_Duplicates(t *testing.T) {
	ctx := context.Background()
	const bib = `@book{b, author = {Donald Knuth}, title = {The Art of Computer Programming}, year = {1968}, doi = {10.1000/taocp}}`
	const sameTitle = `@book{c, author = {Donald E. Knuth}, title = {The Art of Computer Programming.}, year = {1969}}`

	im, store := newTestImporter(t, nil)
	_, err := im.ImportString(ctx, FormatBibTeX, bib, Options{})
	require.NoError(t, err)

	_, err = im.ImportString(ctx, FormatBibTeX, bib, Options{})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = im.ImportString(ctx, FormatBibTeX, sameTitle, Options{})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	result, err := im.ImportString(ctx, FormatBibTeX, bib, Options{AllowDuplicates: true})
	require.NoError(t, err)
	assert.Len(t, result.Imported, 1)

	_, publications, _ := store.Counts()
	assert.Equal(t, 2, publications)
}

func TestImport_RIS(t *testing.T) {
	ctx := context.Background()
	im, store := newTestImporter(t, nil)

	result, err := im.ImportString(ctx, FormatRIS, sampleRIS, Options{
		JournalPolicy:    VenueCreate,
		ConferencePolicy: VenueCreate,
		Similarity:       true,
	})
	require.NoError(t, err)
	require.Len(t, result.Imported, 3)

	snap, err := im.registry.GetPublication(ctx, result.Imported[0])
	require.NoError(t, err)
	require.NotNil(t, snap.Journal)
	assert.Equal(t, "1234-567X", snap.Journal.ISSN)
	assert.Equal(t, []int{0, 1}, store.Ranks(result.Imported[0]))
}

func TestImport_ParseErrorStoresNothing(t *testing.T) {
	im, store := newTestImporter(t, nil)
	_, err := im.ImportString(context.Background(), FormatRIS, "AU  - orphan\n", Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, store.Events())

	_, err = im.ImportString(context.Background(), "csv", "", Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestImport_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	im, _ := newTestImporter(t, nil)

	result, err := im.ImportString(ctx, FormatBibTeX, threeArticles, Options{JournalPolicy: VenueCreate})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, result.Imported)
}
