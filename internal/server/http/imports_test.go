package httpserver

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/importer"
	"github.com/helixir/research-registry-service/internal/temporal"
)

const twoArticles = `
@article{engine,
  author  = {Ada Lovelace and Charles Babbage},
  title   = {Notes on the Analytical Engine},
  journal = {Scientific Memoirs},
  year    = {1843}
}
@article{imitation,
  author  = {Alan Turing},
  title   = {Computing Machinery and Intelligence},
  journal = {Mind},
  year    = {1950}
}
`

func TestImportBibliography_PartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.journal(t, "Scientific Memoirs")

	rr := env.do(t, http.MethodPost, "/api/v1/imports", map[string]any{
		"format":  "bibtex",
		"content": twoArticles,
	})
	require.Equal(t, http.StatusMultiStatus, rr.Code, rr.Body.String())
	resp := decode[importResponse](t, rr)
	assert.NotEmpty(t, resp.ImportID)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Imported, 1)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "Computing Machinery and Intelligence", resp.Failures[0].Title)
	assert.Equal(t, "imitation", resp.Failures[0].Key)
	assert.Equal(t, "not_found", resp.Failures[0].Kind)

	_, publications, _ := env.store.Counts()
	assert.Equal(t, 1, publications)
}

func TestImportBibliography_VenuePolicyOverride(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/imports", map[string]any{
		"format":         "bibtex",
		"content":        twoArticles,
		"journal_policy": "create",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[importResponse](t, rr)
	assert.Len(t, resp.Imported, 2)
	assert.Empty(t, resp.Failures)
}

func TestImportBibliography_RawBody(t *testing.T) {
	env := newTestEnv(t)
	const ris = "TY  - RPRT\nAU  - Hopper, Grace\nTI  - Automatic Coding\nPY  - 1955\nER  - \n"

	rr := env.doRaw(t, http.MethodPost, "/api/v1/imports?format=ris", "application/x-research-info-systems", []byte(ris))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[importResponse](t, rr)
	assert.Equal(t, importer.FormatRIS, resp.Format)
	require.Len(t, resp.Imported, 1)

	rr = env.do(t, http.MethodGet, "/api/v1/publications/"+itoa(resp.Imported[0]), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	snap := decode[domain.PublicationSnapshot](t, rr)
	assert.Equal(t, domain.TypeReport, snap.Publication.Kind)
	require.Len(t, snap.Authors, 1)
	assert.Equal(t, "Hopper", snap.Authors[0].LastName)
}

func TestImportBibliography_Rejected(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{"unknown format", map[string]any{"format": "endnote", "content": "x"}, http.StatusBadRequest},
		{"missing content", map[string]any{"format": "bibtex"}, http.StatusBadRequest},
		{"bad policy", map[string]any{"format": "bibtex", "content": twoArticles, "journal_policy": "guess"}, http.StatusBadRequest},
		{"bad expected kind", map[string]any{"format": "bibtex", "content": twoArticles, "expected_kind": "novel"}, http.StatusBadRequest},
		{"oversized", map[string]any{"format": "bibtex", "content": strings.Repeat("%", 9000)}, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/v1/imports", tc.body)
			assert.Equal(t, tc.wantCode, rr.Code, rr.Body.String())
		})
	}

	t.Run("oversized raw body", func(t *testing.T) {
		rr := env.doRaw(t, http.MethodPost, "/api/v1/imports?format=bibtex", "text/plain", []byte(strings.Repeat("%", 9000)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})

	persons, publications, _ := env.store.Counts()
	assert.Zero(t, persons)
	assert.Zero(t, publications)
}

func TestStartImportJob(t *testing.T) {
	jobs := &mockJobs{}
	jobs.On("StartImport", mock.Anything, mock.MatchedBy(func(in temporal.ImportJobInput) bool {
		return in.Format == importer.FormatBibTeX &&
			in.Content == twoArticles &&
			in.ChunkSize == 25 &&
			in.Options.JournalPolicy == importer.VenueFail &&
			in.Options.ConferencePolicy == importer.VenueCreate &&
			in.Options.Similarity
	})).Return("import-7f3a", nil).Once()
	env := newTestEnv(t, func(d *Deps) { d.Jobs = jobs })

	rr := env.do(t, http.MethodPost, "/api/v1/imports/jobs", map[string]any{
		"format":     "bibtex",
		"content":    twoArticles,
		"chunk_size": 25,
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, "/api/v1/jobs/import-7f3a", rr.Header().Get("Location"))
	resp := decode[jobStartedResponse](t, rr)
	assert.Equal(t, "import-7f3a", resp.JobID)
	assert.Equal(t, temporal.JobKindImport, resp.Kind)
	jobs.AssertExpectations(t)

	// Nothing is imported within the request.
	_, publications, _ := env.store.Counts()
	assert.Zero(t, publications)

	rr = env.do(t, http.MethodPost, "/api/v1/imports/jobs", map[string]any{
		"format": "bibtex", "content": twoArticles, "chunk_size": 5000,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStartImportJob_AlreadyRunning(t *testing.T) {
	jobs := &mockJobs{}
	jobs.On("StartImport", mock.Anything, mock.Anything).
		Return("", &temporal.TemporalError{Op: "StartImport", Kind: temporal.ErrWorkflowAlreadyStarted})
	env := newTestEnv(t, func(d *Deps) { d.Jobs = jobs })

	rr := env.do(t, http.MethodPost, "/api/v1/imports/jobs", map[string]any{"format": "ris", "content": "TY  - GEN\nER  - \n"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestGetJob(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	jobs := &mockJobs{}
	jobs.On("Job", mock.Anything, "import-1").Return(&temporal.JobStatus{
		ID:        "import-1",
		Kind:      temporal.JobKindImport,
		Status:    "running",
		StartTime: started,
		Progress:  map[string]any{"processed": 10, "total": 40},
	}, nil)
	jobs.On("Job", mock.Anything, "import-missing").
		Return(nil, &temporal.TemporalError{Op: "Job", Kind: temporal.ErrWorkflowNotFound})
	env := newTestEnv(t, func(d *Deps) { d.Jobs = jobs })

	rr := env.do(t, http.MethodGet, "/api/v1/jobs/import-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[temporal.JobStatus](t, rr)
	assert.Equal(t, "running", status.Status)
	assert.True(t, started.Equal(status.StartTime))

	rr = env.do(t, http.MethodGet, "/api/v1/jobs/import-missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCancelJob(t *testing.T) {
	jobs := &mockJobs{}
	jobs.On("Cancel", mock.Anything, "import-1").Return(nil).Once()
	jobs.On("Cancel", mock.Anything, "duplicate-scan-1").
		Return(&temporal.TemporalError{Op: "Cancel", Kind: temporal.ErrWorkflowNotFound})
	env := newTestEnv(t, func(d *Deps) { d.Jobs = jobs })

	rr := env.do(t, http.MethodDelete, "/api/v1/jobs/import-1", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/v1/jobs/duplicate-scan-1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	jobs.AssertExpectations(t)
}

// readEvents splits an SSE body into its event names.
func readEvents(t *testing.T, body string) []string {
	t.Helper()
	var names []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	require.NoError(t, sc.Err())
	return names
}

func TestStreamJob(t *testing.T) {
	t.Run("closed job", func(t *testing.T) {
		jobs := &mockJobs{}
		jobs.On("Job", mock.Anything, "duplicate-scan-1").
			Return(&temporal.JobStatus{ID: "duplicate-scan-1", Status: "completed"}, nil)
		env := newTestEnv(t, func(d *Deps) { d.Jobs = jobs })

		rr := env.do(t, http.MethodGet, "/api/v1/jobs/duplicate-scan-1/events", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
		assert.Equal(t, []string{"completed"}, readEvents(t, rr.Body.String()))
	})

	t.Run("running until failure", func(t *testing.T) {
		jobs := &mockJobs{}
		running := &temporal.JobStatus{ID: "import-2", Status: "running"}
		jobs.On("Job", mock.Anything, "import-2").Return(running, nil).Twice()
		jobs.On("Job", mock.Anything, "import-2").Return(&temporal.JobStatus{ID: "import-2", Status: "failed"}, nil)
		env := newTestEnv(t, func(d *Deps) { d.Jobs = jobs })

		rr := env.do(t, http.MethodGet, "/api/v1/jobs/import-2/events", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []string{"stream_started", "progress_update", "failed"}, readEvents(t, rr.Body.String()))
		assert.Contains(t, rr.Body.String(), `"job_id":"import-2"`)
	})

	t.Run("unknown job", func(t *testing.T) {
		jobs := &mockJobs{}
		jobs.On("Job", mock.Anything, "nope").
			Return(nil, &temporal.TemporalError{Op: "Job", Kind: temporal.ErrWorkflowNotFound})
		env := newTestEnv(t, func(d *Deps) { d.Jobs = jobs })

		rr := env.do(t, http.MethodGet, "/api/v1/jobs/nope/events", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
