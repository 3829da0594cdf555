package httpserver

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/importer"
	"github.com/helixir/research-registry-service/internal/temporal"
)

// importRequest describes a bibliography import. It is read from a JSON body,
// or from the query string when the body is the raw file.
type importRequest struct {
	Format             importer.Format      `json:"format" validate:"required,oneof=bibtex bib ris"`
	Content            string               `json:"content" validate:"required"`
	Selection          []string             `json:"selection,omitempty" validate:"dive,required"`
	ExpectedKind       string               `json:"expected_kind,omitempty"`
	JournalPolicy      importer.VenuePolicy `json:"journal_policy,omitempty" validate:"omitempty,oneof=create fail"`
	ConferencePolicy   importer.VenuePolicy `json:"conference_policy,omitempty" validate:"omitempty,oneof=create fail"`
	Similarity         *bool                `json:"similarity,omitempty"`
	RequireKnownMember bool                 `json:"require_known_member,omitempty"`
	AllowDuplicates    *bool                `json:"allow_duplicates,omitempty"`
	// ChunkSize applies to background jobs only.
	ChunkSize int `json:"chunk_size,omitempty" validate:"gte=0,lte=1000"`
}

type importResponse struct {
	ImportID string                  `json:"import_id"`
	Format   importer.Format         `json:"format"`
	Total    int                     `json:"total"`
	Imported []int64                 `json:"imported"`
	Skipped  []string                `json:"skipped,omitempty"`
	Failures []temporal.EntryFailure `json:"failures,omitempty"`
}

type jobStartedResponse struct {
	JobID string           `json:"job_id"`
	Kind  temporal.JobKind `json:"kind"`
}

// readImport reads an import request in either form and fills in the
// configured defaults.
func (s *Server) readImport(w http.ResponseWriter, r *http.Request) (importRequest, bool) {
	var req importRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if !s.decodeJSONLimit(w, r, &req, s.maxImport) {
			return req, false
		}
	} else {
		defer r.Body.Close()
		body, err := io.ReadAll(io.LimitReader(r.Body, s.maxImport+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return req, false
		}
		if int64(len(body)) > s.maxImport {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("bibliography exceeds %d bytes", s.maxImport))
			return req, false
		}
		q := r.URL.Query()
		req.Format = importer.Format(q.Get("format"))
		req.Content = string(body)
		req.Selection = q["selection"]
		req.ExpectedKind = q.Get("expected_kind")
		req.JournalPolicy = importer.VenuePolicy(q.Get("journal_policy"))
		req.ConferencePolicy = importer.VenuePolicy(q.Get("conference_policy"))
		req.RequireKnownMember = q.Get("require_known_member") == "true"
		if err := s.validate.Struct(&req); err != nil {
			writeDomainError(w, validationError(err))
			return req, false
		}
	}

	if req.ExpectedKind != "" && !domain.PublicationType(req.ExpectedKind).IsValid() {
		writeDomainError(w, domain.NewValidationError("expected_kind", fmt.Sprintf("unknown publication type %q", req.ExpectedKind)))
		return req, false
	}
	if req.JournalPolicy == "" {
		req.JournalPolicy = s.deps.Imports.JournalPolicy
	}
	if req.ConferencePolicy == "" {
		req.ConferencePolicy = s.deps.Imports.ConferencePolicy
	}
	if req.Similarity == nil {
		req.Similarity = &s.deps.Imports.Similarity
	}
	if req.AllowDuplicates == nil {
		req.AllowDuplicates = &s.deps.Imports.AllowDuplicates
	}
	return req, true
}

func (req importRequest) jobOptions() temporal.ImportOptions {
	return temporal.ImportOptions{
		Selection:          req.Selection,
		ExpectedKind:       req.ExpectedKind,
		JournalPolicy:      req.JournalPolicy,
		ConferencePolicy:   req.ConferencePolicy,
		Similarity:         *req.Similarity,
		RequireKnownMember: req.RequireKnownMember,
		AllowDuplicates:    *req.AllowDuplicates,
	}
}

// importBibliography handles POST /imports. The import runs within the
// request. When some entries fail the response is 207 and lists them next to
// the ids of the stored publications.
func (s *Server) importBibliography(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readImport(w, r)
	if !ok {
		return
	}

	result, err := s.deps.Importer.ImportString(r.Context(), req.Format, req.Content, importer.Options{
		Selection:          req.Selection,
		ExpectedKind:       domain.PublicationType(req.ExpectedKind),
		JournalPolicy:      req.JournalPolicy,
		ConferencePolicy:   req.ConferencePolicy,
		Similarity:         *req.Similarity,
		RequireKnownMember: req.RequireKnownMember,
		AllowDuplicates:    *req.AllowDuplicates,
	})
	var batch *domain.BatchError
	if err != nil && !errors.As(err, &batch) {
		writeDomainError(w, err)
		return
	}

	resp := importResponse{
		ImportID: result.ImportID,
		Format:   result.Format,
		Total:    result.Total,
		Imported: result.Imported,
		Skipped:  result.Skipped,
	}
	if batch != nil {
		resp.Failures = entryFailures(batch)
		writeJSON(w, http.StatusMultiStatus, resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// startImportJob handles POST /imports/jobs. The import runs as a background
// job whose progress is read from GET /jobs/{id}.
func (s *Server) startImportJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "background jobs are not configured")
		return
	}
	req, ok := s.readImport(w, r)
	if !ok {
		return
	}
	if _, err := importer.ParserFor(req.Format); err != nil {
		writeDomainError(w, err)
		return
	}

	jobID, err := s.deps.Jobs.StartImport(r.Context(), temporal.ImportJobInput{
		Format:    req.Format,
		Content:   req.Content,
		Options:   req.jobOptions(),
		ChunkSize: req.ChunkSize,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+jobID)
	writeJSON(w, http.StatusAccepted, jobStartedResponse{JobID: jobID, Kind: temporal.JobKindImport})
}

// getJob handles GET /jobs/{id}.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "background jobs are not configured")
		return
	}
	status, err := s.deps.Jobs.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// cancelJob handles DELETE /jobs/{id}. Only imports can be cancelled; they
// stop after the chunk in progress and keep what was stored.
func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "background jobs are not configured")
		return
	}
	if err := s.deps.Jobs.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
