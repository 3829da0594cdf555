package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/repository"
	"github.com/helixir/research-registry-service/internal/temporal"
)

// personRequest is the JSON body of person creation and update.
type personRequest struct {
	FirstName       string `json:"first_name" validate:"max=200"`
	LastName        string `json:"last_name" validate:"required,max=200"`
	Email           string `json:"email,omitempty" validate:"omitempty,email"`
	ORCID           string `json:"orcid,omitempty"`
	ScopusID        string `json:"scopus_id,omitempty"`
	GoogleScholarID string `json:"google_scholar_id,omitempty"`
	WosID           string `json:"wos_id,omitempty"`
	OpenAlexID      string `json:"openalex_id,omitempty"`
	// Version is required on update.
	Version int `json:"version,omitempty" validate:"gte=0"`
}

func (p personRequest) apply(person *domain.Person) {
	person.FirstName = p.FirstName
	person.LastName = p.LastName
	person.Email = p.Email
	person.ORCID = p.ORCID
	person.ScopusID = p.ScopusID
	person.GoogleScholarID = p.GoogleScholarID
	person.WosID = p.WosID
	person.OpenAlexID = p.OpenAlexID
}

type mergeRequest struct {
	SourceIDs []int64 `json:"source_ids" validate:"required,min=1,dive,gt=0"`
	TargetID  int64   `json:"target_id" validate:"required,gt=0"`
}

type duplicatesResponse struct {
	Clusters [][]domain.Person `json:"clusters"`
}

// listPersons handles GET /persons.
func (s *Server) listPersons(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)
	persons, total, err := s.deps.Registry.ListPersons(r.Context(), repository.PersonFilter{
		Name:   r.URL.Query().Get("name"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(persons, offset, limit, total))
}

// createPerson handles POST /persons.
func (s *Server) createPerson(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	person := &domain.Person{}
	req.apply(person)
	if err := s.deps.Registry.CreatePerson(r.Context(), person); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

// getPerson handles GET /persons/{id}.
func (s *Server) getPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	person, err := s.deps.Registry.GetPerson(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

// updatePerson handles PUT /persons/{id}. Indicators are kept: they are only
// written by the refresher.
func (s *Server) updatePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	var req personRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Version == 0 {
		writeDomainError(w, domain.NewValidationError("version", "is required"))
		return
	}

	ctx := r.Context()
	person, err := s.deps.Registry.GetPerson(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	req.apply(person)
	person.Version = req.Version
	if err := person.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.deps.Registry.UpdatePerson(ctx, person); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

// deletePerson handles DELETE /persons/{id}.
func (s *Server) deletePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	if err := s.deps.Registry.RemovePerson(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// personPublications handles GET /persons/{id}/publications.
func (s *Server) personPublications(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	filter, ok := publicationFilter(w, r)
	if !ok {
		return
	}
	pubs, total, err := s.deps.Registry.PersonPublications(r.Context(), id, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(pubs, filter.Offset, filter.Limit, total))
}

// refreshIndicators handles POST /persons/{id}/indicators/refresh.
func (s *Server) refreshIndicators(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "bibliometric refresh is not configured")
		return
	}
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	report, err := s.deps.Refresher.RefreshByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// findDuplicates handles GET /persons/duplicates. With ?async=true the scan
// runs as a background job and the response carries its id.
func (s *Server) findDuplicates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.URL.Query().Get("async") == "true" {
		if s.deps.Jobs == nil {
			writeError(w, http.StatusServiceUnavailable, "background jobs are not configured")
			return
		}
		jobID, err := s.deps.Jobs.StartDuplicateScan(ctx)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, jobStartedResponse{JobID: jobID, Kind: temporal.JobKindDuplicateScan})
		return
	}

	clusters, err := s.deps.Registry.FindDuplicates(ctx, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if clusters == nil {
		clusters = [][]domain.Person{}
	}
	writeJSON(w, http.StatusOK, duplicatesResponse{Clusters: clusters})
}

// mergePersons handles POST /persons/merge.
func (s *Server) mergePersons(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	report, err := s.deps.Registry.Merge(r.Context(), req.SourceIDs, req.TargetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
