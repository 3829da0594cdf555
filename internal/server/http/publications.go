package httpserver

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/registry"
	"github.com/helixir/research-registry-service/internal/repository"
	"github.com/helixir/research-registry-service/internal/storage"
)

// createPublicationRequest is the body of POST /publications. Publication
// carries the kind and the matching details payload.
type createPublicationRequest struct {
	Publication *domain.Publication `json:"publication" validate:"required"`
	Authors     []string            `json:"authors" validate:"dive,required"`
	authorFlags
}

type setAuthorsRequest struct {
	Authors []string `json:"authors" validate:"required,min=1,dive,required"`
	authorFlags
}

// authorFlags tune author resolution for one request.
type authorFlags struct {
	Similarity         *bool `json:"similarity,omitempty"`
	RequireKnownMember bool  `json:"require_known_member,omitempty"`
}

type transformRequest struct {
	Kind    domain.PublicationType `json:"kind" validate:"required"`
	AsCopy  bool                   `json:"as_copy,omitempty"`
	Version int                    `json:"version,omitempty" validate:"gte=0"`
}

type fetchFileRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type authorsResponse struct {
	PublicationID int64   `json:"publication_id"`
	Authors       []int64 `json:"authors"`
}

func (s *Server) authorOptions(f authorFlags) registry.AuthorOptions {
	similarity := s.deps.Imports.Similarity
	if f.Similarity != nil {
		similarity = *f.Similarity
	}
	return registry.AuthorOptions{
		Resolve:            registry.ResolveOptions{Similarity: similarity},
		RequireKnownMember: f.RequireKnownMember,
	}
}

// publicationFilter reads the year, kind and pagination query parameters.
func publicationFilter(w http.ResponseWriter, r *http.Request) (repository.PublicationFilter, bool) {
	limit, offset := parsePaginationParams(r)
	filter := repository.PublicationFilter{Limit: limit, Offset: offset}
	year, ok := queryInt(w, r, "year")
	if !ok {
		return filter, false
	}
	filter.Year = year
	if kind := r.URL.Query().Get("kind"); kind != "" {
		filter.Kind = domain.PublicationType(kind)
		if !filter.Kind.IsConcrete() {
			writeDomainError(w, domain.NewValidationError("kind", fmt.Sprintf("unknown publication type %q", kind)))
			return filter, false
		}
	}
	return filter, true
}

// listPublications handles GET /publications.
func (s *Server) listPublications(w http.ResponseWriter, r *http.Request) {
	filter, ok := publicationFilter(w, r)
	if !ok {
		return
	}
	if _, set := r.URL.Query()["person_id"]; set {
		personID, ok := parseID(w, r.URL.Query().Get("person_id"), "person_id")
		if !ok {
			return
		}
		filter.PersonID = personID
	}
	pubs, total, err := s.deps.Registry.ListPublications(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(pubs, filter.Offset, filter.Limit, total))
}

// createPublication handles POST /publications.
func (s *Server) createPublication(w http.ResponseWriter, r *http.Request) {
	var req createPublicationRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	pub := req.Publication
	pub.ID = 0
	if err := s.deps.Registry.CreatePublication(ctx, pub, req.Authors, s.authorOptions(req.authorFlags)); err != nil {
		writeDomainError(w, err)
		return
	}
	snap, err := s.deps.Registry.GetPublication(ctx, pub.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// getPublication handles GET /publications/{id}.
func (s *Server) getPublication(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	snap, err := s.deps.Registry.GetPublication(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// updatePublication handles PUT /publications/{id}. The body is the full
// publication including its version; the kind cannot change here.
func (s *Server) updatePublication(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	var pub domain.Publication
	if !s.decodeJSON(w, r, &pub) {
		return
	}
	if pub.Version == 0 {
		writeDomainError(w, domain.NewValidationError("version", "is required"))
		return
	}

	ctx := r.Context()
	current, err := s.deps.Registry.GetPublication(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if pub.Kind != current.Publication.Kind {
		writeDomainError(w, domain.NewTypeMismatchError(current.Publication.Kind, pub.Kind))
		return
	}
	pub.ID = id
	if pub.FilePath == "" {
		pub.FilePath = current.Publication.FilePath
	}
	if err := s.deps.Registry.UpdatePublication(ctx, &pub); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &pub)
}

// deletePublication handles DELETE /publications/{id}.
func (s *Server) deletePublication(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	if err := s.deps.Registry.DeletePublication(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setAuthors handles PUT /publications/{id}/authors. Tokens are person ids
// or free-text names, in author order.
func (s *Server) setAuthors(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	var req setAuthorsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ids, err := s.deps.Registry.SetAuthors(r.Context(), id, req.Authors, s.authorOptions(req.authorFlags))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authorsResponse{PublicationID: id, Authors: ids})
}

// transformPublication handles POST /publications/{id}/transform.
func (s *Server) transformPublication(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	var req transformRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	pub, err := s.deps.Registry.TransformPublication(r.Context(), id, req.Kind, registry.TransformOptions{
		AsCopy:  req.AsCopy,
		Version: req.Version,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

func fileKind(w http.ResponseWriter, r *http.Request) (storage.Kind, bool) {
	switch kind := storage.Kind(r.URL.Query().Get("kind")); kind {
	case "", storage.KindPublication:
		return storage.KindPublication, true
	case storage.KindAward:
		return kind, true
	default:
		writeDomainError(w, domain.NewValidationError("kind", fmt.Sprintf("unknown file kind %q", kind)))
		return "", false
	}
}

// uploadFile handles PUT /publications/{id}/file. The body is either the PDF
// itself or a JSON object {"url": ...} naming a PDF to download.
func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Files == nil {
		writeError(w, http.StatusServiceUnavailable, "file storage is not configured")
		return
	}
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	kind, ok := fileKind(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	snap, err := s.deps.Registry.GetPublication(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var info *storage.FileInfo
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req fetchFileRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}
		info, err = s.deps.Files.Fetch(ctx, kind, id, req.URL)
	} else {
		defer r.Body.Close()
		info, err = s.deps.Files.Save(ctx, kind, id, r.Body)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if kind == storage.KindPublication && snap.Publication.FilePath != info.Path {
		pub := snap.Publication
		pub.FilePath = info.Path
		if err := s.deps.Registry.UpdatePublication(ctx, pub); err != nil {
			logger := s.requestLogger(r)
			logger.Warn().Err(err).Int64("publication_id", id).Msg("failed to record file path")
		}
	}
	writeJSON(w, http.StatusOK, info)
}

// downloadFile handles GET /publications/{id}/file.
func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Files == nil {
		writeError(w, http.StatusServiceUnavailable, "file storage is not configured")
		return
	}
	id, ok := parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}
	kind, ok := fileKind(w, r)
	if !ok {
		return
	}
	f, err := s.deps.Files.Open(r.Context(), kind, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", fmt.Sprintf("%s-%d.pdf", kind, id)))
	if stat, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", fmt.Sprint(stat.Size()))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil && !errors.Is(err, r.Context().Err()) {
		logger := s.requestLogger(r)
		logger.Warn().Err(err).Int64("publication_id", id).Msg("file download interrupted")
	}
}
