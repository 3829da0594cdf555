package httpserver

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/export"
)

// exportPageSize is the page size used to load every matching publication.
const exportPageSize = 1000

// exportPublications handles GET /exports.
//
// Query parameters: format (bibtex, ris, json, html, odt; default bibtex),
// person_id, year, kind, locale, title, and the booleans abstract, keywords,
// doi_links and group_by_year.
func (s *Server) exportPublications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := export.Format(q.Get("format"))
	if format == "" {
		format = export.FormatBibTeX
	}
	exporter, err := export.For(format)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	filter, ok := publicationFilter(w, r)
	if !ok {
		return
	}
	if _, set := q["person_id"]; set {
		personID, ok := parseID(w, q.Get("person_id"), "person_id")
		if !ok {
			return
		}
		filter.PersonID = personID
	}
	cfg := export.Configurator{
		Locale: q.Get("locale"),
		Title:  q.Get("title"),
	}
	for name, dst := range map[string]*bool{
		"abstract":      &cfg.IncludeAbstract,
		"keywords":      &cfg.IncludeKeywords,
		"doi_links":     &cfg.DOILinks,
		"group_by_year": &cfg.GroupByYear,
	} {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				writeDomainError(w, domain.NewValidationError(name, "must be a boolean"))
				return
			}
			*dst = v
		}
	}

	ctx := r.Context()
	var snaps []domain.PublicationSnapshot
	filter.Limit, filter.Offset = exportPageSize, 0
	for {
		page, err := s.deps.Registry.Snapshots(ctx, filter)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		snaps = append(snaps, page...)
		if len(page) < exportPageSize {
			break
		}
		filter.Offset += len(page)
	}

	var buf bytes.Buffer
	if err := exporter.Export(&buf, snaps, cfg); err != nil {
		writeDomainError(w, fmt.Errorf("export %s: %w", format, err))
		return
	}
	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("X-Total-Count", strconv.Itoa(len(snaps)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
