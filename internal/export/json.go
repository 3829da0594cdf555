package export

import (
	"encoding/json"
	"io"

	"github.com/helixir/research-registry-service/internal/domain"
)

// JSONExporter writes an indented JSON document. Fields left out by the
// configurator are blanked before encoding; the input is not modified.
type JSONExporter struct{}

// ContentType implements Exporter.
func (JSONExporter) ContentType() string { return "application/json" }

type jsonDocument struct {
	Publications []domain.PublicationSnapshot `json:"publications,omitempty"`
	Groups       []jsonGroup                  `json:"groups,omitempty"`
}

type jsonGroup struct {
	Year         int                          `json:"year,omitempty"`
	Publications []domain.PublicationSnapshot `json:"publications"`
}

// Export implements Exporter.
func (JSONExporter) Export(w io.Writer, pubs []domain.PublicationSnapshot, cfg Configurator) error {
	trimmed := make([]domain.PublicationSnapshot, len(pubs))
	for i, s := range pubs {
		pub := *s.Publication
		if !cfg.IncludeAbstract {
			pub.Abstract = ""
		}
		if !cfg.IncludeKeywords {
			pub.Keywords = nil
		}
		s.Publication = &pub
		trimmed[i] = s
	}

	var doc jsonDocument
	if cfg.GroupByYear {
		for _, g := range GroupByYear(trimmed) {
			doc.Groups = append(doc.Groups, jsonGroup{Year: g.Year, Publications: g.Publications})
		}
	} else {
		doc.Publications = trimmed
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
