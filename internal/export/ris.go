package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/helixir/research-registry-service/internal/domain"
)

// RISExporter writes RIS records.
type RISExporter struct{}

// ContentType implements Exporter.
func (RISExporter) ContentType() string { return "application/x-research-info-systems; charset=utf-8" }

var risTypes = map[domain.PublicationType]string{
	domain.TypeBook:            "BOOK",
	domain.TypeBookChapter:     "CHAP",
	domain.TypeConferencePaper: "CONF",
	domain.TypeJournalPaper:    "JOUR",
	domain.TypeJournalEdition:  "JFULL",
	domain.TypeKeyNote:         "SLIDE",
	domain.TypeMiscDocument:    "GEN",
	domain.TypePatent:          "PAT",
	domain.TypeReport:          "RPRT",
	domain.TypeThesis:          "THES",
}

// Export implements Exporter.
func (RISExporter) Export(w io.Writer, pubs []domain.PublicationSnapshot, cfg Configurator) error {
	bw := bufio.NewWriter(w)
	for _, s := range pubs {
		writeRIS(bw, s, cfg)
	}
	return bw.Flush()
}

func writeRIS(w *bufio.Writer, s domain.PublicationSnapshot, cfg Configurator) {
	pub := s.Publication
	tag := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fmt.Fprintf(w, "%s  - %s\n", name, value)
		}
	}

	typ, ok := risTypes[pub.Kind]
	if !ok {
		typ = "GEN"
	}
	tag("TY", typ)
	for _, a := range s.Authors {
		if a.FirstName != "" {
			tag("AU", a.LastName+", "+a.FirstName)
		} else {
			tag("AU", a.LastName)
		}
	}
	tag("TI", pub.Title)
	tag("T2", venueName(s))

	var pages string
	switch d := pub.Details.(type) {
	case *domain.JournalPaperDetails:
		tag("VL", d.Volume)
		tag("IS", d.Number)
		pages = d.Pages
	case *domain.JournalEditionDetails:
		tag("VL", d.Volume)
		tag("IS", d.Number)
		pages = d.Pages
	case *domain.ConferencePaperDetails:
		tag("VL", d.Volume)
		tag("PB", d.Organization)
		tag("CY", d.Address)
		pages = d.Pages
	case *domain.KeyNoteDetails:
		tag("C3", d.ScientificEventName)
		tag("CY", d.Address)
	case *domain.BookDetails:
		tag("PB", d.Publisher)
		tag("CY", d.Address)
		tag("ET", d.Edition)
		tag("VL", d.Volume)
		tag("T3", d.Series)
	case *domain.BookChapterDetails:
		tag("T2", d.BookTitle)
		tag("PB", d.Publisher)
		tag("CY", d.Address)
		tag("ET", d.Edition)
		pages = d.Pages
	case *domain.ThesisDetails:
		tag("PB", d.Institution)
		tag("M3", string(d.Level))
		tag("CY", d.Address)
	case *domain.ReportDetails:
		tag("PB", d.Institution)
		tag("IS", d.ReportNumber)
		tag("M3", d.ReportType)
		tag("CY", d.Address)
	case *domain.PatentDetails:
		tag("PB", d.Institution)
		tag("IS", d.PatentNumber)
		tag("CY", d.Address)
	case *domain.MiscDocumentDetails:
		tag("M3", d.DocumentType)
		tag("PB", d.Organization)
		tag("CY", d.Address)
		tag("IS", d.Number)
	}
	if pages != "" {
		start, end, found := strings.Cut(strings.ReplaceAll(pages, "--", "-"), "-")
		tag("SP", start)
		if found {
			tag("EP", end)
		}
	}

	if y := pub.Year(); y != 0 {
		tag("PY", fmt.Sprint(y))
	}
	if pub.PublicationDate != nil {
		tag("DA", pub.PublicationDate.Format("2006/01/02"))
	}
	tag("DO", pub.DOI)
	if pub.ISSN != "" {
		tag("SN", pub.ISSN)
	} else {
		tag("SN", pub.ISBN)
	}
	tag("UR", pub.URL)
	if cfg.DOILinks && pub.DOI != "" && pub.URL == "" {
		tag("UR", doiURL(pub.DOI))
	}
	tag("LA", pub.Language)
	if cfg.IncludeKeywords {
		for _, k := range pub.Keywords {
			tag("KW", k)
		}
	}
	if cfg.IncludeAbstract {
		tag("AB", strings.Join(strings.Fields(pub.Abstract), " "))
	}
	fmt.Fprintf(w, "ER  - \n\n")
}
