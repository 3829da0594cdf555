// Package export renders publication snapshots as BibTeX, RIS, JSON, HTML
// or OpenDocument text.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/helixir/research-registry-service/internal/domain"
)

// Format identifies an export format.
type Format string

const (
	FormatBibTeX Format = "bibtex"
	FormatRIS    Format = "ris"
	FormatJSON   Format = "json"
	FormatHTML   Format = "html"
	FormatODT    Format = "odt"
)

// Configurator selects what an export contains and how it is laid out.
type Configurator struct {
	// IncludeAbstract adds abstracts.
	IncludeAbstract bool
	// IncludeKeywords adds keyword lists.
	IncludeKeywords bool
	// DOILinks renders DOIs as resolver links where the format allows it.
	DOILinks bool
	// Locale picks the language of headings and labels (BCP 47, e.g. "fr").
	Locale string
	// GroupByYear groups publications under one heading per year, newest
	// first. Formats without headings ignore it.
	GroupByYear bool
	// Title is the document title of formats that have one.
	Title string
}

// Exporter writes publications in one format.
type Exporter interface {
	Export(w io.Writer, pubs []domain.PublicationSnapshot, cfg Configurator) error
	ContentType() string
}

// For returns the exporter of a format.
func For(format Format) (Exporter, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatBibTeX, "bib":
		return BibTeXExporter{}, nil
	case FormatRIS:
		return RISExporter{}, nil
	case FormatJSON:
		return JSONExporter{}, nil
	case FormatHTML:
		return HTMLExporter{}, nil
	case FormatODT:
		return ODTExporter{}, nil
	}
	return nil, domain.NewValidationError("format", fmt.Sprintf("unsupported export format %q", format))
}

// YearGroup holds the publications of one year. Year is zero for undated
// publications.
type YearGroup struct {
	Year         int
	Publications []domain.PublicationSnapshot
}

// GroupByYear splits publications by year, newest first, undated last. The
// order inside a year is kept.
func GroupByYear(pubs []domain.PublicationSnapshot) []YearGroup {
	index := map[int]int{}
	var groups []YearGroup
	for _, p := range pubs {
		y := p.Publication.Year()
		i, ok := index[y]
		if !ok {
			i = len(groups)
			index[y] = i
			groups = append(groups, YearGroup{Year: y})
		}
		groups[i].Publications = append(groups[i].Publications, p)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].Year, groups[j].Year
		if a == 0 || b == 0 {
			return b == 0 && a != 0
		}
		return a > b
	})
	return groups
}

// doiURL returns the resolver link of a DOI.
func doiURL(doi string) string {
	return "https://doi.org/" + doi
}

// venueName returns the journal or conference name of a snapshot.
func venueName(s domain.PublicationSnapshot) string {
	switch {
	case s.Journal != nil:
		return s.Journal.Name
	case s.Conference != nil:
		return s.Conference.Name
	}
	return ""
}

var supportedLocales = []language.Tag{language.English, language.French}

var localeMatcher = language.NewMatcher(supportedLocales)

// labels holds the translatable strings of rendered documents.
type labels struct {
	Title     string
	Undated   string
	Authors   string
	Abstract  string
	Keywords  string
	Kinds     map[domain.PublicationType]string
	InVenue   string
	PagesAbbr string
}

var labelSets = map[language.Tag]labels{
	language.English: {
		Title:     "Publications",
		Undated:   "Undated",
		Authors:   "Authors",
		Abstract:  "Abstract",
		Keywords:  "Keywords",
		InVenue:   "In",
		PagesAbbr: "pp.",
		Kinds: map[domain.PublicationType]string{
			domain.TypeBook:            "Book",
			domain.TypeBookChapter:     "Book chapter",
			domain.TypeConferencePaper: "Conference paper",
			domain.TypeJournalPaper:    "Journal paper",
			domain.TypeJournalEdition:  "Journal edition",
			domain.TypeKeyNote:         "Keynote",
			domain.TypeMiscDocument:    "Document",
			domain.TypePatent:          "Patent",
			domain.TypeReport:          "Report",
			domain.TypeThesis:          "Thesis",
		},
	},
	language.French: {
		Title:     "Publications",
		Undated:   "Non datées",
		Authors:   "Auteurs",
		Abstract:  "Résumé",
		Keywords:  "Mots-clés",
		InVenue:   "Dans",
		PagesAbbr: "p.",
		Kinds: map[domain.PublicationType]string{
			domain.TypeBook:            "Ouvrage",
			domain.TypeBookChapter:     "Chapitre d'ouvrage",
			domain.TypeConferencePaper: "Communication",
			domain.TypeJournalPaper:    "Article de revue",
			domain.TypeJournalEdition:  "Direction de numéro",
			domain.TypeKeyNote:         "Conférence invitée",
			domain.TypeMiscDocument:    "Document",
			domain.TypePatent:          "Brevet",
			domain.TypeReport:          "Rapport",
			domain.TypeThesis:          "Thèse",
		},
	},
}

// labelsFor returns the label set closest to locale, English by default.
func labelsFor(locale string) (labels, language.Tag) {
	if locale == "" {
		return labelSets[language.English], language.English
	}
	_, index, _ := localeMatcher.Match(language.Make(locale))
	tag := supportedLocales[index]
	return labelSets[tag], tag
}
