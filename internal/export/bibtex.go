package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/helixir/research-registry-service/internal/dedup"
	"github.com/helixir/research-registry-service/internal/domain"
)

// BibTeXExporter writes BibTeX entries. Citation keys are built from the
// first author's last name and the year, with a letter suffix when two
// entries of the same export would collide.
type BibTeXExporter struct{}

// ContentType implements Exporter.
func (BibTeXExporter) ContentType() string { return "application/x-bibtex; charset=utf-8" }

// Export implements Exporter.
func (BibTeXExporter) Export(w io.Writer, pubs []domain.PublicationSnapshot, cfg Configurator) error {
	keys := citationKeys(pubs)
	for i, s := range pubs {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, toBibTeX(s, keys[i], cfg)); err != nil {
			return err
		}
	}
	return nil
}

// bibField is one "name = {value}" line.
type bibField struct{ name, value string }

func toBibTeX(s domain.PublicationSnapshot, key string, cfg Configurator) string {
	pub := s.Publication
	entryType, fields := bibtexFields(s)

	var b strings.Builder
	fmt.Fprintf(&b, "@%s{%s,\n", entryType, key)
	if len(s.Authors) > 0 {
		fmt.Fprintf(&b, "  author = {%s},\n", formatAuthors(s.Authors))
	}
	fmt.Fprintf(&b, "  title = {%s},\n", escapeLatex(pub.Title))
	for _, f := range fields {
		if f.value != "" {
			fmt.Fprintf(&b, "  %s = {%s},\n", f.name, escapeLatex(f.value))
		}
	}
	if y := pub.Year(); y != 0 {
		fmt.Fprintf(&b, "  year = {%d},\n", y)
	}
	if pub.PublicationDate != nil {
		fmt.Fprintf(&b, "  month = {%d},\n", int(pub.PublicationDate.Month()))
	}
	if pub.DOI != "" {
		fmt.Fprintf(&b, "  doi = {%s},\n", pub.DOI)
	}
	if pub.ISBN != "" {
		fmt.Fprintf(&b, "  isbn = {%s},\n", pub.ISBN)
	}
	if pub.ISSN != "" {
		fmt.Fprintf(&b, "  issn = {%s},\n", pub.ISSN)
	}
	if pub.URL != "" {
		fmt.Fprintf(&b, "  url = {%s},\n", pub.URL)
	}
	if cfg.IncludeKeywords && len(pub.Keywords) > 0 {
		fmt.Fprintf(&b, "  keywords = {%s},\n", escapeLatex(strings.Join(pub.Keywords, ", ")))
	}
	if cfg.IncludeAbstract && pub.Abstract != "" {
		fmt.Fprintf(&b, "  abstract = {%s},\n", escapeLatex(pub.Abstract))
	}
	b.WriteString("}\n")
	return b.String()
}

// bibtexFields returns the entry type of a publication and its
// kind-specific fields, in output order.
func bibtexFields(s domain.PublicationSnapshot) (string, []bibField) {
	pages := func(p string) string { return strings.ReplaceAll(p, "-", "--") }
	venue := venueName(s)
	switch d := s.Publication.Details.(type) {
	case *domain.JournalPaperDetails:
		return "article", []bibField{{"journal", venue}, {"volume", d.Volume}, {"number", d.Number}, {"pages", pages(d.Pages)}, {"series", d.Series}}
	case *domain.JournalEditionDetails:
		return "periodical", []bibField{{"journal", venue}, {"volume", d.Volume}, {"number", d.Number}, {"pages", pages(d.Pages)}}
	case *domain.ConferencePaperDetails:
		return "inproceedings", []bibField{{"booktitle", venue}, {"volume", d.Volume}, {"pages", pages(d.Pages)}, {"series", d.Series}, {"organization", d.Organization}, {"address", d.Address}}
	case *domain.KeyNoteDetails:
		return "misc", []bibField{{"howpublished", "Keynote"}, {"booktitle", venue}, {"eventtitle", d.ScientificEventName}, {"address", d.Address}}
	case *domain.BookDetails:
		return "book", []bibField{{"publisher", d.Publisher}, {"address", d.Address}, {"edition", d.Edition}, {"series", d.Series}, {"volume", d.Volume}}
	case *domain.BookChapterDetails:
		return "incollection", []bibField{{"booktitle", d.BookTitle}, {"chapter", d.ChapterNumber}, {"publisher", d.Publisher}, {"address", d.Address}, {"edition", d.Edition}, {"pages", pages(d.Pages)}}
	case *domain.ThesisDetails:
		entry := "phdthesis"
		if d.Level == domain.ThesisMaster {
			entry = "mastersthesis"
		}
		var typ string
		if d.Level == domain.ThesisHDR {
			typ = "Habilitation thesis"
		}
		return entry, []bibField{{"school", d.Institution}, {"type", typ}, {"address", d.Address}}
	case *domain.ReportDetails:
		return "techreport", []bibField{{"institution", d.Institution}, {"number", d.ReportNumber}, {"type", d.ReportType}, {"address", d.Address}}
	case *domain.PatentDetails:
		return "patent", []bibField{{"holder", d.Institution}, {"number", d.PatentNumber}, {"address", d.Address}}
	case *domain.MiscDocumentDetails:
		return "misc", []bibField{{"type", d.DocumentType}, {"howpublished", d.HowPublished}, {"organization", d.Organization}, {"address", d.Address}, {"number", d.Number}}
	}
	return "misc", nil
}

// citationKeys returns one unique key per publication.
func citationKeys(pubs []domain.PublicationSnapshot) []string {
	base := make([]string, len(pubs))
	count := map[string]int{}
	for i, s := range pubs {
		name := "anonymous"
		if len(s.Authors) > 0 {
			name = keyPart(s.Authors[0].LastName)
		}
		key := name
		if y := s.Publication.Year(); y != 0 {
			key += strconv.Itoa(y)
		}
		base[i] = key
		count[key]++
	}
	keys := make([]string, len(pubs))
	seen := map[string]int{}
	for i, key := range base {
		if count[key] > 1 {
			key += string(rune('a' + seen[base[i]]%26))
			seen[base[i]]++
		}
		keys[i] = key
	}
	return keys
}

// keyPart reduces a name to lowercase ASCII letters.
func keyPart(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(dedup.FoldAccents(name)) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "anonymous"
	}
	return b.String()
}

// formatAuthors formats authors in BibTeX style: "Last, First and Last, First".
func formatAuthors(authors []domain.Person) string {
	formatted := make([]string, 0, len(authors))
	for _, a := range authors {
		if a.FirstName != "" {
			formatted = append(formatted, escapeLatex(a.LastName+", "+a.FirstName))
		} else {
			formatted = append(formatted, escapeLatex(a.LastName))
		}
	}
	return strings.Join(formatted, " and ")
}

var latexReplacer = strings.NewReplacer(
	"&", `\&`,
	"%", `\%`,
	"$", `\$`,
	"#", `\#`,
	"_", `\_`,
	"{", `\{`,
	"}", `\}`,
	"~", `\textasciitilde{}`,
	"^", `\textasciicircum{}`,
)

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	return latexReplacer.Replace(s)
}
