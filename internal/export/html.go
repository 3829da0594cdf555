package export

import (
	"html/template"
	"io"
	"strconv"
	"strings"

	"github.com/helixir/research-registry-service/internal/domain"
)

// compiledTemplate is parsed at init time to fail fast on template errors.
var compiledTemplate *template.Template

func init() {
	compiledTemplate = template.Must(template.New("publications").Parse(htmlTemplate))
}

// HTMLExporter writes a standalone HTML page listing publications.
type HTMLExporter struct{}

// ContentType implements Exporter.
func (HTMLExporter) ContentType() string { return "text/html; charset=utf-8" }

// templateData holds data for the HTML template.
type templateData struct {
	Lang   string
	Title  string
	Labels labels
	Groups []docGroup
}

type docGroup struct {
	Heading string
	Items   []docItem
}

type docItem struct {
	Authors  string
	Title    string
	Kind     string
	Venue    string
	Details  string
	Year     string
	DOI      string
	DOIURL   string
	Abstract string
	Keywords string
}

// Export implements Exporter.
func (HTMLExporter) Export(w io.Writer, pubs []domain.PublicationSnapshot, cfg Configurator) error {
	l, tag := labelsFor(cfg.Locale)
	data := templateData{Lang: tag.String(), Title: cfg.Title, Labels: l}
	if data.Title == "" {
		data.Title = l.Title
	}

	data.Groups = docGroups(pubs, l, cfg)
	return compiledTemplate.Execute(w, data)
}

// docGroups lays publications out under year headings when cfg asks for
// it, else as one group without a heading. Shared by the HTML and ODT
// exporters.
func docGroups(pubs []domain.PublicationSnapshot, l labels, cfg Configurator) []docGroup {
	if !cfg.GroupByYear {
		if len(pubs) == 0 {
			return nil
		}
		return []docGroup{{Items: docItems(pubs, l, cfg)}}
	}
	var groups []docGroup
	for _, g := range GroupByYear(pubs) {
		heading := l.Undated
		if g.Year != 0 {
			heading = strconv.Itoa(g.Year)
		}
		groups = append(groups, docGroup{Heading: heading, Items: docItems(g.Publications, l, cfg)})
	}
	return groups
}

func docItems(pubs []domain.PublicationSnapshot, l labels, cfg Configurator) []docItem {
	items := make([]docItem, 0, len(pubs))
	for _, s := range pubs {
		pub := s.Publication
		names := make([]string, 0, len(s.Authors))
		for _, a := range s.Authors {
			names = append(names, a.FullName())
		}
		item := docItem{
			Authors: strings.Join(names, ", "),
			Title:   pub.Title,
			Kind:    l.Kinds[pub.Kind],
			Venue:   venueName(s),
			Details: citationDetails(pub, l),
			DOI:     pub.DOI,
		}
		if y := pub.Year(); y != 0 {
			item.Year = strconv.Itoa(y)
		}
		if cfg.DOILinks && pub.DOI != "" {
			item.DOIURL = doiURL(pub.DOI)
		}
		if cfg.IncludeAbstract {
			item.Abstract = pub.Abstract
		}
		if cfg.IncludeKeywords {
			item.Keywords = strings.Join(pub.Keywords, ", ")
		}
		items = append(items, item)
	}
	return items
}

// citationDetails renders the volume, number and pages part of a citation,
// e.g. "42(1), pp. 230-265".
func citationDetails(pub *domain.Publication, l labels) string {
	var volume, number, pages, extra string
	switch d := pub.Details.(type) {
	case *domain.JournalPaperDetails:
		volume, number, pages = d.Volume, d.Number, d.Pages
	case *domain.JournalEditionDetails:
		volume, number, pages = d.Volume, d.Number, d.Pages
	case *domain.ConferencePaperDetails:
		volume, pages = d.Volume, d.Pages
	case *domain.BookChapterDetails:
		extra, pages = d.BookTitle, d.Pages
	case *domain.BookDetails:
		extra = d.Publisher
	case *domain.ThesisDetails:
		extra = d.Institution
	case *domain.ReportDetails:
		extra = strings.TrimSpace(d.Institution + " " + d.ReportNumber)
	case *domain.PatentDetails:
		extra = d.PatentNumber
	}

	var parts []string
	if extra != "" {
		parts = append(parts, extra)
	}
	if volume != "" {
		v := volume
		if number != "" {
			v += "(" + number + ")"
		}
		parts = append(parts, v)
	}
	if pages != "" {
		parts = append(parts, l.PagesAbbr+" "+strings.ReplaceAll(pages, "--", "-"))
	}
	return strings.Join(parts, ", ")
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 60em; margin: 2em auto; line-height: 1.4; }
li { margin-bottom: 1em; }
.kind { color: #666; font-size: 0.85em; }
.abstract { font-size: 0.9em; color: #333; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{- $labels := .Labels}}
{{- range .Groups}}
{{- if .Heading}}
<h2>{{.Heading}}</h2>
{{- end}}
<ol>
{{- range .Items}}
<li>
{{- if .Authors}}<span class="authors">{{.Authors}}</span>. {{end -}}
<strong class="title">{{.Title}}</strong>.
{{- if .Venue}} <em>{{$labels.InVenue}} {{.Venue}}</em>{{end}}
{{- if .Details}}, {{.Details}}{{end}}
{{- if .Year}} ({{.Year}}){{end}}.
{{- if .Kind}} <span class="kind">[{{.Kind}}]</span>{{end}}
{{- if .DOIURL}} <a href="{{.DOIURL}}">doi:{{.DOI}}</a>{{else if .DOI}} doi:{{.DOI}}{{end}}
{{- if .Keywords}}
<div class="keywords">{{$labels.Keywords}}: {{.Keywords}}</div>
{{- end}}
{{- if .Abstract}}
<p class="abstract"><strong>{{$labels.Abstract}}.</strong> {{.Abstract}}</p>
{{- end}}
</li>
{{- end}}
</ol>
{{- end}}
</body>
</html>
`
