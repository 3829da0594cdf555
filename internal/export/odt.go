package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"text/template"

	"github.com/helixir/research-registry-service/internal/domain"
)

const odtMimeType = "application/vnd.oasis.opendocument.text"

var odtContent = template.Must(template.New("content.xml").
	Funcs(template.FuncMap{"xml": xmlEscape}).
	Parse(odtContentTemplate))

// ODTExporter writes an OpenDocument text file with the same layout as the
// HTML export: a title, optional year headings and one paragraph per
// publication.
type ODTExporter struct{}

// ContentType implements Exporter.
func (ODTExporter) ContentType() string { return odtMimeType }

// Export implements Exporter.
func (ODTExporter) Export(w io.Writer, pubs []domain.PublicationSnapshot, cfg Configurator) error {
	l, tag := labelsFor(cfg.Locale)
	data := templateData{Lang: tag.String(), Title: cfg.Title, Labels: l}
	if data.Title == "" {
		data.Title = l.Title
	}
	data.Groups = docGroups(pubs, l, cfg)

	var content bytes.Buffer
	if err := odtContent.Execute(&content, data); err != nil {
		return fmt.Errorf("render content.xml: %w", err)
	}

	zw := zip.NewWriter(w)
	// mimetype must be the first entry, stored uncompressed.
	if err := writeZipEntry(zw, &zip.FileHeader{Name: "mimetype", Method: zip.Store}, []byte(odtMimeType)); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		body []byte
	}{
		{"META-INF/manifest.xml", []byte(odtManifest)},
		{"content.xml", content.Bytes()},
	} {
		if err := writeZipEntry(zw, &zip.FileHeader{Name: f.name, Method: zip.Deflate}, f.body); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close odt archive: %w", err)
	}
	return nil
}

func writeZipEntry(zw *zip.Writer, header *zip.FileHeader, body []byte) error {
	fw, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create %s: %w", header.Name, err)
	}
	if _, err := fw.Write(body); err != nil {
		return fmt.Errorf("write %s: %w", header.Name, err)
	}
	return nil
}

func xmlEscape(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const odtManifest = `<?xml version="1.0" encoding="UTF-8"?>
<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0" manifest:version="1.2">
 <manifest:file-entry manifest:full-path="/" manifest:version="1.2" manifest:media-type="application/vnd.oasis.opendocument.text"/>
 <manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>
</manifest:manifest>
`

const odtContentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content
 xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"
 xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0"
 xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"
 xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0"
 xmlns:xlink="http://www.w3.org/1999/xlink"
 office:version="1.2">
<office:automatic-styles>
 <style:style style:name="Title" style:family="paragraph"><style:text-properties fo:font-size="18pt" fo:font-weight="bold" fo:language="{{xml .Lang}}"/></style:style>
 <style:style style:name="Year" style:family="paragraph"><style:text-properties fo:font-size="14pt" fo:font-weight="bold"/></style:style>
 <style:style style:name="Entry" style:family="paragraph"><style:paragraph-properties fo:margin-bottom="0.25cm"/></style:style>
 <style:style style:name="Small" style:family="paragraph"><style:text-properties fo:font-size="9pt"/></style:style>
 <style:style style:name="Strong" style:family="text"><style:text-properties fo:font-weight="bold"/></style:style>
 <style:style style:name="Venue" style:family="text"><style:text-properties fo:font-style="italic"/></style:style>
</office:automatic-styles>
<office:body>
<office:text>
<text:h text:style-name="Title" text:outline-level="1">{{xml .Title}}</text:h>
{{- $labels := .Labels}}
{{- range .Groups}}
{{- if .Heading}}
<text:h text:style-name="Year" text:outline-level="2">{{xml .Heading}}</text:h>
{{- end}}
{{- range .Items}}
<text:p text:style-name="Entry">
{{- if .Authors}}{{xml .Authors}}. {{end -}}
<text:span text:style-name="Strong">{{xml .Title}}</text:span>.
{{- if .Venue}} <text:span text:style-name="Venue">{{xml $labels.InVenue}} {{xml .Venue}}</text:span>{{end}}
{{- if .Details}}, {{xml .Details}}{{end}}
{{- if .Year}} ({{xml .Year}}){{end}}.
{{- if .Kind}} [{{xml .Kind}}]{{end}}
{{- if .DOIURL}} <text:a xlink:type="simple" xlink:href="{{xml .DOIURL}}">doi:{{xml .DOI}}</text:a>{{else if .DOI}} doi:{{xml .DOI}}{{end -}}
</text:p>
{{- if .Keywords}}
<text:p text:style-name="Small">{{xml $labels.Keywords}}: {{xml .Keywords}}</text:p>
{{- end}}
{{- if .Abstract}}
<text:p text:style-name="Small">{{xml $labels.Abstract}}. {{xml .Abstract}}</text:p>
{{- end}}
{{- end}}
{{- end}}
</office:text>
</office:body>
</office:document-content>
`
