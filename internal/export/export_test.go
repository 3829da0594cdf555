package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-registry-service/internal/domain"
)

func snapshots() []domain.PublicationSnapshot {
	nov := time.Date(1936, time.November, 12, 0, 0, 0, 0, time.UTC)
	return []domain.PublicationSnapshot{
		{
			Publication: &domain.Publication{
				ID: 1, Kind: domain.TypeJournalPaper, Title: "On Computable Numbers & Decision",
				PublicationDate: &nov, DOI: "10.1112/plms/s2-42.1.230",
				Abstract: "Defines machines.", Keywords: []string{"computability", "logic"},
				Details: &domain.JournalPaperDetails{Volume: "42", Number: "1", Pages: "230-265"},
			},
			Authors: []domain.Person{{FirstName: "Alan", LastName: "Turing"}},
			Journal: &domain.Journal{Name: "Proc. London Math. Soc."},
		},
		{
			Publication: &domain.Publication{
				ID: 2, Kind: domain.TypeConferencePaper, Title: "Compilers", PublicationYear: 1952,
				Details: &domain.ConferencePaperDetails{Pages: "1-9"},
			},
			Authors:    []domain.Person{{FirstName: "Grace", LastName: "Hopper"}, {LastName: "Gödel"}},
			Conference: &domain.Conference{Name: "ACM Meeting"},
		},
		{
			Publication: &domain.Publication{
				ID: 3, Kind: domain.TypeThesis, Title: "Relay Circuits", PublicationYear: 1936,
				Details: &domain.ThesisDetails{Institution: "MIT", Level: domain.ThesisMaster},
			},
			Authors: []domain.Person{{FirstName: "Alan", LastName: "Turing"}},
		},
		{
			Publication: &domain.Publication{
				ID: 4, Kind: domain.TypeMiscDocument, Title: "Undated note",
				Details: &domain.MiscDocumentDetails{},
			},
		},
	}
}

func TestFor(t *testing.T) {
	for format, want := range map[Format]Exporter{
		FormatBibTeX: BibTeXExporter{},
		"BIB":        BibTeXExporter{},
		FormatRIS:    RISExporter{},
		FormatJSON:   JSONExporter{},
		FormatHTML:   HTMLExporter{},
		"ODT":        ODTExporter{},
	} {
		got, err := For(format)
		require.NoError(t, err)
		assert.IsType(t, want, got)
	}

	_, err := For("docx")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGroupByYear(t *testing.T) {
	groups := GroupByYear(snapshots())
	require.Len(t, groups, 3)
	assert.Equal(t, 1952, groups[0].Year)
	assert.Equal(t, 1936, groups[1].Year)
	assert.Zero(t, groups[2].Year, "undated publications come last")

	require.Len(t, groups[1].Publications, 2)
	assert.Equal(t, int64(1), groups[1].Publications[0].Publication.ID)
	assert.Equal(t, int64(3), groups[1].Publications[1].Publication.ID)
}

func TestBibTeXExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, BibTeXExporter{}.Export(&buf, snapshots(), Configurator{IncludeKeywords: true}))
	out := buf.String()

	assert.Contains(t, out, "@article{turing1936a,\n")
	assert.Contains(t, out, "@mastersthesis{turing1936b,\n")
	assert.Contains(t, out, "@inproceedings{hopper1952,\n")
	assert.Contains(t, out, "@misc{anonymous,\n")

	assert.Contains(t, out, "  author = {Turing, Alan},\n")
	assert.Contains(t, out, "  author = {Hopper, Grace and Gödel},\n")
	assert.Contains(t, out, `  title = {On Computable Numbers \& Decision},`)
	assert.Contains(t, out, "  journal = {Proc. London Math. Soc.},\n")
	assert.Contains(t, out, "  pages = {230--265},\n")
	assert.Contains(t, out, "  booktitle = {ACM Meeting},\n")
	assert.Contains(t, out, "  school = {MIT},\n")
	assert.Contains(t, out, "  month = {11},\n")
	assert.Contains(t, out, "  keywords = {computability, logic},\n")
	assert.NotContains(t, out, "abstract")
}

func TestCitationKeys(t *testing.T) {
	pubs := []domain.PublicationSnapshot{
		{Publication: &domain.Publication{PublicationYear: 1934}, Authors: []domain.Person{{LastName: "Erdős"}}},
		{Publication: &domain.Publication{PublicationYear: 1934}, Authors: []domain.Person{{LastName: "van der Waerden"}}},
		{Publication: &domain.Publication{}, Authors: []domain.Person{{LastName: "???"}}},
	}
	assert.Equal(t, []string{"erdos1934", "vanderwaerden1934", "anonymous"}, citationKeys(pubs))
}

func TestRISExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RISExporter{}.Export(&buf, snapshots()[:2], Configurator{IncludeAbstract: true, DOILinks: true}))
	out := buf.String()

	records := strings.Split(out, "ER  - \n\n")
	require.Len(t, records, 3, "two records and the empty remainder")
	assert.Empty(t, records[2])

	first := records[0]
	assert.True(t, strings.HasPrefix(first, "TY  - JOUR\n"))
	assert.Contains(t, first, "AU  - Turing, Alan\n")
	assert.Contains(t, first, "T2  - Proc. London Math. Soc.\n")
	assert.Contains(t, first, "SP  - 230\nEP  - 265\n")
	assert.Contains(t, first, "PY  - 1936\n")
	assert.Contains(t, first, "DA  - 1936/11/12\n")
	assert.Contains(t, first, "UR  - https://doi.org/10.1112/plms/s2-42.1.230\n")
	assert.Contains(t, first, "AB  - Defines machines.\n")
	assert.NotContains(t, first, "KW  - ")

	second := records[1]
	assert.Contains(t, second, "TY  - CONF\n")
	assert.Contains(t, second, "AU  - Gödel\n")
}

func TestJSONExporter(t *testing.T) {
	pubs := snapshots()

	var buf bytes.Buffer
	require.NoError(t, JSONExporter{}.Export(&buf, pubs, Configurator{}))
	var doc struct {
		Publications []struct {
			Publication map[string]any `json:"publication"`
		} `json:"publications"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Publications, 4)
	assert.NotContains(t, doc.Publications[0].Publication, "abstract")
	assert.NotContains(t, doc.Publications[0].Publication, "keywords")
	assert.Equal(t, "Defines machines.", pubs[0].Publication.Abstract, "input is left untouched")

	buf.Reset()
	require.NoError(t, JSONExporter{}.Export(&buf, pubs, Configurator{GroupByYear: true, IncludeAbstract: true}))
	var grouped struct {
		Groups []struct {
			Year         int `json:"year"`
			Publications []domain.PublicationSnapshot
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &grouped))
	require.Len(t, grouped.Groups, 3)
	assert.Equal(t, 1952, grouped.Groups[0].Year)
	assert.Equal(t, "Defines machines.", grouped.Groups[1].Publications[0].Publication.Abstract)
}

func TestHTMLExporter(t *testing.T) {
	t.Run("english flat", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, HTMLExporter{}.Export(&buf, snapshots(), Configurator{DOILinks: true}))
		out := buf.String()

		assert.Contains(t, out, `<html lang="en">`)
		assert.Contains(t, out, "<h1>Publications</h1>")
		assert.NotContains(t, out, "<h2>")
		assert.Contains(t, out, "On Computable Numbers &amp; Decision")
		assert.Contains(t, out, `<a href="https://doi.org/10.1112/plms/s2-42.1.230">`)
		assert.Contains(t, out, "42(1), pp. 230-265")
		assert.Contains(t, out, "[Journal paper]")
		assert.NotContains(t, out, "Defines machines.")
	})

	t.Run("french grouped", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := Configurator{Locale: "fr-CA", GroupByYear: true, IncludeAbstract: true, IncludeKeywords: true, Title: "Équipe"}
		require.NoError(t, HTMLExporter{}.Export(&buf, snapshots(), cfg))
		out := buf.String()

		assert.Contains(t, out, `<html lang="fr">`)
		assert.Contains(t, out, "<h1>Équipe</h1>")
		i1952 := strings.Index(out, "<h2>1952</h2>")
		i1936 := strings.Index(out, "<h2>1936</h2>")
		iUndated := strings.Index(out, "<h2>Non datées</h2>")
		require.True(t, i1952 >= 0 && i1936 >= 0 && iUndated >= 0)
		assert.Less(t, i1952, i1936)
		assert.Less(t, i1936, iUndated)
		assert.Contains(t, out, "Résumé")
		assert.Contains(t, out, "Mots-clés: computability, logic")
		assert.Contains(t, out, "[Thèse]")
		assert.NotContains(t, out, "<a href=", "DOI links are off")
	})

	t.Run("unknown locale falls back to english", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, HTMLExporter{}.Export(&buf, nil, Configurator{Locale: "ja"}))
		assert.Contains(t, buf.String(), `<html lang="en">`)
	})
}

// odtContentXML unpacks an ODT export, checks the package layout and returns
// content.xml.
func odtContentXML(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.NotEmpty(t, zr.File)

	first := zr.File[0]
	assert.Equal(t, "mimetype", first.Name)
	assert.Equal(t, zip.Store, first.Method)

	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		files[f.Name] = string(body)
	}
	assert.Equal(t, "application/vnd.oasis.opendocument.text", files["mimetype"])
	assert.Contains(t, files["META-INF/manifest.xml"], `manifest:full-path="content.xml"`)

	content, ok := files["content.xml"]
	require.True(t, ok)
	dec := xml.NewDecoder(strings.NewReader(content))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err, "content.xml is well-formed")
	}
	return content
}

func TestODTExporter(t *testing.T) {
	assert.Equal(t, "application/vnd.oasis.opendocument.text", ODTExporter{}.ContentType())

	t.Run("english flat", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ODTExporter{}.Export(&buf, snapshots(), Configurator{DOILinks: true}))
		content := odtContentXML(t, buf.Bytes())

		assert.Contains(t, content, `text:outline-level="1">Publications</text:h>`)
		assert.NotContains(t, content, `text:outline-level="2"`)
		assert.Contains(t, content, "On Computable Numbers &amp; Decision")
		assert.Contains(t, content, `xlink:href="https://doi.org/10.1112/plms/s2-42.1.230"`)
		assert.Contains(t, content, "42(1), pp. 230-265")
		assert.Contains(t, content, "[Journal paper]")
		assert.NotContains(t, content, "Defines machines.")
	})

	t.Run("french grouped", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := Configurator{Locale: "fr", GroupByYear: true, IncludeAbstract: true, IncludeKeywords: true, Title: "Équipe <R&D>"}
		require.NoError(t, ODTExporter{}.Export(&buf, snapshots(), cfg))
		content := odtContentXML(t, buf.Bytes())

		assert.Contains(t, content, "Équipe &lt;R&amp;D&gt;")
		i1952 := strings.Index(content, ">1952</text:h>")
		i1936 := strings.Index(content, ">1936</text:h>")
		iUndated := strings.Index(content, ">Non datées</text:h>")
		require.True(t, i1952 >= 0 && i1936 >= 0 && iUndated >= 0)
		assert.Less(t, i1952, i1936)
		assert.Less(t, i1936, iUndated)
		assert.Contains(t, content, "Résumé. Defines machines.")
		assert.Contains(t, content, "Mots-clés: computability, logic")
		assert.NotContains(t, content, "xlink:href")
	})

	t.Run("empty export is still a document", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ODTExporter{}.Export(&buf, nil, Configurator{}))
		content := odtContentXML(t, buf.Bytes())
		assert.NotContains(t, content, `text:style-name="Entry"`)
	})
}
