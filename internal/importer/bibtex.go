package importer

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/nickng/bibtex"

	"github.com/helixir/research-registry-service/internal/domain"
)

// BibTeXParser reads BibTeX files.
//
// Entry types map onto publication kinds; the optional non-standard field
// "pubtype" declares the kind family the entry is expected to belong to
// (for example "article"), which the pipeline checks.
type BibTeXParser struct{}

var bibtexKinds = map[string]domain.PublicationType{
	"article":       domain.TypeJournalPaper,
	"inproceedings": domain.TypeConferencePaper,
	"conference":    domain.TypeConferencePaper,
	"book":          domain.TypeBook,
	"inbook":        domain.TypeBookChapter,
	"incollection":  domain.TypeBookChapter,
	"phdthesis":     domain.TypeThesis,
	"mastersthesis": domain.TypeThesis,
	"thesis":        domain.TypeThesis,
	"techreport":    domain.TypeReport,
	"report":        domain.TypeReport,
	"patent":        domain.TypePatent,
	"periodical":    domain.TypeJournalEdition,
	"keynote":       domain.TypeKeyNote,
	"talk":          domain.TypeKeyNote,
	"misc":          domain.TypeMiscDocument,
	"unpublished":   domain.TypeMiscDocument,
	"manual":        domain.TypeMiscDocument,
	"booklet":       domain.TypeMiscDocument,
	"proceedings":   domain.TypeMiscDocument,
	"online":        domain.TypeMiscDocument,
}

var authorSeparator = regexp.MustCompile(`(?i)\s+and\s+`)

// bibtexMu serializes calls into github.com/nickng/bibtex, whose scanner and
// parser keep their state in package variables.
var bibtexMu sync.Mutex

// bibtexReset is scanned after a failed parse. A bare comma clears the
// scanner's field flag, which an unterminated field value leaves set.
const bibtexReset = ","

// Parse implements Parser.
func (BibTeXParser) Parse(r io.Reader) ([]domain.PrePublication, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	data = trimBOM(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	if err := checkBraces(data); err != nil {
		return nil, &ParseError{Format: FormatBibTeX, Err: err}
	}
	if err := checkStringRefs(data); err != nil {
		return nil, &ParseError{Format: FormatBibTeX, Err: err}
	}

	bib, err := parseBibTeX(data)
	if err != nil {
		return nil, &ParseError{Format: FormatBibTeX, Err: err}
	}

	entries := make([]domain.PrePublication, 0, len(bib.Entries))
	for _, e := range bib.Entries {
		fields := make(map[string]string, len(e.Fields))
		for name, value := range e.Fields {
			if value == nil {
				continue
			}
			fields[strings.ToLower(strings.TrimSpace(name))] = cleanLatex(value.String())
		}
		entries = append(entries, bibtexEntry(strings.ToLower(e.Type), strings.TrimSpace(e.CiteName), fields))
	}
	return entries, nil
}

func parseBibTeX(data []byte) (*bibtex.BibTex, error) {
	bibtexMu.Lock()
	defer bibtexMu.Unlock()

	bib, err := bibtex.Parse(bytes.NewReader(data))
	if err != nil {
		_, _ = bibtex.Parse(strings.NewReader(bibtexReset))
		return nil, err
	}
	return bib, nil
}

// checkBraces rejects input whose braces do not balance. Escaped braces
// (\{ and \}) are literal characters and are not counted.
func checkBraces(data []byte) error {
	depth, line := 0, 1
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\\':
			if i+1 < len(data) && (data[i+1] == '{' || data[i+1] == '}') {
				i++
			}
		case '\n':
			line++
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("unexpected closing brace on line %d", line)
			}
		}
	}
	if depth > 0 {
		return fmt.Errorf("%d unclosed brace(s) at end of input", depth)
	}
	return nil
}

// bibtexMonths are the string variables every BibTeX file may use undefined.
var bibtexMonths = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// checkStringRefs rejects bare field values naming a @string variable that
// is not defined before the use. github.com/nickng/bibtex exits the process
// on such a reference, so it must never see one. Variable names are case
// sensitive there, which is why "Jan" is rejected and "jan" is not.
func checkStringRefs(data []byte) error {
	defined := make(map[string]bool, len(bibtexMonths))
	for _, m := range bibtexMonths {
		defined[m] = true
	}

	var (
		depth    int    // brace depth
		entry    string // lowercased type of the open entry, "" between entries
		closer   byte   // '}' or ')', ends the open entry
		base     int    // brace depth of the open entry's fields
		quoted   bool
		afterOp  bool   // last token at field level was '=' or '#'
		lastWord string // last bare word at field level
		defining string // name a @string entry defines once it closes
	)
	for i := 0; i < len(data); i++ {
		c := data[i]

		if entry == "" {
			if c != '@' {
				continue
			}
			j := i + 1
			for j < len(data) && isBibWordByte(data[j]) {
				j++
			}
			typ := strings.ToLower(string(data[i+1 : j]))
			for j < len(data) && isBibSpace(data[j]) {
				j++
			}
			if typ == "comment" {
				// Comment bodies run to the next '@'.
				for j < len(data) && data[j] != '@' {
					j++
				}
				i = j - 1
				depth = 0
				continue
			}
			if j >= len(data) || (data[j] != '{' && data[j] != '(') {
				i = j - 1
				continue
			}
			entry, closer, base = typ, '}', 1
			if data[j] == '(' {
				closer, base = ')', 0
			} else {
				depth = 1
			}
			afterOp, lastWord, defining = false, "", ""
			i = j
			continue
		}

		if quoted {
			switch c {
			case '{':
				depth++
			case '}':
				depth--
			case '"':
				if depth == base {
					quoted = false
				}
			}
			continue
		}
		if depth > base {
			switch c {
			case '{':
				depth++
			case '}':
				depth--
			}
			continue
		}

		switch {
		case c == closer:
			if closer == '}' {
				depth--
			}
			if entry == "string" && defining != "" {
				defined[defining] = true
			}
			entry = ""
		case c == '{':
			depth++
			afterOp = false
		case c == '"':
			quoted = true
			afterOp = false
		case c == '=':
			if entry == "string" && defining == "" {
				defining = lastWord
			}
			afterOp = true
		case c == '#':
			afterOp = true
		case c == ',':
			afterOp = false
		case isBibWordByte(c):
			j := i
			for j < len(data) && (isBibWordByte(data[j]) || strings.IndexByte("-_:./+", data[j]) >= 0) {
				j++
			}
			word := string(data[i:j])
			if afterOp {
				if _, err := strconv.Atoi(word); err != nil && !defined[word] {
					return fmt.Errorf("undefined string variable %q", word)
				}
			}
			lastWord, afterOp = word, false
			i = j - 1
		}
	}
	return nil
}

func isBibWordByte(c byte) bool {
	return c >= 0x80 || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isBibSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// bibtexEntry builds the staged entry of one BibTeX record. Unknown entry
// types produce an entry without a publication, which the pipeline reports.
func bibtexEntry(entryType, key string, f map[string]string) domain.PrePublication {
	pre := domain.PrePublication{
		Key:          key,
		ExpectedKind: domain.PublicationType(strings.ToLower(f["pubtype"])),
	}
	for _, a := range authorSeparator.Split(f["author"], -1) {
		if a = strings.TrimSpace(a); a != "" && !strings.EqualFold(a, "others") {
			pre.TemporaryAuthors = append(pre.TemporaryAuthors, a)
		}
	}

	kind, ok := bibtexKinds[entryType]
	if !ok {
		pre.Publication = &domain.Publication{Title: f["title"], Kind: domain.PublicationType(entryType)}
		return pre
	}
	pub, _ := domain.NewPublication(kind, f["title"])
	pub.PublicationYear = parseYear(f["year"])
	if pub.PublicationYear == 0 {
		pub.PublicationYear = parseYear(f["date"])
	}
	pub.DOI = normalizeDOI(f["doi"])
	pub.ISBN = f["isbn"]
	pub.ISSN = f["issn"]
	pub.Abstract = f["abstract"]
	pub.Keywords = splitList(f["keywords"])
	pub.URL = f["url"]
	pub.Language = f["language"]
	pub.HalID = f["hal_id"]
	setDate(pub, parseMonth(f["month"]))

	pages := strings.ReplaceAll(f["pages"], "--", "-")
	address := first(f["address"], f["location"])
	switch d := pub.Details.(type) {
	case *domain.JournalPaperDetails:
		d.Volume, d.Number, d.Pages, d.Series = f["volume"], f["number"], pages, f["series"]
		pre.JournalName = first(f["journal"], f["journaltitle"])
		pre.JournalISSN = f["issn"]
	case *domain.JournalEditionDetails:
		d.Volume, d.Number, d.Pages = f["volume"], f["number"], pages
		pre.JournalName = first(f["journal"], f["journaltitle"], f["title"])
		pre.JournalISSN = f["issn"]
	case *domain.ConferencePaperDetails:
		d.Volume, d.Pages, d.Series, d.Organization, d.Address = f["volume"], pages, f["series"], f["organization"], address
		pre.ConferenceName = first(f["booktitle"], f["eventtitle"])
	case *domain.KeyNoteDetails:
		d.ScientificEventName, d.Address = first(f["eventtitle"], f["booktitle"]), address
		pre.ConferenceName = first(f["booktitle"], f["eventtitle"])
	case *domain.BookDetails:
		d.Publisher, d.Address, d.Edition, d.Series, d.Volume = f["publisher"], address, f["edition"], f["series"], f["volume"]
	case *domain.BookChapterDetails:
		d.BookTitle, d.ChapterNumber, d.Publisher, d.Address, d.Edition, d.Pages = f["booktitle"], f["chapter"], f["publisher"], address, f["edition"], pages
	case *domain.ThesisDetails:
		d.Institution, d.Address = first(f["school"], f["institution"]), address
		switch {
		case entryType == "mastersthesis" || strings.Contains(strings.ToLower(f["type"]), "master"):
			d.Level = domain.ThesisMaster
		case strings.Contains(strings.ToLower(f["type"]), "habilitation") || strings.EqualFold(f["type"], "hdr"):
			d.Level = domain.ThesisHDR
		default:
			d.Level = domain.ThesisPhD
		}
	case *domain.ReportDetails:
		d.Institution, d.ReportNumber, d.ReportType, d.Address = first(f["institution"], f["organization"]), f["number"], f["type"], address
	case *domain.PatentDetails:
		d.Institution, d.PatentNumber, d.Address = first(f["holder"], f["institution"], f["organization"]), f["number"], address
	case *domain.MiscDocumentDetails:
		d.DocumentType, d.HowPublished, d.Organization, d.Address, d.Number = first(f["type"], entryType), f["howpublished"], f["organization"], address, f["number"]
	}
	pre.Publication = pub
	return pre
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
