package importer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/helixir/research-registry-service/internal/domain"
)

// RISParser reads RIS files: one "TAG  - value" line per field, each record
// opened by TY and closed by ER.
type RISParser struct{}

var risKinds = map[string]domain.PublicationType{
	"JOUR":   domain.TypeJournalPaper,
	"EJOUR":  domain.TypeJournalPaper,
	"MGZN":   domain.TypeJournalPaper,
	"JFULL":  domain.TypeJournalEdition,
	"CONF":   domain.TypeConferencePaper,
	"CPAPER": domain.TypeConferencePaper,
	"BOOK":   domain.TypeBook,
	"EBOOK":  domain.TypeBook,
	"EDBOOK": domain.TypeBook,
	"CHAP":   domain.TypeBookChapter,
	"ECHAP":  domain.TypeBookChapter,
	"THES":   domain.TypeThesis,
	"RPRT":   domain.TypeReport,
	"PAT":    domain.TypePatent,
	"GEN":    domain.TypeMiscDocument,
	"ELEC":   domain.TypeMiscDocument,
	"UNPB":   domain.TypeMiscDocument,
	"SLIDE":  domain.TypeKeyNote,
}

var risLine = regexp.MustCompile(`^([A-Z][A-Z0-9])  -(?: (.*))?$`)

var issnPattern = regexp.MustCompile(`^\d{4}-?\d{3}[\dXx]$`)

// risRecord holds the values of one record, in order, per tag.
type risRecord map[string][]string

func (r risRecord) get(tags ...string) string {
	for _, t := range tags {
		if v := r[t]; len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return ""
}

// Parse implements Parser.
func (RISParser) Parse(r io.Reader) ([]domain.PrePublication, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	data = trimBOM(data)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		entries []domain.PrePublication
		cur     risRecord
		lastTag string
		line    int
	)
	flush := func() {
		if cur != nil {
			entries = append(entries, risEntry(cur, len(entries)+1))
		}
		cur, lastTag = nil, ""
	}

	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), " \r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		m := risLine.FindStringSubmatch(text)
		if m == nil {
			if cur == nil || lastTag == "" {
				return nil, &ParseError{Format: FormatRIS, Line: line, Err: errors.New("expected a tagged line")}
			}
			values := cur[lastTag]
			values[len(values)-1] = strings.TrimSpace(values[len(values)-1] + " " + strings.TrimSpace(text))
			continue
		}
		tag, value := m[1], strings.TrimSpace(m[2])
		switch {
		case tag == "TY":
			flush()
			cur = risRecord{}
		case tag == "ER":
			if cur == nil {
				return nil, &ParseError{Format: FormatRIS, Line: line, Err: errors.New("ER without TY")}
			}
			flush()
			continue
		case cur == nil:
			return nil, &ParseError{Format: FormatRIS, Line: line, Err: fmt.Errorf("%s before TY", tag)}
		}
		cur[tag] = append(cur[tag], value)
		lastTag = tag
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Format: FormatRIS, Line: line, Err: err}
	}
	flush()
	return entries, nil
}

// risEntry builds the staged entry of one record. index is the 1-based
// position of the record, used as key when the record has no ID.
func risEntry(rec risRecord, index int) domain.PrePublication {
	key := rec.get("ID")
	if key == "" {
		key = "entry" + strconv.Itoa(index)
	}
	pre := domain.PrePublication{Key: key}
	for _, tag := range []string{"AU", "A1"} {
		for _, a := range rec[tag] {
			if a = strings.TrimSpace(a); a != "" {
				pre.TemporaryAuthors = append(pre.TemporaryAuthors, a)
			}
		}
	}

	ty := strings.ToUpper(rec.get("TY"))
	title := rec.get("TI", "T1", "CT")
	kind, ok := risKinds[ty]
	if !ok {
		pre.Publication = &domain.Publication{Title: title, Kind: domain.PublicationType(strings.ToLower(ty))}
		return pre
	}
	pub, _ := domain.NewPublication(kind, title)

	date := rec.get("PY", "Y1", "DA")
	pub.PublicationYear = parseYear(date)
	if parts := strings.Split(date, "/"); len(parts) > 1 {
		setDate(pub, parseMonth(parts[1]))
	}
	pub.DOI = normalizeDOI(rec.get("DO"))
	if sn := rec.get("SN"); issnPattern.MatchString(sn) {
		pub.ISSN = sn
	} else {
		pub.ISBN = sn
	}
	pub.Abstract = rec.get("AB", "N2")
	for _, kw := range rec["KW"] {
		pub.Keywords = append(pub.Keywords, splitList(kw)...)
	}
	pub.URL = rec.get("UR", "L1")
	pub.Language = rec.get("LA")

	pages := rec.get("SP")
	if ep := rec.get("EP"); ep != "" && pages != "" && ep != pages {
		pages += "-" + ep
	}
	secondary := rec.get("T2", "JO", "JF", "BT", "JA", "T3")
	publisher, address := rec.get("PB"), rec.get("CY")
	switch d := pub.Details.(type) {
	case *domain.JournalPaperDetails:
		d.Volume, d.Number, d.Pages, d.Series = rec.get("VL"), rec.get("IS"), pages, rec.get("T3")
		pre.JournalName, pre.JournalISSN = secondary, pub.ISSN
	case *domain.JournalEditionDetails:
		d.Volume, d.Number, d.Pages = rec.get("VL"), rec.get("IS"), pages
		pre.JournalName, pre.JournalISSN = first(secondary, title), pub.ISSN
	case *domain.ConferencePaperDetails:
		d.Volume, d.Pages, d.Series, d.Organization, d.Address = rec.get("VL"), pages, rec.get("T3"), publisher, address
		pre.ConferenceName = secondary
	case *domain.KeyNoteDetails:
		d.ScientificEventName, d.Address = secondary, address
		pre.ConferenceName = secondary
	case *domain.BookDetails:
		d.Publisher, d.Address, d.Edition, d.Series, d.Volume = publisher, address, rec.get("ET"), rec.get("T3", "T2"), rec.get("VL")
	case *domain.BookChapterDetails:
		d.BookTitle, d.Publisher, d.Address, d.Edition, d.Pages = secondary, publisher, address, rec.get("ET"), pages
	case *domain.ThesisDetails:
		d.Institution, d.Address = publisher, address
		d.Level = domain.ThesisPhD
		if strings.Contains(strings.ToLower(rec.get("M3")), "master") {
			d.Level = domain.ThesisMaster
		}
	case *domain.ReportDetails:
		d.Institution, d.ReportNumber, d.ReportType, d.Address = publisher, rec.get("IS", "M1"), rec.get("M3"), address
	case *domain.PatentDetails:
		d.Institution, d.PatentNumber, d.Address = publisher, rec.get("IS", "M1"), address
	case *domain.MiscDocumentDetails:
		d.DocumentType, d.HowPublished, d.Organization, d.Address, d.Number = first(rec.get("M3"), strings.ToLower(ty)), secondary, publisher, address, rec.get("M1")
	}
	pre.Publication = pub
	return pre
}
