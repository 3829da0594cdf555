package importer

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/helixir/research-registry-service/internal/domain"
)

// Format identifies a bibliography file format.
type Format string

const (
	FormatBibTeX Format = "bibtex"
	FormatRIS    Format = "ris"
)

// Parser reads a bibliography file into staged entries, in file order.
type Parser interface {
	Parse(r io.Reader) ([]domain.PrePublication, error)
}

// ParserFor returns the parser of a format.
func ParserFor(format Format) (Parser, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatBibTeX, "bib":
		return BibTeXParser{}, nil
	case FormatRIS:
		return RISParser{}, nil
	}
	return nil, domain.NewValidationError("format", fmt.Sprintf("unsupported bibliography format %q", format))
}

// ParseError reports a file that could not be read at all. Errors of single
// entries are reported per entry by the pipeline instead.
type ParseError struct {
	Format Format
	Line   int
	Err    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s: line %d: %v", e.Format, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

// Unwrap returns domain.ErrInvalidInput so that callers map parse failures
// like any other validation error.
func (e *ParseError) Unwrap() []error {
	return []error{domain.ErrInvalidInput, e.Err}
}

func trimBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

var yearPattern = regexp.MustCompile(`\b(1[5-9]\d\d|2\d\d\d)\b`)

// parseYear extracts the first plausible four digit year.
func parseYear(s string) int {
	m := yearPattern.FindString(s)
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return y
}

var months = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// parseMonth accepts month numbers and English month names or abbreviations.
func parseMonth(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
		return n
	}
	if len(s) >= 3 {
		return months[s[:3]]
	}
	return 0
}

// setDate fills the publication date when both year and month are known.
func setDate(pub *domain.Publication, month int) {
	if pub.PublicationYear == 0 || month == 0 {
		return
	}
	d := time.Date(pub.PublicationYear, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	pub.PublicationDate = &d
}

// normalizeDOI strips resolver prefixes so that DOIs compare as identifiers.
func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi.org/", "DOI:", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return strings.TrimSpace(doi)
}

// splitList splits keyword style lists on commas and semicolons.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// latexAccents maps accent commands to Unicode combining marks.
var latexAccents = map[byte]rune{
	'\'': '\u0301',
	'`':  '\u0300',
	'^':  '\u0302',
	'"':  '\u0308',
	'~':  '\u0303',
	'=':  '\u0304',
	'.':  '\u0307',
	'c':  '\u0327',
	'v':  '\u030C',
	'u':  '\u0306',
	'H':  '\u030B',
}

var latexSymbols = strings.NewReplacer(
	`\&`, "&",
	`\%`, "%",
	`\$`, "$",
	`\#`, "#",
	`\_`, "_",
	`\ss`, "ß",
	`\o`, "ø",
	`\O`, "Ø",
	`\ae`, "æ",
	`\AE`, "Æ",
	`\l`, "ł",
	`\L`, "Ł",
	`\i`, "ı",
	`\textendash`, "–",
	`\textemdash`, "—",
	`~`, " ",
)

// cleanLatex turns a BibTeX field value into plain text: accent commands are
// composed into precomposed characters, escapes are resolved, grouping
// braces are dropped and whitespace is collapsed.
func cleanLatex(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			if mark, ok := latexAccents[s[i+1]]; ok && (s[i+1] < 'a' || s[i+1] > 'z' || i+2 < len(s) && (s[i+2] == '{' || s[i+2] == ' ')) {
				letter, next := accentTarget(s, i+2)
				if letter != "" {
					b.WriteString(letter)
					b.WriteRune(mark)
					i = next - 1
					continue
				}
			}
		}
		b.WriteByte(c)
	}
	out := latexSymbols.Replace(b.String())
	out = strings.NewReplacer("{", "", "}", "").Replace(out)
	out = norm.NFC.String(out)
	return strings.Join(strings.Fields(out), " ")
}

// accentTarget returns the letter an accent command applies to, accepting
// `\'e`, `\'{e}` and `\c c`, and the index just past it.
func accentTarget(s string, i int) (string, int) {
	for i < len(s) && s[i] == ' ' {
		i++
	}
	if i >= len(s) {
		return "", i
	}
	if s[i] == '{' {
		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			return "", i
		}
		inner := strings.TrimPrefix(s[i+1:i+end], `\`)
		return inner, i + end + 1
	}
	if s[i] == '\\' && i+1 < len(s) {
		return s[i+1 : i+2], i + 2
	}
	return s[i : i+1], i + 1
}
