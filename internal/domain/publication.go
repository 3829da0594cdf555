package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PublicationType is the discriminant of a publication variant.
// These values must match the database enum publication_type.
type PublicationType string

const (
	TypeBook            PublicationType = "book"
	TypeBookChapter     PublicationType = "book_chapter"
	TypeConferencePaper PublicationType = "conference_paper"
	TypeJournalPaper    PublicationType = "journal_paper"
	TypeJournalEdition  PublicationType = "journal_edition"
	TypeKeyNote         PublicationType = "key_note"
	TypeMiscDocument    PublicationType = "misc_document"
	TypePatent          PublicationType = "patent"
	TypeReport          PublicationType = "report"
	TypeThesis          PublicationType = "thesis"

	// TypeArticle and TypeProceedings are families. They are never stored as a
	// kind but can be declared as the expected type of an imported entry.
	TypeArticle     PublicationType = "article"
	TypeProceedings PublicationType = "proceedings"
)

// ConcreteTypes lists every storable publication kind.
var ConcreteTypes = []PublicationType{
	TypeBook, TypeBookChapter, TypeConferencePaper, TypeJournalPaper, TypeJournalEdition,
	TypeKeyNote, TypeMiscDocument, TypePatent, TypeReport, TypeThesis,
}

var typeFamilies = map[PublicationType][]PublicationType{
	TypeArticle:     {TypeJournalPaper},
	TypeProceedings: {TypeConferencePaper, TypeKeyNote},
}

// IsConcrete reports whether t can be stored as a publication kind.
func (t PublicationType) IsConcrete() bool {
	for _, c := range ConcreteTypes {
		if c == t {
			return true
		}
	}
	return false
}

// IsValid reports whether t is a known kind or family.
func (t PublicationType) IsValid() bool {
	_, family := typeFamilies[t]
	return family || t.IsConcrete()
}

// IsCompatibleWith reports whether a publication of kind t may be used where
// declared is expected.
func (t PublicationType) IsCompatibleWith(declared PublicationType) bool {
	if t == declared {
		return true
	}
	for _, member := range typeFamilies[declared] {
		if member == t {
			return true
		}
	}
	return false
}

// Payload is the kind-specific part of a publication.
type Payload interface {
	Kind() PublicationType
}

// BookDetails is the payload of a book.
type BookDetails struct {
	Publisher string `json:"publisher,omitempty"`
	Address   string `json:"address,omitempty"`
	Edition   string `json:"edition,omitempty"`
	Series    string `json:"series,omitempty"`
	Volume    string `json:"volume,omitempty"`
}

// BookChapterDetails is the payload of a book chapter.
type BookChapterDetails struct {
	BookTitle     string `json:"book_title,omitempty"`
	ChapterNumber string `json:"chapter_number,omitempty"`
	Publisher     string `json:"publisher,omitempty"`
	Address       string `json:"address,omitempty"`
	Edition       string `json:"edition,omitempty"`
	Pages         string `json:"pages,omitempty"`
}

// ConferencePaperDetails is the payload of a paper in conference proceedings.
type ConferencePaperDetails struct {
	ConferenceID int64  `json:"conference_id,omitempty"`
	Volume       string `json:"volume,omitempty"`
	Pages        string `json:"pages,omitempty"`
	Series       string `json:"series,omitempty"`
	Organization string `json:"organization,omitempty"`
	Address      string `json:"address,omitempty"`
}

// JournalPaperDetails is the payload of a journal article.
type JournalPaperDetails struct {
	JournalID int64  `json:"journal_id,omitempty"`
	Volume    string `json:"volume,omitempty"`
	Number    string `json:"number,omitempty"`
	Pages     string `json:"pages,omitempty"`
	Series    string `json:"series,omitempty"`
}

// JournalEditionDetails is the payload of an edited journal issue.
type JournalEditionDetails struct {
	JournalID int64  `json:"journal_id,omitempty"`
	Volume    string `json:"volume,omitempty"`
	Number    string `json:"number,omitempty"`
	Pages     string `json:"pages,omitempty"`
}

// KeyNoteDetails is the payload of an invited talk.
type KeyNoteDetails struct {
	ConferenceID        int64  `json:"conference_id,omitempty"`
	ScientificEventName string `json:"scientific_event_name,omitempty"`
	Address             string `json:"address,omitempty"`
}

// MiscDocumentDetails is the payload of any other document.
type MiscDocumentDetails struct {
	DocumentType string `json:"document_type,omitempty"`
	HowPublished string `json:"how_published,omitempty"`
	Organization string `json:"organization,omitempty"`
	Address      string `json:"address,omitempty"`
	Number       string `json:"number,omitempty"`
}

// PatentDetails is the payload of a patent.
type PatentDetails struct {
	Institution  string `json:"institution,omitempty"`
	PatentNumber string `json:"patent_number,omitempty"`
	Address      string `json:"address,omitempty"`
}

// ReportDetails is the payload of a technical report.
type ReportDetails struct {
	Institution  string `json:"institution,omitempty"`
	ReportNumber string `json:"report_number,omitempty"`
	ReportType   string `json:"report_type,omitempty"`
	Address      string `json:"address,omitempty"`
}

// ThesisLevel is the degree a thesis was written for.
type ThesisLevel string

const (
	ThesisMaster ThesisLevel = "master"
	ThesisPhD    ThesisLevel = "phd"
	ThesisHDR    ThesisLevel = "hdr"
)

// ThesisDetails is the payload of a thesis.
type ThesisDetails struct {
	Institution string      `json:"institution,omitempty"`
	Level       ThesisLevel `json:"thesis_level,omitempty"`
	Address     string      `json:"address,omitempty"`
}

func (BookDetails) Kind() PublicationType            { return TypeBook }
func (BookChapterDetails) Kind() PublicationType     { return TypeBookChapter }
func (ConferencePaperDetails) Kind() PublicationType { return TypeConferencePaper }
func (JournalPaperDetails) Kind() PublicationType    { return TypeJournalPaper }
func (JournalEditionDetails) Kind() PublicationType  { return TypeJournalEdition }
func (KeyNoteDetails) Kind() PublicationType         { return TypeKeyNote }
func (MiscDocumentDetails) Kind() PublicationType    { return TypeMiscDocument }
func (PatentDetails) Kind() PublicationType          { return TypePatent }
func (ReportDetails) Kind() PublicationType          { return TypeReport }
func (ThesisDetails) Kind() PublicationType          { return TypeThesis }

// Publication is a bibliographic record. Kind tags which payload Details holds.
type Publication struct {
	ID              int64           `json:"id"`
	Kind            PublicationType `json:"kind"`
	Title           string          `json:"title"`
	PublicationDate *time.Time      `json:"publication_date,omitempty"`
	PublicationYear int             `json:"publication_year,omitempty"`
	DOI             string          `json:"doi,omitempty"`
	HalID           string          `json:"hal_id,omitempty"`
	ISBN            string          `json:"isbn,omitempty"`
	ISSN            string          `json:"issn,omitempty"`
	Abstract        string          `json:"abstract,omitempty"`
	Keywords        []string        `json:"keywords,omitempty"`
	URL             string          `json:"url,omitempty"`
	Language        string          `json:"language,omitempty"`
	FilePath        string          `json:"file_path,omitempty"`
	Details         Payload         `json:"details"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewPublication creates a publication of the given kind with an empty payload.
func NewPublication(kind PublicationType, title string) (*Publication, error) {
	details, err := NewPayload(kind)
	if err != nil {
		return nil, err
	}
	return &Publication{Kind: kind, Title: title, Details: details}, nil
}

// NewPayload returns the zero payload for a concrete kind.
func NewPayload(kind PublicationType) (Payload, error) {
	switch kind {
	case TypeBook:
		return &BookDetails{}, nil
	case TypeBookChapter:
		return &BookChapterDetails{}, nil
	case TypeConferencePaper:
		return &ConferencePaperDetails{}, nil
	case TypeJournalPaper:
		return &JournalPaperDetails{}, nil
	case TypeJournalEdition:
		return &JournalEditionDetails{}, nil
	case TypeKeyNote:
		return &KeyNoteDetails{}, nil
	case TypeMiscDocument:
		return &MiscDocumentDetails{}, nil
	case TypePatent:
		return &PatentDetails{}, nil
	case TypeReport:
		return &ReportDetails{}, nil
	case TypeThesis:
		return &ThesisDetails{}, nil
	}
	return nil, NewValidationError("kind", fmt.Sprintf("unknown publication type %q", kind))
}

// DecodePayload decodes the stored JSON payload of a publication kind.
func DecodePayload(kind PublicationType, data []byte) (Payload, error) {
	p, err := NewPayload(kind)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}

// UnmarshalJSON decodes a publication, using kind to pick the payload type.
func (p *Publication) UnmarshalJSON(data []byte) error {
	type alias Publication
	aux := struct {
		*alias
		Details json.RawMessage `json:"details"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	details, err := DecodePayload(p.Kind, aux.Details)
	if err != nil {
		return err
	}
	p.Details = details
	return nil
}

// Validate checks required fields and that the payload matches the kind.
func (p *Publication) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return NewValidationError("title", "is required")
	}
	if !p.Kind.IsConcrete() {
		return NewValidationError("kind", fmt.Sprintf("unknown publication type %q", p.Kind))
	}
	if p.Details == nil {
		return NewValidationError("details", "is required")
	}
	if p.Details.Kind() != p.Kind {
		return NewTypeMismatchError(p.Kind, p.Details.Kind())
	}
	return nil
}

// Year returns the publication year, falling back to the date.
func (p *Publication) Year() int {
	if p.PublicationYear != 0 {
		return p.PublicationYear
	}
	if p.PublicationDate != nil {
		return p.PublicationDate.Year()
	}
	return 0
}

// JournalID returns the referenced journal, or zero.
func (p *Publication) JournalID() int64 {
	switch d := p.Details.(type) {
	case *JournalPaperDetails:
		return d.JournalID
	case *JournalEditionDetails:
		return d.JournalID
	}
	return 0
}

// ConferenceID returns the referenced conference, or zero.
func (p *Publication) ConferenceID() int64 {
	switch d := p.Details.(type) {
	case *ConferencePaperDetails:
		return d.ConferenceID
	case *KeyNoteDetails:
		return d.ConferenceID
	}
	return 0
}

// SetJournalID points a journal-bearing publication at a journal. It reports
// false when the kind carries no journal.
func (p *Publication) SetJournalID(id int64) bool {
	switch d := p.Details.(type) {
	case *JournalPaperDetails:
		d.JournalID = id
	case *JournalEditionDetails:
		d.JournalID = id
	default:
		return false
	}
	return true
}

// SetConferenceID points a conference-bearing publication at a conference. It
// reports false when the kind carries no conference.
func (p *Publication) SetConferenceID(id int64) bool {
	switch d := p.Details.(type) {
	case *ConferencePaperDetails:
		d.ConferenceID = id
	case *KeyNoteDetails:
		d.ConferenceID = id
	default:
		return false
	}
	return true
}

// PayloadFields is the union of every payload field. It is the common ground
// used to move data between variants.
type PayloadFields struct {
	Publisher, Address, Edition, Series, Volume string
	BookTitle, ChapterNumber, Pages, Number     string
	Organization, Institution                   string
	ScientificEventName, DocumentType           string
	HowPublished, ReportType                    string
	ThesisLevel                                 ThesisLevel
	JournalID, ConferenceID                     int64
}

// Fields flattens a payload.
func Fields(p Payload) PayloadFields {
	var f PayloadFields
	switch d := p.(type) {
	case *BookDetails:
		f.Publisher, f.Address, f.Edition, f.Series, f.Volume = d.Publisher, d.Address, d.Edition, d.Series, d.Volume
	case *BookChapterDetails:
		f.BookTitle, f.ChapterNumber, f.Publisher, f.Address, f.Edition, f.Pages = d.BookTitle, d.ChapterNumber, d.Publisher, d.Address, d.Edition, d.Pages
	case *ConferencePaperDetails:
		f.ConferenceID, f.Volume, f.Pages, f.Series, f.Organization, f.Address = d.ConferenceID, d.Volume, d.Pages, d.Series, d.Organization, d.Address
	case *JournalPaperDetails:
		f.JournalID, f.Volume, f.Number, f.Pages, f.Series = d.JournalID, d.Volume, d.Number, d.Pages, d.Series
	case *JournalEditionDetails:
		f.JournalID, f.Volume, f.Number, f.Pages = d.JournalID, d.Volume, d.Number, d.Pages
	case *KeyNoteDetails:
		f.ConferenceID, f.ScientificEventName, f.Address = d.ConferenceID, d.ScientificEventName, d.Address
	case *MiscDocumentDetails:
		f.DocumentType, f.HowPublished, f.Organization, f.Address, f.Number = d.DocumentType, d.HowPublished, d.Organization, d.Address, d.Number
	case *PatentDetails:
		f.Institution, f.Number, f.Address = d.Institution, d.PatentNumber, d.Address
	case *ReportDetails:
		f.Institution, f.Number, f.ReportType, f.Address = d.Institution, d.ReportNumber, d.ReportType, d.Address
	case *ThesisDetails:
		f.Institution, f.ThesisLevel, f.Address = d.Institution, d.Level, d.Address
	}
	return f
}

// BuildPayload assembles the payload of kind from flattened fields, keeping
// only those the kind has.
func BuildPayload(kind PublicationType, f PayloadFields) (Payload, error) {
	switch kind {
	case TypeBook:
		return &BookDetails{Publisher: f.Publisher, Address: f.Address, Edition: f.Edition, Series: f.Series, Volume: f.Volume}, nil
	case TypeBookChapter:
		return &BookChapterDetails{BookTitle: f.BookTitle, ChapterNumber: f.ChapterNumber, Publisher: f.Publisher, Address: f.Address, Edition: f.Edition, Pages: f.Pages}, nil
	case TypeConferencePaper:
		return &ConferencePaperDetails{ConferenceID: f.ConferenceID, Volume: f.Volume, Pages: f.Pages, Series: f.Series, Organization: f.Organization, Address: f.Address}, nil
	case TypeJournalPaper:
		return &JournalPaperDetails{JournalID: f.JournalID, Volume: f.Volume, Number: f.Number, Pages: f.Pages, Series: f.Series}, nil
	case TypeJournalEdition:
		return &JournalEditionDetails{JournalID: f.JournalID, Volume: f.Volume, Number: f.Number, Pages: f.Pages}, nil
	case TypeKeyNote:
		return &KeyNoteDetails{ConferenceID: f.ConferenceID, ScientificEventName: f.ScientificEventName, Address: f.Address}, nil
	case TypeMiscDocument:
		return &MiscDocumentDetails{DocumentType: f.DocumentType, HowPublished: f.HowPublished, Organization: f.Organization, Address: f.Address, Number: f.Number}, nil
	case TypePatent:
		return &PatentDetails{Institution: f.Institution, PatentNumber: f.Number, Address: f.Address}, nil
	case TypeReport:
		return &ReportDetails{Institution: f.Institution, ReportNumber: f.Number, ReportType: f.ReportType, Address: f.Address}, nil
	case TypeThesis:
		return &ThesisDetails{Institution: f.Institution, Level: f.ThesisLevel, Address: f.Address}, nil
	}
	return nil, NewValidationError("kind", fmt.Sprintf("unknown publication type %q", kind))
}

// Transform rebuilds pub as a publication of kind target. Shared fields are
// copied as is and payload fields the target kind also has are carried over.
// pub is left untouched.
func Transform(pub *Publication, target PublicationType) (*Publication, error) {
	if !target.IsConcrete() {
		return nil, NewValidationError("kind", fmt.Sprintf("cannot transform into %q", target))
	}
	details, err := BuildPayload(target, Fields(pub.Details))
	if err != nil {
		return nil, err
	}
	out := *pub
	out.Kind = target
	out.Details = details
	if pub.Keywords != nil {
		out.Keywords = append([]string(nil), pub.Keywords...)
	}
	if pub.PublicationDate != nil {
		d := *pub.PublicationDate
		out.PublicationDate = &d
	}
	return &out, nil
}
