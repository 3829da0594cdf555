package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicationType_IsCompatibleWith(t *testing.T) {
	tests := []struct {
		name     string
		actual   PublicationType
		declared PublicationType
		expected bool
	}{
		{name: "same kind", actual: TypeBook, declared: TypeBook, expected: true},
		{name: "different kinds", actual: TypeBook, declared: TypeThesis, expected: false},
		{name: "journal paper is an article", actual: TypeJournalPaper, declared: TypeArticle, expected: true},
		{name: "keynote is proceedings", actual: TypeKeyNote, declared: TypeProceedings, expected: true},
		{name: "conference paper is proceedings", actual: TypeConferencePaper, declared: TypeProceedings, expected: true},
		{name: "report is not an article", actual: TypeReport, declared: TypeArticle, expected: false},
		{name: "family is not compatible with member", actual: TypeArticle, declared: TypeJournalPaper, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.actual.IsCompatibleWith(tt.declared))
		})
	}
}

func TestPublicationType_IsConcrete(t *testing.T) {
	for _, kind := range ConcreteTypes {
		assert.True(t, kind.IsConcrete(), kind)
		assert.True(t, kind.IsValid(), kind)
	}
	assert.False(t, TypeArticle.IsConcrete())
	assert.True(t, TypeArticle.IsValid())
	assert.False(t, PublicationType("poster").IsValid())
}

func TestNewPayload_MatchesKind(t *testing.T) {
	for _, kind := range ConcreteTypes {
		p, err := NewPayload(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, p.Kind())
	}

	_, err := NewPayload(TypeProceedings)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPublication_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		pub, err := NewPublication(TypeThesis, "On graphs")
		require.NoError(t, err)
		assert.NoError(t, pub.Validate())
	})

	t.Run("missing title", func(t *testing.T) {
		pub, err := NewPublication(TypeThesis, "  ")
		require.NoError(t, err)
		assert.ErrorIs(t, pub.Validate(), ErrInvalidInput)
	})

	t.Run("payload of another kind", func(t *testing.T) {
		pub := &Publication{Kind: TypeJournalPaper, Title: "x", Details: &BookDetails{}}
		err := pub.Validate()
		require.ErrorIs(t, err, ErrTypeMismatch)

		var mismatch *TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, TypeJournalPaper, mismatch.Expected)
		assert.Equal(t, TypeBook, mismatch.Actual)
		assert.Contains(t, err.Error(), "journal_paper")
		assert.Contains(t, err.Error(), "book")
	})
}

func TestTransform(t *testing.T) {
	date := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	src := &Publication{
		ID:              42,
		Kind:            TypeJournalPaper,
		Title:           "Sparse graphs",
		PublicationDate: &date,
		DOI:             "10.1000/xyz",
		Keywords:        []string{"graphs"},
		Details:         &JournalPaperDetails{JournalID: 7, Volume: "12", Number: "3", Pages: "1-10"},
		Version:         3,
	}

	t.Run("carries shared payload fields", func(t *testing.T) {
		out, err := Transform(src, TypeJournalEdition)
		require.NoError(t, err)

		assert.Equal(t, TypeJournalEdition, out.Kind)
		assert.NoError(t, out.Validate())
		d, ok := out.Details.(*JournalEditionDetails)
		require.True(t, ok)
		assert.Equal(t, int64(7), d.JournalID)
		assert.Equal(t, "12", d.Volume)
		assert.Equal(t, "3", d.Number)
		assert.Equal(t, "1-10", d.Pages)
	})

	t.Run("drops fields the target lacks", func(t *testing.T) {
		out, err := Transform(src, TypeThesis)
		require.NoError(t, err)

		assert.Equal(t, &ThesisDetails{}, out.Details)
		assert.Equal(t, src.Title, out.Title)
		assert.Equal(t, src.DOI, out.DOI)
		assert.Equal(t, src.ID, out.ID)
		assert.Zero(t, out.JournalID())
	})

	t.Run("does not alias the source", func(t *testing.T) {
		out, err := Transform(src, TypeBook)
		require.NoError(t, err)

		out.Keywords[0] = "changed"
		*out.PublicationDate = out.PublicationDate.AddDate(1, 0, 0)
		assert.Equal(t, "graphs", src.Keywords[0])
		assert.Equal(t, 2021, src.PublicationDate.Year())
		assert.Equal(t, TypeJournalPaper, src.Kind)
	})

	t.Run("every kind transforms into every kind", func(t *testing.T) {
		for _, from := range ConcreteTypes {
			pub, err := NewPublication(from, "t")
			require.NoError(t, err)
			for _, to := range ConcreteTypes {
				out, err := Transform(pub, to)
				require.NoError(t, err)
				assert.NoError(t, out.Validate(), "%s -> %s", from, to)
			}
		}
	})

	t.Run("rejects families", func(t *testing.T) {
		_, err := Transform(src, TypeArticle)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestPublication_JSONKeepsPayloadType(t *testing.T) {
	pub := &Publication{
		Kind:    TypeConferencePaper,
		Title:   "Fast joins",
		Details: &ConferencePaperDetails{ConferenceID: 5, Pages: "10-12"},
	}

	data, err := json.Marshal(pub)
	require.NoError(t, err)

	var decoded Publication
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, pub.Details, decoded.Details)
	assert.Equal(t, int64(5), decoded.ConferenceID())
}

func TestPublication_VenueSetters(t *testing.T) {
	pub, err := NewPublication(TypeKeyNote, "Talk")
	require.NoError(t, err)

	assert.True(t, pub.SetConferenceID(9))
	assert.False(t, pub.SetJournalID(9))
	assert.Equal(t, int64(9), pub.ConferenceID())
}

func TestMembership_Overlaps(t *testing.T) {
	day := func(y int, m time.Month) *time.Time {
		d := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		return &d
	}

	tests := []struct {
		name     string
		a, b     Membership
		expected bool
	}{
		{name: "both open", a: Membership{}, b: Membership{}, expected: true},
		{name: "disjoint", a: Membership{Since: day(2010, 1), To: day(2012, 1)}, b: Membership{Since: day(2013, 1)}, expected: false},
		{name: "nested", a: Membership{Since: day(2010, 1)}, b: Membership{Since: day(2015, 1), To: day(2016, 1)}, expected: true},
		{name: "touching ends", a: Membership{To: day(2012, 1)}, b: Membership{Since: day(2012, 1)}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.expected, tt.b.Overlaps(tt.a))
		})
	}
}

func TestMembership_Validate(t *testing.T) {
	since := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := since.AddDate(-1, 0, 0)

	m := Membership{PersonID: 1, OrganizationID: 2, Status: StatusResearcher}
	assert.NoError(t, m.Validate())

	m.Since, m.To = &since, &to
	assert.ErrorIs(t, m.Validate(), ErrInvalidInput)

	assert.Error(t, Membership{PersonID: 1, OrganizationID: 2, Status: "dean"}.Validate())
}

func TestPerson_Validate(t *testing.T) {
	assert.NoError(t, Person{LastName: "Curie", ORCID: "0000-0002-1825-009X"}.Validate())
	assert.ErrorIs(t, Person{FirstName: "Marie"}.Validate(), ErrInvalidInput)
	assert.Error(t, Person{LastName: "Curie", ORCID: "12345"}.Validate())
}

func TestComparePersons(t *testing.T) {
	a := Person{ID: 2, FirstName: "ada", LastName: "Lovelace"}
	b := Person{ID: 1, FirstName: "Ada", LastName: "lovelace"}
	c := Person{ID: 3, FirstName: "Alan", LastName: "Turing"}

	assert.Equal(t, 1, ComparePersons(a, b))
	assert.Equal(t, -1, ComparePersons(b, c))
	assert.Equal(t, 0, ComparePersons(a, a))
}

func TestBatchError(t *testing.T) {
	batch := &BatchError{
		Operation: "import",
		Failures: []*EntryError{
			{Index: 1, Key: "k2", Title: "Second entry", Err: NewNotFoundError("journal", "Unknown Letters")},
			{Index: 3, Key: "k4", Err: NewTypeMismatchError(TypeArticle, TypeBook)},
		},
	}

	assert.ErrorIs(t, batch, ErrNotFound)
	assert.ErrorIs(t, batch, ErrTypeMismatch)
	assert.NotErrorIs(t, batch, ErrConflict)
	assert.Contains(t, batch.Error(), "Second entry")
	assert.Contains(t, batch.Error(), "k4")
	assert.Equal(t, []string{"Second entry", ""}, batch.Titles())

	var entry *EntryError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", batch), &entry)
	assert.Equal(t, "k2", entry.Key)
}

func TestTypedErrors_Unwrap(t *testing.T) {
	assert.True(t, errors.Is(NewConflictError("person", "1", 2), ErrConflict))
	assert.True(t, errors.Is(NewBusinessRuleError("known-member", "none"), ErrBusinessRule))
	assert.True(t, errors.Is(NewAlreadyExistsError("journal", "x"), ErrAlreadyExists))
	assert.True(t, errors.Is(NewValidationError("f", "m"), ErrInvalidInput))

	cause := errors.New("boom")
	assert.True(t, errors.Is(NewExternalAPIError("scopus", 500, "x", cause), cause))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{NewNotFoundError("person", "1"), "not_found"},
		{fmt.Errorf("wrapped: %w", NewValidationError("title", "required")), "validation"},
		{NewTypeMismatchError(TypeArticle, TypeBook), "type_mismatch"},
		{NewBusinessRuleError("authors_required", "no author"), "business_rule"},
		{NewConflictError("person", "1", 2), "conflict"},
		{NewAlreadyExistsError("journal", "Mind"), "already_exists"},
		{&BatchError{Failures: []*EntryError{{Err: NewNotFoundError("journal", "x")}}}, "batch"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "%v", tt.err)
	}
}
