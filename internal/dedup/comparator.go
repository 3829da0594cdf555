package dedup

import (
	"strings"

	"github.com/helixir/research-registry-service/internal/domain"
)

const (
	// DefaultNameThreshold accepts initials and single typos in long last names.
	DefaultNameThreshold = 0.85
	// DefaultTitleThreshold accepts small punctuation or spelling differences.
	DefaultTitleThreshold = 0.9
)

// Comparator decides whether two names or titles denote the same thing.
// The relation is symmetric and reflexive but not transitive: "John Smith"
// and "J. Smith" are similar, as are "J. Smith" and "Jane Smith", while
// "John Smith" and "Jane Smith" are not.
type Comparator struct {
	NameThreshold  float64
	TitleThreshold float64
}

// NewComparator returns a Comparator with the given thresholds; zero values
// fall back to the defaults.
func NewComparator(nameThreshold, titleThreshold float64) Comparator {
	if nameThreshold <= 0 {
		nameThreshold = DefaultNameThreshold
	}
	if titleThreshold <= 0 {
		titleThreshold = DefaultTitleThreshold
	}
	return Comparator{NameThreshold: nameThreshold, TitleThreshold: titleThreshold}
}

// DefaultComparator returns a Comparator with the default thresholds.
func DefaultComparator() Comparator {
	return NewComparator(DefaultNameThreshold, DefaultTitleThreshold)
}

// IsSimilar compares two person names.
func (c Comparator) IsSimilar(a, b string) bool {
	if strings.TrimSpace(a) == strings.TrimSpace(b) {
		return true
	}
	return NameSimilarity(a, b) >= c.NameThreshold
}

// IsSimilarPerson compares two persons by full name.
func (c Comparator) IsSimilarPerson(a, b domain.Person) bool {
	return c.IsSimilar(a.FullName(), b.FullName())
}

// IsSimilarTitle compares two publication titles.
func (c Comparator) IsSimilarTitle(a, b string) bool {
	if strings.TrimSpace(a) == strings.TrimSpace(b) {
		return true
	}
	return TitleSimilarity(a, b) >= c.TitleThreshold
}

// SameName reports whether two names are equal once case, accents and
// punctuation are ignored.
func SameName(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
